package mastery

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"curricula/domain/config"
	"curricula/domain/core/entities"
	"curricula/domain/core/valueobjects"
	pkgerrors "curricula/pkg/errors"
)

var (
	baseTime = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
)

func testTracker() *Tracker {
	return NewTracker(config.DefaultDomainConfig())
}

func learner(t *testing.T, s string) valueobjects.LearnerID {
	t.Helper()
	id, err := valueobjects.NewLearnerIDFromString(s)
	require.NoError(t, err)
	return id
}

func cid(t *testing.T, s string) valueobjects.ConceptID {
	t.Helper()
	id, err := valueobjects.NewConceptIDFromString(s)
	require.NoError(t, err)
	return id
}

func TestRecordAttemptCreatesRecordLazily(t *testing.T) {
	tracker := testTracker()
	l, c := learner(t, "l1"), cid(t, "algebra")

	assert.Zero(t, tracker.DecayedMastery(l, c, baseTime))

	result, err := tracker.RecordAttempt(l, c, 1.0, 30*time.Second, baseTime)
	require.NoError(t, err)

	assert.Zero(t, result.MasteryBefore)
	assert.Greater(t, result.MasteryAfter, 0.0)
	assert.Equal(t, 1, result.AttemptCount)
	assert.False(t, result.Mastered)
}

func TestMasteryGrowsMonotonicallyOnCorrectAnswers(t *testing.T) {
	tracker := testTracker()
	l, c := learner(t, "l1"), cid(t, "algebra")

	var prev float64
	at := baseTime
	for i := 0; i < 10; i++ {
		result, err := tracker.RecordAttempt(l, c, 1.0, 30*time.Second, at)
		require.NoError(t, err)
		assert.Greater(t, result.MasteryAfter, prev)
		prev = result.MasteryAfter
		at = at.Add(time.Minute)
	}
	assert.True(t, tracker.IsMastered(l, c, at))
}

func TestFasterCorrectAnswersGainMore(t *testing.T) {
	tracker := testTracker()
	l := learner(t, "l1")

	fast, err := tracker.RecordAttempt(l, cid(t, "a"), 1.0, 5*time.Second, baseTime)
	require.NoError(t, err)
	slow, err := tracker.RecordAttempt(l, cid(t, "b"), 1.0, 5*time.Minute, baseTime)
	require.NoError(t, err)

	assert.Greater(t, fast.MasteryAfter, slow.MasteryAfter)
}

func TestWrongAnswerSpeedDoesNotIncreasePenalty(t *testing.T) {
	tracker := testTracker()
	l := learner(t, "l1")

	// Build identical mastery on two concepts, then fail each at different
	// speeds. The fast failure must not be punished harder.
	for _, concept := range []string{"a", "b"} {
		_, err := tracker.RecordAttempt(l, cid(t, concept), 1.0, 30*time.Second, baseTime)
		require.NoError(t, err)
	}
	later := baseTime.Add(time.Minute)

	fastFail, err := tracker.RecordAttempt(l, cid(t, "a"), 0.0, time.Second, later)
	require.NoError(t, err)
	slowFail, err := tracker.RecordAttempt(l, cid(t, "b"), 0.0, 10*time.Minute, later)
	require.NoError(t, err)

	assert.Equal(t, slowFail.MasteryAfter, fastFail.MasteryAfter)
}

func TestStaleAttemptRejected(t *testing.T) {
	tracker := testTracker()
	l, c := learner(t, "l1"), cid(t, "algebra")

	result, err := tracker.RecordAttempt(l, c, 1.0, 30*time.Second, baseTime)
	require.NoError(t, err)

	_, err = tracker.RecordAttempt(l, c, 0.0, 30*time.Second, baseTime.Add(-time.Minute))
	require.Error(t, err)
	appErr := pkgerrors.GetAppError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, pkgerrors.ErrorTypeStaleWrite, appErr.Type)

	// Same-timestamp writes are stale too, and the record is untouched.
	_, err = tracker.RecordAttempt(l, c, 0.0, 30*time.Second, baseTime)
	require.Error(t, err)
	assert.Equal(t, result.MasteryAfter, tracker.DecayedMastery(l, c, baseTime))
}

func TestDecayAppliedOnRead(t *testing.T) {
	tracker := testTracker()
	l, c := learner(t, "l1"), cid(t, "algebra")

	result, err := tracker.RecordAttempt(l, c, 1.0, 30*time.Second, baseTime)
	require.NoError(t, err)

	atWrite := tracker.DecayedMastery(l, c, baseTime)
	assert.Equal(t, result.MasteryAfter, atWrite)

	weekLater := tracker.DecayedMastery(l, c, baseTime.Add(7*24*time.Hour))
	assert.Less(t, weekLater, atWrite)
	assert.Greater(t, weekLater, 0.0)

	// Reads never mutate the record; asking again at the write time still
	// returns the undecayed value.
	assert.Equal(t, atWrite, tracker.DecayedMastery(l, c, baseTime))
}

func TestMasteredSetAndProgress(t *testing.T) {
	cfg := config.DefaultDomainConfig()
	tracker := NewTracker(cfg)
	l := learner(t, "l1")
	a, b := cid(t, "a"), cid(t, "b")

	at := baseTime
	for i := 0; i < 12; i++ {
		_, err := tracker.RecordAttempt(l, a, 1.0, 10*time.Second, at)
		require.NoError(t, err)
		at = at.Add(time.Minute)
	}
	_, err := tracker.RecordAttempt(l, b, 0.5, 30*time.Second, baseTime)
	require.NoError(t, err)

	mastered := tracker.MasteredSet(l, []valueobjects.ConceptID{a, b}, at)
	assert.True(t, mastered[a])
	assert.False(t, mastered[b])

	rows := tracker.Progress(l, at)
	require.Len(t, rows, 2)
	assert.Equal(t, a, rows[0].ConceptID)
	assert.Equal(t, 12, rows[0].AttemptCount)
	assert.Equal(t, 1.0, rows[0].Accuracy)
	assert.True(t, rows[0].Mastered)
	assert.Equal(t, b, rows[1].ConceptID)
	assert.False(t, rows[1].Mastered)

	// Another learner sees nothing.
	assert.Empty(t, tracker.Progress(learner(t, "l2"), at))
}

func TestRestoreReplacesRecord(t *testing.T) {
	tracker := testTracker()
	l, c := learner(t, "l1"), cid(t, "algebra")

	_, err := tracker.RecordAttempt(l, c, 0.2, 30*time.Second, baseTime)
	require.NoError(t, err)

	restored := entities.ReconstructMasteryRecord(l, c, 0.9, baseTime, 5, 0.002, 4.5, 3*time.Minute)
	tracker.Restore(restored)

	assert.InDelta(t, 0.9, tracker.DecayedMastery(l, c, baseTime), 1e-9)
}
