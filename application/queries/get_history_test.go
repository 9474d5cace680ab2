package queries

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"curricula/domain/core/entities"
	"curricula/domain/core/valueobjects"
	"curricula/infrastructure/persistence/memory"
)

var historyTime = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func historyStep(t *testing.T, concept string, outcome entities.AttemptOutcome, at time.Time) entities.TrajectoryStep {
	t.Helper()
	id, err := valueobjects.NewConceptIDFromString(concept)
	require.NoError(t, err)
	return entities.TrajectoryStep{
		ConceptID:     id,
		MasteryBefore: 0.2,
		MasteryAfter:  0.5,
		TimeSpent:     45 * time.Second,
		Outcome:       outcome,
		ErrorTags:     []string{"sign-error"},
		At:            at,
	}
}

func TestGetHistoryListsAttemptsNewestFirst(t *testing.T) {
	repo := memory.NewTrajectoryRepository()
	learnerID, err := valueobjects.NewLearnerIDFromString("l1")
	require.NoError(t, err)

	closed, err := entities.NewLearningTrajectory(learnerID, "s1")
	require.NoError(t, err)
	require.NoError(t, closed.AppendStep(historyStep(t, "a", entities.OutcomeSuccess, historyTime)))
	require.NoError(t, closed.Close(true))
	require.NoError(t, repo.Save(context.Background(), closed))

	open, err := entities.NewLearningTrajectory(learnerID, "s2")
	require.NoError(t, err)
	require.NoError(t, open.AppendStep(historyStep(t, "b", entities.OutcomeFailure, historyTime.Add(time.Hour))))
	require.NoError(t, open.AppendStep(historyStep(t, "c", entities.OutcomeSuccess, historyTime.Add(2*time.Hour))))
	require.NoError(t, repo.Save(context.Background(), open))

	handler := NewGetHistoryHandler(repo)
	view, err := handler.Handle(context.Background(), GetHistoryQuery{LearnerID: "l1"})
	require.NoError(t, err)

	require.Len(t, view.Attempts, 3)
	assert.Equal(t, "c", view.Attempts[0].ConceptID)
	assert.Equal(t, "b", view.Attempts[1].ConceptID)
	assert.Equal(t, "a", view.Attempts[2].ConceptID)
	assert.Equal(t, "failure", view.Attempts[1].Outcome)
	assert.Equal(t, []string{"sign-error"}, view.Attempts[0].ErrorTags)
	assert.Equal(t, int64(45000), view.Attempts[0].TimeSpentMs)
}

func TestGetHistoryEmptyForUnknownLearner(t *testing.T) {
	repo := memory.NewTrajectoryRepository()
	handler := NewGetHistoryHandler(repo)

	view, err := handler.Handle(context.Background(), GetHistoryQuery{LearnerID: "nobody"})
	require.NoError(t, err)
	assert.Empty(t, view.Attempts)
}
