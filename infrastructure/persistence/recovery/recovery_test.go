package recovery

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"curricula/application/commands"
	"curricula/application/ports"
	"curricula/application/services"
	"curricula/domain/config"
	"curricula/domain/core/aggregates"
	"curricula/domain/core/valueobjects"
	"curricula/domain/energy"
	"curricula/domain/mastery"
	"curricula/infrastructure/persistence/memory"
	"curricula/infrastructure/persistence/txlog"
)

var recoveryTime = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

// engine bundles everything the recoverer rebuilds, sharing one data dir so
// a second engine can take over where the first left off.
type engine struct {
	graph     *aggregates.ConceptGraph
	tracker   *mastery.Tracker
	weights   *energy.Store
	sessions  *services.SessionService
	txLog     *txlog.FileLog
	snapshots *txlog.FileSnapshotStore
	recoverer *Recoverer
}

func newEngine(t *testing.T, dir string) *engine {
	t.Helper()
	graph := aggregates.NewConceptGraph()
	tracker := mastery.NewTracker(config.DefaultDomainConfig())
	weights := energy.NewStore(energy.DefaultWeights())
	sessions := services.NewSessionService(memory.NewTrajectoryRepository(), nil, zap.NewNop())

	log, err := txlog.Open(dir, false, zap.NewNop())
	require.NoError(t, err)
	snapshots, err := txlog.NewFileSnapshotStore(dir)
	require.NoError(t, err)

	return &engine{
		graph:     graph,
		tracker:   tracker,
		weights:   weights,
		sessions:  sessions,
		txLog:     log,
		snapshots: snapshots,
		recoverer: NewRecoverer(graph, tracker, weights, sessions, log, snapshots, zap.NewNop()),
	}
}

func (e *engine) close(t *testing.T) {
	t.Helper()
	require.NoError(t, e.txLog.Close())
}

func (e *engine) logDelta(t *testing.T, cmd commands.SubmitGraphDeltaCommand) {
	t.Helper()
	payload, err := json.Marshal(cmd)
	require.NoError(t, err)
	require.NoError(t, e.txLog.Append(context.Background(), ports.LogEntry{
		Kind:       ports.LogKindGraphDelta,
		RecordedAt: recoveryTime,
		Payload:    payload,
	}))
}

func (e *engine) logAttempt(t *testing.T, learnerID, conceptID string, correctness float64, at time.Time) {
	t.Helper()
	payload, err := json.Marshal(commands.RecordAssessmentCommand{
		LearnerID:      learnerID,
		ConceptID:      conceptID,
		Correctness:    correctness,
		ResponseTimeMs: 30000,
		AttemptedAt:    at,
	})
	require.NoError(t, err)
	require.NoError(t, e.txLog.Append(context.Background(), ports.LogEntry{
		Kind:       ports.LogKindAttempt,
		RecordedAt: at,
		Payload:    payload,
	}))
}

func chainDelta() commands.SubmitGraphDeltaCommand {
	return commands.SubmitGraphDeltaCommand{
		Concepts: []commands.ConceptInput{
			{ID: "a", Name: "concept a", Difficulty: 2, EstimatedMinutes: 20, Embedding: []float64{1, 0}},
			{ID: "b", Name: "concept b", Difficulty: 4, EstimatedMinutes: 30, Embedding: []float64{0, 1}},
		},
		Edges: []commands.EdgeInput{
			{From: "a", To: "b", Kind: "prerequisite"},
		},
	}
}

func lid(t *testing.T, s string) valueobjects.LearnerID {
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

func TestRecoverOnEmptyStoresIsNoOp(t *testing.T) {
	e := newEngine(t, t.TempDir())
	defer e.close(t)

	require.NoError(t, e.recoverer.Recover(context.Background()))
	assert.Equal(t, 0, e.graph.Version())
	assert.Equal(t, 0, e.graph.ConceptCount())
}

func TestRecoverReplaysLogFromScratch(t *testing.T) {
	dir := t.TempDir()

	writer := newEngine(t, dir)
	writer.logDelta(t, chainDelta())
	writer.logAttempt(t, "l1", "a", 1.0, recoveryTime)
	writer.logAttempt(t, "l1", "a", 1.0, recoveryTime.Add(time.Minute))
	writer.close(t)

	e := newEngine(t, dir)
	defer e.close(t)
	require.NoError(t, e.recoverer.Recover(context.Background()))

	assert.Equal(t, 1, e.graph.Version())
	assert.Equal(t, 2, e.graph.ConceptCount())
	assert.True(t, e.graph.HasConcept(cid(t, "b")))
	assert.Greater(t, e.tracker.DecayedMastery(lid(t, "l1"), cid(t, "a"), recoveryTime.Add(time.Minute)), 0.0)

	// Fresh appends continue past the replayed tail.
	seq, err := e.txLog.LastSeq()
	require.NoError(t, err)
	assert.Equal(t, uint64(3), seq)
}

func TestRecoverSkipsUnreplayableEntries(t *testing.T) {
	dir := t.TempDir()

	writer := newEngine(t, dir)
	writer.logDelta(t, chainDelta())
	// An attempt against a learner id that fails reconstruction
	payload, err := json.Marshal(commands.RecordAssessmentCommand{
		LearnerID: "", ConceptID: "a", Correctness: 1.0, AttemptedAt: recoveryTime,
	})
	require.NoError(t, err)
	require.NoError(t, writer.txLog.Append(context.Background(), ports.LogEntry{
		Kind: ports.LogKindAttempt, RecordedAt: recoveryTime, Payload: payload,
	}))
	writer.logAttempt(t, "l1", "a", 1.0, recoveryTime)
	writer.close(t)

	e := newEngine(t, dir)
	defer e.close(t)
	require.NoError(t, e.recoverer.Recover(context.Background()))

	assert.Equal(t, 2, e.graph.ConceptCount())
	assert.Greater(t, e.tracker.DecayedMastery(lid(t, "l1"), cid(t, "a"), recoveryTime), 0.0)
}

func TestSnapshotTruncatesLogAndRestores(t *testing.T) {
	dir := t.TempDir()

	writer := newEngine(t, dir)
	writer.logDelta(t, chainDelta())
	writer.logAttempt(t, "l1", "a", 1.0, recoveryTime)
	require.NoError(t, writer.recoverer.Recover(context.Background()))

	// Publish a new weight version so the snapshot carries it.
	current := writer.weights.Current()
	current.Prereq = 1.2
	_, err := writer.weights.Publish(current, 10.0)
	require.NoError(t, err)

	require.NoError(t, writer.recoverer.Snapshot(context.Background()))

	size, err := writer.txLog.Size()
	require.NoError(t, err)
	assert.Zero(t, size)

	// Activity after the snapshot lands in the log tail.
	writer.logAttempt(t, "l1", "b", 0.8, recoveryTime.Add(time.Minute))
	writer.close(t)

	e := newEngine(t, dir)
	defer e.close(t)
	require.NoError(t, e.recoverer.Recover(context.Background()))

	assert.Equal(t, 1, e.graph.Version())
	assert.Equal(t, 2, e.graph.ConceptCount())
	assert.InDelta(t, 1.2, e.weights.Current().Prereq, 1e-9)
	assert.Equal(t, uint64(2), e.weights.Current().Version)
	assert.Greater(t, e.tracker.DecayedMastery(lid(t, "l1"), cid(t, "a"), recoveryTime.Add(time.Minute)), 0.0)
	assert.Greater(t, e.tracker.DecayedMastery(lid(t, "l1"), cid(t, "b"), recoveryTime.Add(time.Minute)), 0.0)

	// Sequence numbers never rewind across snapshot and restart.
	seq, err := e.txLog.LastSeq()
	require.NoError(t, err)
	assert.Equal(t, uint64(3), seq)
}
