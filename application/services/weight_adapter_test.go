package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"curricula/domain/config"
	"curricula/domain/core/entities"
	"curricula/domain/core/valueobjects"
	"curricula/domain/energy"
	"curricula/domain/mastery"
	"curricula/infrastructure/persistence/memory"
)

type adapterFixture struct {
	adapter      *WeightAdapter
	trajectories *memory.TrajectoryRepository
	weights      *energy.Store
	model        *energy.Model
	cfg          *config.DomainConfig
}

func newAdapterFixture(t *testing.T) *adapterFixture {
	t.Helper()
	cfg := config.DefaultDomainConfig()
	graph := chainGraph(t)
	tracker := mastery.NewTracker(cfg)
	weights := energy.NewStore(energy.DefaultWeights())
	model := energy.NewModel(graph, tracker, weights, cfg.MasteryThreshold)
	trajectories := memory.NewTrajectoryRepository()
	return &adapterFixture{
		adapter:      NewWeightAdapter(trajectories, model, weights, cfg, &capturePublisher{}, zap.NewNop()),
		trajectories: trajectories,
		weights:      weights,
		model:        model,
		cfg:          cfg,
	}
}

// closedTrajectory saves a terminal trajectory visiting the given concepts
func (f *adapterFixture) closedTrajectory(t *testing.T, l valueobjects.LearnerID, completed bool, path ...string) *entities.LearningTrajectory {
	t.Helper()
	traj, err := entities.NewLearningTrajectory(l, "")
	require.NoError(t, err)

	outcome := entities.OutcomeSuccess
	if !completed {
		outcome = entities.OutcomeFailure
	}
	for i, c := range path {
		require.NoError(t, traj.AppendStep(entities.TrajectoryStep{
			ConceptID:     cid(t, c),
			MasteryBefore: 0.2,
			MasteryAfter:  0.4,
			TimeSpent:     time.Minute,
			Outcome:       outcome,
			At:            planTime.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, traj.Close(completed))
	require.NoError(t, f.trajectories.Save(context.Background(), traj))
	return traj
}

func TestAdaptNowWithoutPairsIsNoOp(t *testing.T) {
	f := newAdapterFixture(t)

	result, err := f.adapter.AdaptNow(context.Background())
	require.NoError(t, err)

	assert.False(t, result.Published)
	assert.Zero(t, result.PairsConsumed)
	assert.Equal(t, uint64(1), result.Version)
	assert.Equal(t, uint64(1), f.weights.Current().Version)
}

func TestAdaptNowContrastsPairedTrajectories(t *testing.T) {
	f := newAdapterFixture(t)
	f.closedTrajectory(t, learner(t, "l1"), true, "a", "b", "c")
	f.closedTrajectory(t, learner(t, "l2"), false, "c", "b", "a")

	result, err := f.adapter.AdaptNow(context.Background())
	require.NoError(t, err)

	assert.True(t, result.Published)
	assert.Equal(t, 1, result.PairsConsumed)
	assert.Equal(t, uint64(2), result.Version)

	// The failed path has two ordering violations and the successful path
	// none, so only the prerequisite weight moves.
	assert.InDelta(t, 1.0+2*f.cfg.LearningRate, result.Weights.Prereq, 1e-9)
	assert.InDelta(t, 1.0, result.Weights.Explain, 1e-9)
	assert.InDelta(t, 1.0, result.Weights.Mastery, 1e-9)
	assert.InDelta(t, 1.0, result.Weights.Coherence, 1e-9)
}

func TestAdaptNowConsumesTrajectoriesOnce(t *testing.T) {
	f := newAdapterFixture(t)
	f.closedTrajectory(t, learner(t, "l1"), true, "a", "b", "c")
	f.closedTrajectory(t, learner(t, "l2"), false, "c", "b", "a")

	first, err := f.adapter.AdaptNow(context.Background())
	require.NoError(t, err)
	require.True(t, first.Published)

	second, err := f.adapter.AdaptNow(context.Background())
	require.NoError(t, err)
	assert.False(t, second.Published)
	assert.Equal(t, first.Version, second.Version)
}

func TestAdaptNowRequiresConceptOverlap(t *testing.T) {
	f := newAdapterFixture(t)
	f.closedTrajectory(t, learner(t, "l1"), true, "a")
	f.closedTrajectory(t, learner(t, "l2"), false, "b", "c")

	result, err := f.adapter.AdaptNow(context.Background())
	require.NoError(t, err)
	assert.False(t, result.Published)
}

func TestAdaptNowPicksHighestOverlapFailure(t *testing.T) {
	f := newAdapterFixture(t)
	f.closedTrajectory(t, learner(t, "l1"), true, "a", "b", "c")
	f.closedTrajectory(t, learner(t, "l2"), false, "b", "a")
	f.closedTrajectory(t, learner(t, "l3"), false, "c", "b", "a")

	result, err := f.adapter.AdaptNow(context.Background())
	require.NoError(t, err)
	require.True(t, result.Published)
	assert.Equal(t, 1, result.PairsConsumed)

	// The full-coverage failure wins the pairing; the partial one stays
	// eligible for a later pass.
	assert.InDelta(t, 1.0+2*f.cfg.LearningRate, result.Weights.Prereq, 1e-9)
}

func TestJaccardOverlap(t *testing.T) {
	assert.Equal(t, 1.0, jaccard(ids(t, "a", "b"), ids(t, "b", "a")))
	assert.Equal(t, 0.0, jaccard(ids(t, "a"), ids(t, "b")))
	assert.InDelta(t, 1.0/3.0, jaccard(ids(t, "a", "b"), ids(t, "b", "c")), 1e-9)
	assert.Equal(t, 0.0, jaccard(nil, nil))
}

func TestAdaptedWeightsSeparatePathEnergies(t *testing.T) {
	f := newAdapterFixture(t)
	for i := 0; i < 10; i++ {
		f.closedTrajectory(t, learner(t, fmt.Sprintf("s%d", i)), true, "a", "b", "c")
		f.closedTrajectory(t, learner(t, fmt.Sprintf("x%d", i)), false, "c", "b", "a")
	}

	result, err := f.adapter.AdaptNow(context.Background())
	require.NoError(t, err)
	require.True(t, result.Published)
	assert.Equal(t, 10, result.PairsConsumed)

	// Each pair contributes lr * (2 - 0) to the prerequisite weight.
	assert.InDelta(t, 2.0, f.weights.Current().Prereq, 1e-9)

	score := func(path ...string) float64 {
		report := f.model.Validate(energy.CandidateState{
			LearnerID:  learner(t, "judge"),
			Curriculum: ids(t, path...),
			Now:        planTime,
		}, f.cfg.EnergyThreshold)
		return report.Total
	}

	// Under the adapted weights the successful path scores strictly below
	// the failed one.
	assert.Less(t, score("a", "b", "c"), score("c", "b", "a"))
}

func TestClipKeepsWeightsInBounds(t *testing.T) {
	assert.Equal(t, 0.0, clip(-0.5, 10))
	assert.Equal(t, 10.0, clip(12, 10))
	assert.Equal(t, 5.0, clip(5, 10))
}
