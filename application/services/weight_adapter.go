package services

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"curricula/application/ports"
	"curricula/domain/config"
	"curricula/domain/core/entities"
	"curricula/domain/core/valueobjects"
	"curricula/domain/energy"
	"curricula/domain/events"
)

// trajectoryBatchSize bounds one adaptation pass; older closed trajectories
// have already been consumed by earlier passes.
const trajectoryBatchSize = 200

// WeightAdapter learns the energy weight vector from contrast between
// successful and failed learning trajectories. Trajectories that cover
// similar concept sets but diverge in outcome are paired; each pair nudges
// the weights so the failed path scores higher energy than the successful
// one.
type WeightAdapter struct {
	trajectories ports.TrajectoryRepository
	model        *energy.Model
	weights      *energy.Store
	cfg          *config.DomainConfig
	publisher    ports.EventPublisher
	logger       *zap.Logger

	cron *cron.Cron

	mu           sync.Mutex
	consumedUpTo map[string]bool // trajectory ids already used in a pair
}

func NewWeightAdapter(
	trajectories ports.TrajectoryRepository,
	model *energy.Model,
	weights *energy.Store,
	cfg *config.DomainConfig,
	publisher ports.EventPublisher,
	logger *zap.Logger,
) *WeightAdapter {
	return &WeightAdapter{
		trajectories: trajectories,
		model:        model,
		weights:      weights,
		cfg:          cfg,
		publisher:    publisher,
		logger:       logger,
		consumedUpTo: make(map[string]bool),
	}
}

// Start schedules the periodic adaptation job. Safe to call once.
func (a *WeightAdapter) Start() error {
	a.cron = cron.New()
	_, err := a.cron.AddFunc(a.cfg.AdaptSchedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if _, err := a.AdaptNow(ctx); err != nil {
			a.logger.Warn("scheduled weight adaptation failed", zap.Error(err))
		}
	})
	if err != nil {
		return err
	}
	a.cron.Start()
	a.logger.Info("weight adaptation scheduled", zap.String("schedule", a.cfg.AdaptSchedule))
	return nil
}

// Stop halts the scheduler and waits for a running job to finish
func (a *WeightAdapter) Stop() {
	if a.cron != nil {
		ctx := a.cron.Stop()
		<-ctx.Done()
	}
}

// AdaptResult summarizes one adaptation pass
type AdaptResult struct {
	PairsConsumed int            `json:"pairs_consumed"`
	Published     bool           `json:"published"`
	Version       uint64         `json:"version"`
	Weights       energy.Weights `json:"weights"`
}

// AdaptNow runs one adaptation pass over recently closed trajectories.
// With no eligible pairs the pass is a no-op and the current version stands.
func (a *WeightAdapter) AdaptNow(ctx context.Context) (*AdaptResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	closed, err := a.trajectories.ListClosed(ctx, trajectoryBatchSize)
	if err != nil {
		return nil, err
	}

	pairs := a.pair(closed)
	current := a.weights.Current()
	if len(pairs) == 0 {
		return &AdaptResult{Published: false, Version: current.Version, Weights: current}, nil
	}

	candidate := current
	now := time.Now()
	for _, pr := range pairs {
		good := a.termVector(pr.success, now)
		bad := a.termVector(pr.failure, now)

		// Gradient step on the margin E(success) - E(failure): push weight
		// mass toward terms where the failed trajectory scores higher.
		lr := a.cfg.LearningRate
		candidate.Prereq = clip(candidate.Prereq+lr*(bad[energy.TermPrereq]-good[energy.TermPrereq]), a.cfg.MaxWeight)
		candidate.Explain = clip(candidate.Explain+lr*(bad[energy.TermExplain]-good[energy.TermExplain]), a.cfg.MaxWeight)
		candidate.Mastery = clip(candidate.Mastery+lr*(bad[energy.TermMastery]-good[energy.TermMastery]), a.cfg.MaxWeight)
		candidate.Coherence = clip(candidate.Coherence+lr*(bad[energy.TermCoherence]-good[energy.TermCoherence]), a.cfg.MaxWeight)

		a.consumedUpTo[pr.success.ID()] = true
		a.consumedUpTo[pr.failure.ID()] = true
	}

	published, err := a.weights.Publish(candidate, a.cfg.MaxWeight)
	if err != nil {
		return nil, err
	}

	a.publish(ctx, events.NewWeightsPublished(published.Version, published.Map(), len(pairs), now))
	a.logger.Info("weights published",
		zap.Uint64("version", published.Version),
		zap.Int("pairs_consumed", len(pairs)),
		zap.Float64("w_prereq", published.Prereq),
		zap.Float64("w_explain", published.Explain),
		zap.Float64("w_mastery", published.Mastery),
		zap.Float64("w_coherence", published.Coherence))

	return &AdaptResult{
		PairsConsumed: len(pairs),
		Published:     true,
		Version:       published.Version,
		Weights:       published,
	}, nil
}

type trajectoryPair struct {
	success *entities.LearningTrajectory
	failure *entities.LearningTrajectory
}

// pair matches successful trajectories against failed ones covering a
// similar concept set. Each trajectory joins at most one pair per pass.
func (a *WeightAdapter) pair(closed []*entities.LearningTrajectory) []trajectoryPair {
	var successes, failures []*entities.LearningTrajectory
	for _, t := range closed {
		if a.consumedUpTo[t.ID()] || len(t.ConceptPath()) == 0 {
			continue
		}
		if t.IsCompleted() {
			successes = append(successes, t)
		} else {
			failures = append(failures, t)
		}
	}

	used := make(map[string]bool)
	var pairs []trajectoryPair
	for _, s := range successes {
		var best *entities.LearningTrajectory
		bestOverlap := 0.0
		for _, f := range failures {
			if used[f.ID()] {
				continue
			}
			overlap := jaccard(s.ConceptPath(), f.ConceptPath())
			if overlap >= a.cfg.MinPairOverlap && overlap > bestOverlap {
				best, bestOverlap = f, overlap
			}
		}
		if best != nil {
			used[best.ID()] = true
			pairs = append(pairs, trajectoryPair{success: s, failure: best})
		}
	}
	return pairs
}

// termVector scores a trajectory's concept path as a candidate curriculum
func (a *WeightAdapter) termVector(t *entities.LearningTrajectory, now time.Time) map[string]float64 {
	return a.model.Terms(energy.CandidateState{
		LearnerID:  t.LearnerID(),
		Curriculum: t.ConceptPath(),
		Now:        now,
	})
}

func (a *WeightAdapter) publish(ctx context.Context, event events.DomainEvent) {
	if a.publisher == nil {
		return
	}
	if err := a.publisher.Publish(ctx, event); err != nil {
		a.logger.Warn("event publish failed",
			zap.String("event_type", event.GetEventType()),
			zap.Error(err))
	}
}

func jaccard(a, b []valueobjects.ConceptID) float64 {
	setA := make(map[valueobjects.ConceptID]bool, len(a))
	for _, id := range a {
		setA[id] = true
	}
	intersection := 0
	setB := make(map[valueobjects.ConceptID]bool, len(b))
	for _, id := range b {
		if setB[id] {
			continue
		}
		setB[id] = true
		if setA[id] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func clip(v, max float64) float64 {
	if v < 0 {
		return 0
	}
	if v > max {
		return max
	}
	return v
}
