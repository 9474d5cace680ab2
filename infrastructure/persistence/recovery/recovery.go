// Package recovery rebuilds engine state on startup from the latest
// snapshot plus the transaction log tail, and takes periodic snapshots so
// the log never grows without bound.
package recovery

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"curricula/application/commands"
	"curricula/application/ports"
	"curricula/application/services"
	"curricula/domain/core/aggregates"
	"curricula/domain/core/entities"
	"curricula/domain/core/valueobjects"
	"curricula/domain/energy"
	"curricula/domain/mastery"
)

// conceptState is the serialized form of one concept
type conceptState struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Difficulty       float64   `json:"difficulty"`
	EstimatedMinutes int       `json:"estimated_minutes"`
	Embedding        []float64 `json:"embedding,omitempty"`
	SourceRefs       []string  `json:"source_refs,omitempty"`
	Deprecated       bool      `json:"deprecated,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
	Version          int       `json:"version"`
}

// masteryState is the serialized form of one mastery record
type masteryState struct {
	LearnerID      string        `json:"learner_id"`
	ConceptID      string        `json:"concept_id"`
	Mastery        float64       `json:"mastery"`
	LastUpdated    time.Time     `json:"last_updated"`
	AttemptCount   int           `json:"attempt_count"`
	DecayRate      float64       `json:"decay_rate"`
	CorrectnessSum float64       `json:"correctness_sum"`
	TotalTime      time.Duration `json:"total_time"`
}

// engineState is the full snapshot payload
type engineState struct {
	GraphVersion   int               `json:"graph_version"`
	GraphUpdatedAt time.Time         `json:"graph_updated_at"`
	Concepts       []conceptState    `json:"concepts"`
	Edges          []aggregates.Edge `json:"edges"`
	Mastery        []masteryState    `json:"mastery"`
	Weights        energy.Weights    `json:"weights"`
}

// Recoverer restores engine state on startup and snapshots it periodically
type Recoverer struct {
	graph    *aggregates.ConceptGraph
	tracker  *mastery.Tracker
	weights  *energy.Store
	sessions *services.SessionService
	txLog    ports.TransactionLog
	store    ports.SnapshotStore
	logger   *zap.Logger

	lastSeq uint64
	stop    chan struct{}
}

func NewRecoverer(
	graph *aggregates.ConceptGraph,
	tracker *mastery.Tracker,
	weights *energy.Store,
	sessions *services.SessionService,
	txLog ports.TransactionLog,
	store ports.SnapshotStore,
	logger *zap.Logger,
) *Recoverer {
	return &Recoverer{
		graph:    graph,
		tracker:  tracker,
		weights:  weights,
		sessions: sessions,
		txLog:    txLog,
		store:    store,
		logger:   logger,
		stop:     make(chan struct{}),
	}
}

// Recover loads the latest snapshot and replays the log tail over it.
// Must run before the engine serves any traffic.
func (r *Recoverer) Recover(ctx context.Context) error {
	fromSeq := uint64(0)

	snapshot, found, err := r.store.Latest(ctx)
	if err != nil {
		return fmt.Errorf("loading snapshot: %w", err)
	}
	if found {
		if err := r.restoreSnapshot(snapshot); err != nil {
			return fmt.Errorf("restoring snapshot: %w", err)
		}
		fromSeq = snapshot.Seq
		r.logger.Info("snapshot restored",
			zap.Uint64("seq", snapshot.Seq),
			zap.Time("taken_at", snapshot.TakenAt))
	}

	replayed := 0
	err = r.txLog.Replay(ctx, func(entry ports.LogEntry) error {
		if entry.Seq <= fromSeq {
			return nil
		}
		if err := r.apply(ctx, entry); err != nil {
			// Entries were validated before they were logged; a failure here
			// means the world changed shape (for example a concept was
			// deprecated by a later snapshot). Skip rather than refuse to
			// start.
			r.logger.Warn("skipping unreplayable log entry",
				zap.Uint64("seq", entry.Seq),
				zap.String("kind", entry.Kind),
				zap.Error(err))
			return nil
		}
		r.lastSeq = entry.Seq
		replayed++
		return nil
	})
	if err != nil {
		return fmt.Errorf("replaying log: %w", err)
	}
	if r.lastSeq < fromSeq {
		r.lastSeq = fromSeq
	}
	if err := r.txLog.SyncSeq(r.lastSeq); err != nil {
		return fmt.Errorf("syncing log sequence: %w", err)
	}

	r.logger.Info("recovery complete",
		zap.Int("entries_replayed", replayed),
		zap.Int("graph_version", r.graph.Version()),
		zap.Int("concepts", r.graph.ConceptCount()))
	return nil
}

func (r *Recoverer) apply(ctx context.Context, entry ports.LogEntry) error {
	switch entry.Kind {
	case ports.LogKindGraphDelta:
		var cmd commands.SubmitGraphDeltaCommand
		if err := json.Unmarshal(entry.Payload, &cmd); err != nil {
			return err
		}
		delta, err := commands.BuildDelta(cmd)
		if err != nil {
			return err
		}
		if _, err := r.graph.ApplyDelta(delta); err != nil {
			return err
		}
		r.graph.MarkEventsAsCommitted()
		return nil

	case ports.LogKindAttempt:
		var cmd commands.RecordAssessmentCommand
		if err := json.Unmarshal(entry.Payload, &cmd); err != nil {
			return err
		}
		learnerID, err := valueobjects.NewLearnerIDFromString(cmd.LearnerID)
		if err != nil {
			return err
		}
		conceptID, err := valueobjects.NewConceptIDFromString(cmd.ConceptID)
		if err != nil {
			return err
		}
		responseTime := time.Duration(cmd.ResponseTimeMs) * time.Millisecond
		result, err := r.tracker.RecordAttempt(learnerID, conceptID, cmd.Correctness, responseTime, cmd.AttemptedAt)
		if err != nil {
			return err
		}
		if r.sessions != nil {
			return r.sessions.RecordStep(ctx, result, responseTime, cmd.Correctness, cmd.ErrorTags)
		}
		return nil

	case ports.LogKindTrajectory:
		var cmd commands.CloseTrajectoryCommand
		if err := json.Unmarshal(entry.Payload, &cmd); err != nil {
			return err
		}
		if r.sessions == nil {
			return nil
		}
		learnerID, err := valueobjects.NewLearnerIDFromString(cmd.LearnerID)
		if err != nil {
			return err
		}
		_, err = r.sessions.Close(ctx, learnerID, cmd.Completed, entry.RecordedAt)
		return err

	case ports.LogKindWeights:
		var w energy.Weights
		if err := json.Unmarshal(entry.Payload, &w); err != nil {
			return err
		}
		r.weights.Restore(w)
		return nil

	default:
		return fmt.Errorf("unknown log entry kind %q", entry.Kind)
	}
}

func (r *Recoverer) restoreSnapshot(snapshot ports.Snapshot) error {
	var state engineState
	if err := json.Unmarshal(snapshot.State, &state); err != nil {
		return err
	}

	concepts := make([]*entities.Concept, 0, len(state.Concepts))
	for _, cs := range state.Concepts {
		id, err := valueobjects.NewConceptIDFromString(cs.ID)
		if err != nil {
			return err
		}
		var emb valueobjects.Embedding
		if len(cs.Embedding) > 0 {
			emb, err = valueobjects.NewEmbedding(cs.Embedding)
			if err != nil {
				return err
			}
		}
		concept, err := entities.ReconstructConcept(
			id, cs.Name, cs.Difficulty, cs.EstimatedMinutes, emb,
			cs.SourceRefs, cs.Deprecated, cs.CreatedAt, cs.UpdatedAt, cs.Version)
		if err != nil {
			return err
		}
		concepts = append(concepts, concept)
	}
	r.graph.RestoreSnapshot(concepts, state.Edges, state.GraphVersion, state.GraphUpdatedAt)

	for _, ms := range state.Mastery {
		learnerID, err := valueobjects.NewLearnerIDFromString(ms.LearnerID)
		if err != nil {
			return err
		}
		conceptID, err := valueobjects.NewConceptIDFromString(ms.ConceptID)
		if err != nil {
			return err
		}
		r.tracker.Restore(entities.ReconstructMasteryRecord(
			learnerID, conceptID, ms.Mastery, ms.LastUpdated,
			ms.AttemptCount, ms.DecayRate, ms.CorrectnessSum, ms.TotalTime))
	}

	if state.Weights.Version > 0 {
		r.weights.Restore(state.Weights)
	}
	return nil
}

// Snapshot serializes current state, persists it, and truncates the log
// through the last replayed or logged sequence.
func (r *Recoverer) Snapshot(ctx context.Context) error {
	state := engineState{
		GraphVersion:   r.graph.Version(),
		GraphUpdatedAt: r.graph.UpdatedAt(),
		Weights:        r.weights.Current(),
		Edges:          r.graph.Edges(),
	}

	for _, c := range r.graph.Concepts() {
		state.Concepts = append(state.Concepts, conceptState{
			ID:               c.ID().String(),
			Name:             c.Name(),
			Difficulty:       c.Difficulty(),
			EstimatedMinutes: c.EstimatedMinutes(),
			Embedding:        c.Embedding().Values(),
			SourceRefs:       c.SourceRefs(),
			Deprecated:       c.IsDeprecated(),
			CreatedAt:        c.CreatedAt(),
			UpdatedAt:        c.UpdatedAt(),
			Version:          c.Version(),
		})
	}

	for _, m := range r.tracker.Records() {
		state.Mastery = append(state.Mastery, masteryState{
			LearnerID:      m.LearnerID().String(),
			ConceptID:      m.ConceptID().String(),
			Mastery:        m.RawMastery(),
			LastUpdated:    m.LastUpdated(),
			AttemptCount:   m.AttemptCount(),
			DecayRate:      m.DecayRate(),
			CorrectnessSum: m.CorrectnessSum(),
			TotalTime:      m.TotalTime(),
		})
	}

	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}

	seq, err := r.txLog.LastSeq()
	if err != nil {
		return err
	}

	if err := r.store.Save(ctx, ports.Snapshot{
		Seq:     seq,
		TakenAt: time.Now(),
		State:   data,
	}); err != nil {
		return fmt.Errorf("saving snapshot: %w", err)
	}

	if err := r.txLog.Truncate(ctx, seq); err != nil {
		return fmt.Errorf("truncating log after snapshot: %w", err)
	}

	r.logger.Info("snapshot taken",
		zap.Uint64("through_seq", seq),
		zap.Int("concepts", len(state.Concepts)),
		zap.Int("mastery_records", len(state.Mastery)))
	return nil
}

// Start snapshots on the given interval until Stop is called
func (r *Recoverer) Start(interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
				if err := r.Snapshot(ctx); err != nil {
					r.logger.Warn("periodic snapshot failed", zap.Error(err))
				}
				cancel()
			case <-r.stop:
				return
			}
		}
	}()
}

// Stop halts the periodic snapshotter
func (r *Recoverer) Stop() {
	close(r.stop)
}
