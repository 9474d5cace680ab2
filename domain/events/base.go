package events

import (
	"time"

	"curricula/domain/core/valueobjects"
)

// DomainEvent is the base interface for all domain events
// Events represent something that has happened in the past
type DomainEvent interface {
	GetAggregateID() string
	GetEventType() string
	GetTimestamp() time.Time
	GetVersion() int
}

// BaseEvent provides common event fields
type BaseEvent struct {
	AggregateID string    `json:"aggregate_id"`
	EventType   string    `json:"event_type"`
	Timestamp   time.Time `json:"timestamp"`
	Version     int       `json:"version"`
}

func (e BaseEvent) GetAggregateID() string  { return e.AggregateID }
func (e BaseEvent) GetEventType() string    { return e.EventType }
func (e BaseEvent) GetTimestamp() time.Time { return e.Timestamp }
func (e BaseEvent) GetVersion() int         { return e.Version }

// Graph events

// GraphUpdated is raised when an ingestion delta is accepted. It carries the
// set of concepts that currently have no unmet prerequisites so downstream
// collaborators can schedule without re-querying the store.
type GraphUpdated struct {
	BaseEvent
	GraphVersion    int                      `json:"graph_version"`
	AddedConcepts   []valueobjects.ConceptID `json:"added_concepts"`
	RevisedConcepts []valueobjects.ConceptID `json:"revised_concepts"`
	EdgeCount       int                      `json:"edge_count"`
	Frontier        []valueobjects.ConceptID `json:"frontier"`
}

// NewGraphUpdated creates a GraphUpdated event
func NewGraphUpdated(
	graphVersion int,
	added, revised []valueobjects.ConceptID,
	edgeCount int,
	frontier []valueobjects.ConceptID,
	timestamp time.Time,
) GraphUpdated {
	return GraphUpdated{
		BaseEvent: BaseEvent{
			AggregateID: "concept-graph",
			EventType:   "graph.updated",
			Timestamp:   timestamp,
			Version:     1,
		},
		GraphVersion:    graphVersion,
		AddedConcepts:   added,
		RevisedConcepts: revised,
		EdgeCount:       edgeCount,
		Frontier:        frontier,
	}
}

// Mastery events

// AttemptRecorded is raised when an assessment outcome is folded into a
// learner's mastery record
type AttemptRecorded struct {
	BaseEvent
	LearnerID    valueobjects.LearnerID `json:"learner_id"`
	ConceptID    valueobjects.ConceptID `json:"concept_id"`
	Correctness  float64                `json:"correctness"`
	MasteryAfter float64                `json:"mastery_after"`
	AttemptCount int                    `json:"attempt_count"`
}

// NewAttemptRecorded creates an AttemptRecorded event
func NewAttemptRecorded(
	learnerID valueobjects.LearnerID,
	conceptID valueobjects.ConceptID,
	correctness, masteryAfter float64,
	attemptCount int,
	timestamp time.Time,
) AttemptRecorded {
	return AttemptRecorded{
		BaseEvent: BaseEvent{
			AggregateID: learnerID.String(),
			EventType:   "mastery.attempt_recorded",
			Timestamp:   timestamp,
			Version:     1,
		},
		LearnerID:    learnerID,
		ConceptID:    conceptID,
		Correctness:  correctness,
		MasteryAfter: masteryAfter,
		AttemptCount: attemptCount,
	}
}

// Planner events

// ConceptStateChanged is raised when a learner's concept moves through the
// teaching state machine (Locked, Ready, InProgress, Assessed, Mastered,
// Weak, Remediating)
type ConceptStateChanged struct {
	BaseEvent
	LearnerID valueobjects.LearnerID `json:"learner_id"`
	ConceptID valueobjects.ConceptID `json:"concept_id"`
	FromState string                 `json:"from_state"`
	ToState   string                 `json:"to_state"`
}

// NewConceptStateChanged creates a ConceptStateChanged event
func NewConceptStateChanged(
	learnerID valueobjects.LearnerID,
	conceptID valueobjects.ConceptID,
	fromState, toState string,
	timestamp time.Time,
) ConceptStateChanged {
	return ConceptStateChanged{
		BaseEvent: BaseEvent{
			AggregateID: learnerID.String(),
			EventType:   "planner.concept_state_changed",
			Timestamp:   timestamp,
			Version:     1,
		},
		LearnerID: learnerID,
		ConceptID: conceptID,
		FromState: fromState,
		ToState:   toState,
	}
}

// CurriculumReplanned is raised when the planner commits a new ordering for
// a learner. Generation increases monotonically; superseded plans never emit.
type CurriculumReplanned struct {
	BaseEvent
	LearnerID   valueobjects.LearnerID   `json:"learner_id"`
	Generation  uint64                   `json:"generation"`
	Curriculum  []valueobjects.ConceptID `json:"curriculum"`
	TotalEnergy float64                  `json:"total_energy"`
}

// NewCurriculumReplanned creates a CurriculumReplanned event
func NewCurriculumReplanned(
	learnerID valueobjects.LearnerID,
	generation uint64,
	curriculum []valueobjects.ConceptID,
	totalEnergy float64,
	timestamp time.Time,
) CurriculumReplanned {
	return CurriculumReplanned{
		BaseEvent: BaseEvent{
			AggregateID: learnerID.String(),
			EventType:   "planner.curriculum_replanned",
			Timestamp:   timestamp,
			Version:     1,
		},
		LearnerID:   learnerID,
		Generation:  generation,
		Curriculum:  curriculum,
		TotalEnergy: totalEnergy,
	}
}

// Weight events

// WeightsPublished is raised when the adapter publishes a new weight version
type WeightsPublished struct {
	BaseEvent
	WeightVersion uint64             `json:"weight_version"`
	Weights       map[string]float64 `json:"weights"`
	PairsConsumed int                `json:"pairs_consumed"`
}

// NewWeightsPublished creates a WeightsPublished event
func NewWeightsPublished(weightVersion uint64, weights map[string]float64, pairsConsumed int, timestamp time.Time) WeightsPublished {
	return WeightsPublished{
		BaseEvent: BaseEvent{
			AggregateID: "energy-weights",
			EventType:   "energy.weights_published",
			Timestamp:   timestamp,
			Version:     1,
		},
		WeightVersion: weightVersion,
		Weights:       weights,
		PairsConsumed: pairsConsumed,
	}
}

// Trajectory events

// TrajectoryClosed is raised when a learning trajectory is marked terminal
type TrajectoryClosed struct {
	BaseEvent
	TrajectoryID string                 `json:"trajectory_id"`
	LearnerID    valueobjects.LearnerID `json:"learner_id"`
	Completed    bool                   `json:"completed"`
	StepCount    int                    `json:"step_count"`
}

// NewTrajectoryClosed creates a TrajectoryClosed event
func NewTrajectoryClosed(trajectoryID string, learnerID valueobjects.LearnerID, completed bool, stepCount int, timestamp time.Time) TrajectoryClosed {
	return TrajectoryClosed{
		BaseEvent: BaseEvent{
			AggregateID: trajectoryID,
			EventType:   "trajectory.closed",
			Timestamp:   timestamp,
			Version:     1,
		},
		TrajectoryID: trajectoryID,
		LearnerID:    learnerID,
		Completed:    completed,
		StepCount:    stepCount,
	}
}
