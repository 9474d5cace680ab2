package ports

import (
	"context"
	"time"

	"curricula/domain/core/entities"
	"curricula/domain/core/valueobjects"
	"curricula/domain/events"
)

// TrajectoryRepository defines the interface for learning trajectory
// persistence. This is a port in hexagonal architecture - the domain doesn't
// know about the implementation.
type TrajectoryRepository interface {
	// Save persists a trajectory (create or update)
	Save(ctx context.Context, trajectory *entities.LearningTrajectory) error

	// GetByID retrieves a trajectory by its ID
	GetByID(ctx context.Context, id string) (*entities.LearningTrajectory, error)

	// GetOpenByLearner retrieves the learner's current open trajectory, if any
	GetOpenByLearner(ctx context.Context, learnerID valueobjects.LearnerID) (*entities.LearningTrajectory, error)

	// ListClosed retrieves closed trajectories, most recent first
	ListClosed(ctx context.Context, limit int) ([]*entities.LearningTrajectory, error)

	// ListClosedByLearner retrieves a learner's closed trajectories
	ListClosedByLearner(ctx context.Context, learnerID valueobjects.LearnerID, limit int) ([]*entities.LearningTrajectory, error)
}

// TransactionLog is the append-only durability log. Every state-changing
// operation appends an entry before its result is acknowledged; replaying
// the log against an empty engine reproduces the state.
type TransactionLog interface {
	// Append durably records one entry
	Append(ctx context.Context, entry LogEntry) error

	// Replay streams entries in append order, stopping at the first error.
	// Entries after a corrupt tail record are discarded.
	Replay(ctx context.Context, fn func(entry LogEntry) error) error

	// Size returns the number of entries currently in the log
	Size() (int64, error)

	// LastSeq returns the sequence number of the last appended entry.
	// Sequence numbers are monotonic across truncations.
	LastSeq() (uint64, error)

	// SyncSeq advances the sequence counter to at least seq. Recovery calls
	// this with the snapshot's sequence so entries appended after a restart
	// never reuse numbers the snapshot already covers.
	SyncSeq(seq uint64) error

	// Truncate drops all entries up to and including seq, after a snapshot
	Truncate(ctx context.Context, seq uint64) error

	// Close flushes and releases the underlying file
	Close() error
}

// LogEntry is one record in the transaction log
type LogEntry struct {
	Seq        uint64    `json:"seq"`
	Kind       string    `json:"kind"`
	RecordedAt time.Time `json:"recorded_at"`
	Payload    []byte    `json:"payload"`
}

// Log entry kinds
const (
	LogKindGraphDelta = "graph.delta"
	LogKindAttempt    = "mastery.attempt"
	LogKindTrajectory = "trajectory.closed"
	LogKindWeights    = "weights.published"
)

// SnapshotStore persists periodic full-state snapshots so replay does not
// have to start from an empty engine.
type SnapshotStore interface {
	// Save persists a snapshot, replacing any previous one
	Save(ctx context.Context, snapshot Snapshot) error

	// Latest returns the most recent snapshot, or found=false when none exists
	Latest(ctx context.Context) (Snapshot, bool, error)
}

// Snapshot is an opaque serialized engine state plus the log position it
// covers: replay resumes from Seq+1.
type Snapshot struct {
	Seq     uint64    `json:"seq"`
	TakenAt time.Time `json:"taken_at"`
	State   []byte    `json:"state"`
}

// EventPublisher defines the interface for publishing domain events
type EventPublisher interface {
	// Publish sends a single event
	Publish(ctx context.Context, event events.DomainEvent) error

	// PublishBatch sends multiple events
	PublishBatch(ctx context.Context, events []events.DomainEvent) error
}

// EventBus defines the interface for publishing domain events in-process
type EventBus interface {
	EventPublisher

	// Subscribe registers a handler for an event type
	Subscribe(eventType string, handler EventHandler) error

	// Unsubscribe removes a handler
	Unsubscribe(eventType string, handler EventHandler) error
}

// EventHandler defines the interface for handling domain events
type EventHandler interface {
	// Handle processes an event
	Handle(ctx context.Context, event events.DomainEvent) error

	// CanHandle checks if this handler can process the event
	CanHandle(eventType string) bool
}

// Cache defines the interface for caching query results
type Cache interface {
	// Get retrieves a value from cache
	Get(ctx context.Context, key string) (interface{}, bool)

	// Set stores a value in cache with TTL in seconds
	Set(ctx context.Context, key string, value interface{}, ttl int) error

	// Delete removes a value from cache
	Delete(ctx context.Context, key string) error

	// Clear removes all values from cache
	Clear(ctx context.Context) error
}
