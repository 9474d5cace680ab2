package entities

import (
	"time"

	"github.com/google/uuid"

	"curricula/domain/core/valueobjects"
	pkgerrors "curricula/pkg/errors"
)

// AttemptOutcome classifies a single teaching step
type AttemptOutcome string

const (
	OutcomeSuccess   AttemptOutcome = "success"
	OutcomeFailure   AttemptOutcome = "failure"
	OutcomeAbandoned AttemptOutcome = "abandoned"
)

// TrajectoryStep is one concept-level observation inside a trajectory
type TrajectoryStep struct {
	ConceptID     valueobjects.ConceptID `json:"concept_id"`
	MasteryBefore float64                `json:"mastery_before"`
	MasteryAfter  float64                `json:"mastery_after"`
	TimeSpent     time.Duration          `json:"time_spent"`
	Outcome       AttemptOutcome         `json:"outcome"`
	ErrorTags     []string               `json:"error_tags,omitempty"`
	At            time.Time              `json:"at"`
}

// LearningTrajectory is the ordered record of one learner's outcomes over a
// session or course. It is appended to continuously and marked terminal on
// completion or abandonment; closed trajectories are the training data for
// weight adaptation.
type LearningTrajectory struct {
	id        string
	learnerID valueobjects.LearnerID
	sessionID string
	steps     []TrajectoryStep
	openedAt  time.Time
	closedAt  time.Time
	closed    bool
	completed bool // true if closed by course completion, false if abandoned
}

// NewLearningTrajectory opens a trajectory for a learner session
func NewLearningTrajectory(learnerID valueobjects.LearnerID, sessionID string) (*LearningTrajectory, error) {
	if learnerID.IsZero() {
		return nil, pkgerrors.NewValidationError("learner ID cannot be empty")
	}
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	return &LearningTrajectory{
		id:        uuid.New().String(),
		learnerID: learnerID,
		sessionID: sessionID,
		openedAt:  time.Now(),
	}, nil
}

// ReconstructLearningTrajectory rebuilds a trajectory from persisted state
func ReconstructLearningTrajectory(
	id string,
	learnerID valueobjects.LearnerID,
	sessionID string,
	steps []TrajectoryStep,
	openedAt, closedAt time.Time,
	closed, completed bool,
) *LearningTrajectory {
	copied := make([]TrajectoryStep, len(steps))
	copy(copied, steps)

	return &LearningTrajectory{
		id:        id,
		learnerID: learnerID,
		sessionID: sessionID,
		steps:     copied,
		openedAt:  openedAt,
		closedAt:  closedAt,
		closed:    closed,
		completed: completed,
	}
}

// ID returns the trajectory identifier
func (t *LearningTrajectory) ID() string {
	return t.id
}

// LearnerID returns the learner this trajectory belongs to
func (t *LearningTrajectory) LearnerID() valueobjects.LearnerID {
	return t.learnerID
}

// SessionID returns the session this trajectory covers
func (t *LearningTrajectory) SessionID() string {
	return t.sessionID
}

// OpenedAt returns when the trajectory was opened
func (t *LearningTrajectory) OpenedAt() time.Time {
	return t.openedAt
}

// ClosedAt returns when the trajectory was closed (zero if still open)
func (t *LearningTrajectory) ClosedAt() time.Time {
	return t.closedAt
}

// IsClosed reports whether the trajectory is terminal
func (t *LearningTrajectory) IsClosed() bool {
	return t.closed
}

// IsCompleted reports whether a closed trajectory ended in course completion
func (t *LearningTrajectory) IsCompleted() bool {
	return t.closed && t.completed
}

// Steps returns a copy of the recorded steps in order
func (t *LearningTrajectory) Steps() []TrajectoryStep {
	steps := make([]TrajectoryStep, len(t.steps))
	copy(steps, t.steps)
	return steps
}

// ConceptPath returns the ordered concept ids the trajectory visited
func (t *LearningTrajectory) ConceptPath() []valueobjects.ConceptID {
	path := make([]valueobjects.ConceptID, 0, len(t.steps))
	seen := make(map[valueobjects.ConceptID]bool, len(t.steps))
	for _, step := range t.steps {
		if !seen[step.ConceptID] {
			path = append(path, step.ConceptID)
			seen[step.ConceptID] = true
		}
	}
	return path
}

// AppendStep records one more observation. Closed trajectories reject writes.
func (t *LearningTrajectory) AppendStep(step TrajectoryStep) error {
	if t.closed {
		return pkgerrors.NewConflictError("trajectory is closed")
	}
	if step.ConceptID.IsZero() {
		return pkgerrors.NewValidationError("step concept ID cannot be empty")
	}
	switch step.Outcome {
	case OutcomeSuccess, OutcomeFailure, OutcomeAbandoned:
	default:
		return pkgerrors.NewValidationError("invalid step outcome").
			WithDetail("outcome", string(step.Outcome))
	}
	if step.At.IsZero() {
		step.At = time.Now()
	}

	t.steps = append(t.steps, step)
	return nil
}

// Close marks the trajectory terminal. completed=true records course
// completion; false records abandonment. Closing twice is a conflict.
func (t *LearningTrajectory) Close(completed bool) error {
	if t.closed {
		return pkgerrors.NewConflictError("trajectory already closed")
	}

	t.closed = true
	t.completed = completed
	t.closedAt = time.Now()
	return nil
}

// SuccessRatio returns the fraction of steps with a success outcome
func (t *LearningTrajectory) SuccessRatio() float64 {
	if len(t.steps) == 0 {
		return 0
	}
	successes := 0
	for _, s := range t.steps {
		if s.Outcome == OutcomeSuccess {
			successes++
		}
	}
	return float64(successes) / float64(len(t.steps))
}
