package queries

import (
	"context"
	"time"

	"curricula/application/ports"
	"curricula/domain/core/entities"
	"curricula/domain/core/valueobjects"
	"curricula/pkg/utils"
)

const defaultHistorySessions = 20

// GetHistoryQuery retrieves a learner's recorded attempts, newest first
type GetHistoryQuery struct {
	LearnerID string `json:"learner_id" validate:"required"`
	Limit     int    `json:"limit" validate:"gte=0"`
}

// Validate implements the query bus contract
func (q GetHistoryQuery) Validate() error {
	return utils.ValidateStruct(q)
}

// AttemptView is one recorded attempt in the learner's history
type AttemptView struct {
	ConceptID     string    `json:"concept_id"`
	MasteryBefore float64   `json:"mastery_before"`
	MasteryAfter  float64   `json:"mastery_after"`
	TimeSpentMs   int64     `json:"time_spent_ms"`
	Outcome       string    `json:"outcome"`
	ErrorTags     []string  `json:"error_tags,omitempty"`
	At            time.Time `json:"at"`
}

// HistoryView lists a learner's attempts across their sessions
type HistoryView struct {
	LearnerID string        `json:"learner_id"`
	Attempts  []AttemptView `json:"attempts"`
}

// GetHistoryHandler reads attempt history out of the trajectory store
type GetHistoryHandler struct {
	trajectories ports.TrajectoryRepository
}

func NewGetHistoryHandler(trajectories ports.TrajectoryRepository) *GetHistoryHandler {
	return &GetHistoryHandler{trajectories: trajectories}
}

// Handle executes the query. The open session comes first, then closed
// sessions newest first; within a session attempts are newest first.
func (h *GetHistoryHandler) Handle(ctx context.Context, query GetHistoryQuery) (*HistoryView, error) {
	learnerID, err := valueobjects.NewLearnerIDFromString(query.LearnerID)
	if err != nil {
		return nil, err
	}

	limit := query.Limit
	if limit <= 0 {
		limit = defaultHistorySessions
	}

	view := &HistoryView{LearnerID: query.LearnerID}

	open, err := h.trajectories.GetOpenByLearner(ctx, learnerID)
	if err != nil {
		return nil, err
	}
	if open != nil {
		appendAttempts(view, open)
	}

	closed, err := h.trajectories.ListClosedByLearner(ctx, learnerID, limit)
	if err != nil {
		return nil, err
	}
	for _, trajectory := range closed {
		appendAttempts(view, trajectory)
	}

	return view, nil
}

func appendAttempts(view *HistoryView, trajectory *entities.LearningTrajectory) {
	steps := trajectory.Steps()
	for i := len(steps) - 1; i >= 0; i-- {
		s := steps[i]
		view.Attempts = append(view.Attempts, AttemptView{
			ConceptID:     s.ConceptID.String(),
			MasteryBefore: s.MasteryBefore,
			MasteryAfter:  s.MasteryAfter,
			TimeSpentMs:   s.TimeSpent.Milliseconds(),
			Outcome:       string(s.Outcome),
			ErrorTags:     s.ErrorTags,
			At:            s.At,
		})
	}
}
