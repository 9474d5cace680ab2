package queries

import (
	"context"
	"time"

	"curricula/application/services"
	"curricula/domain/core/valueobjects"
	"curricula/pkg/utils"
)

// GetNextActionQuery asks the planner what a learner should do now
type GetNextActionQuery struct {
	LearnerID string `json:"learner_id" validate:"required"`
}

// Validate implements the query bus contract
func (q GetNextActionQuery) Validate() error {
	return utils.ValidateStruct(q)
}

// GetNextActionHandler resolves the query against the planner
type GetNextActionHandler struct {
	planner *services.CurriculumPlanner
}

func NewGetNextActionHandler(planner *services.CurriculumPlanner) *GetNextActionHandler {
	return &GetNextActionHandler{planner: planner}
}

// Handle executes the query
func (h *GetNextActionHandler) Handle(ctx context.Context, query GetNextActionQuery) (*services.NextAction, error) {
	learnerID, err := valueobjects.NewLearnerIDFromString(query.LearnerID)
	if err != nil {
		return nil, err
	}
	return h.planner.NextAction(ctx, learnerID, time.Now())
}
