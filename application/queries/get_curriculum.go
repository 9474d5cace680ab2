package queries

import (
	"context"
	"time"

	"curricula/application/services"
	"curricula/domain/core/aggregates"
	"curricula/domain/core/valueobjects"
	"curricula/domain/energy"
	"curricula/domain/mastery"
	"curricula/pkg/utils"
)

// GetCurriculumQuery retrieves the learner's current plan
type GetCurriculumQuery struct {
	LearnerID string `json:"learner_id" validate:"required"`
}

// Validate implements the query bus contract
func (q GetCurriculumQuery) Validate() error {
	return utils.ValidateStruct(q)
}

// CurriculumEntry is one concept in the plan view
type CurriculumEntry struct {
	ConceptID        string  `json:"concept_id"`
	Name             string  `json:"name"`
	State            string  `json:"state"`
	Mastery          float64 `json:"mastery"`
	Difficulty       float64 `json:"difficulty"`
	EstimatedMinutes int     `json:"estimated_minutes"`
}

// CurriculumView is the full plan read model
type CurriculumView struct {
	LearnerID  string            `json:"learner_id"`
	Generation uint64            `json:"generation"`
	Entries    []CurriculumEntry `json:"entries"`
	Report     *energy.Report    `json:"report,omitempty"`
	PlannedAt  time.Time         `json:"planned_at"`
}

// GetCurriculumHandler builds the plan view from the planner and graph
type GetCurriculumHandler struct {
	planner *services.CurriculumPlanner
	graph   *aggregates.ConceptGraph
	tracker *mastery.Tracker
}

func NewGetCurriculumHandler(planner *services.CurriculumPlanner, graph *aggregates.ConceptGraph, tracker *mastery.Tracker) *GetCurriculumHandler {
	return &GetCurriculumHandler{planner: planner, graph: graph, tracker: tracker}
}

// Handle executes the query
func (h *GetCurriculumHandler) Handle(ctx context.Context, query GetCurriculumQuery) (*CurriculumView, error) {
	learnerID, err := valueobjects.NewLearnerIDFromString(query.LearnerID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	plan, err := h.planner.CurrentPlan(ctx, learnerID, now)
	if err != nil {
		return nil, err
	}

	entries := make([]CurriculumEntry, 0, len(plan.Curriculum))
	for _, id := range plan.Curriculum {
		entry := CurriculumEntry{
			ConceptID: id.String(),
			State:     string(plan.States[id]),
			Mastery:   h.tracker.DecayedMastery(learnerID, id, now),
		}
		if c, err := h.graph.Concept(id); err == nil {
			entry.Name = c.Name()
			entry.Difficulty = c.Difficulty()
			entry.EstimatedMinutes = c.EstimatedMinutes()
		}
		entries = append(entries, entry)
	}

	return &CurriculumView{
		LearnerID:  query.LearnerID,
		Generation: plan.Generation,
		Entries:    entries,
		Report:     plan.Report,
		PlannedAt:  plan.PlannedAt,
	}, nil
}
