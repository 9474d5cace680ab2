package queries

import (
	"context"
	"time"

	"curricula/domain/core/aggregates"
	"curricula/domain/core/valueobjects"
	"curricula/domain/mastery"
	"curricula/pkg/utils"
)

// GetProgressQuery retrieves the learner's per-concept progress
type GetProgressQuery struct {
	LearnerID string `json:"learner_id" validate:"required"`
}

// Validate implements the query bus contract
func (q GetProgressQuery) Validate() error {
	return utils.ValidateStruct(q)
}

// ProgressView aggregates the learner's standing across the graph
type ProgressView struct {
	LearnerID     string                    `json:"learner_id"`
	TotalConcepts int                       `json:"total_concepts"`
	Attempted     int                       `json:"attempted"`
	Mastered      int                       `json:"mastered"`
	Completion    float64                   `json:"completion"`
	Concepts      []mastery.ConceptProgress `json:"concepts"`
}

// GetProgressHandler builds the progress read model
type GetProgressHandler struct {
	graph   *aggregates.ConceptGraph
	tracker *mastery.Tracker
}

func NewGetProgressHandler(graph *aggregates.ConceptGraph, tracker *mastery.Tracker) *GetProgressHandler {
	return &GetProgressHandler{graph: graph, tracker: tracker}
}

// Handle executes the query
func (h *GetProgressHandler) Handle(ctx context.Context, query GetProgressQuery) (*ProgressView, error) {
	learnerID, err := valueobjects.NewLearnerIDFromString(query.LearnerID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	rows := h.tracker.Progress(learnerID, now)

	total := 0
	for _, c := range h.graph.Concepts() {
		if !c.IsDeprecated() {
			total++
		}
	}

	mastered := 0
	for _, row := range rows {
		if row.Mastered {
			mastered++
		}
	}

	completion := 0.0
	if total > 0 {
		completion = float64(mastered) / float64(total)
	}

	return &ProgressView{
		LearnerID:     query.LearnerID,
		TotalConcepts: total,
		Attempted:     len(rows),
		Mastered:      mastered,
		Completion:    completion,
		Concepts:      rows,
	}, nil
}
