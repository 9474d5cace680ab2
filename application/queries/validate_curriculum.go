package queries

import (
	"context"
	"time"

	"curricula/application/services"
	"curricula/domain/core/valueobjects"
	"curricula/domain/energy"
	"curricula/pkg/utils"
)

// ValidateCurriculumQuery scores an externally supplied ordering for a
// learner. Coverage optionally maps concept ids to the prerequisite ids the
// accompanying explanations reference; omitting it skips the explain term.
type ValidateCurriculumQuery struct {
	LearnerID  string              `json:"learner_id" validate:"required"`
	Curriculum []string            `json:"curriculum" validate:"required,min=1"`
	Coverage   map[string][]string `json:"coverage,omitempty"`
}

// Validate implements the query bus contract
func (q ValidateCurriculumQuery) Validate() error {
	return utils.ValidateStruct(q)
}

// ValidateCurriculumHandler runs the energy model over the ordering
type ValidateCurriculumHandler struct {
	planner *services.CurriculumPlanner
}

func NewValidateCurriculumHandler(planner *services.CurriculumPlanner) *ValidateCurriculumHandler {
	return &ValidateCurriculumHandler{planner: planner}
}

// Handle executes the query
func (h *ValidateCurriculumHandler) Handle(ctx context.Context, query ValidateCurriculumQuery) (*energy.Report, error) {
	learnerID, err := valueobjects.NewLearnerIDFromString(query.LearnerID)
	if err != nil {
		return nil, err
	}

	curriculum := make([]valueobjects.ConceptID, 0, len(query.Curriculum))
	for _, raw := range query.Curriculum {
		id, err := valueobjects.NewConceptIDFromString(raw)
		if err != nil {
			return nil, err
		}
		curriculum = append(curriculum, id)
	}

	var coverage map[valueobjects.ConceptID][]valueobjects.ConceptID
	if query.Coverage != nil {
		coverage = make(map[valueobjects.ConceptID][]valueobjects.ConceptID, len(query.Coverage))
		for rawID, rawRefs := range query.Coverage {
			id, err := valueobjects.NewConceptIDFromString(rawID)
			if err != nil {
				return nil, err
			}
			refs := make([]valueobjects.ConceptID, 0, len(rawRefs))
			for _, rawRef := range rawRefs {
				ref, err := valueobjects.NewConceptIDFromString(rawRef)
				if err != nil {
					return nil, err
				}
				refs = append(refs, ref)
			}
			coverage[id] = refs
		}
	}

	return h.planner.ValidateCurriculum(ctx, learnerID, curriculum, coverage, time.Now())
}
