package queries

import (
	"context"
	"time"

	"curricula/domain/core/aggregates"
)

// GetGraphQuery retrieves the graph's current shape
type GetGraphQuery struct {
	IncludeEdges bool `json:"include_edges"`
}

// Validate implements the query bus contract
func (q GetGraphQuery) Validate() error {
	return nil
}

// GraphConceptView is the read model for one concept
type GraphConceptView struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	Difficulty       float64  `json:"difficulty"`
	EstimatedMinutes int      `json:"estimated_minutes"`
	SourceRefs       []string `json:"source_refs,omitempty"`
	Deprecated       bool     `json:"deprecated,omitempty"`
	Version          int      `json:"version"`
}

// GraphView is the whole-graph read model
type GraphView struct {
	Version   int                `json:"version"`
	Concepts  []GraphConceptView `json:"concepts"`
	Edges     []aggregates.Edge  `json:"edges,omitempty"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// GetGraphHandler reads the graph aggregate
type GetGraphHandler struct {
	graph *aggregates.ConceptGraph
}

func NewGetGraphHandler(graph *aggregates.ConceptGraph) *GetGraphHandler {
	return &GetGraphHandler{graph: graph}
}

// Handle executes the query
func (h *GetGraphHandler) Handle(ctx context.Context, query GetGraphQuery) (*GraphView, error) {
	concepts := h.graph.Concepts()
	views := make([]GraphConceptView, 0, len(concepts))
	for _, c := range concepts {
		views = append(views, GraphConceptView{
			ID:               c.ID().String(),
			Name:             c.Name(),
			Difficulty:       c.Difficulty(),
			EstimatedMinutes: c.EstimatedMinutes(),
			SourceRefs:       c.SourceRefs(),
			Deprecated:       c.IsDeprecated(),
			Version:          c.Version(),
		})
	}

	view := &GraphView{
		Version:   h.graph.Version(),
		Concepts:  views,
		UpdatedAt: h.graph.UpdatedAt(),
	}
	if query.IncludeEdges {
		view.Edges = h.graph.Edges()
	}
	return view, nil
}
