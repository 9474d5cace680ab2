package commands

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"curricula/application/ports"
	"curricula/application/services"
	"curricula/domain/core/aggregates"
	"curricula/domain/core/entities"
	"curricula/domain/core/valueobjects"
	"curricula/pkg/utils"
)

// ConceptInput is one concept in a graph delta
type ConceptInput struct {
	ID               string    `json:"id" validate:"required"`
	Name             string    `json:"name" validate:"required,max=500"`
	Difficulty       float64   `json:"difficulty" validate:"required,gte=1,lte=10"`
	EstimatedMinutes int       `json:"estimated_minutes" validate:"required,gt=0"`
	Embedding        []float64 `json:"embedding,omitempty"`
	SourceRefs       []string  `json:"source_refs,omitempty" validate:"dive,min=1"`
	Deprecated       bool      `json:"deprecated,omitempty"`
}

// EdgeInput is one edge in a graph delta
type EdgeInput struct {
	From string `json:"from" validate:"required"`
	To   string `json:"to" validate:"required"`
	Kind string `json:"kind" validate:"required,oneof=prerequisite related extends"`
}

// SubmitGraphDeltaCommand merges a batch of concepts and edges into the
// graph. The whole batch commits or none of it does.
type SubmitGraphDeltaCommand struct {
	Concepts []ConceptInput `json:"concepts" validate:"dive"`
	Edges    []EdgeInput    `json:"edges" validate:"dive"`
}

// Validate implements the command bus contract
func (c SubmitGraphDeltaCommand) Validate() error {
	return utils.ValidateStruct(c)
}

// SubmitGraphDeltaResult is returned to the ingestion caller
type SubmitGraphDeltaResult struct {
	GraphVersion    int                      `json:"graph_version"`
	AddedConcepts   []valueobjects.ConceptID `json:"added_concepts"`
	RevisedConcepts []valueobjects.ConceptID `json:"revised_concepts"`
	AddedEdges      int                      `json:"added_edges"`
	Frontier        []valueobjects.ConceptID `json:"frontier"`
}

// SubmitGraphDeltaHandler applies deltas to the graph aggregate, records
// them in the transaction log, and invalidates learner plans whose shape
// assumptions the delta may have broken.
type SubmitGraphDeltaHandler struct {
	graph    *aggregates.ConceptGraph
	planner  *services.CurriculumPlanner
	txLog    ports.TransactionLog
	eventBus ports.EventPublisher
	logger   *zap.Logger
}

func NewSubmitGraphDeltaHandler(
	graph *aggregates.ConceptGraph,
	planner *services.CurriculumPlanner,
	txLog ports.TransactionLog,
	eventBus ports.EventPublisher,
	logger *zap.Logger,
) *SubmitGraphDeltaHandler {
	return &SubmitGraphDeltaHandler{
		graph:    graph,
		planner:  planner,
		txLog:    txLog,
		eventBus: eventBus,
		logger:   logger,
	}
}

// Handle executes the delta merge
func (h *SubmitGraphDeltaHandler) Handle(ctx context.Context, cmd SubmitGraphDeltaCommand) (*SubmitGraphDeltaResult, error) {
	delta, err := BuildDelta(cmd)
	if err != nil {
		return nil, err
	}

	result, err := h.graph.ApplyDelta(delta)
	if err != nil {
		return nil, err
	}

	if err := h.appendLog(ctx, cmd); err != nil {
		// The in-memory merge already committed; a log failure here means
		// the state would not survive a restart, so surface it loudly.
		h.logger.Error("transaction log append failed after delta commit", zap.Error(err))
		return nil, err
	}

	h.publishEvents(ctx)
	h.planner.InvalidateAll()

	h.logger.Info("graph delta applied",
		zap.Int("graph_version", h.graph.Version()),
		zap.Int("added_concepts", len(result.AddedConcepts)),
		zap.Int("revised_concepts", len(result.RevisedConcepts)),
		zap.Int("added_edges", len(result.AddedEdges)))

	return &SubmitGraphDeltaResult{
		GraphVersion:    h.graph.Version(),
		AddedConcepts:   result.AddedConcepts,
		RevisedConcepts: result.RevisedConcepts,
		AddedEdges:      len(result.AddedEdges),
		Frontier:        result.Frontier,
	}, nil
}

func BuildDelta(cmd SubmitGraphDeltaCommand) (aggregates.Delta, error) {
	var delta aggregates.Delta

	for _, in := range cmd.Concepts {
		id, err := valueobjects.NewConceptIDFromString(in.ID)
		if err != nil {
			return aggregates.Delta{}, err
		}
		concept, err := entities.NewConcept(id, in.Name, in.Difficulty, in.EstimatedMinutes)
		if err != nil {
			return aggregates.Delta{}, err
		}
		if len(in.Embedding) > 0 {
			emb, err := valueobjects.NewEmbedding(in.Embedding)
			if err != nil {
				return aggregates.Delta{}, err
			}
			concept.SetEmbedding(emb)
		}
		for _, ref := range in.SourceRefs {
			if err := concept.AddSourceRef(ref); err != nil {
				return aggregates.Delta{}, err
			}
		}
		if in.Deprecated {
			concept.Deprecate()
		}
		delta.Concepts = append(delta.Concepts, concept)
	}

	for _, in := range cmd.Edges {
		from, err := valueobjects.NewConceptIDFromString(in.From)
		if err != nil {
			return aggregates.Delta{}, err
		}
		to, err := valueobjects.NewConceptIDFromString(in.To)
		if err != nil {
			return aggregates.Delta{}, err
		}
		delta.Edges = append(delta.Edges, aggregates.Edge{
			From: from,
			To:   to,
			Kind: aggregates.EdgeKind(in.Kind),
		})
	}

	return delta, nil
}

func (h *SubmitGraphDeltaHandler) appendLog(ctx context.Context, cmd SubmitGraphDeltaCommand) error {
	payload, err := json.Marshal(cmd)
	if err != nil {
		return err
	}
	return h.txLog.Append(ctx, ports.LogEntry{
		Kind:       ports.LogKindGraphDelta,
		RecordedAt: time.Now(),
		Payload:    payload,
	})
}

func (h *SubmitGraphDeltaHandler) publishEvents(ctx context.Context) {
	if h.eventBus == nil {
		return
	}
	pending := h.graph.GetUncommittedEvents()
	if len(pending) == 0 {
		return
	}
	if err := h.eventBus.PublishBatch(ctx, pending); err != nil {
		h.logger.Warn("event publish failed", zap.Error(err))
		return
	}
	h.graph.MarkEventsAsCommitted()
}
