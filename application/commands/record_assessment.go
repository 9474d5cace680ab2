package commands

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"curricula/application/ports"
	"curricula/application/services"
	"curricula/domain/core/valueobjects"
	"curricula/domain/events"
	"curricula/domain/mastery"
	pkgerrors "curricula/pkg/errors"
	"curricula/pkg/utils"
)

func notFoundConcept(id valueobjects.ConceptID) error {
	return pkgerrors.NewNotFoundError("concept " + id.String())
}

// RecordAssessmentCommand folds one assessment outcome into the learner's
// mastery for a concept. AttemptedAt orders concurrent submissions; an
// attempt at or before the last accepted one is rejected as stale.
type RecordAssessmentCommand struct {
	LearnerID      string    `json:"learner_id" validate:"required"`
	ConceptID      string    `json:"concept_id" validate:"required"`
	Correctness    float64   `json:"correctness" validate:"gte=0,lte=1"`
	ResponseTimeMs int64     `json:"response_time_ms" validate:"gte=0"`
	AttemptedAt    time.Time `json:"attempted_at" validate:"required"`

	// ErrorTags label what went wrong in a failed attempt. They ride along
	// on the trajectory step for later analysis.
	ErrorTags []string `json:"error_tags,omitempty"`
	// ExplanationCoverageIDs are the prerequisite concepts the learner's
	// explanation demonstrably covered. They accumulate into the coverage
	// signal the explanation energy term consumes.
	ExplanationCoverageIDs []string `json:"explanation_coverage_ids,omitempty"`
}

// Validate implements the command bus contract
func (c RecordAssessmentCommand) Validate() error {
	return utils.ValidateStruct(c)
}

// RecordAssessmentResult reports the mastery movement caused by the attempt
type RecordAssessmentResult struct {
	LearnerID     string  `json:"learner_id"`
	ConceptID     string  `json:"concept_id"`
	MasteryBefore float64 `json:"mastery_before"`
	MasteryAfter  float64 `json:"mastery_after"`
	AttemptCount  int     `json:"attempt_count"`
	Mastered      bool    `json:"mastered"`
}

// RecordAssessmentHandler updates mastery, logs the attempt, appends the
// trajectory step, and drives the concept's lifecycle transition.
type RecordAssessmentHandler struct {
	graph    graphReader
	tracker  *mastery.Tracker
	planner  *services.CurriculumPlanner
	sessions *services.SessionService
	txLog    ports.TransactionLog
	eventBus ports.EventPublisher
	logger   *zap.Logger
}

// graphReader is the slice of the graph aggregate this handler needs
type graphReader interface {
	HasConcept(id valueobjects.ConceptID) bool
}

func NewRecordAssessmentHandler(
	graph graphReader,
	tracker *mastery.Tracker,
	planner *services.CurriculumPlanner,
	sessions *services.SessionService,
	txLog ports.TransactionLog,
	eventBus ports.EventPublisher,
	logger *zap.Logger,
) *RecordAssessmentHandler {
	return &RecordAssessmentHandler{
		graph:    graph,
		tracker:  tracker,
		planner:  planner,
		sessions: sessions,
		txLog:    txLog,
		eventBus: eventBus,
		logger:   logger,
	}
}

// Handle executes the assessment recording
func (h *RecordAssessmentHandler) Handle(ctx context.Context, cmd RecordAssessmentCommand) (*RecordAssessmentResult, error) {
	learnerID, err := valueobjects.NewLearnerIDFromString(cmd.LearnerID)
	if err != nil {
		return nil, err
	}
	conceptID, err := valueobjects.NewConceptIDFromString(cmd.ConceptID)
	if err != nil {
		return nil, err
	}
	if !h.graph.HasConcept(conceptID) {
		return nil, notFoundConcept(conceptID)
	}

	responseTime := time.Duration(cmd.ResponseTimeMs) * time.Millisecond
	result, err := h.tracker.RecordAttempt(learnerID, conceptID, cmd.Correctness, responseTime, cmd.AttemptedAt)
	if err != nil {
		return nil, err
	}

	if err := h.appendLog(ctx, cmd); err != nil {
		h.logger.Error("transaction log append failed after attempt commit", zap.Error(err))
		return nil, err
	}

	if h.sessions != nil {
		if err := h.sessions.RecordStep(ctx, result, responseTime, cmd.Correctness, cmd.ErrorTags); err != nil {
			h.logger.Warn("trajectory step append failed", zap.Error(err))
		}
	}

	if len(cmd.ExplanationCoverageIDs) > 0 {
		covered := make([]valueobjects.ConceptID, 0, len(cmd.ExplanationCoverageIDs))
		for _, raw := range cmd.ExplanationCoverageIDs {
			id, err := valueobjects.NewConceptIDFromString(raw)
			if err != nil {
				h.logger.Warn("skipping malformed coverage id", zap.String("id", raw))
				continue
			}
			covered = append(covered, id)
		}
		h.planner.RecordCoverage(learnerID, conceptID, covered)
	}

	if err := h.planner.RecordOutcome(ctx, learnerID, conceptID, result, cmd.AttemptedAt); err != nil {
		h.logger.Warn("lifecycle transition failed",
			zap.String("learner_id", cmd.LearnerID),
			zap.String("concept_id", cmd.ConceptID),
			zap.Error(err))
	}

	if h.eventBus != nil {
		event := events.NewAttemptRecorded(
			learnerID, conceptID, cmd.Correctness, result.MasteryAfter, result.AttemptCount, cmd.AttemptedAt)
		if err := h.eventBus.Publish(ctx, event); err != nil {
			h.logger.Warn("event publish failed", zap.Error(err))
		}
	}

	return &RecordAssessmentResult{
		LearnerID:     cmd.LearnerID,
		ConceptID:     cmd.ConceptID,
		MasteryBefore: result.MasteryBefore,
		MasteryAfter:  result.MasteryAfter,
		AttemptCount:  result.AttemptCount,
		Mastered:      result.Mastered,
	}, nil
}

func (h *RecordAssessmentHandler) appendLog(ctx context.Context, cmd RecordAssessmentCommand) error {
	payload, err := json.Marshal(cmd)
	if err != nil {
		return err
	}
	return h.txLog.Append(ctx, ports.LogEntry{
		Kind:       ports.LogKindAttempt,
		RecordedAt: time.Now(),
		Payload:    payload,
	})
}
