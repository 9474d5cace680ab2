package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"curricula/application/commands"
	commandbus "curricula/application/commands/bus"
	"curricula/application/queries"
	querybus "curricula/application/queries/bus"
	"curricula/pkg/common"
	"curricula/pkg/errors"
)

const maxValidateBytes = 256 << 10

// PlannerHandler serves per-learner curriculum endpoints.
type PlannerHandler struct {
	commandBus *commandbus.CommandBus
	queryBus   *querybus.QueryBus
	errHandler *errors.ErrorHandler
	logger     *zap.Logger
}

// NewPlannerHandler creates a new planner handler
func NewPlannerHandler(commandBus *commandbus.CommandBus, queryBus *querybus.QueryBus, errHandler *errors.ErrorHandler, logger *zap.Logger) *PlannerHandler {
	return &PlannerHandler{
		commandBus: commandBus,
		queryBus:   queryBus,
		errHandler: errHandler,
		logger:     logger,
	}
}

// GetNextAction handles GET /learners/{learnerID}/next-action
func (h *PlannerHandler) GetNextAction(w http.ResponseWriter, r *http.Request) {
	learnerID := chi.URLParam(r, "learnerID")
	if learnerID == "" {
		h.errHandler.HandleStatus(w, r, http.StatusBadRequest, "learner ID is required")
		return
	}

	result, err := h.queryBus.Ask(r.Context(), queries.GetNextActionQuery{LearnerID: learnerID})
	if err != nil {
		h.errHandler.Handle(w, r, err)
		return
	}

	common.RespondJSON(w, http.StatusOK, result)
}

// GetCurriculum handles GET /learners/{learnerID}/curriculum
func (h *PlannerHandler) GetCurriculum(w http.ResponseWriter, r *http.Request) {
	learnerID := chi.URLParam(r, "learnerID")
	if learnerID == "" {
		h.errHandler.HandleStatus(w, r, http.StatusBadRequest, "learner ID is required")
		return
	}

	result, err := h.queryBus.Ask(r.Context(), queries.GetCurriculumQuery{LearnerID: learnerID})
	if err != nil {
		h.errHandler.Handle(w, r, err)
		return
	}

	common.RespondJSON(w, http.StatusOK, result)
}

// ValidateCurriculum handles POST /learners/{learnerID}/validate
func (h *PlannerHandler) ValidateCurriculum(w http.ResponseWriter, r *http.Request) {
	learnerID := chi.URLParam(r, "learnerID")
	if learnerID == "" {
		h.errHandler.HandleStatus(w, r, http.StatusBadRequest, "learner ID is required")
		return
	}

	var body struct {
		Curriculum []string            `json:"curriculum"`
		Coverage   map[string][]string `json:"coverage"`
	}
	if err := common.ParseJSONBody(r, &body, maxValidateBytes); err != nil {
		h.errHandler.HandleStatus(w, r, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	query := queries.ValidateCurriculumQuery{
		LearnerID:  learnerID,
		Curriculum: body.Curriculum,
		Coverage:   body.Coverage,
	}

	result, err := h.queryBus.Ask(r.Context(), query)
	if err != nil {
		h.errHandler.Handle(w, r, err)
		return
	}

	common.RespondJSON(w, http.StatusOK, result)
}

// GetProgress handles GET /learners/{learnerID}/progress
func (h *PlannerHandler) GetProgress(w http.ResponseWriter, r *http.Request) {
	learnerID := chi.URLParam(r, "learnerID")
	if learnerID == "" {
		h.errHandler.HandleStatus(w, r, http.StatusBadRequest, "learner ID is required")
		return
	}

	result, err := h.queryBus.Ask(r.Context(), queries.GetProgressQuery{LearnerID: learnerID})
	if err != nil {
		h.errHandler.Handle(w, r, err)
		return
	}

	common.RespondJSON(w, http.StatusOK, result)
}

// GetHistory handles GET /learners/{learnerID}/history
func (h *PlannerHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	learnerID := chi.URLParam(r, "learnerID")
	if learnerID == "" {
		h.errHandler.HandleStatus(w, r, http.StatusBadRequest, "learner ID is required")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			h.errHandler.HandleStatus(w, r, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = parsed
	}

	result, err := h.queryBus.Ask(r.Context(), queries.GetHistoryQuery{LearnerID: learnerID, Limit: limit})
	if err != nil {
		h.errHandler.Handle(w, r, err)
		return
	}

	common.RespondJSON(w, http.StatusOK, result)
}

// CloseTrajectory handles POST /learners/{learnerID}/trajectory/close
func (h *PlannerHandler) CloseTrajectory(w http.ResponseWriter, r *http.Request) {
	learnerID := chi.URLParam(r, "learnerID")
	if learnerID == "" {
		h.errHandler.HandleStatus(w, r, http.StatusBadRequest, "learner ID is required")
		return
	}

	var body struct {
		Completed bool `json:"completed"`
	}
	if err := common.ParseJSONBody(r, &body, maxAssessmentBytes); err != nil {
		h.errHandler.HandleStatus(w, r, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	cmd := commands.CloseTrajectoryCommand{
		LearnerID: learnerID,
		Completed: body.Completed,
	}

	result, err := h.commandBus.Send(r.Context(), cmd)
	if err != nil {
		h.errHandler.Handle(w, r, err)
		return
	}

	common.RespondJSON(w, http.StatusOK, result)
}
