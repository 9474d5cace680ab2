package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"curricula/application/commands"
	commandbus "curricula/application/commands/bus"
	"curricula/pkg/common"
	"curricula/pkg/errors"
)

const maxAssessmentBytes = 64 << 10

// AssessmentHandler records learner attempt outcomes.
type AssessmentHandler struct {
	commandBus *commandbus.CommandBus
	errHandler *errors.ErrorHandler
	logger     *zap.Logger
}

// NewAssessmentHandler creates a new assessment handler
func NewAssessmentHandler(commandBus *commandbus.CommandBus, errHandler *errors.ErrorHandler, logger *zap.Logger) *AssessmentHandler {
	return &AssessmentHandler{
		commandBus: commandBus,
		errHandler: errHandler,
		logger:     logger,
	}
}

// RecordAssessment handles POST /assessments
func (h *AssessmentHandler) RecordAssessment(w http.ResponseWriter, r *http.Request) {
	var cmd commands.RecordAssessmentCommand
	if err := common.ParseJSONBody(r, &cmd, maxAssessmentBytes); err != nil {
		h.errHandler.HandleStatus(w, r, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	result, err := h.commandBus.Send(r.Context(), cmd)
	if err != nil {
		h.errHandler.Handle(w, r, err)
		return
	}

	common.RespondJSON(w, http.StatusCreated, result)
}
