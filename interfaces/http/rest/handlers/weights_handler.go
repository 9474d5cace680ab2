package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"curricula/application/commands"
	commandbus "curricula/application/commands/bus"
	"curricula/application/queries"
	querybus "curricula/application/queries/bus"
	"curricula/pkg/common"
	"curricula/pkg/errors"
)

// WeightsHandler exposes the energy weight vector and the adaptation trigger.
type WeightsHandler struct {
	commandBus *commandbus.CommandBus
	queryBus   *querybus.QueryBus
	errHandler *errors.ErrorHandler
	logger     *zap.Logger
}

// NewWeightsHandler creates a new weights handler
func NewWeightsHandler(commandBus *commandbus.CommandBus, queryBus *querybus.QueryBus, errHandler *errors.ErrorHandler, logger *zap.Logger) *WeightsHandler {
	return &WeightsHandler{
		commandBus: commandBus,
		queryBus:   queryBus,
		errHandler: errHandler,
		logger:     logger,
	}
}

// GetWeights handles GET /weights
func (h *WeightsHandler) GetWeights(w http.ResponseWriter, r *http.Request) {
	result, err := h.queryBus.Ask(r.Context(), queries.GetWeightsQuery{})
	if err != nil {
		h.errHandler.Handle(w, r, err)
		return
	}

	common.RespondJSON(w, http.StatusOK, result)
}

// AdaptWeights handles POST /weights/adapt
func (h *WeightsHandler) AdaptWeights(w http.ResponseWriter, r *http.Request) {
	result, err := h.commandBus.Send(r.Context(), commands.AdaptWeightsCommand{})
	if err != nil {
		h.errHandler.Handle(w, r, err)
		return
	}

	common.RespondJSON(w, http.StatusOK, result)
}
