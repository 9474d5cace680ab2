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

const maxDeltaBytes = 4 << 20

// GraphHandler serves the concept graph ingestion and read endpoints.
type GraphHandler struct {
	commandBus *commandbus.CommandBus
	queryBus   *querybus.QueryBus
	errHandler *errors.ErrorHandler
	logger     *zap.Logger
}

// NewGraphHandler creates a new graph handler
func NewGraphHandler(commandBus *commandbus.CommandBus, queryBus *querybus.QueryBus, errHandler *errors.ErrorHandler, logger *zap.Logger) *GraphHandler {
	return &GraphHandler{
		commandBus: commandBus,
		queryBus:   queryBus,
		errHandler: errHandler,
		logger:     logger,
	}
}

// SubmitDelta handles POST /graph/delta
func (h *GraphHandler) SubmitDelta(w http.ResponseWriter, r *http.Request) {
	var cmd commands.SubmitGraphDeltaCommand
	if err := common.ParseJSONBody(r, &cmd, maxDeltaBytes); err != nil {
		h.errHandler.HandleStatus(w, r, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	result, err := h.commandBus.Send(r.Context(), cmd)
	if err != nil {
		h.errHandler.Handle(w, r, err)
		return
	}

	common.RespondJSON(w, http.StatusOK, result)
}

// GetGraph handles GET /graph
func (h *GraphHandler) GetGraph(w http.ResponseWriter, r *http.Request) {
	query := queries.GetGraphQuery{
		IncludeEdges: r.URL.Query().Get("include_edges") != "false",
	}

	result, err := h.queryBus.Ask(r.Context(), query)
	if err != nil {
		h.errHandler.Handle(w, r, err)
		return
	}

	common.RespondJSON(w, http.StatusOK, result)
}
