package commands

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"curricula/application/ports"
	"curricula/application/services"
)

// AdaptWeightsCommand triggers one weight adaptation pass outside the
// periodic schedule.
type AdaptWeightsCommand struct{}

// Validate implements the command bus contract
func (c AdaptWeightsCommand) Validate() error {
	return nil
}

// AdaptWeightsHandler runs the adapter and logs published versions
type AdaptWeightsHandler struct {
	adapter *services.WeightAdapter
	txLog   ports.TransactionLog
	logger  *zap.Logger
}

func NewAdaptWeightsHandler(adapter *services.WeightAdapter, txLog ports.TransactionLog, logger *zap.Logger) *AdaptWeightsHandler {
	return &AdaptWeightsHandler{
		adapter: adapter,
		txLog:   txLog,
		logger:  logger,
	}
}

// Handle executes one adaptation pass
func (h *AdaptWeightsHandler) Handle(ctx context.Context, cmd AdaptWeightsCommand) (*services.AdaptResult, error) {
	result, err := h.adapter.AdaptNow(ctx)
	if err != nil {
		return nil, err
	}

	if result.Published {
		payload, err := json.Marshal(result.Weights)
		if err != nil {
			return nil, err
		}
		if err := h.txLog.Append(ctx, ports.LogEntry{
			Kind:       ports.LogKindWeights,
			RecordedAt: time.Now(),
			Payload:    payload,
		}); err != nil {
			h.logger.Error("transaction log append failed after weight publish", zap.Error(err))
			return nil, err
		}
	}

	return result, nil
}
