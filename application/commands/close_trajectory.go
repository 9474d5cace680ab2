package commands

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"curricula/application/ports"
	"curricula/application/services"
	"curricula/domain/core/valueobjects"
	"curricula/pkg/utils"
)

// CloseTrajectoryCommand ends the learner's open trajectory. Completed
// trajectories are the positive examples for weight adaptation; abandoned
// ones are the negatives.
type CloseTrajectoryCommand struct {
	LearnerID string `json:"learner_id" validate:"required"`
	Completed bool   `json:"completed"`
}

// Validate implements the command bus contract
func (c CloseTrajectoryCommand) Validate() error {
	return utils.ValidateStruct(c)
}

// CloseTrajectoryResult reports the closed trajectory
type CloseTrajectoryResult struct {
	TrajectoryID string `json:"trajectory_id,omitempty"`
	Closed       bool   `json:"closed"`
	Steps        int    `json:"steps"`
}

// CloseTrajectoryHandler closes trajectories and records the closure in the
// transaction log.
type CloseTrajectoryHandler struct {
	sessions *services.SessionService
	txLog    ports.TransactionLog
	logger   *zap.Logger
}

func NewCloseTrajectoryHandler(sessions *services.SessionService, txLog ports.TransactionLog, logger *zap.Logger) *CloseTrajectoryHandler {
	return &CloseTrajectoryHandler{
		sessions: sessions,
		txLog:    txLog,
		logger:   logger,
	}
}

// Handle executes the trajectory close
func (h *CloseTrajectoryHandler) Handle(ctx context.Context, cmd CloseTrajectoryCommand) (*CloseTrajectoryResult, error) {
	learnerID, err := valueobjects.NewLearnerIDFromString(cmd.LearnerID)
	if err != nil {
		return nil, err
	}

	trajectory, err := h.sessions.Close(ctx, learnerID, cmd.Completed, time.Now())
	if err != nil {
		return nil, err
	}
	if trajectory == nil {
		return &CloseTrajectoryResult{Closed: false}, nil
	}

	payload, err := json.Marshal(cmd)
	if err != nil {
		return nil, err
	}
	if err := h.txLog.Append(ctx, ports.LogEntry{
		Kind:       ports.LogKindTrajectory,
		RecordedAt: time.Now(),
		Payload:    payload,
	}); err != nil {
		h.logger.Error("transaction log append failed after trajectory close", zap.Error(err))
		return nil, err
	}

	return &CloseTrajectoryResult{
		TrajectoryID: trajectory.ID(),
		Closed:       true,
		Steps:        len(trajectory.Steps()),
	}, nil
}
