package services

import (
	"context"
	"time"

	"go.uber.org/zap"

	"curricula/application/ports"
	"curricula/domain/core/entities"
	"curricula/domain/core/valueobjects"
	"curricula/domain/events"
	"curricula/domain/mastery"
)

// SessionService manages learning trajectories: one open trajectory per
// learner, appended to as assessments arrive, closed on completion or
// abandonment. Closed trajectories feed the weight adapter.
type SessionService struct {
	trajectories ports.TrajectoryRepository
	publisher    ports.EventPublisher
	logger       *zap.Logger
}

func NewSessionService(trajectories ports.TrajectoryRepository, publisher ports.EventPublisher, logger *zap.Logger) *SessionService {
	return &SessionService{
		trajectories: trajectories,
		publisher:    publisher,
		logger:       logger,
	}
}

// RecordStep appends an attempt outcome to the learner's open trajectory,
// opening one if none exists.
func (s *SessionService) RecordStep(
	ctx context.Context,
	result *mastery.AttemptResult,
	timeSpent time.Duration,
	correctness float64,
	errorTags []string,
) error {
	trajectory, err := s.trajectories.GetOpenByLearner(ctx, result.LearnerID)
	if err != nil {
		return err
	}
	if trajectory == nil {
		trajectory, err = entities.NewLearningTrajectory(result.LearnerID, "")
		if err != nil {
			return err
		}
	}

	outcome := entities.OutcomeFailure
	if correctness >= 0.5 {
		outcome = entities.OutcomeSuccess
	}

	if err := trajectory.AppendStep(entities.TrajectoryStep{
		ConceptID:     result.ConceptID,
		MasteryBefore: result.MasteryBefore,
		MasteryAfter:  result.MasteryAfter,
		TimeSpent:     timeSpent,
		Outcome:       outcome,
		ErrorTags:     errorTags,
		At:            result.RecordedAt,
	}); err != nil {
		return err
	}

	return s.trajectories.Save(ctx, trajectory)
}

// Close ends the learner's open trajectory. Completed means the learner
// finished the curriculum; anything else counts as abandonment for the
// purposes of weight adaptation.
func (s *SessionService) Close(ctx context.Context, learnerID valueobjects.LearnerID, completed bool, now time.Time) (*entities.LearningTrajectory, error) {
	trajectory, err := s.trajectories.GetOpenByLearner(ctx, learnerID)
	if err != nil {
		return nil, err
	}
	if trajectory == nil {
		return nil, nil
	}

	if err := trajectory.Close(completed); err != nil {
		return nil, err
	}
	if err := s.trajectories.Save(ctx, trajectory); err != nil {
		return nil, err
	}

	if s.publisher != nil {
		event := events.NewTrajectoryClosed(trajectory.ID(), learnerID, completed, len(trajectory.Steps()), now)
		if err := s.publisher.Publish(ctx, event); err != nil {
			s.logger.Warn("event publish failed", zap.String("event_type", event.GetEventType()), zap.Error(err))
		}
	}

	s.logger.Info("trajectory closed",
		zap.String("trajectory_id", trajectory.ID()),
		zap.String("learner_id", learnerID.String()),
		zap.Bool("completed", completed),
		zap.Int("steps", len(trajectory.Steps())))
	return trajectory, nil
}
