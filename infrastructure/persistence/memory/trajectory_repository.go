// Package memory provides in-process repository implementations. Durability
// comes from the transaction log and snapshots, not from these stores.
package memory

import (
	"context"
	"sort"
	"sync"

	"curricula/domain/core/entities"
	"curricula/domain/core/valueobjects"
)

// TrajectoryRepository is an in-memory ports.TrajectoryRepository
type TrajectoryRepository struct {
	mu            sync.RWMutex
	byID          map[string]*entities.LearningTrajectory
	openByLearner map[valueobjects.LearnerID]string
	closedOrder   []string // ids in close order, newest appended last
}

func NewTrajectoryRepository() *TrajectoryRepository {
	return &TrajectoryRepository{
		byID:          make(map[string]*entities.LearningTrajectory),
		openByLearner: make(map[valueobjects.LearnerID]string),
	}
}

// Save persists a trajectory (create or update)
func (r *TrajectoryRepository) Save(ctx context.Context, trajectory *entities.LearningTrajectory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := trajectory.ID()
	_, existed := r.byID[id]
	r.byID[id] = trajectory

	if trajectory.IsClosed() {
		if r.openByLearner[trajectory.LearnerID()] == id {
			delete(r.openByLearner, trajectory.LearnerID())
		}
		if !existed || !containsString(r.closedOrder, id) {
			r.closedOrder = append(r.closedOrder, id)
		}
	} else {
		r.openByLearner[trajectory.LearnerID()] = id
	}
	return nil
}

// GetByID retrieves a trajectory by its ID
func (r *TrajectoryRepository) GetByID(ctx context.Context, id string) (*entities.LearningTrajectory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byID[id], nil
}

// GetOpenByLearner retrieves the learner's current open trajectory, if any
func (r *TrajectoryRepository) GetOpenByLearner(ctx context.Context, learnerID valueobjects.LearnerID) (*entities.LearningTrajectory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.openByLearner[learnerID]
	if !ok {
		return nil, nil
	}
	return r.byID[id], nil
}

// ListClosed retrieves closed trajectories, most recent first
func (r *TrajectoryRepository) ListClosed(ctx context.Context, limit int) ([]*entities.LearningTrajectory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*entities.LearningTrajectory
	for i := len(r.closedOrder) - 1; i >= 0 && len(out) < limit; i-- {
		if t, ok := r.byID[r.closedOrder[i]]; ok {
			out = append(out, t)
		}
	}
	return out, nil
}

// ListClosedByLearner retrieves a learner's closed trajectories
func (r *TrajectoryRepository) ListClosedByLearner(ctx context.Context, learnerID valueobjects.LearnerID, limit int) ([]*entities.LearningTrajectory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*entities.LearningTrajectory
	for i := len(r.closedOrder) - 1; i >= 0 && len(out) < limit; i-- {
		t, ok := r.byID[r.closedOrder[i]]
		if ok && t.LearnerID() == learnerID {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ClosedAt().After(out[j].ClosedAt())
	})
	return out, nil
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
