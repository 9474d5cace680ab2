package queries

import (
	"context"

	"curricula/domain/energy"
)

// GetWeightsQuery retrieves the currently published weight vector
type GetWeightsQuery struct{}

// Validate implements the query bus contract
func (q GetWeightsQuery) Validate() error {
	return nil
}

// GetWeightsHandler reads the weight store
type GetWeightsHandler struct {
	weights *energy.Store
}

func NewGetWeightsHandler(weights *energy.Store) *GetWeightsHandler {
	return &GetWeightsHandler{weights: weights}
}

// Handle executes the query
func (h *GetWeightsHandler) Handle(ctx context.Context, query GetWeightsQuery) (energy.Weights, error) {
	return h.weights.Current(), nil
}
