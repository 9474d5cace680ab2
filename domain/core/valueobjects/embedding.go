package valueobjects

import (
	"math"

	"gonum.org/v1/gonum/floats"

	pkgerrors "curricula/pkg/errors"
)

// Embedding is a value object wrapping a concept's semantic vector.
// The backing slice is copied on construction and never exposed mutably,
// so an Embedding can be shared across goroutines without locking.
type Embedding struct {
	values []float64
	norm   float64
}

// NewEmbedding creates an embedding from a vector, precomputing its norm
func NewEmbedding(values []float64) (Embedding, error) {
	if len(values) == 0 {
		return Embedding{}, pkgerrors.NewValidationError("embedding cannot be empty")
	}
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Embedding{}, pkgerrors.NewValidationError("embedding contains non-finite values").
				WithDetail("index", i)
		}
	}

	copied := make([]float64, len(values))
	copy(copied, values)

	return Embedding{
		values: copied,
		norm:   floats.Norm(copied, 2),
	}, nil
}

// IsZero reports whether the embedding is absent
func (e Embedding) IsZero() bool {
	return len(e.values) == 0
}

// Dim returns the dimensionality of the embedding
func (e Embedding) Dim() int {
	return len(e.values)
}

// Values returns a copy of the vector
func (e Embedding) Values() []float64 {
	out := make([]float64, len(e.values))
	copy(out, e.values)
	return out
}

// CosineDistance returns 1 - cosine similarity with another embedding.
// Dimension mismatch or a zero-norm vector cannot be scored and returns an
// EnergyComputationError; callers treat that as maximal penalty.
func (e Embedding) CosineDistance(other Embedding) (float64, error) {
	if e.IsZero() || other.IsZero() {
		return 0, pkgerrors.NewEnergyComputationError("coherence", "missing embedding")
	}
	if len(e.values) != len(other.values) {
		return 0, pkgerrors.NewEnergyComputationError("coherence", "embedding dimension mismatch")
	}
	if e.norm == 0 || other.norm == 0 {
		return 0, pkgerrors.NewEnergyComputationError("coherence", "zero-norm embedding")
	}

	sim := floats.Dot(e.values, other.values) / (e.norm * other.norm)

	// Float error can push similarity slightly outside [-1, 1]
	if sim > 1 {
		sim = 1
	} else if sim < -1 {
		sim = -1
	}

	return 1 - sim, nil
}
