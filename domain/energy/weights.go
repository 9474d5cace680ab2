package energy

import (
	"fmt"
	"sync/atomic"
	"time"
)

// Term names used in reports, events, and adapter updates.
const (
	TermPrereq    = "prereq"
	TermExplain   = "explain"
	TermMastery   = "mastery"
	TermCoherence = "coherence"
)

// Weights is a versioned, immutable energy weight vector. The adapter never
// edits a published vector; it derives a successor and publishes it through
// the Store, so a validation that captured version N keeps using exactly
// version N until it finishes.
type Weights struct {
	Version   uint64    `json:"version"`
	Prereq    float64   `json:"w_prereq"`
	Explain   float64   `json:"w_explain"`
	Mastery   float64   `json:"w_mastery"`
	Coherence float64   `json:"w_coherence"`
	CreatedAt time.Time `json:"created_at"`
}

// DefaultWeights returns the initial vector before any adaptation
func DefaultWeights() Weights {
	return Weights{
		Version:   1,
		Prereq:    1.0,
		Explain:   1.0,
		Mastery:   1.0,
		Coherence: 1.0,
		CreatedAt: time.Now(),
	}
}

// Validate checks the non-negativity and bound invariants
func (w Weights) Validate(maxWeight float64) error {
	for term, v := range w.Map() {
		if v < 0 {
			return fmt.Errorf("weight %s must be non-negative, got %f", term, v)
		}
		if v > maxWeight {
			return fmt.Errorf("weight %s exceeds bound %f, got %f", term, maxWeight, v)
		}
	}
	return nil
}

// Map returns the vector keyed by term name
func (w Weights) Map() map[string]float64 {
	return map[string]float64{
		TermPrereq:    w.Prereq,
		TermExplain:   w.Explain,
		TermMastery:   w.Mastery,
		TermCoherence: w.Coherence,
	}
}

// Store publishes weight versions with an atomic pointer swap. Readers call
// Current once at the start of a computation and hold the returned value;
// there is no torn read because Weights is copied out by value.
type Store struct {
	current atomic.Pointer[Weights]
}

// NewStore creates a store seeded with the given vector
func NewStore(initial Weights) *Store {
	s := &Store{}
	s.current.Store(&initial)
	return s
}

// Current returns the latest published vector
func (s *Store) Current() Weights {
	return *s.current.Load()
}

// Publish validates a candidate vector, stamps it with the next version
// number, and swaps it in atomically. In-flight computations keep the
// version they captured.
func (s *Store) Publish(candidate Weights, maxWeight float64) (Weights, error) {
	if err := candidate.Validate(maxWeight); err != nil {
		return Weights{}, err
	}

	for {
		prev := s.current.Load()
		candidate.Version = prev.Version + 1
		candidate.CreatedAt = time.Now()
		next := candidate
		if s.current.CompareAndSwap(prev, &next) {
			return next, nil
		}
	}
}

// Restore installs a vector with its version preserved. Only used during
// recovery, before any publisher runs.
func (s *Store) Restore(w Weights) {
	s.current.Store(&w)
}
