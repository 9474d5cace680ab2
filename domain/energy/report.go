package energy

import (
	"time"

	"curricula/domain/core/aggregates"
)

// TermFailure records a term whose computation could not complete and was
// scored at its maximal penalty instead.
type TermFailure struct {
	Term   string `json:"term"`
	Reason string `json:"reason"`
}

// Report is the full outcome of one validation: every raw term value, the
// weighted total, the weight version that produced it, and everything a
// caller needs to explain a failure.
type Report struct {
	WeightVersion uint64  `json:"weight_version"`
	Threshold     float64 `json:"threshold"`

	EPrereq    float64 `json:"e_prereq"`
	EExplain   float64 `json:"e_explain"`
	EMastery   float64 `json:"e_mastery"`
	ECoherence float64 `json:"e_coherence"`

	Total  float64 `json:"total"`
	Passed bool    `json:"passed"`

	// OffendingPairs lists the prerequisite edges violated by the ordering,
	// set only when EPrereq > 0.
	OffendingPairs []aggregates.Edge `json:"offending_pairs,omitempty"`

	// Degraded lists terms that fell back to their maximal penalty
	Degraded []TermFailure `json:"degraded,omitempty"`

	ComputedAt time.Time `json:"computed_at"`
}

// StructurallyValid reports whether the ordering respects every prerequisite
// edge; a curriculum can fail the energy threshold and still be valid.
func (r *Report) StructurallyValid() bool {
	return r.EPrereq == 0
}

// Terms returns the raw term values keyed by term name
func (r *Report) Terms() map[string]float64 {
	return map[string]float64{
		TermPrereq:    r.EPrereq,
		TermExplain:   r.EExplain,
		TermMastery:   r.EMastery,
		TermCoherence: r.ECoherence,
	}
}
