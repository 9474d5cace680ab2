package services

import (
	pkgerrors "curricula/pkg/errors"
)

// ConceptState is a learner's position in the per-concept lifecycle
type ConceptState string

const (
	// StateLocked means at least one prerequisite is below threshold
	StateLocked ConceptState = "locked"
	// StateReady means every prerequisite gate passes
	StateReady ConceptState = "ready"
	// StateInProgress means the concept has been served as a study action
	StateInProgress ConceptState = "in_progress"
	// StateAssessed means an attempt was recorded and awaits classification
	StateAssessed ConceptState = "assessed"
	// StateMastered means decayed mastery reached the threshold
	StateMastered ConceptState = "mastered"
	// StateWeak means assessment left mastery below threshold
	StateWeak ConceptState = "weak"
	// StateRemediating means the learner was routed back to prerequisites
	StateRemediating ConceptState = "remediating"
)

// validTransitions encodes the lifecycle. Mastered is not terminal: decay can
// pull a concept back below threshold, which re-opens it as Weak. Ready and
// InProgress can fall into Remediating when a prerequisite decays under the
// gate after planning.
var validTransitions = map[ConceptState][]ConceptState{
	StateLocked:      {StateReady},
	StateReady:       {StateInProgress, StateLocked, StateRemediating},
	StateInProgress:  {StateAssessed, StateRemediating},
	StateAssessed:    {StateMastered, StateWeak},
	StateMastered:    {StateWeak},
	StateWeak:        {StateRemediating, StateInProgress},
	StateRemediating: {StateReady, StateInProgress},
}

// CanTransition reports whether from -> to is a legal lifecycle move
func CanTransition(from, to ConceptState) bool {
	if from == to {
		return true
	}
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition validates and returns the new state
func Transition(from, to ConceptState) (ConceptState, error) {
	if !CanTransition(from, to) {
		return from, pkgerrors.NewValidationError("invalid concept state transition").
			WithDetail("from", string(from)).
			WithDetail("to", string(to))
	}
	return to, nil
}

// IsActionable reports whether the state allows serving a study action
func (s ConceptState) IsActionable() bool {
	switch s {
	case StateReady, StateWeak, StateRemediating, StateInProgress:
		return true
	}
	return false
}
