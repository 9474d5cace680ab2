package errors

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Constructors for the engine's structured failure modes. These are regular
// AppErrors with well-known codes and detail keys so callers can both match
// on type (errors.As + predicates in errors.go) and recover the specifics
// (offending edge, cycle path, blocking concepts) without string parsing.

// Detail keys used by engine errors.
const (
	DetailEdgeFrom        = "edge_from"
	DetailEdgeTo          = "edge_to"
	DetailCyclePath       = "cycle_path"
	DetailBlockedConcepts = "blocked_concepts"
	DetailLowPrereqs      = "low_prerequisites"
	DetailEnergyTerm      = "energy_term"
	DetailRecordedAt      = "recorded_at"
	DetailAttemptedAt     = "attempted_at"
)

// NewCycleViolationError reports a rejected graph delta. The delta is rejected
// wholesale; from/to name the prerequisite edge that would close the cycle and
// path is the full cycle it would create, ending back at the first element.
func NewCycleViolationError(from, to string, path []string) *AppError {
	return &AppError{
		Type: ErrorTypeCycleViolation,
		Message: fmt.Sprintf("prerequisite edge %s->%s would create cycle %s",
			from, to, strings.Join(path, "->")),
		Code:       "GRAPH_DELTA_REJECTED",
		HTTPStatus: http.StatusConflict,
		StackTrace: captureStackTrace(),
		Details: map[string]interface{}{
			DetailEdgeFrom:  from,
			DetailEdgeTo:    to,
			DetailCyclePath: path,
		},
	}
}

// CyclePath extracts the cycle path from a CycleViolation error, or nil.
func CyclePath(err error) []string {
	appErr := GetAppError(err)
	if appErr == nil || appErr.Type != ErrorTypeCycleViolation {
		return nil
	}
	path, _ := appErr.Details[DetailCyclePath].([]string)
	return path
}

// NewCurriculumInfeasibleError reports that no candidate ordering survived
// validation. blocked names the concepts in the region that could not be
// scheduled; reported, not fatal.
func NewCurriculumInfeasibleError(reason string, blocked []string) *AppError {
	return &AppError{
		Type:       ErrorTypeCurriculumInfeasible,
		Message:    fmt.Sprintf("no valid curriculum exists: %s", reason),
		Code:       "PLANNING_FAILED",
		HTTPStatus: http.StatusUnprocessableEntity,
		StackTrace: captureStackTrace(),
		Details: map[string]interface{}{
			DetailBlockedConcepts: blocked,
		},
	}
}

// NewStaleWriteError reports an out-of-order mastery update. The write is
// discarded; the caller retries with fresh state.
func NewStaleWriteError(learnerID, conceptID string, recordedAt, attemptedAt time.Time) *AppError {
	return &AppError{
		Type: ErrorTypeStaleWrite,
		Message: fmt.Sprintf("mastery update for learner %s concept %s is older than last recorded write",
			learnerID, conceptID),
		Code:       "OUT_OF_ORDER_WRITE",
		HTTPStatus: http.StatusConflict,
		StackTrace: captureStackTrace(),
		Details: map[string]interface{}{
			DetailRecordedAt:  recordedAt,
			DetailAttemptedAt: attemptedAt,
		},
	}
}

// NewMasteryUnmetError reports a blocked advancement. This is expected
// control flow, not a fault: it carries the low-mastery prerequisites the
// learner should reinforce, ordered by DAG proximity.
func NewMasteryUnmetError(conceptID string, lowPrereqs []string) *AppError {
	return &AppError{
		Type: ErrorTypeMasteryUnmet,
		Message: fmt.Sprintf("advancement to %s blocked by %d prerequisite(s) below threshold",
			conceptID, len(lowPrereqs)),
		Code:       "ADVANCEMENT_BLOCKED",
		HTTPStatus: http.StatusPreconditionFailed,
		StackTrace: captureStackTrace(),
		Details: map[string]interface{}{
			DetailLowPrereqs: lowPrereqs,
		},
	}
}

// LowPrerequisites extracts the low-mastery prerequisite list from a
// MasteryThresholdUnmet error, or nil.
func LowPrerequisites(err error) []string {
	appErr := GetAppError(err)
	if appErr == nil || appErr.Type != ErrorTypeMasteryUnmet {
		return nil
	}
	prereqs, _ := appErr.Details[DetailLowPrereqs].([]string)
	return prereqs
}

// NewEnergyComputationError reports a malformed input for one energy term.
// Validation does not abort on this; the term is scored at maximal penalty
// and the error is surfaced in the report for diagnostics.
func NewEnergyComputationError(term, reason string) *AppError {
	return &AppError{
		Type:       ErrorTypeEnergyComputation,
		Message:    fmt.Sprintf("energy term %s could not be computed: %s", term, reason),
		Code:       "TERM_DEGRADED",
		HTTPStatus: http.StatusUnprocessableEntity,
		StackTrace: captureStackTrace(),
		Details: map[string]interface{}{
			DetailEnergyTerm: term,
		},
	}
}
