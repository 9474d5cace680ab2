package entities

import (
	"math"
	"time"

	"curricula/domain/core/valueobjects"
	pkgerrors "curricula/pkg/errors"
)

// MasteryRecord tracks one learner's estimated competence in one concept.
// Records are created lazily on first interaction and never deleted; decay
// is applied on read so no background timer touches the stored value.
type MasteryRecord struct {
	learnerID    valueobjects.LearnerID
	conceptID    valueobjects.ConceptID
	mastery      float64 // value as of lastUpdated, before decay
	lastUpdated  time.Time
	attemptCount int
	decayRate    float64 // per-hour exponential decay constant

	// Rolling aggregates for progress reporting
	correctnessSum float64
	totalTime      time.Duration
}

// NewMasteryRecord creates a fresh record for a first interaction
func NewMasteryRecord(learnerID valueobjects.LearnerID, conceptID valueobjects.ConceptID, decayRate float64) (*MasteryRecord, error) {
	if learnerID.IsZero() {
		return nil, pkgerrors.NewValidationError("learner ID cannot be empty")
	}
	if conceptID.IsZero() {
		return nil, pkgerrors.NewValidationError("concept ID cannot be empty")
	}
	if decayRate < 0 {
		return nil, pkgerrors.NewValidationError("decay rate must be non-negative")
	}

	return &MasteryRecord{
		learnerID: learnerID,
		conceptID: conceptID,
		decayRate: decayRate,
	}, nil
}

// ReconstructMasteryRecord rebuilds a record from persisted state
func ReconstructMasteryRecord(
	learnerID valueobjects.LearnerID,
	conceptID valueobjects.ConceptID,
	mastery float64,
	lastUpdated time.Time,
	attemptCount int,
	decayRate float64,
	correctnessSum float64,
	totalTime time.Duration,
) *MasteryRecord {
	return &MasteryRecord{
		learnerID:      learnerID,
		conceptID:      conceptID,
		mastery:        mastery,
		lastUpdated:    lastUpdated,
		attemptCount:   attemptCount,
		decayRate:      decayRate,
		correctnessSum: correctnessSum,
		totalTime:      totalTime,
	}
}

// LearnerID returns the learner this record belongs to
func (m *MasteryRecord) LearnerID() valueobjects.LearnerID {
	return m.learnerID
}

// ConceptID returns the concept this record tracks
func (m *MasteryRecord) ConceptID() valueobjects.ConceptID {
	return m.conceptID
}

// RawMastery returns the stored mastery as of the last update, without decay
func (m *MasteryRecord) RawMastery() float64 {
	return m.mastery
}

// LastUpdated returns the timestamp of the last accepted attempt
func (m *MasteryRecord) LastUpdated() time.Time {
	return m.lastUpdated
}

// AttemptCount returns how many attempts have been accepted
func (m *MasteryRecord) AttemptCount() int {
	return m.attemptCount
}

// DecayRate returns the per-hour decay constant
func (m *MasteryRecord) DecayRate() float64 {
	return m.decayRate
}

// CorrectnessSum returns the running sum of attempt correctness values
func (m *MasteryRecord) CorrectnessSum() float64 {
	return m.correctnessSum
}

// TotalTime returns the accumulated response time across attempts
func (m *MasteryRecord) TotalTime() time.Duration {
	return m.totalTime
}

// Accuracy returns the mean correctness over all accepted attempts
func (m *MasteryRecord) Accuracy() float64 {
	if m.attemptCount == 0 {
		return 0
	}
	return m.correctnessSum / float64(m.attemptCount)
}

// DecayedMastery returns the mastery value at time now, applying exponential
// decay since lastUpdated: mastery * exp(-decayRate * elapsedHours), floored
// at zero. A record with no accepted attempts decays from zero and stays zero.
func (m *MasteryRecord) DecayedMastery(now time.Time) float64 {
	if m.attemptCount == 0 || m.mastery <= 0 {
		return 0
	}

	elapsed := now.Sub(m.lastUpdated)
	if elapsed <= 0 {
		return m.mastery
	}

	decayed := m.mastery * math.Exp(-m.decayRate*elapsed.Hours())
	if decayed < 0 {
		return 0
	}
	return decayed
}

// IsMastered reports whether decayed mastery meets the threshold at time now
func (m *MasteryRecord) IsMastered(threshold float64, now time.Time) bool {
	return m.DecayedMastery(now) >= threshold
}

// ApplyAttempt folds an assessment outcome into the record.
//
// The update is a convex blend toward the observed correctness:
//
//	m' = decayed(m) + gain * (correctness - decayed(m))
//
// where gain grows with the time-efficiency factor only when the attempt
// would raise mastery. A fast wrong answer is never punished harder than a
// slow wrong answer, which keeps the update monotonic in both correctness
// and response speed.
//
// Attempts whose timestamp is not strictly after the last accepted write are
// rejected with StaleWriteRejected and leave the record untouched.
func (m *MasteryRecord) ApplyAttempt(
	correctness float64,
	responseTime time.Duration,
	expectedTime time.Duration,
	minGain, maxGain float64,
	at time.Time,
) error {
	if correctness < 0 || correctness > 1 {
		return pkgerrors.NewValidationError("correctness must be in [0, 1]").
			WithDetail("correctness", correctness)
	}
	if responseTime < 0 {
		return pkgerrors.NewValidationError("response time cannot be negative")
	}
	if m.attemptCount > 0 && !at.After(m.lastUpdated) {
		return pkgerrors.NewStaleWriteError(
			m.learnerID.String(), m.conceptID.String(), m.lastUpdated, at)
	}

	current := m.DecayedMastery(at)

	gain := minGain
	if correctness >= current {
		gain = minGain + (maxGain-minGain)*efficiencyFactor(responseTime, expectedTime)
	}

	updated := current + gain*(correctness-current)
	if updated < 0 {
		updated = 0
	} else if updated > 1 {
		updated = 1
	}

	m.mastery = updated
	m.lastUpdated = at
	m.attemptCount++
	m.correctnessSum += correctness
	m.totalTime += responseTime

	return nil
}

// efficiencyFactor maps response time to [0, 1]: 1 for instantaneous answers,
// 0.5 at exactly the expected time, approaching 0 as responses slow.
func efficiencyFactor(responseTime, expectedTime time.Duration) float64 {
	if expectedTime <= 0 {
		return 0.5
	}
	ratio := responseTime.Seconds() / expectedTime.Seconds()
	return 1 / (1 + ratio)
}
