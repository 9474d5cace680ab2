// Package mastery tracks per-learner proficiency with decay applied on read.
// The tracker is the single writer for mastery records; all reads flow
// through it so callers always observe decay-adjusted values.
package mastery

import (
	"hash/fnv"
	"sync"
	"time"

	"curricula/domain/config"
	"curricula/domain/core/entities"
	"curricula/domain/core/valueobjects"
)

// stripeCount bounds lock contention without a lock per record
const stripeCount = 64

type recordKey struct {
	learner valueobjects.LearnerID
	concept valueobjects.ConceptID
}

// AttemptResult is what callers get back after recording an assessment
type AttemptResult struct {
	LearnerID     valueobjects.LearnerID
	ConceptID     valueobjects.ConceptID
	MasteryBefore float64
	MasteryAfter  float64
	AttemptCount  int
	Mastered      bool
	RecordedAt    time.Time
}

// ConceptProgress is the read-model row for one learner/concept pair
type ConceptProgress struct {
	ConceptID    valueobjects.ConceptID `json:"concept_id"`
	Mastery      float64                `json:"mastery"`
	AttemptCount int                    `json:"attempt_count"`
	Accuracy     float64                `json:"accuracy"`
	TimeSpent    time.Duration          `json:"time_spent"`
	LastUpdated  time.Time              `json:"last_updated"`
	Mastered     bool                   `json:"mastered"`
}

// Tracker owns the mastery records for all learners. Records are created
// lazily on first attempt; a concept with no attempts reads as zero mastery.
type Tracker struct {
	cfg     *config.DomainConfig
	stripes [stripeCount]sync.RWMutex
	records map[recordKey]*entities.MasteryRecord
	// index protects the records map itself; stripes serialize per-pair writes
	index sync.RWMutex
}

func NewTracker(cfg *config.DomainConfig) *Tracker {
	return &Tracker{
		cfg:     cfg,
		records: make(map[recordKey]*entities.MasteryRecord),
	}
}

func stripeFor(key recordKey) uint32 {
	h := fnv.New32a()
	h.Write([]byte(key.learner.String()))
	h.Write([]byte{0})
	h.Write([]byte(key.concept.String()))
	return h.Sum32() % stripeCount
}

// RecordAttempt folds an assessment into the learner's record for the
// concept, creating the record on first attempt. Out-of-order attempts are
// rejected with StaleWriteRejected and leave the record untouched.
func (t *Tracker) RecordAttempt(
	learnerID valueobjects.LearnerID,
	conceptID valueobjects.ConceptID,
	correctness float64,
	responseTime time.Duration,
	at time.Time,
) (*AttemptResult, error) {
	key := recordKey{learner: learnerID, concept: conceptID}

	stripe := &t.stripes[stripeFor(key)]
	stripe.Lock()
	defer stripe.Unlock()

	record, err := t.recordFor(key)
	if err != nil {
		return nil, err
	}

	before := record.DecayedMastery(at)
	if err := record.ApplyAttempt(
		correctness,
		responseTime,
		t.cfg.ExpectedResponse,
		t.cfg.MinAttemptGain,
		t.cfg.MaxAttemptGain,
		at,
	); err != nil {
		return nil, err
	}

	after := record.RawMastery()
	return &AttemptResult{
		LearnerID:     learnerID,
		ConceptID:     conceptID,
		MasteryBefore: before,
		MasteryAfter:  after,
		AttemptCount:  record.AttemptCount(),
		Mastered:      after >= t.cfg.MasteryThreshold,
		RecordedAt:    at,
	}, nil
}

// recordFor returns the record for key, creating it lazily. Caller must hold
// the key's stripe lock.
func (t *Tracker) recordFor(key recordKey) (*entities.MasteryRecord, error) {
	t.index.RLock()
	record, ok := t.records[key]
	t.index.RUnlock()
	if ok {
		return record, nil
	}

	record, err := entities.NewMasteryRecord(key.learner, key.concept, t.cfg.DefaultDecayRate)
	if err != nil {
		return nil, err
	}

	t.index.Lock()
	// The stripe lock covers this key, so no other writer can have raced us,
	// but a concurrent Restore may have.
	if existing, ok := t.records[key]; ok {
		record = existing
	} else {
		t.records[key] = record
	}
	t.index.Unlock()
	return record, nil
}

// DecayedMastery returns the learner's current mastery for a concept with
// decay applied. Unseen concepts read as zero.
func (t *Tracker) DecayedMastery(learnerID valueobjects.LearnerID, conceptID valueobjects.ConceptID, now time.Time) float64 {
	key := recordKey{learner: learnerID, concept: conceptID}

	stripe := &t.stripes[stripeFor(key)]
	stripe.RLock()
	defer stripe.RUnlock()

	t.index.RLock()
	record, ok := t.records[key]
	t.index.RUnlock()
	if !ok {
		return 0
	}
	return record.DecayedMastery(now)
}

// IsMastered reports whether the learner's decayed mastery meets the
// configured threshold.
func (t *Tracker) IsMastered(learnerID valueobjects.LearnerID, conceptID valueobjects.ConceptID, now time.Time) bool {
	return t.DecayedMastery(learnerID, conceptID, now) >= t.cfg.MasteryThreshold
}

// MasteredSet returns the ids from candidates the learner has mastered,
// as a set keyed by concept id.
func (t *Tracker) MasteredSet(learnerID valueobjects.LearnerID, candidates []valueobjects.ConceptID, now time.Time) map[valueobjects.ConceptID]bool {
	mastered := make(map[valueobjects.ConceptID]bool)
	for _, id := range candidates {
		if t.IsMastered(learnerID, id, now) {
			mastered[id] = true
		}
	}
	return mastered
}

// Progress returns the learner's per-concept progress rows, one for every
// concept they have attempted.
func (t *Tracker) Progress(learnerID valueobjects.LearnerID, now time.Time) []ConceptProgress {
	t.index.RLock()
	var keys []recordKey
	for key := range t.records {
		if key.learner == learnerID {
			keys = append(keys, key)
		}
	}
	t.index.RUnlock()

	var rows []ConceptProgress
	for _, key := range keys {
		stripe := &t.stripes[stripeFor(key)]
		stripe.RLock()
		t.index.RLock()
		record, ok := t.records[key]
		t.index.RUnlock()
		if !ok {
			stripe.RUnlock()
			continue
		}
		decayed := record.DecayedMastery(now)
		rows = append(rows, ConceptProgress{
			ConceptID:    key.concept,
			Mastery:      decayed,
			AttemptCount: record.AttemptCount(),
			Accuracy:     record.Accuracy(),
			TimeSpent:    record.TotalTime(),
			LastUpdated:  record.LastUpdated(),
			Mastered:     decayed >= t.cfg.MasteryThreshold,
		})
		stripe.RUnlock()
	}

	// Stable order for API responses
	for i := 0; i < len(rows); i++ {
		for j := i + 1; j < len(rows); j++ {
			if rows[j].ConceptID.String() < rows[i].ConceptID.String() {
				rows[i], rows[j] = rows[j], rows[i]
			}
		}
	}
	return rows
}

// Records returns every record in the tracker, for snapshotting
func (t *Tracker) Records() []*entities.MasteryRecord {
	t.index.RLock()
	defer t.index.RUnlock()

	out := make([]*entities.MasteryRecord, 0, len(t.records))
	for _, record := range t.records {
		out = append(out, record)
	}
	return out
}

// Restore installs a record rebuilt from a snapshot, replacing any existing
// record for the pair. Used only during replay before the tracker serves
// traffic.
func (t *Tracker) Restore(record *entities.MasteryRecord) {
	key := recordKey{learner: record.LearnerID(), concept: record.ConceptID()}
	t.index.Lock()
	t.records[key] = record
	t.index.Unlock()
}
