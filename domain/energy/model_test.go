package energy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"curricula/domain/core/aggregates"
	"curricula/domain/core/entities"
	"curricula/domain/core/valueobjects"
)

var scoreTime = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

// fixedMastery implements MasteryReader with static values per concept
type fixedMastery map[string]float64

func (f fixedMastery) DecayedMastery(_ valueobjects.LearnerID, conceptID valueobjects.ConceptID, _ time.Time) float64 {
	return f[conceptID.String()]
}

func cid(t *testing.T, s string) valueobjects.ConceptID {
	t.Helper()
	id, err := valueobjects.NewConceptIDFromString(s)
	require.NoError(t, err)
	return id
}

func learner(t *testing.T) valueobjects.LearnerID {
	t.Helper()
	id, err := valueobjects.NewLearnerIDFromString("l1")
	require.NoError(t, err)
	return id
}

func embeddedConcept(t *testing.T, id string, vec []float64) *entities.Concept {
	t.Helper()
	c, err := entities.NewConcept(cid(t, id), "concept "+id, 3, 20)
	require.NoError(t, err)
	if vec != nil {
		e, err := valueobjects.NewEmbedding(vec)
		require.NoError(t, err)
		c.SetEmbedding(e)
	}
	return c
}

// chainGraph builds a -> b -> c with optional embeddings
func chainGraph(t *testing.T, vecs map[string][]float64) *aggregates.ConceptGraph {
	t.Helper()
	g := aggregates.NewConceptGraph()
	_, err := g.ApplyDelta(aggregates.Delta{
		Concepts: []*entities.Concept{
			embeddedConcept(t, "a", vecs["a"]),
			embeddedConcept(t, "b", vecs["b"]),
			embeddedConcept(t, "c", vecs["c"]),
		},
		Edges: []aggregates.Edge{
			{From: cid(t, "a"), To: cid(t, "b"), Kind: aggregates.EdgeKindPrerequisite},
			{From: cid(t, "b"), To: cid(t, "c"), Kind: aggregates.EdgeKindPrerequisite},
		},
	})
	require.NoError(t, err)
	return g
}

func sameVecs() map[string][]float64 {
	// Identical embeddings give zero coherence distance
	return map[string][]float64{
		"a": {1, 0}, "b": {1, 0}, "c": {1, 0},
	}
}

func TestValidatePassesValidOrdering(t *testing.T) {
	g := chainGraph(t, sameVecs())
	model := NewModel(g, fixedMastery{}, NewStore(DefaultWeights()), 0.7)

	report := model.Validate(CandidateState{
		LearnerID:  learner(t),
		Curriculum: []valueobjects.ConceptID{cid(t, "a"), cid(t, "b"), cid(t, "c")},
		Now:        scoreTime,
	}, 1.5)

	assert.True(t, report.Passed)
	assert.Zero(t, report.EPrereq)
	assert.Zero(t, report.EExplain)
	assert.Zero(t, report.EMastery)
	assert.Zero(t, report.ECoherence)
	assert.Empty(t, report.OffendingPairs)
	assert.Equal(t, uint64(1), report.WeightVersion)
}

func TestValidateOrderingViolationFailsRegardlessOfThreshold(t *testing.T) {
	g := chainGraph(t, sameVecs())
	model := NewModel(g, fixedMastery{}, NewStore(DefaultWeights()), 0.7)

	report := model.Validate(CandidateState{
		LearnerID:  learner(t),
		Curriculum: []valueobjects.ConceptID{cid(t, "b"), cid(t, "a"), cid(t, "c")},
		Now:        scoreTime,
	}, 1e9)

	assert.False(t, report.Passed)
	assert.Equal(t, 1.0, report.EPrereq)
	require.Len(t, report.OffendingPairs, 1)
	assert.Equal(t, cid(t, "a"), report.OffendingPairs[0].From)
	assert.Equal(t, cid(t, "b"), report.OffendingPairs[0].To)
}

func TestValidateMasteredPrereqNeedsNoPosition(t *testing.T) {
	g := chainGraph(t, sameVecs())
	model := NewModel(g, fixedMastery{"a": 0.9}, NewStore(DefaultWeights()), 0.7)

	report := model.Validate(CandidateState{
		LearnerID:  learner(t),
		Curriculum: []valueobjects.ConceptID{cid(t, "b"), cid(t, "c")},
		Mastered:   map[valueobjects.ConceptID]bool{cid(t, "a"): true},
		Now:        scoreTime,
	}, 1.5)

	assert.True(t, report.Passed)
	assert.Zero(t, report.EPrereq)
	// a is above threshold, so the deficit term stays zero too.
	assert.Zero(t, report.EMastery)
}

func TestValidateScheduledMasteredPrereqMustStillPrecede(t *testing.T) {
	g := chainGraph(t, sameVecs())
	model := NewModel(g, fixedMastery{"a": 0.9}, NewStore(DefaultWeights()), 0.7)

	// Mastery exempts a from needing a slot, but once a is scheduled it has
	// to come before b like any other prerequisite.
	report := model.Validate(CandidateState{
		LearnerID:  learner(t),
		Curriculum: []valueobjects.ConceptID{cid(t, "b"), cid(t, "a")},
		Mastered:   map[valueobjects.ConceptID]bool{cid(t, "a"): true},
		Now:        scoreTime,
	}, 1e9)

	assert.False(t, report.Passed)
	assert.Equal(t, 1.0, report.EPrereq)
	require.Len(t, report.OffendingPairs, 1)
	assert.Equal(t, cid(t, "a"), report.OffendingPairs[0].From)
	assert.Equal(t, cid(t, "b"), report.OffendingPairs[0].To)
}

func TestMasteryTermChargesUnscheduledWeakPrereqs(t *testing.T) {
	g := chainGraph(t, sameVecs())
	model := NewModel(g, fixedMastery{"a": 0.4}, NewStore(DefaultWeights()), 0.7)

	report := model.Validate(CandidateState{
		LearnerID:  learner(t),
		Curriculum: []valueobjects.ConceptID{cid(t, "b"), cid(t, "c")},
		Mastered:   map[valueobjects.ConceptID]bool{cid(t, "a"): true},
		Now:        scoreTime,
	}, 1.5)

	assert.InDelta(t, 0.3, report.EMastery, 1e-9)
	assert.True(t, report.Passed)
}

func TestExplainTermOnlyWithCoverageSignal(t *testing.T) {
	g := chainGraph(t, sameVecs())
	model := NewModel(g, fixedMastery{}, NewStore(DefaultWeights()), 0.7)

	curriculum := []valueobjects.ConceptID{cid(t, "a"), cid(t, "b"), cid(t, "c")}

	// No signal: term contributes nothing.
	terms := model.Terms(CandidateState{LearnerID: learner(t), Curriculum: curriculum, Now: scoreTime})
	assert.Zero(t, terms[TermExplain])

	// Coverage present but b's explanation references nothing: b has one
	// prerequisite fully uncovered, c's covers its single prerequisite.
	terms = model.Terms(CandidateState{
		LearnerID:  learner(t),
		Curriculum: curriculum,
		ExplanationCoverage: map[valueobjects.ConceptID][]valueobjects.ConceptID{
			cid(t, "c"): {cid(t, "b")},
		},
		Now: scoreTime,
	})
	assert.InDelta(t, 1.0, terms[TermExplain], 1e-9)
}

func TestCoherenceDegradesOnMissingEmbedding(t *testing.T) {
	// b has no embedding; both pairs through b are unscoreable.
	g := chainGraph(t, map[string][]float64{"a": {1, 0}, "c": {0, 1}})
	model := NewModel(g, fixedMastery{}, NewStore(DefaultWeights()), 0.7)

	report := model.Validate(CandidateState{
		LearnerID:  learner(t),
		Curriculum: []valueobjects.ConceptID{cid(t, "a"), cid(t, "b"), cid(t, "c")},
		Now:        scoreTime,
	}, 10)

	assert.InDelta(t, 4.0, report.ECoherence, 1e-9)
	require.Len(t, report.Degraded, 2)
	assert.Equal(t, TermCoherence, report.Degraded[0].Term)
}

func TestCoherenceSumsCosineDistance(t *testing.T) {
	g := chainGraph(t, map[string][]float64{"a": {1, 0}, "b": {0, 1}, "c": {0, 1}})
	model := NewModel(g, fixedMastery{}, NewStore(DefaultWeights()), 0.7)

	terms := model.Terms(CandidateState{
		LearnerID:  learner(t),
		Curriculum: []valueobjects.ConceptID{cid(t, "a"), cid(t, "b"), cid(t, "c")},
		Now:        scoreTime,
	})

	// a-b are orthogonal (distance 1), b-c identical (distance 0).
	assert.InDelta(t, 1.0, terms[TermCoherence], 1e-9)
}

func TestTotalUsesCurrentWeights(t *testing.T) {
	g := chainGraph(t, map[string][]float64{"a": {1, 0}, "b": {0, 1}, "c": {0, 1}})
	store := NewStore(DefaultWeights())
	model := NewModel(g, fixedMastery{}, store, 0.7)

	state := CandidateState{
		LearnerID:  learner(t),
		Curriculum: []valueobjects.ConceptID{cid(t, "a"), cid(t, "b"), cid(t, "c")},
		Now:        scoreTime,
	}

	before := model.Validate(state, 10)
	assert.InDelta(t, 1.0, before.Total, 1e-9)

	doubled := store.Current()
	doubled.Coherence = 2.0
	published, err := store.Publish(doubled, 10.0)
	require.NoError(t, err)
	assert.Equal(t, before.WeightVersion+1, published.Version)

	after := model.Validate(state, 10)
	assert.InDelta(t, 2.0, after.Total, 1e-9)
	assert.Equal(t, published.Version, after.WeightVersion)
}

func TestMasteryGateOrdersByDepthDescending(t *testing.T) {
	// d requires both a (depth 0) and c (depth 2 via a->b->c).
	g := aggregates.NewConceptGraph()
	_, err := g.ApplyDelta(aggregates.Delta{
		Concepts: []*entities.Concept{
			embeddedConcept(t, "a", nil), embeddedConcept(t, "b", nil),
			embeddedConcept(t, "c", nil), embeddedConcept(t, "d", nil),
		},
		Edges: []aggregates.Edge{
			{From: cid(t, "a"), To: cid(t, "b"), Kind: aggregates.EdgeKindPrerequisite},
			{From: cid(t, "b"), To: cid(t, "c"), Kind: aggregates.EdgeKindPrerequisite},
			{From: cid(t, "a"), To: cid(t, "d"), Kind: aggregates.EdgeKindPrerequisite},
			{From: cid(t, "c"), To: cid(t, "d"), Kind: aggregates.EdgeKindPrerequisite},
		},
	})
	require.NoError(t, err)

	model := NewModel(g, fixedMastery{"a": 0.5, "c": 0.6}, NewStore(DefaultWeights()), 0.7)

	deficit, lows := model.MasteryGate(learner(t), cid(t, "d"), scoreTime)
	assert.InDelta(t, 0.3, deficit, 1e-9)
	require.Len(t, lows, 2)
	assert.Equal(t, cid(t, "c"), lows[0])
	assert.Equal(t, cid(t, "a"), lows[1])
}

func TestStorePublishValidatesBounds(t *testing.T) {
	store := NewStore(DefaultWeights())

	negative := store.Current()
	negative.Mastery = -0.1
	_, err := store.Publish(negative, 10.0)
	assert.Error(t, err)

	oversized := store.Current()
	oversized.Explain = 11.0
	_, err = store.Publish(oversized, 10.0)
	assert.Error(t, err)

	// Rejected candidates must not bump the version.
	assert.Equal(t, uint64(1), store.Current().Version)
}

func TestStoreRestorePreservesVersion(t *testing.T) {
	store := NewStore(DefaultWeights())

	restored := Weights{Version: 42, Prereq: 1, Explain: 1, Mastery: 1, Coherence: 1, CreatedAt: scoreTime}
	store.Restore(restored)
	assert.Equal(t, uint64(42), store.Current().Version)

	// The next publish continues from the restored version.
	next, err := store.Publish(restored, 10.0)
	require.NoError(t, err)
	assert.Equal(t, uint64(43), next.Version)
}
