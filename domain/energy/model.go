package energy

import (
	"time"

	"curricula/domain/core/aggregates"
	"curricula/domain/core/valueobjects"
	pkgerrors "curricula/pkg/errors"
)

// maxPairDistance is the ceiling of 1 - cosine similarity; a pair whose
// distance cannot be computed is scored here, the maximal penalty.
const maxPairDistance = 2.0

// MasteryReader is the read-only view of learner mastery the model needs.
// The tracker applies decay on read, so the model never sees a stale value.
type MasteryReader interface {
	DecayedMastery(learnerID valueobjects.LearnerID, conceptID valueobjects.ConceptID, now time.Time) float64
}

// CandidateState is one scored configuration: a curriculum ordering for a
// learner, plus the explanation-coverage signal supplied by the teaching
// collaborator (nil when scoring a bare ordering during planning).
type CandidateState struct {
	LearnerID  valueobjects.LearnerID
	Curriculum []valueobjects.ConceptID

	// Mastered lists concepts treated as already learned; prerequisites in
	// this set do not need a position inside the curriculum.
	Mastered map[valueobjects.ConceptID]bool

	// ExplanationCoverage maps a concept to the prerequisite ids the
	// explanation claims to reference. A nil map means no signal and the
	// explain term contributes zero; a present map with a missing entry
	// means the explanation covered nothing.
	ExplanationCoverage map[valueobjects.ConceptID][]valueobjects.ConceptID

	Now time.Time
}

// Model computes the four-term energy of a candidate state. It is stateless:
// the graph and mastery stores are read-only inputs and the weight vector is
// captured per call, so concurrent validations cannot interfere.
type Model struct {
	graph     *aggregates.ConceptGraph
	mastery   MasteryReader
	weights   *Store
	threshold float64 // mastery threshold for the deficit term
}

// NewModel creates an energy model over the given read-only stores
func NewModel(graph *aggregates.ConceptGraph, mastery MasteryReader, weights *Store, masteryThreshold float64) *Model {
	return &Model{
		graph:     graph,
		mastery:   mastery,
		weights:   weights,
		threshold: masteryThreshold,
	}
}

// MasteryThreshold returns the threshold used by the deficit term
func (m *Model) MasteryThreshold() float64 {
	return m.threshold
}

// WeightVersion returns the version of the currently published weights
func (m *Model) WeightVersion() uint64 {
	return m.weights.Current().Version
}

// Validate scores a candidate state against an energy threshold and returns
// the full per-term breakdown. A state with any prerequisite-order violation
// fails regardless of threshold: E_prereq is a hard validity check first and
// a soft score second. Term computation failures (missing embeddings,
// malformed coverage) degrade that term to its maximal penalty instead of
// aborting the validation.
func (m *Model) Validate(state CandidateState, energyThreshold float64) *Report {
	w := m.weights.Current()

	report := &Report{
		WeightVersion: w.Version,
		Threshold:     energyThreshold,
		ComputedAt:    state.Now,
	}

	report.EPrereq, report.OffendingPairs = m.prereqTerm(state)
	report.EExplain = m.explainTerm(state)
	report.EMastery = m.masteryTerm(state)
	report.ECoherence = m.coherenceTerm(state, report)

	report.Total = w.Prereq*report.EPrereq +
		w.Explain*report.EExplain +
		w.Mastery*report.EMastery +
		w.Coherence*report.ECoherence

	report.Passed = report.EPrereq == 0 && report.Total <= energyThreshold
	return report
}

// Terms returns the raw (unweighted) term vector for a state, keyed by term
// name. The adapter uses this as the feature map for contrastive updates.
func (m *Model) Terms(state CandidateState) map[string]float64 {
	report := m.Validate(state, 0)
	return map[string]float64{
		TermPrereq:    report.EPrereq,
		TermExplain:   report.EExplain,
		TermMastery:   report.EMastery,
		TermCoherence: report.ECoherence,
	}
}

// prereqTerm counts curriculum positions where a concept precedes an unmet
// prerequisite. Any positive value makes the ordering structurally invalid.
// Mastery only exempts a prerequisite that is absent from the curriculum
// entirely; once scheduled, it must precede its dependents like any other.
func (m *Model) prereqTerm(state CandidateState) (float64, []aggregates.Edge) {
	pos := make(map[valueobjects.ConceptID]int, len(state.Curriculum))
	for i, id := range state.Curriculum {
		pos[id] = i
	}

	violations := 0.0
	var offending []aggregates.Edge
	for i, id := range state.Curriculum {
		for _, prereq := range m.graph.Prerequisites(id) {
			p, scheduled := pos[prereq]
			if !scheduled && state.Mastered[prereq] {
				continue
			}
			if !scheduled || p >= i {
				violations++
				offending = append(offending, aggregates.Edge{
					From: prereq, To: id, Kind: aggregates.EdgeKindPrerequisite,
				})
			}
		}
	}
	return violations, offending
}

// explainTerm sums 1 - coverage over the concepts the coverage signal
// addresses. Concepts without prerequisites are fully covered by definition.
func (m *Model) explainTerm(state CandidateState) float64 {
	if state.ExplanationCoverage == nil {
		return 0
	}

	total := 0.0
	for _, id := range state.Curriculum {
		prereqs := m.graph.Prerequisites(id)
		if len(prereqs) == 0 {
			continue
		}

		referenced := make(map[valueobjects.ConceptID]bool)
		for _, ref := range state.ExplanationCoverage[id] {
			referenced[ref] = true
		}

		covered := 0
		for _, p := range prereqs {
			if referenced[p] {
				covered++
			}
		}
		total += 1 - float64(covered)/float64(len(prereqs))
	}
	return total
}

// masteryTerm sums the threshold deficit of every prerequisite the learner
// is expected to already hold, i.e. prerequisites not scheduled earlier in
// the curriculum itself.
func (m *Model) masteryTerm(state CandidateState) float64 {
	scheduled := make(map[valueobjects.ConceptID]bool, len(state.Curriculum))
	for _, id := range state.Curriculum {
		scheduled[id] = true
	}

	total := 0.0
	for _, id := range state.Curriculum {
		for _, prereq := range m.graph.Prerequisites(id) {
			if scheduled[prereq] {
				continue // taught within this curriculum, ordering term covers it
			}
			deficit := m.threshold - m.mastery.DecayedMastery(state.LearnerID, prereq, state.Now)
			if deficit > 0 {
				total += deficit
			}
		}
	}
	return total
}

// coherenceTerm sums semantic distance between consecutive curriculum
// entries. A pair that cannot be scored contributes the maximal distance and
// marks the term degraded.
func (m *Model) coherenceTerm(state CandidateState, report *Report) float64 {
	total := 0.0
	for i := 1; i < len(state.Curriculum); i++ {
		prev, err := m.graph.Concept(state.Curriculum[i-1])
		if err != nil {
			total += maxPairDistance
			report.degrade(TermCoherence, err)
			continue
		}
		curr, err := m.graph.Concept(state.Curriculum[i])
		if err != nil {
			total += maxPairDistance
			report.degrade(TermCoherence, err)
			continue
		}

		dist, err := prev.Embedding().CosineDistance(curr.Embedding())
		if err != nil {
			total += maxPairDistance
			report.degrade(TermCoherence, err)
			continue
		}
		total += dist
	}
	return total
}

// MasteryGate evaluates the advancement gate for one concept: the deficit
// term over its direct prerequisites only. It returns the deficit and the
// prerequisites below threshold, ordered by DAG depth descending so the
// prerequisites closest to the blocked concept come first.
func (m *Model) MasteryGate(learnerID valueobjects.LearnerID, conceptID valueobjects.ConceptID, now time.Time) (float64, []valueobjects.ConceptID) {
	prereqs := m.graph.Prerequisites(conceptID)

	type low struct {
		id      valueobjects.ConceptID
		depth   int
		deficit float64
	}

	total := 0.0
	var lows []low
	for _, p := range prereqs {
		deficit := m.threshold - m.mastery.DecayedMastery(learnerID, p, now)
		if deficit > 0 {
			total += deficit
			lows = append(lows, low{id: p, depth: m.graph.Depth(p), deficit: deficit})
		}
	}

	// Deeper prerequisites sit nearer the blocked concept in the DAG
	for i := 0; i < len(lows); i++ {
		for j := i + 1; j < len(lows); j++ {
			if lows[j].depth > lows[i].depth ||
				(lows[j].depth == lows[i].depth && lows[j].id.String() < lows[i].id.String()) {
				lows[i], lows[j] = lows[j], lows[i]
			}
		}
	}

	ordered := make([]valueobjects.ConceptID, len(lows))
	for i, l := range lows {
		ordered[i] = l.id
	}
	return total, ordered
}

// degrade records a term-level computation failure on the report
func (r *Report) degrade(term string, err error) {
	reason := "unknown"
	if appErr := pkgerrors.GetAppError(err); appErr != nil {
		reason = appErr.Message
	} else if err != nil {
		reason = err.Error()
	}
	r.Degraded = append(r.Degraded, TermFailure{Term: term, Reason: reason})
}
