package services

import (
	"context"
	"encoding/binary"
	"hash/fnv"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"curricula/application/ports"
	"curricula/domain/config"
	"curricula/domain/core/aggregates"
	"curricula/domain/core/valueobjects"
	"curricula/domain/energy"
	"curricula/domain/events"
	"curricula/domain/mastery"
	pkgerrors "curricula/pkg/errors"
)

// ActionType classifies what the planner tells a learner to do next
type ActionType string

const (
	// ActionAdvance serves the next curriculum concept
	ActionAdvance ActionType = "advance"
	// ActionReinforce blocks advancement and routes the learner to the
	// named low-mastery prerequisites first
	ActionReinforce ActionType = "reinforce"
	// ActionRemediate re-serves a concept the learner previously failed
	ActionRemediate ActionType = "remediate"
	// ActionComplete means every concept in the plan is mastered
	ActionComplete ActionType = "complete"
)

// NextAction is the planner's answer to "what should this learner do now"
type NextAction struct {
	Type       ActionType               `json:"type"`
	ConceptID  valueobjects.ConceptID   `json:"concept_id,omitempty"`
	Reinforce  []valueobjects.ConceptID `json:"reinforce,omitempty"`
	GateEnergy float64                  `json:"gate_energy"`
	Generation uint64                   `json:"generation"`
}

// LearnerPlan is one generation of a learner's curriculum. Later generations
// supersede earlier ones; a replan computed against a stale generation is
// discarded on install.
type LearnerPlan struct {
	LearnerID  valueobjects.LearnerID                  `json:"learner_id"`
	Generation uint64                                  `json:"generation"`
	Curriculum []valueobjects.ConceptID                `json:"curriculum"`
	States     map[valueobjects.ConceptID]ConceptState `json:"states"`
	Report     *energy.Report                          `json:"report"`
	PlannedAt  time.Time                               `json:"planned_at"`
}

// CurriculumPlanner owns per-learner plans and the concept lifecycle. Plans
// are derived state: they can always be recomputed from the graph and the
// mastery tracker, so the planner itself is not persisted.
type CurriculumPlanner struct {
	graph     *aggregates.ConceptGraph
	tracker   *mastery.Tracker
	model     *energy.Model
	cfg       *config.DomainConfig
	publisher ports.EventPublisher
	logger    *zap.Logger

	mu       sync.Mutex
	plans    map[valueobjects.LearnerID]*LearnerPlan
	coverage map[valueobjects.LearnerID]map[valueobjects.ConceptID][]valueobjects.ConceptID
}

func NewCurriculumPlanner(
	graph *aggregates.ConceptGraph,
	tracker *mastery.Tracker,
	model *energy.Model,
	cfg *config.DomainConfig,
	publisher ports.EventPublisher,
	logger *zap.Logger,
) *CurriculumPlanner {
	return &CurriculumPlanner{
		graph:     graph,
		tracker:   tracker,
		model:     model,
		cfg:       cfg,
		publisher: publisher,
		logger:    logger,
		plans:     make(map[valueobjects.LearnerID]*LearnerPlan),
		coverage:  make(map[valueobjects.LearnerID]map[valueobjects.ConceptID][]valueobjects.ConceptID),
	}
}

// Plan builds (or rebuilds) the learner's curriculum: sample candidate
// linear extensions of the unmastered subgraph, score each with the energy
// model, install the lowest-energy one. Mastered concepts never re-enter the
// curriculum; they form the preserved prefix implicitly by being excluded
// from the planning subset.
func (p *CurriculumPlanner) Plan(ctx context.Context, learnerID valueobjects.LearnerID, now time.Time) (*LearnerPlan, error) {
	allIDs := p.conceptIDs()
	mastered := p.tracker.MasteredSet(learnerID, allIDs, now)

	var subset []valueobjects.ConceptID
	for _, id := range allIDs {
		if !mastered[id] {
			subset = append(subset, id)
		}
	}

	p.mu.Lock()
	prevGen := uint64(0)
	if prev, ok := p.plans[learnerID]; ok {
		prevGen = prev.Generation
	}
	nextGen := prevGen + 1
	p.mu.Unlock()

	if len(subset) == 0 {
		plan := &LearnerPlan{
			LearnerID:  learnerID,
			Generation: nextGen,
			States:     map[valueobjects.ConceptID]ConceptState{},
			PlannedAt:  now,
		}
		return p.install(ctx, plan, prevGen)
	}

	best, report, err := p.bestCandidate(learnerID, subset, mastered, now)
	if err != nil {
		return nil, err
	}

	plan := &LearnerPlan{
		LearnerID:  learnerID,
		Generation: nextGen,
		Curriculum: best,
		States:     p.deriveStates(learnerID, best, mastered, now),
		Report:     report,
		PlannedAt:  now,
	}
	return p.install(ctx, plan, prevGen)
}

// bestCandidate samples up to CandidateCount orderings and returns the one
// with the lowest total energy. Every sampled ordering is a linear extension
// by construction, so E_prereq is zero for all of them and the comparison is
// driven by the soft terms.
func (p *CurriculumPlanner) bestCandidate(
	learnerID valueobjects.LearnerID,
	subset []valueobjects.ConceptID,
	mastered map[valueobjects.ConceptID]bool,
	now time.Time,
) ([]valueobjects.ConceptID, *energy.Report, error) {
	coverage := p.coverageFor(learnerID)

	// The sampling seed is a pure function of the planning inputs, so
	// replanning over an unchanged graph, mastery set, and weight version
	// draws the same candidates and selects the same curriculum.
	rng := rand.New(rand.NewSource(p.candidateSeed(learnerID)))
	iter := p.graph.TopologicalOrdersOf(subset, rng)

	var (
		best       []valueobjects.ConceptID
		bestReport *energy.Report
	)

	score := func(candidate []valueobjects.ConceptID) {
		report := p.model.Validate(energy.CandidateState{
			LearnerID:           learnerID,
			Curriculum:          candidate,
			Mastered:            mastered,
			ExplanationCoverage: coverage,
			Now:                 now,
		}, p.cfg.EnergyThreshold)
		if !report.StructurallyValid() {
			return
		}
		if betterReport(report, bestReport) {
			best = candidate
			bestReport = report
		}
	}

	samples := p.cfg.CandidateCount
	if p.cfg.GreedyCandidate {
		samples--
		if greedy := p.greedyOrder(subset); greedy != nil {
			score(greedy)
		}
	}
	for i := 0; i < samples; i++ {
		candidate, ok := iter.Next()
		if !ok {
			break
		}
		score(candidate)
	}

	if bestReport == nil {
		blocked := make([]string, len(subset))
		for i, id := range subset {
			blocked[i] = id.String()
		}
		return nil, nil, pkgerrors.NewCurriculumInfeasibleError(
			"no valid ordering of the remaining concepts exists", blocked)
	}
	return best, bestReport, nil
}

// betterReport reports whether candidate beats the incumbent: lower total
// energy wins, ties break by lower mastery deficit, remaining ties keep the
// earlier-sampled candidate.
func betterReport(candidate, best *energy.Report) bool {
	if best == nil {
		return true
	}
	if candidate.Total != best.Total {
		return candidate.Total < best.Total
	}
	return candidate.EMastery < best.EMastery
}

// candidateSeed hashes the learner, graph version, weight version, and the
// configured base seed into the candidate sampling seed.
func (p *CurriculumPlanner) candidateSeed(learnerID valueobjects.LearnerID) int64 {
	h := fnv.New64a()
	h.Write([]byte(learnerID.String()))
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(p.graph.Version()))
	h.Write(buf[:])
	binary.LittleEndian.PutUint64(buf[:], p.model.WeightVersion())
	h.Write(buf[:])
	binary.LittleEndian.PutUint64(buf[:], uint64(p.cfg.PlannerSeed))
	h.Write(buf[:])
	return int64(h.Sum64())
}

// greedyOrder builds a linear extension by always picking, among the
// currently unblocked concepts, the one semantically nearest to the concept
// just placed. Ties and missing embeddings fall back to id order.
func (p *CurriculumPlanner) greedyOrder(subset []valueobjects.ConceptID) []valueobjects.ConceptID {
	include := make(map[valueobjects.ConceptID]bool, len(subset))
	for _, id := range subset {
		include[id] = true
	}

	placed := make(map[valueobjects.ConceptID]bool)
	order := make([]valueobjects.ConceptID, 0, len(subset))

	// Prerequisites outside the subset (mastered or not) do not block
	// placement; the deficit term penalizes unmastered ones at scoring time.
	unblocked := func(id valueobjects.ConceptID) bool {
		for _, prereq := range p.graph.Prerequisites(id) {
			if include[prereq] && !placed[prereq] {
				return false
			}
		}
		return true
	}

	for len(order) < len(subset) {
		var pick valueobjects.ConceptID
		picked := false
		bestDist := 0.0

		for _, id := range subset {
			if placed[id] || !unblocked(id) {
				continue
			}
			if !picked {
				pick, picked, bestDist = id, true, p.distanceToTail(order, id)
				continue
			}
			dist := p.distanceToTail(order, id)
			if dist < bestDist || (dist == bestDist && id.String() < pick.String()) {
				pick, bestDist = id, dist
			}
		}

		if !picked {
			return nil // subset contains a cycle among unplaced concepts
		}
		placed[pick] = true
		order = append(order, pick)
	}
	return order
}

// distanceToTail scores a candidate by cosine distance to the last placed
// concept; the first placement prefers shallow concepts.
func (p *CurriculumPlanner) distanceToTail(order []valueobjects.ConceptID, id valueobjects.ConceptID) float64 {
	if len(order) == 0 {
		return float64(p.graph.Depth(id))
	}
	tail, err := p.graph.Concept(order[len(order)-1])
	if err != nil {
		return 2.0
	}
	candidate, err := p.graph.Concept(id)
	if err != nil {
		return 2.0
	}
	dist, err := tail.Embedding().CosineDistance(candidate.Embedding())
	if err != nil {
		return 2.0
	}
	return dist
}

// install publishes the plan unless a newer generation landed while this one
// was being computed. Returns the winning plan either way.
func (p *CurriculumPlanner) install(ctx context.Context, plan *LearnerPlan, basedOn uint64) (*LearnerPlan, error) {
	p.mu.Lock()
	if current, ok := p.plans[plan.LearnerID]; ok && current.Generation > basedOn {
		p.mu.Unlock()
		p.logger.Debug("discarding superseded plan",
			zap.String("learner_id", plan.LearnerID.String()),
			zap.Uint64("computed_generation", plan.Generation),
			zap.Uint64("current_generation", current.Generation))
		return current, nil
	}
	p.plans[plan.LearnerID] = plan
	p.mu.Unlock()

	totalEnergy := 0.0
	if plan.Report != nil {
		totalEnergy = plan.Report.Total
	}
	p.publish(ctx, events.NewCurriculumReplanned(
		plan.LearnerID, plan.Generation, plan.Curriculum, totalEnergy, plan.PlannedAt))

	p.logger.Info("curriculum installed",
		zap.String("learner_id", plan.LearnerID.String()),
		zap.Uint64("generation", plan.Generation),
		zap.Int("concepts", len(plan.Curriculum)),
		zap.Float64("total_energy", totalEnergy))
	return plan, nil
}

// deriveStates assigns the initial lifecycle state for each curriculum
// concept, carrying over in-flight states from the previous plan.
func (p *CurriculumPlanner) deriveStates(
	learnerID valueobjects.LearnerID,
	curriculum []valueobjects.ConceptID,
	mastered map[valueobjects.ConceptID]bool,
	now time.Time,
) map[valueobjects.ConceptID]ConceptState {
	p.mu.Lock()
	var prevStates map[valueobjects.ConceptID]ConceptState
	if prev, ok := p.plans[learnerID]; ok {
		prevStates = prev.States
	}
	p.mu.Unlock()

	states := make(map[valueobjects.ConceptID]ConceptState, len(curriculum))
	for _, id := range curriculum {
		if prev, ok := prevStates[id]; ok && prev != StateLocked && prev != StateReady {
			states[id] = prev
			continue
		}
		gate, _ := p.model.MasteryGate(learnerID, id, now)
		if gate <= p.cfg.GateThreshold {
			states[id] = StateReady
		} else {
			states[id] = StateLocked
		}
	}
	return states
}

// NextAction returns what the learner should do now. The first unmastered
// curriculum concept is the target; if its prerequisite gate fails the
// action routes to the weak prerequisites instead, deepest first.
func (p *CurriculumPlanner) NextAction(ctx context.Context, learnerID valueobjects.LearnerID, now time.Time) (*NextAction, error) {
	plan, err := p.planFor(ctx, learnerID, now)
	if err != nil {
		return nil, err
	}

	for _, id := range plan.Curriculum {
		state := plan.States[id]
		if state == StateMastered {
			continue
		}
		if p.tracker.IsMastered(learnerID, id, now) {
			p.setState(ctx, plan, id, StateMastered, now)
			continue
		}

		gate, lowPrereqs := p.model.MasteryGate(learnerID, id, now)
		if gate > p.cfg.GateThreshold {
			if state.IsActionable() {
				p.setState(ctx, plan, id, StateRemediating, now)
			}
			return &NextAction{
				Type:       ActionReinforce,
				ConceptID:  id,
				Reinforce:  lowPrereqs,
				GateEnergy: gate,
				Generation: plan.Generation,
			}, nil
		}

		// A concept the learner already failed is re-served as remediation;
		// anything else is a plain advance.
		actionType := ActionAdvance
		if state == StateWeak || state == StateRemediating {
			actionType = ActionRemediate
		}

		switch state {
		case StateLocked:
			p.setState(ctx, plan, id, StateReady, now)
			p.setState(ctx, plan, id, StateInProgress, now)
		case StateReady, StateWeak, StateRemediating:
			p.setState(ctx, plan, id, StateInProgress, now)
		}
		return &NextAction{
			Type:       actionType,
			ConceptID:  id,
			GateEnergy: gate,
			Generation: plan.Generation,
		}, nil
	}

	return &NextAction{Type: ActionComplete, Generation: plan.Generation}, nil
}

// RecordOutcome moves a concept through Assessed into Mastered or Weak and
// replans when mastering it may have changed the frontier.
func (p *CurriculumPlanner) RecordOutcome(
	ctx context.Context,
	learnerID valueobjects.LearnerID,
	conceptID valueobjects.ConceptID,
	result *mastery.AttemptResult,
	now time.Time,
) error {
	plan, err := p.planFor(ctx, learnerID, now)
	if err != nil {
		return err
	}

	state, inPlan := plan.States[conceptID]
	if !inPlan {
		// Assessments for concepts outside the plan still update mastery;
		// nothing to transition.
		return nil
	}

	if state == StateReady || state == StateLocked || state == StateWeak || state == StateRemediating {
		// Attempt arrived without a served study action; normalize the path
		p.setState(ctx, plan, conceptID, StateInProgress, now)
	}
	p.setState(ctx, plan, conceptID, StateAssessed, now)

	if result.Mastered {
		p.setState(ctx, plan, conceptID, StateMastered, now)
		// Mastering a concept can unlock dependents and shrink the plan
		_, err := p.Plan(ctx, learnerID, now)
		return err
	}

	p.setState(ctx, plan, conceptID, StateWeak, now)
	// A weak outcome re-solves the remaining suffix; the mastered prefix and
	// the weak marking itself survive the replan.
	_, err = p.Plan(ctx, learnerID, now)
	return err
}

// ValidateCurriculum scores an externally supplied ordering against the
// learner's mastery and the current weights.
func (p *CurriculumPlanner) ValidateCurriculum(
	ctx context.Context,
	learnerID valueobjects.LearnerID,
	curriculum []valueobjects.ConceptID,
	coverage map[valueobjects.ConceptID][]valueobjects.ConceptID,
	now time.Time,
) (*energy.Report, error) {
	for _, id := range curriculum {
		if !p.graph.HasConcept(id) {
			return nil, pkgerrors.NewNotFoundError("concept " + id.String())
		}
	}
	if coverage == nil {
		coverage = p.coverageFor(learnerID)
	}

	allIDs := p.conceptIDs()
	report := p.model.Validate(energy.CandidateState{
		LearnerID:           learnerID,
		Curriculum:          curriculum,
		Mastered:            p.tracker.MasteredSet(learnerID, allIDs, now),
		ExplanationCoverage: coverage,
		Now:                 now,
	}, p.cfg.EnergyThreshold)
	return report, nil
}

// RecordCoverage merges prerequisite concepts the learner's explanation
// demonstrably covered into the learner's coverage signal. The explanation
// energy term consumes it on later plans and validations.
func (p *CurriculumPlanner) RecordCoverage(
	learnerID valueobjects.LearnerID,
	conceptID valueobjects.ConceptID,
	covered []valueobjects.ConceptID,
) {
	if len(covered) == 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	byConcept, ok := p.coverage[learnerID]
	if !ok {
		byConcept = make(map[valueobjects.ConceptID][]valueobjects.ConceptID)
		p.coverage[learnerID] = byConcept
	}
	seen := make(map[valueobjects.ConceptID]bool, len(byConcept[conceptID]))
	for _, id := range byConcept[conceptID] {
		seen[id] = true
	}
	for _, id := range covered {
		if !seen[id] {
			byConcept[conceptID] = append(byConcept[conceptID], id)
			seen[id] = true
		}
	}
}

// coverageFor copies the learner's accumulated coverage, nil when nothing
// has been recorded.
func (p *CurriculumPlanner) coverageFor(learnerID valueobjects.LearnerID) map[valueobjects.ConceptID][]valueobjects.ConceptID {
	p.mu.Lock()
	defer p.mu.Unlock()

	byConcept, ok := p.coverage[learnerID]
	if !ok {
		return nil
	}
	out := make(map[valueobjects.ConceptID][]valueobjects.ConceptID, len(byConcept))
	for conceptID, ids := range byConcept {
		out[conceptID] = append([]valueobjects.ConceptID(nil), ids...)
	}
	return out
}

// CurrentPlan returns the learner's installed plan, planning one on demand
func (p *CurriculumPlanner) CurrentPlan(ctx context.Context, learnerID valueobjects.LearnerID, now time.Time) (*LearnerPlan, error) {
	return p.planFor(ctx, learnerID, now)
}

// InvalidateAll drops every installed plan, forcing replans after the graph
// changes shape.
func (p *CurriculumPlanner) InvalidateAll() {
	p.mu.Lock()
	for learnerID, plan := range p.plans {
		p.plans[learnerID] = &LearnerPlan{
			LearnerID:  learnerID,
			Generation: plan.Generation, // keep the counter so stale replans still lose
			States:     plan.States,
			PlannedAt:  plan.PlannedAt,
		}
	}
	p.mu.Unlock()
}

func (p *CurriculumPlanner) planFor(ctx context.Context, learnerID valueobjects.LearnerID, now time.Time) (*LearnerPlan, error) {
	p.mu.Lock()
	plan, ok := p.plans[learnerID]
	stale := ok && plan.Curriculum == nil && len(plan.States) > 0
	p.mu.Unlock()

	if ok && !stale {
		return plan, nil
	}
	return p.Plan(ctx, learnerID, now)
}

func (p *CurriculumPlanner) setState(ctx context.Context, plan *LearnerPlan, id valueobjects.ConceptID, to ConceptState, now time.Time) {
	p.mu.Lock()
	from := plan.States[id]
	next, err := Transition(from, to)
	if err == nil && next != from {
		plan.States[id] = next
	}
	p.mu.Unlock()

	if err != nil {
		p.logger.Warn("rejected state transition",
			zap.String("learner_id", plan.LearnerID.String()),
			zap.String("concept_id", id.String()),
			zap.String("from", string(from)),
			zap.String("to", string(to)))
		return
	}
	if next != from {
		p.publish(ctx, events.NewConceptStateChanged(
			plan.LearnerID, id, string(from), string(next), now))
	}
}

func (p *CurriculumPlanner) conceptIDs() []valueobjects.ConceptID {
	concepts := p.graph.Concepts()
	ids := make([]valueobjects.ConceptID, 0, len(concepts))
	for _, c := range concepts {
		if !c.IsDeprecated() {
			ids = append(ids, c.ID())
		}
	}
	return ids
}

func (p *CurriculumPlanner) publish(ctx context.Context, event events.DomainEvent) {
	if p.publisher == nil {
		return
	}
	if err := p.publisher.Publish(ctx, event); err != nil {
		p.logger.Warn("event publish failed",
			zap.String("event_type", event.GetEventType()),
			zap.Error(err))
	}
}
