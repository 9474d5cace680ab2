package aggregates

import (
	"math/rand"
	"sort"
	"sync"
	"time"

	"curricula/domain/core/entities"
	"curricula/domain/core/valueobjects"
	"curricula/domain/events"
	pkgerrors "curricula/pkg/errors"
)

// EdgeKind defines the type of relationship between concepts
type EdgeKind string

const (
	// EdgeKindPrerequisite is directed: From must be mastered before To.
	// The induced subgraph must stay acyclic; this is the central invariant.
	EdgeKindPrerequisite EdgeKind = "prerequisite"
	// EdgeKindRelated is symmetric and stored once under a canonical key.
	EdgeKindRelated EdgeKind = "related"
	// EdgeKindExtends is directed but excluded from the acyclicity check.
	EdgeKindExtends EdgeKind = "extends"
)

// Edge represents a typed connection between two concepts
type Edge struct {
	From valueobjects.ConceptID `json:"from"`
	To   valueobjects.ConceptID `json:"to"`
	Kind EdgeKind               `json:"kind"`
}

// Delta is an atomic batch of graph mutations from an ingestion collaborator.
// Either every node and edge in the delta commits or none do.
type Delta struct {
	Concepts []*entities.Concept
	Edges    []Edge
}

// ApplyResult describes what an accepted delta changed
type ApplyResult struct {
	AddedConcepts   []valueobjects.ConceptID
	RevisedConcepts []valueobjects.ConceptID
	AddedEdges      []Edge
	Frontier        []valueobjects.ConceptID // concepts with no prerequisites after the merge
}

// ConceptGraph is the aggregate root for the prerequisite structure.
// Mutations are serialized through an internal writer lock; readers always
// observe the last fully committed state, never a partial batch.
type ConceptGraph struct {
	mu sync.RWMutex

	concepts map[valueobjects.ConceptID]*entities.Concept

	// Prerequisite adjacency, both directions. prereqOut[a] lists concepts
	// that require a; prereqIn[b] lists the prerequisites of b.
	prereqOut map[valueobjects.ConceptID][]valueobjects.ConceptID
	prereqIn  map[valueobjects.ConceptID][]valueobjects.ConceptID

	related map[string]Edge // canonical undirected key
	extends map[string]Edge

	version   int
	updatedAt time.Time
	events    []events.DomainEvent
}

// NewConceptGraph creates an empty graph aggregate
func NewConceptGraph() *ConceptGraph {
	return &ConceptGraph{
		concepts:  make(map[valueobjects.ConceptID]*entities.Concept),
		prereqOut: make(map[valueobjects.ConceptID][]valueobjects.ConceptID),
		prereqIn:  make(map[valueobjects.ConceptID][]valueobjects.ConceptID),
		related:   make(map[string]Edge),
		extends:   make(map[string]Edge),
		version:   1,
		updatedAt: time.Now(),
	}
}

// Version returns the commit count, incremented per accepted delta
func (g *ConceptGraph) Version() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.version
}

// UpdatedAt returns the time of the last accepted delta
func (g *ConceptGraph) UpdatedAt() time.Time {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.updatedAt
}

// ConceptCount returns the number of concepts in the graph
func (g *ConceptGraph) ConceptCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.concepts)
}

// HasConcept checks if a concept exists in the graph
func (g *ConceptGraph) HasConcept(id valueobjects.ConceptID) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, exists := g.concepts[id]
	return exists
}

// Concept retrieves a concept by ID
func (g *ConceptGraph) Concept(id valueobjects.ConceptID) (*entities.Concept, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	concept, exists := g.concepts[id]
	if !exists {
		return nil, pkgerrors.NewNotFoundError("concept " + id.String())
	}
	return concept, nil
}

// Concepts returns all concepts, sorted by ID for deterministic iteration
func (g *ConceptGraph) Concepts() []*entities.Concept {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.conceptsLocked()
}

func (g *ConceptGraph) conceptsLocked() []*entities.Concept {
	concepts := make([]*entities.Concept, 0, len(g.concepts))
	for _, c := range g.concepts {
		concepts = append(concepts, c)
	}
	sort.Slice(concepts, func(i, j int) bool {
		return concepts[i].ID().String() < concepts[j].ID().String()
	})
	return concepts
}

// Edges returns every edge across all three subgraphs
func (g *ConceptGraph) Edges() []Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()

	edges := make([]Edge, 0)
	for from, targets := range g.prereqOut {
		for _, to := range targets {
			edges = append(edges, Edge{From: from, To: to, Kind: EdgeKindPrerequisite})
		}
	}
	for _, e := range g.related {
		edges = append(edges, e)
	}
	for _, e := range g.extends {
		edges = append(edges, e)
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].From.String() != edges[j].From.String() {
			return edges[i].From.String() < edges[j].From.String()
		}
		if edges[i].To.String() != edges[j].To.String() {
			return edges[i].To.String() < edges[j].To.String()
		}
		return edges[i].Kind < edges[j].Kind
	})
	return edges
}

// Prerequisites returns the direct prerequisites of a concept
func (g *ConceptGraph) Prerequisites(id valueobjects.ConceptID) []valueobjects.ConceptID {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return copyIDs(g.prereqIn[id])
}

// Dependents returns the concepts that directly require the given concept
func (g *ConceptGraph) Dependents(id valueobjects.ConceptID) []valueobjects.ConceptID {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return copyIDs(g.prereqOut[id])
}

// Related returns the concepts symmetrically related to the given concept
func (g *ConceptGraph) Related(id valueobjects.ConceptID) []valueobjects.ConceptID {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var out []valueobjects.ConceptID
	for _, e := range g.related {
		if e.From.Equals(id) {
			out = append(out, e.To)
		} else if e.To.Equals(id) {
			out = append(out, e.From)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// ApplyDelta merges a batch of concepts and edges atomically. New concepts
// are added; concepts with an existing ID are revised in place (difficulty,
// time, embedding, source refs; the ID itself is immutable). Before any
// prerequisite edge commits, the whole staged adjacency is checked for
// cycles; the first edge that would close one rejects the entire batch with
// CycleViolation naming the edge and the cycle path.
func (g *ConceptGraph) ApplyDelta(delta Delta) (*ApplyResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if len(g.concepts)+len(delta.Concepts) > maxConcepts {
		return nil, pkgerrors.NewValidationError("concept limit exceeded")
	}

	// Stage 1: resolve which concepts are additions and which are revisions.
	// Nothing is written to the aggregate until the whole batch validates.
	incoming := make(map[valueobjects.ConceptID]*entities.Concept, len(delta.Concepts))
	var added, revised []valueobjects.ConceptID
	for _, c := range delta.Concepts {
		if c == nil {
			return nil, pkgerrors.NewValidationError("delta contains nil concept")
		}
		if _, dup := incoming[c.ID()]; dup {
			return nil, pkgerrors.NewValidationError("delta contains duplicate concept " + c.ID().String())
		}
		incoming[c.ID()] = c
		if existing, exists := g.concepts[c.ID()]; exists {
			if existing.IsDeprecated() {
				return nil, pkgerrors.NewValidationError("cannot revise deprecated concept " + c.ID().String())
			}
			revised = append(revised, c.ID())
		} else {
			added = append(added, c.ID())
		}
	}

	known := func(id valueobjects.ConceptID) bool {
		if _, ok := g.concepts[id]; ok {
			return true
		}
		_, ok := incoming[id]
		return ok
	}

	// Stage 2: validate edges against a staged copy of the prerequisite
	// adjacency so a rejected batch leaves the committed graph untouched.
	staged := make(map[valueobjects.ConceptID][]valueobjects.ConceptID, len(g.prereqOut))
	for k, v := range g.prereqOut {
		staged[k] = v
	}

	var newPrereq, newRelated, newExtends []Edge
	for _, e := range delta.Edges {
		if e.From.IsZero() || e.To.IsZero() {
			return nil, pkgerrors.NewValidationError("edge endpoints cannot be empty")
		}
		if e.From.Equals(e.To) {
			return nil, pkgerrors.NewValidationError("edge cannot connect a concept to itself").
				WithDetail("concept", e.From.String())
		}
		if !known(e.From) || !known(e.To) {
			return nil, pkgerrors.NewValidationError("edge references unknown concept").
				WithDetail("from", e.From.String()).
				WithDetail("to", e.To.String())
		}

		switch e.Kind {
		case EdgeKindPrerequisite:
			if containsID(staged[e.From], e.To) {
				continue // duplicate edge, no-op
			}
			if path := reachPath(staged, e.To, e.From); path != nil {
				cycle := make([]string, 0, len(path)+1)
				for _, id := range path {
					cycle = append(cycle, id.String())
				}
				cycle = append(cycle, e.To.String())
				return nil, pkgerrors.NewCycleViolationError(e.From.String(), e.To.String(), cycle)
			}
			staged[e.From] = appendCopy(staged[e.From], e.To)
			newPrereq = append(newPrereq, e)
		case EdgeKindRelated:
			key := relatedKey(e.From, e.To)
			if _, exists := g.related[key]; !exists {
				newRelated = append(newRelated, canonicalRelated(e))
			}
		case EdgeKindExtends:
			key := e.From.String() + "->" + e.To.String()
			if _, exists := g.extends[key]; !exists {
				newExtends = append(newExtends, e)
			}
		default:
			return nil, pkgerrors.NewValidationError("unknown edge kind").
				WithDetail("kind", string(e.Kind))
		}
	}

	// Stage 3: commit. Every failure mode was checked above, so no write in
	// this stage can leave the batch half applied.
	for id, c := range incoming {
		existing, exists := g.concepts[id]
		if !exists {
			g.concepts[id] = c
			continue
		}
		_ = existing.Revise(c.Difficulty(), c.EstimatedMinutes())
		if !c.Embedding().IsZero() {
			existing.SetEmbedding(c.Embedding())
		}
		for _, ref := range c.SourceRefs() {
			_ = existing.AddSourceRef(ref)
		}
		if c.IsDeprecated() {
			existing.Deprecate()
		}
	}
	for _, e := range newPrereq {
		g.prereqOut[e.From] = append(g.prereqOut[e.From], e.To)
		g.prereqIn[e.To] = append(g.prereqIn[e.To], e.From)
	}
	for _, e := range newRelated {
		g.related[relatedKey(e.From, e.To)] = e
	}
	for _, e := range newExtends {
		g.extends[e.From.String()+"->"+e.To.String()] = e
	}

	g.version++
	g.updatedAt = time.Now()

	addedEdges := make([]Edge, 0, len(newPrereq)+len(newRelated)+len(newExtends))
	addedEdges = append(addedEdges, newPrereq...)
	addedEdges = append(addedEdges, newRelated...)
	addedEdges = append(addedEdges, newExtends...)

	result := &ApplyResult{
		AddedConcepts:   added,
		RevisedConcepts: revised,
		AddedEdges:      addedEdges,
		Frontier:        g.readyLocked(nil),
	}

	g.events = append(g.events, events.NewGraphUpdated(
		g.version, added, revised, len(addedEdges), result.Frontier, g.updatedAt))

	return result, nil
}

// RestoreSnapshot replaces the aggregate's contents with snapshot state.
// Edges are installed without re-running cycle validation: a snapshot was
// produced by a graph that already enforced it. Only used during recovery
// before the engine serves traffic.
func (g *ConceptGraph) RestoreSnapshot(concepts []*entities.Concept, edges []Edge, version int, updatedAt time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.concepts = make(map[valueobjects.ConceptID]*entities.Concept, len(concepts))
	for _, c := range concepts {
		g.concepts[c.ID()] = c
	}

	g.prereqOut = make(map[valueobjects.ConceptID][]valueobjects.ConceptID)
	g.prereqIn = make(map[valueobjects.ConceptID][]valueobjects.ConceptID)
	g.related = make(map[string]Edge)
	g.extends = make(map[string]Edge)
	for _, e := range edges {
		switch e.Kind {
		case EdgeKindPrerequisite:
			if !containsID(g.prereqOut[e.From], e.To) {
				g.prereqOut[e.From] = append(g.prereqOut[e.From], e.To)
				g.prereqIn[e.To] = append(g.prereqIn[e.To], e.From)
			}
		case EdgeKindRelated:
			g.related[relatedKey(e.From, e.To)] = canonicalRelated(e)
		case EdgeKindExtends:
			g.extends[e.From.String()+"->"+e.To.String()] = e
		}
	}

	g.version = version
	g.updatedAt = updatedAt
	g.events = nil
}

// ReadyConcepts returns the frontier: every non-deprecated concept whose
// prerequisites are all in the mastered set and which is not itself mastered.
func (g *ConceptGraph) ReadyConcepts(mastered map[valueobjects.ConceptID]bool) []valueobjects.ConceptID {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.readyLocked(mastered)
}

func (g *ConceptGraph) readyLocked(mastered map[valueobjects.ConceptID]bool) []valueobjects.ConceptID {
	var ready []valueobjects.ConceptID
	for id, c := range g.concepts {
		if c.IsDeprecated() || mastered[id] {
			continue
		}
		ok := true
		for _, prereq := range g.prereqIn[id] {
			if !mastered[prereq] {
				ok = false
				break
			}
		}
		if ok {
			ready = append(ready, id)
		}
	}
	sort.Slice(ready, func(i, j int) bool { return ready[i].String() < ready[j].String() })
	return ready
}

// IsLinearExtension checks that every prerequisite appears strictly before
// each of its dependents in the ordering and that the ordering has no
// duplicates. It returns the first offending (prerequisite, dependent) pair.
func (g *ConceptGraph) IsLinearExtension(order []valueobjects.ConceptID) (bool, *Edge) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	pos := make(map[valueobjects.ConceptID]int, len(order))
	for i, id := range order {
		if _, dup := pos[id]; dup {
			return false, &Edge{From: id, To: id, Kind: EdgeKindPrerequisite}
		}
		pos[id] = i
	}

	for _, id := range order {
		for _, prereq := range g.prereqIn[id] {
			p, inOrder := pos[prereq]
			if !inOrder || p >= pos[id] {
				return false, &Edge{From: prereq, To: id, Kind: EdgeKindPrerequisite}
			}
		}
	}
	return true, nil
}

// Depth returns the longest prerequisite-chain length from any root to the
// concept. Roots have depth 0. Used to order reinforcement directives so the
// prerequisites nearest the blocked concept come first.
func (g *ConceptGraph) Depth(id valueobjects.ConceptID) int {
	g.mu.RLock()
	defer g.mu.RUnlock()

	memo := make(map[valueobjects.ConceptID]int)
	var depth func(valueobjects.ConceptID) int
	depth = func(c valueobjects.ConceptID) int {
		if d, ok := memo[c]; ok {
			return d
		}
		memo[c] = 0 // breaks on malformed input; committed graphs are acyclic
		max := 0
		for _, p := range g.prereqIn[c] {
			if d := depth(p) + 1; d > max {
				max = d
			}
		}
		memo[c] = max
		return max
	}
	return depth(id)
}

// OrderIterator lazily yields linear extensions of the prerequisite DAG.
// Each Next call draws a fresh randomized topological sort; the sequence is
// never materialized because the number of linear extensions is
// combinatorial in the graph size.
type OrderIterator struct {
	graph *ConceptGraph
	rng   *rand.Rand
	only  map[valueobjects.ConceptID]bool
}

// TopologicalOrders returns an iterator over linear extensions of the whole
// graph. A nil rng seeds from the current time.
func (g *ConceptGraph) TopologicalOrders(rng *rand.Rand) *OrderIterator {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &OrderIterator{graph: g, rng: rng}
}

// TopologicalOrdersOf restricts the iterator to a subset of concepts.
// Prerequisite edges between members of the subset still constrain the
// order; edges to concepts outside the subset are ignored, which is what
// suffix re-planning needs (the mastered prefix is outside the subset).
func (g *ConceptGraph) TopologicalOrdersOf(subset []valueobjects.ConceptID, rng *rand.Rand) *OrderIterator {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	only := make(map[valueobjects.ConceptID]bool, len(subset))
	for _, id := range subset {
		only[id] = true
	}
	return &OrderIterator{graph: g, rng: rng, only: only}
}

// Next produces one linear extension via a randomized Kahn traversal.
// It returns false only if the restricted subgraph is cyclic, which cannot
// happen for a committed graph, or if the subset is empty.
func (it *OrderIterator) Next() ([]valueobjects.ConceptID, bool) {
	g := it.graph
	g.mu.RLock()
	defer g.mu.RUnlock()

	include := func(id valueobjects.ConceptID) bool {
		if c, ok := g.concepts[id]; !ok || c.IsDeprecated() {
			return false
		}
		return it.only == nil || it.only[id]
	}

	indegree := make(map[valueobjects.ConceptID]int)
	for id := range g.concepts {
		if !include(id) {
			continue
		}
		n := 0
		for _, p := range g.prereqIn[id] {
			if include(p) {
				n++
			}
		}
		indegree[id] = n
	}

	if len(indegree) == 0 {
		return nil, false
	}

	var ready []valueobjects.ConceptID
	for id, n := range indegree {
		if n == 0 {
			ready = append(ready, id)
		}
	}
	sort.Slice(ready, func(i, j int) bool { return ready[i].String() < ready[j].String() })

	order := make([]valueobjects.ConceptID, 0, len(indegree))
	for len(ready) > 0 {
		// Random tie-break among currently ready concepts
		i := it.rng.Intn(len(ready))
		next := ready[i]
		ready = append(ready[:i], ready[i+1:]...)
		order = append(order, next)

		for _, dep := range g.prereqOut[next] {
			if !include(dep) {
				continue
			}
			indegree[dep]--
			if indegree[dep] == 0 {
				ready = insertSorted(ready, dep)
			}
		}
	}

	if len(order) != len(indegree) {
		return nil, false
	}
	return order, true
}

// GetUncommittedEvents returns all uncommitted domain events
func (g *ConceptGraph) GetUncommittedEvents() []events.DomainEvent {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]events.DomainEvent, len(g.events))
	copy(out, g.events)
	return out
}

// MarkEventsAsCommitted clears all uncommitted events
func (g *ConceptGraph) MarkEventsAsCommitted() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.events = nil
}

// Helpers

const maxConcepts = 100000

// reachPath returns a path from start to goal over the staged prerequisite
// adjacency, or nil if goal is unreachable. Iterative DFS with an explicit
// stack so deep chains cannot overflow.
func reachPath(adj map[valueobjects.ConceptID][]valueobjects.ConceptID, start, goal valueobjects.ConceptID) []valueobjects.ConceptID {
	if start.Equals(goal) {
		return []valueobjects.ConceptID{start}
	}

	parent := make(map[valueobjects.ConceptID]valueobjects.ConceptID)
	visited := map[valueobjects.ConceptID]bool{start: true}
	stack := []valueobjects.ConceptID{start}

	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		for _, next := range adj[current] {
			if visited[next] {
				continue
			}
			visited[next] = true
			parent[next] = current

			if next.Equals(goal) {
				path := []valueobjects.ConceptID{goal}
				for n := goal; !n.Equals(start); {
					n = parent[n]
					path = append([]valueobjects.ConceptID{n}, path...)
				}
				return path
			}
			stack = append(stack, next)
		}
	}
	return nil
}

func relatedKey(a, b valueobjects.ConceptID) string {
	if a.String() < b.String() {
		return a.String() + "<->" + b.String()
	}
	return b.String() + "<->" + a.String()
}

func canonicalRelated(e Edge) Edge {
	if e.From.String() <= e.To.String() {
		return e
	}
	return Edge{From: e.To, To: e.From, Kind: EdgeKindRelated}
}

func containsID(ids []valueobjects.ConceptID, id valueobjects.ConceptID) bool {
	for _, x := range ids {
		if x.Equals(id) {
			return true
		}
	}
	return false
}

func copyIDs(ids []valueobjects.ConceptID) []valueobjects.ConceptID {
	out := make([]valueobjects.ConceptID, len(ids))
	copy(out, ids)
	return out
}

func appendCopy(ids []valueobjects.ConceptID, id valueobjects.ConceptID) []valueobjects.ConceptID {
	out := make([]valueobjects.ConceptID, 0, len(ids)+1)
	out = append(out, ids...)
	return append(out, id)
}

func insertSorted(ids []valueobjects.ConceptID, id valueobjects.ConceptID) []valueobjects.ConceptID {
	i := sort.Search(len(ids), func(i int) bool { return ids[i].String() >= id.String() })
	ids = append(ids, valueobjects.ConceptID{})
	copy(ids[i+1:], ids[i:])
	ids[i] = id
	return ids
}
