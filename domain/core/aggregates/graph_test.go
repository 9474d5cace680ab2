package aggregates

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"curricula/domain/core/entities"
	"curricula/domain/core/valueobjects"
	pkgerrors "curricula/pkg/errors"
)

func cid(t *testing.T, s string) valueobjects.ConceptID {
	t.Helper()
	id, err := valueobjects.NewConceptIDFromString(s)
	require.NoError(t, err)
	return id
}

func concept(t *testing.T, id string) *entities.Concept {
	t.Helper()
	c, err := entities.NewConcept(cid(t, id), "concept "+id, 3, 20)
	require.NoError(t, err)
	return c
}

func prereq(t *testing.T, from, to string) Edge {
	t.Helper()
	return Edge{From: cid(t, from), To: cid(t, to), Kind: EdgeKindPrerequisite}
}

func seedChain(t *testing.T, g *ConceptGraph, ids ...string) {
	t.Helper()
	delta := Delta{}
	for _, id := range ids {
		delta.Concepts = append(delta.Concepts, concept(t, id))
	}
	for i := 1; i < len(ids); i++ {
		delta.Edges = append(delta.Edges, prereq(t, ids[i-1], ids[i]))
	}
	_, err := g.ApplyDelta(delta)
	require.NoError(t, err)
}

func TestApplyDeltaAddsConceptsAndEdges(t *testing.T) {
	g := NewConceptGraph()

	result, err := g.ApplyDelta(Delta{
		Concepts: []*entities.Concept{concept(t, "a"), concept(t, "b"), concept(t, "c")},
		Edges:    []Edge{prereq(t, "a", "b"), prereq(t, "b", "c")},
	})
	require.NoError(t, err)

	assert.Len(t, result.AddedConcepts, 3)
	assert.Empty(t, result.RevisedConcepts)
	assert.Len(t, result.AddedEdges, 2)
	assert.Equal(t, 2, g.Version())
	assert.Equal(t, []valueobjects.ConceptID{cid(t, "a")}, result.Frontier)

	assert.Equal(t, []valueobjects.ConceptID{cid(t, "a")}, g.Prerequisites(cid(t, "b")))
	assert.Equal(t, []valueobjects.ConceptID{cid(t, "c")}, g.Dependents(cid(t, "b")))
}

func TestApplyDeltaRejectsCycleAtomically(t *testing.T) {
	g := NewConceptGraph()
	seedChain(t, g, "a", "b")
	versionBefore := g.Version()

	// The new concept rides in the same batch as the cycle-closing edge;
	// rejection must discard both.
	_, err := g.ApplyDelta(Delta{
		Concepts: []*entities.Concept{concept(t, "c")},
		Edges:    []Edge{prereq(t, "b", "c"), prereq(t, "c", "a")},
	})
	require.Error(t, err)

	appErr := pkgerrors.GetAppError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, pkgerrors.ErrorTypeCycleViolation, appErr.Type)
	assert.Equal(t, []string{"a", "b", "c", "a"}, pkgerrors.CyclePath(err))

	assert.Equal(t, versionBefore, g.Version())
	assert.False(t, g.HasConcept(cid(t, "c")))
	assert.Empty(t, g.Dependents(cid(t, "b")))
}

func TestRandomEdgeInsertionsPreserveAcyclicity(t *testing.T) {
	g := NewConceptGraph()

	const n = 12
	names := make([]string, n)
	delta := Delta{}
	for i := range names {
		names[i] = fmt.Sprintf("c%02d", i)
		delta.Concepts = append(delta.Concepts, concept(t, names[i]))
	}
	_, err := g.ApplyDelta(delta)
	require.NoError(t, err)

	// An independent transitive closure over the accepted edges predicts
	// whether each random insertion closes a cycle.
	reach := make(map[string]map[string]bool)
	reaches := func(from, to string) bool { return reach[from][to] }
	admit := func(from, to string) {
		for _, a := range names {
			for _, b := range names {
				if (a == from || reaches(a, from)) && (b == to || reaches(to, b)) {
					if reach[a] == nil {
						reach[a] = make(map[string]bool)
					}
					reach[a][b] = true
				}
			}
		}
	}

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 150; i++ {
		from := names[rng.Intn(n)]
		to := names[rng.Intn(n)]

		_, err := g.ApplyDelta(Delta{Edges: []Edge{prereq(t, from, to)}})
		if from == to {
			require.Error(t, err, "self-loop %s->%s must be rejected", from, to)
			continue
		}
		if reaches(to, from) {
			require.Error(t, err, "edge %s->%s closes a cycle", from, to)
			appErr := pkgerrors.GetAppError(err)
			require.NotNil(t, appErr)
			assert.Equal(t, pkgerrors.ErrorTypeCycleViolation, appErr.Type)
			continue
		}
		require.NoError(t, err, "acyclic edge %s->%s must be accepted", from, to)
		admit(from, to)

		order, ok := g.TopologicalOrders(rng).Next()
		require.True(t, ok)
		require.Len(t, order, n)
		valid, _ := g.IsLinearExtension(order)
		assert.True(t, valid)
	}
}

func TestApplyDeltaRejectsSelfLoop(t *testing.T) {
	g := NewConceptGraph()

	_, err := g.ApplyDelta(Delta{
		Concepts: []*entities.Concept{concept(t, "a")},
		Edges:    []Edge{prereq(t, "a", "a")},
	})
	require.Error(t, err)
	assert.False(t, g.HasConcept(cid(t, "a")))
}

func TestApplyDeltaRejectsUnknownEndpoint(t *testing.T) {
	g := NewConceptGraph()
	seedChain(t, g, "a")

	_, err := g.ApplyDelta(Delta{Edges: []Edge{prereq(t, "a", "ghost")}})
	require.Error(t, err)
	appErr := pkgerrors.GetAppError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, pkgerrors.ErrorTypeValidation, appErr.Type)
}

func TestApplyDeltaDuplicateEdgeIsNoOp(t *testing.T) {
	g := NewConceptGraph()
	seedChain(t, g, "a", "b")

	result, err := g.ApplyDelta(Delta{Edges: []Edge{prereq(t, "a", "b")}})
	require.NoError(t, err)
	assert.Empty(t, result.AddedEdges)
	assert.Equal(t, []valueobjects.ConceptID{cid(t, "a")}, g.Prerequisites(cid(t, "b")))
}

func TestApplyDeltaRevisesExistingConcept(t *testing.T) {
	g := NewConceptGraph()
	seedChain(t, g, "a")

	update, err := entities.NewConcept(cid(t, "a"), "concept a", 8, 45)
	require.NoError(t, err)

	result, err := g.ApplyDelta(Delta{Concepts: []*entities.Concept{update}})
	require.NoError(t, err)
	assert.Equal(t, []valueobjects.ConceptID{cid(t, "a")}, result.RevisedConcepts)

	stored, err := g.Concept(cid(t, "a"))
	require.NoError(t, err)
	assert.Equal(t, 8.0, stored.Difficulty())
	assert.Equal(t, 45, stored.EstimatedMinutes())
}

func TestApplyDeltaDeprecationPropagatesAndBlocksRevision(t *testing.T) {
	g := NewConceptGraph()
	seedChain(t, g, "a")

	deprecating, err := entities.NewConcept(cid(t, "a"), "concept a", 3, 20)
	require.NoError(t, err)
	deprecating.Deprecate()

	_, err = g.ApplyDelta(Delta{Concepts: []*entities.Concept{deprecating}})
	require.NoError(t, err)

	stored, err := g.Concept(cid(t, "a"))
	require.NoError(t, err)
	assert.True(t, stored.IsDeprecated())

	// Once retired, later revisions are rejected wholesale.
	again, err := entities.NewConcept(cid(t, "a"), "concept a", 5, 10)
	require.NoError(t, err)
	_, err = g.ApplyDelta(Delta{Concepts: []*entities.Concept{again}})
	require.Error(t, err)
}

func TestRelatedEdgesAreSymmetric(t *testing.T) {
	g := NewConceptGraph()

	_, err := g.ApplyDelta(Delta{
		Concepts: []*entities.Concept{concept(t, "a"), concept(t, "b")},
		Edges: []Edge{
			{From: cid(t, "b"), To: cid(t, "a"), Kind: EdgeKindRelated},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, []valueobjects.ConceptID{cid(t, "b")}, g.Related(cid(t, "a")))
	assert.Equal(t, []valueobjects.ConceptID{cid(t, "a")}, g.Related(cid(t, "b")))

	// The mirror image of a stored related edge is a duplicate.
	result, err := g.ApplyDelta(Delta{
		Edges: []Edge{{From: cid(t, "a"), To: cid(t, "b"), Kind: EdgeKindRelated}},
	})
	require.NoError(t, err)
	assert.Empty(t, result.AddedEdges)
}

func TestExtendsEdgesDoNotConstrainOrdering(t *testing.T) {
	g := NewConceptGraph()

	// a extends b and b extends a would be a cycle under the prerequisite
	// rules; extends edges are exempt.
	_, err := g.ApplyDelta(Delta{
		Concepts: []*entities.Concept{concept(t, "a"), concept(t, "b")},
		Edges: []Edge{
			{From: cid(t, "a"), To: cid(t, "b"), Kind: EdgeKindExtends},
			{From: cid(t, "b"), To: cid(t, "a"), Kind: EdgeKindExtends},
		},
	})
	require.NoError(t, err)

	ok, _ := g.IsLinearExtension([]valueobjects.ConceptID{cid(t, "b"), cid(t, "a")})
	assert.True(t, ok)
}

func TestReadyConcepts(t *testing.T) {
	g := NewConceptGraph()
	seedChain(t, g, "a", "b", "c")

	assert.Equal(t, []valueobjects.ConceptID{cid(t, "a")}, g.ReadyConcepts(nil))

	mastered := map[valueobjects.ConceptID]bool{cid(t, "a"): true}
	assert.Equal(t, []valueobjects.ConceptID{cid(t, "b")}, g.ReadyConcepts(mastered))
}

func TestIsLinearExtension(t *testing.T) {
	g := NewConceptGraph()
	seedChain(t, g, "a", "b", "c")

	ok, _ := g.IsLinearExtension([]valueobjects.ConceptID{cid(t, "a"), cid(t, "b"), cid(t, "c")})
	assert.True(t, ok)

	ok, offending := g.IsLinearExtension([]valueobjects.ConceptID{cid(t, "b"), cid(t, "a"), cid(t, "c")})
	assert.False(t, ok)
	require.NotNil(t, offending)
	assert.Equal(t, cid(t, "a"), offending.From)
	assert.Equal(t, cid(t, "b"), offending.To)

	// Duplicate entries are never a valid extension.
	ok, _ = g.IsLinearExtension([]valueobjects.ConceptID{cid(t, "a"), cid(t, "a")})
	assert.False(t, ok)
}

func TestTopologicalOrdersRespectConstraints(t *testing.T) {
	g := NewConceptGraph()
	_, err := g.ApplyDelta(Delta{
		Concepts: []*entities.Concept{
			concept(t, "a"), concept(t, "b"), concept(t, "c"), concept(t, "d"),
		},
		Edges: []Edge{prereq(t, "a", "b"), prereq(t, "a", "c"), prereq(t, "b", "d"), prereq(t, "c", "d")},
	})
	require.NoError(t, err)

	it := g.TopologicalOrders(rand.New(rand.NewSource(7)))
	for i := 0; i < 20; i++ {
		order, ok := it.Next()
		require.True(t, ok)
		require.Len(t, order, 4)
		valid, offending := g.IsLinearExtension(order)
		assert.True(t, valid, "offending edge: %v", offending)
	}
}

func TestTopologicalOrdersOfSubsetIgnoresOutsideEdges(t *testing.T) {
	g := NewConceptGraph()
	seedChain(t, g, "a", "b", "c")

	// The subset excludes a; b's prerequisite on a must not block it.
	it := g.TopologicalOrdersOf([]valueobjects.ConceptID{cid(t, "b"), cid(t, "c")}, rand.New(rand.NewSource(1)))
	order, ok := it.Next()
	require.True(t, ok)
	assert.Equal(t, []valueobjects.ConceptID{cid(t, "b"), cid(t, "c")}, order)
}

func TestDepth(t *testing.T) {
	g := NewConceptGraph()
	seedChain(t, g, "a", "b", "c")

	assert.Equal(t, 0, g.Depth(cid(t, "a")))
	assert.Equal(t, 1, g.Depth(cid(t, "b")))
	assert.Equal(t, 2, g.Depth(cid(t, "c")))
}

func TestRestoreSnapshotRebuildsState(t *testing.T) {
	g := NewConceptGraph()
	seedChain(t, g, "a", "b")

	restored := NewConceptGraph()
	restored.RestoreSnapshot(g.Concepts(), g.Edges(), g.Version(), time.Now())

	assert.Equal(t, g.Version(), restored.Version())
	assert.Equal(t, 2, restored.ConceptCount())
	assert.Equal(t, []valueobjects.ConceptID{cid(t, "a")}, restored.Prerequisites(cid(t, "b")))
	assert.Empty(t, restored.GetUncommittedEvents())
}

func TestApplyDeltaEmitsGraphUpdatedEvent(t *testing.T) {
	g := NewConceptGraph()
	seedChain(t, g, "a")

	evts := g.GetUncommittedEvents()
	require.Len(t, evts, 1)
	assert.Equal(t, "graph.updated", evts[0].GetEventType())

	g.MarkEventsAsCommitted()
	assert.Empty(t, g.GetUncommittedEvents())
}
