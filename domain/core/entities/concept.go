package entities

import (
	"time"

	"curricula/domain/core/valueobjects"
	pkgerrors "curricula/pkg/errors"
)

// Concept is the main entity representing a teachable unit of knowledge.
// This is a rich domain model with encapsulated business logic: difficulty
// and time estimates may be revised by later ingestion passes, the ID never
// changes, and a concept is deprecated rather than deleted so that mastery
// history stays resolvable.
type Concept struct {
	id               valueobjects.ConceptID
	name             string
	difficulty       float64 // [1, 10]
	estimatedMinutes int
	embedding        valueobjects.Embedding
	sourceRefs       map[string]struct{}
	deprecated       bool
	createdAt        time.Time
	updatedAt        time.Time
	version          int
}

// NewConcept creates a new concept with full business rule validation
func NewConcept(id valueobjects.ConceptID, name string, difficulty float64, estimatedMinutes int) (*Concept, error) {
	if id.IsZero() {
		return nil, pkgerrors.NewValidationError("concept ID cannot be empty")
	}
	if name == "" {
		return nil, pkgerrors.NewValidationError("concept name cannot be empty")
	}
	if difficulty < 1 || difficulty > 10 {
		return nil, pkgerrors.NewValidationError("difficulty must be in [1, 10]").
			WithDetail("difficulty", difficulty)
	}
	if estimatedMinutes <= 0 {
		return nil, pkgerrors.NewValidationError("estimated minutes must be positive").
			WithDetail("estimated_minutes", estimatedMinutes)
	}

	now := time.Now()
	return &Concept{
		id:               id,
		name:             name,
		difficulty:       difficulty,
		estimatedMinutes: estimatedMinutes,
		sourceRefs:       make(map[string]struct{}),
		createdAt:        now,
		updatedAt:        now,
		version:          1,
	}, nil
}

// ReconstructConcept rebuilds a concept from persisted state with preserved timestamps
func ReconstructConcept(
	id valueobjects.ConceptID,
	name string,
	difficulty float64,
	estimatedMinutes int,
	embedding valueobjects.Embedding,
	sourceRefs []string,
	deprecated bool,
	createdAt, updatedAt time.Time,
	version int,
) (*Concept, error) {
	if id.IsZero() || name == "" {
		return nil, pkgerrors.NewValidationError("required fields missing for concept reconstruction")
	}

	refs := make(map[string]struct{}, len(sourceRefs))
	for _, r := range sourceRefs {
		refs[r] = struct{}{}
	}

	return &Concept{
		id:               id,
		name:             name,
		difficulty:       difficulty,
		estimatedMinutes: estimatedMinutes,
		embedding:        embedding,
		sourceRefs:       refs,
		deprecated:       deprecated,
		createdAt:        createdAt,
		updatedAt:        updatedAt,
		version:          version,
	}, nil
}

// ID returns the concept's immutable identifier
func (c *Concept) ID() valueobjects.ConceptID {
	return c.id
}

// Name returns the concept's display name
func (c *Concept) Name() string {
	return c.name
}

// Difficulty returns the current difficulty estimate
func (c *Concept) Difficulty() float64 {
	return c.difficulty
}

// EstimatedMinutes returns the current teaching time estimate
func (c *Concept) EstimatedMinutes() int {
	return c.estimatedMinutes
}

// Embedding returns the concept's semantic embedding (zero value if absent)
func (c *Concept) Embedding() valueobjects.Embedding {
	return c.embedding
}

// IsDeprecated reports whether the concept has been retired from planning
func (c *Concept) IsDeprecated() bool {
	return c.deprecated
}

// Version returns the revision count for optimistic concurrency
func (c *Concept) Version() int {
	return c.version
}

// CreatedAt returns when the concept was first merged
func (c *Concept) CreatedAt() time.Time {
	return c.createdAt
}

// UpdatedAt returns when the concept was last revised
func (c *Concept) UpdatedAt() time.Time {
	return c.updatedAt
}

// Revise updates the difficulty and time estimates from a later ingestion pass
func (c *Concept) Revise(difficulty float64, estimatedMinutes int) error {
	if c.deprecated {
		return pkgerrors.NewValidationError("cannot revise deprecated concept")
	}
	if difficulty < 1 || difficulty > 10 {
		return pkgerrors.NewValidationError("difficulty must be in [1, 10]").
			WithDetail("difficulty", difficulty)
	}
	if estimatedMinutes <= 0 {
		return pkgerrors.NewValidationError("estimated minutes must be positive")
	}

	c.difficulty = difficulty
	c.estimatedMinutes = estimatedMinutes
	c.updatedAt = time.Now()
	c.version++

	return nil
}

// SetEmbedding attaches or replaces the semantic embedding
func (c *Concept) SetEmbedding(embedding valueobjects.Embedding) {
	c.embedding = embedding
	c.updatedAt = time.Now()
	c.version++
}

// AddSourceRef records a document location this concept was extracted from
func (c *Concept) AddSourceRef(ref string) error {
	if ref == "" {
		return pkgerrors.NewValidationError("source ref cannot be empty")
	}
	if _, exists := c.sourceRefs[ref]; exists {
		return nil // already recorded
	}

	c.sourceRefs[ref] = struct{}{}
	c.updatedAt = time.Now()

	return nil
}

// SourceRefs returns all document-location references
func (c *Concept) SourceRefs() []string {
	refs := make([]string, 0, len(c.sourceRefs))
	for r := range c.sourceRefs {
		refs = append(refs, r)
	}
	return refs
}

// Deprecate retires the concept from future planning. The concept and its
// history remain; deprecation is idempotent and never reversed by ingestion.
func (c *Concept) Deprecate() {
	if c.deprecated {
		return
	}
	c.deprecated = true
	c.updatedAt = time.Now()
	c.version++
}
