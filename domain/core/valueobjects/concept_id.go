package valueobjects

import (
	"errors"

	"github.com/google/uuid"
)

// ConceptID is a value object representing a unique concept identifier
// Value objects are immutable and have no identity beyond their value
type ConceptID struct {
	value string
}

// NewConceptID creates a new random ConceptID
func NewConceptID() ConceptID {
	return ConceptID{value: uuid.New().String()}
}

// NewConceptIDFromString creates a ConceptID from an existing string.
// Ingestion collaborators supply their own stable identifiers, so any
// non-empty string is accepted, not just UUIDs.
func NewConceptIDFromString(id string) (ConceptID, error) {
	if id == "" {
		return ConceptID{}, errors.New("concept ID cannot be empty")
	}
	return ConceptID{value: id}, nil
}

// String returns the string representation of the ConceptID
func (id ConceptID) String() string {
	return id.value
}

// Equals checks if two ConceptIDs are equal
func (id ConceptID) Equals(other ConceptID) bool {
	return id.value == other.value
}

// IsZero checks if the ConceptID is the zero value
func (id ConceptID) IsZero() bool {
	return id.value == ""
}

// MarshalJSON implements json.Marshaler
func (id ConceptID) MarshalJSON() ([]byte, error) {
	return []byte(`"` + id.value + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler
func (id *ConceptID) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return errors.New("ConceptID must be a string")
	}
	id.value = string(data[1 : len(data)-1])
	return nil
}

// MarshalText implements encoding.TextMarshaler so ConceptID can key JSON maps
func (id ConceptID) MarshalText() ([]byte, error) {
	return []byte(id.value), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (id *ConceptID) UnmarshalText(data []byte) error {
	id.value = string(data)
	return nil
}

// LearnerID identifies a learner across sessions
type LearnerID struct {
	value string
}

// NewLearnerID creates a new random LearnerID
func NewLearnerID() LearnerID {
	return LearnerID{value: uuid.New().String()}
}

// NewLearnerIDFromString creates a LearnerID from an existing string
func NewLearnerIDFromString(id string) (LearnerID, error) {
	if id == "" {
		return LearnerID{}, errors.New("learner ID cannot be empty")
	}
	return LearnerID{value: id}, nil
}

// String returns the string representation of the LearnerID
func (id LearnerID) String() string {
	return id.value
}

// Equals checks if two LearnerIDs are equal
func (id LearnerID) Equals(other LearnerID) bool {
	return id.value == other.value
}

// IsZero checks if the LearnerID is the zero value
func (id LearnerID) IsZero() bool {
	return id.value == ""
}

// MarshalJSON implements json.Marshaler
func (id LearnerID) MarshalJSON() ([]byte, error) {
	return []byte(`"` + id.value + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler
func (id *LearnerID) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return errors.New("LearnerID must be a string")
	}
	id.value = string(data[1 : len(data)-1])
	return nil
}
