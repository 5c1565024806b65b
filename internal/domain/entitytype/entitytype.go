// Package entitytype defines entity type schemas: the field definitions,
// sections, and audience visibility rules that govern entities of a type.
package entitytype

import (
	"time"

	"github.com/google/uuid"
)

// FieldType enumerates the value types a dynamic field can hold.
type FieldType string

const (
	FieldString  FieldType = "string"
	FieldText    FieldType = "text"
	FieldNumber  FieldType = "number"
	FieldBoolean FieldType = "boolean"
	FieldDate    FieldType = "date"
	FieldSelect  FieldType = "select"
	FieldURL     FieldType = "url"
	FieldEmail   FieldType = "email"
)

// Constraints narrows the values a field accepts beyond its type.
type Constraints struct {
	MinLength int      `json:"min_length,omitempty"`
	MaxLength int      `json:"max_length,omitempty"`
	Min       *float64 `json:"min,omitempty"`
	Max       *float64 `json:"max,omitempty"`
	Options   []string `json:"options,omitempty"` // legal values for select fields
	Pattern   string   `json:"pattern,omitempty"` // anchored regular expression
}

// Field is one dynamic field definition within an entity type.
type Field struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Type        FieldType   `json:"type"`
	Required    bool        `json:"required"`
	Constraints Constraints `json:"constraints,omitempty"`
}

// Section groups fields for presentation. Carried on the definition so
// bundles can preserve editorial ordering; the store itself ignores it.
type Section struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Fields []string `json:"fields"` // field ids
}

// EntityType is the schema definition for a family of entities.
//
// VisibleTo lists the membership keys whose bundles include this type.
// FieldVisibility optionally restricts individual fields to a subset of
// keys; a field absent from the map follows the type-level VisibleTo list.
type EntityType struct {
	ID                uuid.UUID           `json:"id"`
	Name              string              `json:"name"`
	PluralName        string              `json:"plural_name"`
	Slug              string              `json:"slug"`
	Fields            []Field             `json:"fields"`
	Sections          []Section           `json:"sections,omitempty"`
	DefaultVisibility string              `json:"default_visibility"`
	VisibleTo         []string            `json:"visible_to"`
	FieldVisibility   map[string][]string `json:"field_visibility,omitempty"`
	IsActive          bool                `json:"is_active"`
	CreatedAt         time.Time           `json:"created_at"`
	UpdatedAt         time.Time           `json:"updated_at"`
}

// FieldByID returns the field definition with the given id, if any.
func (t *EntityType) FieldByID(id string) (Field, bool) {
	for _, f := range t.Fields {
		if f.ID == id {
			return f, true
		}
	}
	return Field{}, false
}

// VisibleToKey reports whether audience key is in the type's VisibleTo list.
func (t *EntityType) VisibleToKey(key string) bool {
	for _, k := range t.VisibleTo {
		if k == key {
			return true
		}
	}
	return false
}
