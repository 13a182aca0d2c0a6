// Package schema defines user-editable entity definitions: a named, ordered
// set of typed field definitions that records are validated against.
package schema

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"tessera/internal/core/apperror"
	"tessera/internal/core/id"
)

// FieldType defines the data type of a field.
type FieldType string

const (
	TypeString  FieldType = "string"
	TypeNumber  FieldType = "number"
	TypeBoolean FieldType = "boolean"
	TypeDate    FieldType = "date"
	TypeEnum    FieldType = "enum"
)

// IsValid reports whether t is a known field type.
func (t FieldType) IsValid() bool {
	switch t {
	case TypeString, TypeNumber, TypeBoolean, TypeDate, TypeEnum:
		return true
	}
	return false
}

// FieldDef describes one named slot of an entity. The field key is the map
// key in FieldMap, not part of the definition itself.
type FieldDef struct {
	Label string    `json:"label"`
	Type  FieldType `json:"type"`

	// Options is the allowed value set. Present and non-empty iff Type == enum.
	Options []string `json:"options,omitempty"`

	Required bool `json:"required,omitempty"`
	Sortable bool `json:"sortable,omitempty"`

	// Order defines display and processing order within the entity.
	Order int `json:"order"`

	// Expression is an optional CEL expression evaluated against a candidate
	// value after the type check passes. Variables: `value` (the candidate)
	// and `values` (the whole submitted map).
	Expression string `json:"expression,omitempty"`
}

// HasOption reports whether v is one of the enum options.
func (f FieldDef) HasOption(v string) bool {
	for _, opt := range f.Options {
		if opt == v {
			return true
		}
	}
	return false
}

// FieldMap is the ordered field-key -> FieldDef mapping of an entity,
// stored as a JSONB document. Ordering is carried by FieldDef.Order.
// Implements sql.Scanner and driver.Valuer for PostgreSQL JSONB mapping.
type FieldMap map[string]FieldDef

// Scan implements sql.Scanner for reading from PostgreSQL JSONB.
func (m *FieldMap) Scan(src any) error {
	if src == nil {
		*m = nil
		return nil
	}

	var source []byte
	switch v := src.(type) {
	case []byte:
		source = v
	case string:
		source = []byte(v)
	default:
		return fmt.Errorf("unsupported type for FieldMap: %T", src)
	}

	if len(source) == 0 {
		*m = nil
		return nil
	}

	decoder := json.NewDecoder(bytes.NewReader(source))

	var result map[string]FieldDef
	if err := decoder.Decode(&result); err != nil {
		return fmt.Errorf("failed to decode FieldMap: %w", err)
	}

	*m = result
	return nil
}

// Value implements driver.Valuer for writing to PostgreSQL JSONB.
func (m FieldMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

// SortedKeys returns field keys ordered by FieldDef.Order, ties broken by key.
func (m FieldMap) SortedKeys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		oi, oj := m[keys[i]].Order, m[keys[j]].Order
		if oi != oj {
			return oi < oj
		}
		return keys[i] < keys[j]
	})
	return keys
}

// Clone creates a shallow copy.
func (m FieldMap) Clone() FieldMap {
	if m == nil {
		return nil
	}
	result := make(FieldMap, len(m))
	for k, v := range m {
		result[k] = v
	}
	return result
}

// ValidateShape checks the structural invariants of a single field definition:
// a known type, a non-negative order, and options present exactly when the
// type is enum.
func ValidateShape(key string, def FieldDef) error {
	if key == "" {
		return apperror.NewValidation("field key must not be empty")
	}
	if !def.Type.IsValid() {
		return apperror.NewValidation("unknown field type").
			WithDetail("field", key).
			WithDetail("type", string(def.Type))
	}
	if def.Order < 0 {
		return apperror.NewValidation("field order must be non-negative").
			WithDetail("field", key).
			WithDetail("order", def.Order)
	}
	if def.Type == TypeEnum {
		if len(def.Options) == 0 {
			return apperror.NewValidation("enum field requires non-empty options").
				WithDetail("field", key)
		}
		seen := make(map[string]struct{}, len(def.Options))
		for _, opt := range def.Options {
			if opt == "" {
				return apperror.NewValidation("enum option must not be empty").
					WithDetail("field", key)
			}
			if _, dup := seen[opt]; dup {
				return apperror.NewValidation("enum options must be unique").
					WithDetail("field", key).
					WithDetail("option", opt)
			}
			seen[opt] = struct{}{}
		}
	} else if len(def.Options) > 0 {
		return apperror.NewValidation("options are only allowed on enum fields").
			WithDetail("field", key).
			WithDetail("type", string(def.Type))
	}
	return nil
}

// Entity is a user-defined record type: a unique name plus an ordered set of
// field definitions. The Fields map is replaced wholesale on update; the
// migration engine reconciles existing records against the replacement.
type Entity struct {
	ID          id.ID     `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Description *string   `db:"description" json:"description,omitempty"`
	Fields      FieldMap  `db:"fields" json:"fields"`

	// Version for optimistic locking (incremented on each update)
	Version int `db:"version" json:"version"`

	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// NewEntity creates an Entity with generated ID and timestamps.
func NewEntity(name string, description *string, fields FieldMap) *Entity {
	now := time.Now().UTC()
	return &Entity{
		ID:          id.New(),
		Name:        name,
		Description: description,
		Fields:      fields,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Touch updates the UpdatedAt timestamp.
func (e *Entity) Touch() {
	e.UpdatedAt = time.Now().UTC()
}
