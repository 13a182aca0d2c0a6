// Package record provides storage and batch operations for entity records:
// instances of a user-defined entity holding a validated field-values map
// plus free-form metadata.
package record

import (
	"encoding/json"
	"time"

	"tessera/internal/core/id"
	"tessera/internal/domain/values"
)

// Record is one instance of an entity. FieldValues is validated against the
// owning entity's current field map on every write path; Metadata is
// sanitized free-form JSON with no relationship to the field map.
type Record struct {
	ID       id.ID `db:"id" json:"id"`
	EntityID id.ID `db:"entity_id" json:"entityId"`

	FieldValues values.FieldValues `db:"field_values" json:"fieldValues"`
	Metadata    values.Metadata    `db:"metadata" json:"metadata,omitempty"`

	// Assets holds structured attachment references. Persisted opaque;
	// upload mechanics live outside this engine.
	Assets json.RawMessage `db:"assets" json:"assets,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// NewRecord creates a Record with generated ID and timestamps.
func NewRecord(entityID id.ID, fv values.FieldValues, meta values.Metadata) *Record {
	now := time.Now().UTC()
	return &Record{
		ID:          id.New(),
		EntityID:    entityID,
		FieldValues: fv,
		Metadata:    meta,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Touch updates the UpdatedAt timestamp.
func (r *Record) Touch() {
	r.UpdatedAt = time.Now().UTC()
}
