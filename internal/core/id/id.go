// Package id generates identifiers for entities, records and audit entries.
// IDs are UUIDv7: the leading timestamp bits make freshly inserted rows sort
// by creation time, which repositories use as the default ordering.
package id

import (
	"github.com/google/uuid"
)

// ID identifies any stored object.
type ID = uuid.UUID

// New returns a time-ordered UUIDv7.
func New() ID {
	v7, err := uuid.NewV7()
	if err != nil {
		// NewV7 only fails when the random source does; fall back to V4
		// rather than propagating an error through every constructor.
		return uuid.New()
	}
	return v7
}

// Parse validates and converts a string form.
func Parse(s string) (ID, error) {
	return uuid.Parse(s)
}

// Nil returns the zero ID.
func Nil() ID {
	return uuid.Nil
}

// IsNil reports whether id is the zero ID.
func IsNil(id ID) bool {
	return id == uuid.Nil
}
