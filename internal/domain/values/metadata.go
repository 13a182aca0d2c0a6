package values

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"tessera/internal/core/apperror"
)

const (
	// MaxMetadataBytes caps the serialized size of a record's metadata document.
	MaxMetadataBytes = 16 * 1024

	// maxMetadataDepth bounds recursion when sanitizing nested documents.
	maxMetadataDepth = 32
)

// Metadata is a record's free-form JSON overflow document. It has no
// relationship to the entity's field definitions and is never validated
// against them, only sanitized.
type Metadata map[string]any

// SanitizeMetadata validates and cleans a caller-supplied metadata document.
// Returns nil for nil input. The top level must be a JSON object; forbidden
// object keys are stripped recursively up to a depth limit; the serialized
// size must not exceed MaxMetadataBytes.
func SanitizeMetadata(in map[string]any) (Metadata, error) {
	if in == nil {
		return nil, nil
	}

	cleaned, ok := sanitizeValue(in, 0)
	if !ok {
		return nil, apperror.NewMetadataInvalid(
			fmt.Sprintf("nesting exceeds maximum depth of %d", maxMetadataDepth))
	}

	obj, ok := cleaned.(map[string]any)
	if !ok {
		return nil, apperror.NewMetadataInvalid("metadata must be a JSON object")
	}

	raw, err := json.Marshal(obj)
	if err != nil {
		return nil, apperror.NewMetadataInvalid("metadata is not serializable").WithCause(err)
	}
	if len(raw) > MaxMetadataBytes {
		return nil, apperror.NewMetadataInvalid(
			fmt.Sprintf("metadata exceeds maximum size of %d bytes", MaxMetadataBytes)).
			WithDetail("size", len(raw))
	}

	return Metadata(obj), nil
}

// sanitizeValue walks a decoded JSON value, dropping forbidden keys from
// objects. The bool result is false when the depth limit is exceeded.
func sanitizeValue(v any, depth int) (any, bool) {
	if depth > maxMetadataDepth {
		return nil, false
	}

	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, nested := range val {
			if IsForbiddenKey(k) {
				continue
			}
			cleaned, ok := sanitizeValue(nested, depth+1)
			if !ok {
				return nil, false
			}
			out[k] = cleaned
		}
		return out, true
	case []any:
		out := make([]any, 0, len(val))
		for _, item := range val {
			cleaned, ok := sanitizeValue(item, depth+1)
			if !ok {
				return nil, false
			}
			out = append(out, cleaned)
		}
		return out, true
	default:
		return v, true
	}
}

// Scan implements sql.Scanner for reading from PostgreSQL JSONB.
func (m *Metadata) Scan(src any) error {
	var fv FieldValues
	if err := fv.Scan(src); err != nil {
		return err
	}
	*m = Metadata(fv)
	return nil
}

// Value implements driver.Valuer for writing to PostgreSQL JSONB.
func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}
