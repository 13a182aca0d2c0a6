// Package values provides the JSONB value containers persisted on records:
// the typed field-values map and the free-form metadata document.
package values

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// forbiddenKeys are stripped from every JSON document we persist. They are
// meaningless as field keys and dangerous when the document is later consumed
// by JavaScript collaborators.
var forbiddenKeys = map[string]struct{}{
	"__proto__":   {},
	"constructor": {},
	"prototype":   {},
}

// IsForbiddenKey reports whether key must never be persisted.
func IsForbiddenKey(key string) bool {
	_, ok := forbiddenKeys[key]
	return ok
}

// FieldValues represents a record's field-key -> value map with type-safe
// accessors. Implements sql.Scanner and driver.Valuer for PostgreSQL JSONB.
//
// CRITICAL: Uses json.Number to preserve numeric precision.
// Default Go JSON decoder converts numbers to float64, losing precision.
type FieldValues map[string]any

// Scan implements sql.Scanner for reading from PostgreSQL JSONB.
// Uses custom decoder with UseNumber() to preserve numeric precision.
func (v *FieldValues) Scan(src any) error {
	if src == nil {
		*v = nil
		return nil
	}

	var source []byte
	switch s := src.(type) {
	case []byte:
		source = s
	case string:
		source = []byte(s)
	default:
		return fmt.Errorf("unsupported type for FieldValues: %T", src)
	}

	if len(source) == 0 {
		*v = nil
		return nil
	}

	// CRITICAL: UseNumber() preserves numeric precision
	decoder := json.NewDecoder(bytes.NewReader(source))
	decoder.UseNumber()

	var result map[string]any
	if err := decoder.Decode(&result); err != nil {
		return fmt.Errorf("failed to decode FieldValues: %w", err)
	}

	*v = result
	return nil
}

// Value implements driver.Valuer for writing to PostgreSQL JSONB.
func (v FieldValues) Value() (driver.Value, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

// --- Type-safe getters ---

// GetString returns string value or empty string if not found/wrong type.
func (v FieldValues) GetString(key string) string {
	if v == nil {
		return ""
	}
	if s, ok := v[key].(string); ok {
		return s
	}
	return ""
}

// GetBool returns boolean value.
func (v FieldValues) GetBool(key string) bool {
	if v == nil {
		return false
	}
	if b, ok := v[key].(bool); ok {
		return b
	}
	return false
}

// GetFloat returns float64 value, handling json.Number correctly.
func (v FieldValues) GetFloat(key string) float64 {
	if v == nil {
		return 0
	}
	switch n := v[key].(type) {
	case json.Number:
		f, _ := n.Float64()
		return f
	case float64:
		return n
	case int64:
		return float64(n)
	case int:
		return float64(n)
	}
	return 0
}

// GetDecimal returns decimal.Decimal value with full precision.
func (v FieldValues) GetDecimal(key string) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	switch n := v[key].(type) {
	case json.Number:
		d, err := decimal.NewFromString(n.String())
		if err != nil {
			return decimal.Zero
		}
		return d
	case string:
		d, err := decimal.NewFromString(n)
		if err != nil {
			return decimal.Zero
		}
		return d
	case float64:
		return decimal.NewFromFloat(n)
	}
	return decimal.Zero
}

// Has checks if key exists (including nil values).
func (v FieldValues) Has(key string) bool {
	if v == nil {
		return false
	}
	_, ok := v[key]
	return ok
}

// IsMissing reports whether the value for key is absent or JSON null.
// An empty string is a present value, not a missing one.
func (v FieldValues) IsMissing(key string) bool {
	if v == nil {
		return true
	}
	val, ok := v[key]
	return !ok || val == nil
}

// Set adds or updates a value. Returns self for chaining.
func (v *FieldValues) Set(key string, value any) FieldValues {
	if *v == nil {
		*v = make(FieldValues)
	}
	(*v)[key] = value
	return *v
}

// Delete removes a key. Returns self for chaining.
func (v FieldValues) Delete(key string) FieldValues {
	delete(v, key)
	return v
}

// Clone creates a shallow copy.
func (v FieldValues) Clone() FieldValues {
	if v == nil {
		return nil
	}
	result := make(FieldValues, len(v))
	for k, val := range v {
		result[k] = val
	}
	return result
}

// StripForbidden removes forbidden object keys in place and reports whether
// anything was removed.
func (v FieldValues) StripForbidden() bool {
	changed := false
	for k := range v {
		if IsForbiddenKey(k) {
			delete(v, k)
			changed = true
		}
	}
	return changed
}
