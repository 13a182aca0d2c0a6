// Package validate derives per-entity value validators from stored field
// definitions. Entities are user-defined at runtime, so there is no static
// type per entity: the factory compiles the current field map into a
// validator on demand.
package validate

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/shopspring/decimal"

	"tessera/internal/domain/schema"
	"tessera/internal/domain/values"
)

// FieldError is a single per-field validation failure with a human-readable
// message, suitable for form binding by collaborators.
type FieldError struct {
	Key     string `json:"key"`
	Message string `json:"message"`
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Key, e.Message)
}

// GroupErrors converts a failure list into a field-key -> messages map.
func GroupErrors(errs []FieldError) map[string][]string {
	if len(errs) == 0 {
		return nil
	}
	out := make(map[string][]string)
	for _, e := range errs {
		out[e.Key] = append(out[e.Key], e.Message)
	}
	return out
}

// dateLayouts are accepted on input; output is always RFC 3339 UTC.
var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02",
}

// Validator checks candidate value maps against one snapshot of an entity's
// field map. Validators must be rebuilt whenever the field map changes; they
// never read shared mutable state.
type Validator struct {
	fields   schema.FieldMap
	programs map[string]cel.Program
}

// Build compiles fields into a Validator. Returns an error only when a field
// carries a CEL expression that does not compile; type rules never fail to
// build.
func Build(fields schema.FieldMap) (*Validator, error) {
	v := &Validator{fields: fields}

	for key, def := range fields {
		if def.Expression == "" {
			continue
		}
		prg, err := compileExpression(def.Expression)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", key, err)
		}
		if v.programs == nil {
			v.programs = make(map[string]cel.Program)
		}
		v.programs[key] = prg
	}

	return v, nil
}

// CheckExpressions verifies every CEL expression in fields compiles.
// Used by the schema store before persisting a definition.
func CheckExpressions(fields schema.FieldMap) error {
	_, err := Build(fields)
	return err
}

func compileExpression(expr string) (cel.Program, error) {
	env, err := cel.NewEnv(
		cel.Variable("value", cel.DynType),
		cel.Variable("values", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("create cel env: %w", err)
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile expression: %w", issues.Err())
	}
	if ast.OutputType() != cel.BoolType && ast.OutputType() != cel.DynType {
		return nil, fmt.Errorf("expression must evaluate to bool, got %s", ast.OutputType())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("build cel program: %w", err)
	}
	return prg, nil
}

// Validate checks a candidate values object and returns a normalized copy
// (numbers reduced to canonical json.Number, dates to RFC 3339 UTC strings)
// or a list of per-field failures. Keys not present in the field map pass
// through untouched; stripping them is the record store's concern.
func (v *Validator) Validate(in values.FieldValues) (values.FieldValues, []FieldError) {
	out := make(values.FieldValues, len(in))
	var errs []FieldError

	// Unknown keys pass through for forward compatibility.
	for key, val := range in {
		if _, known := v.fields[key]; !known {
			out[key] = val
		}
	}

	for _, key := range v.fields.SortedKeys() {
		def := v.fields[key]
		raw, present := in[key]

		normalized, fieldErr := checkField(key, def, raw, present)
		if fieldErr != nil {
			errs = append(errs, *fieldErr)
			continue
		}
		if !present && normalized == nil {
			// Optional field never supplied: leave the key out entirely.
			continue
		}
		out[key] = normalized
	}

	if len(errs) > 0 {
		return nil, errs
	}

	// Expression rules run only after every type rule passed, against the
	// normalized values.
	for key, prg := range v.programs {
		val, ok := out[key]
		if !ok || val == nil {
			continue
		}
		if err := evalExpression(prg, val, out); err != nil {
			errs = append(errs, FieldError{Key: key, Message: err.Error()})
		}
	}
	if len(errs) > 0 {
		return nil, errs
	}

	return out, nil
}

// checkField applies the per-type rule for one field. Returns the normalized
// value, or a FieldError describing the failure.
func checkField(key string, def schema.FieldDef, raw any, present bool) (any, *FieldError) {
	fail := func(msg string) (any, *FieldError) {
		return nil, &FieldError{Key: key, Message: msg}
	}

	switch def.Type {
	case schema.TypeString:
		if !present || raw == nil {
			if def.Required {
				return fail(fmt.Sprintf("%s is required", def.Label))
			}
			return nil, nil
		}
		s, ok := raw.(string)
		if !ok {
			return fail(fmt.Sprintf("%s must be a string", def.Label))
		}
		if def.Required && strings.TrimSpace(s) == "" {
			return fail(fmt.Sprintf("%s must not be empty", def.Label))
		}
		return s, nil

	case schema.TypeNumber:
		if !present || raw == nil || raw == "" {
			if def.Required {
				return fail(fmt.Sprintf("%s is required", def.Label))
			}
			return nil, nil
		}
		d, err := CoerceNumber(raw)
		if err != nil {
			return fail(fmt.Sprintf("%s must be a number", def.Label))
		}
		return json.Number(d.String()), nil

	case schema.TypeBoolean:
		if !present || raw == nil {
			if def.Required {
				return fail(fmt.Sprintf("%s is required", def.Label))
			}
			return nil, nil
		}
		b, ok := raw.(bool)
		if !ok {
			return fail(fmt.Sprintf("%s must be a boolean", def.Label))
		}
		// A required boolean with value false is a valid present value.
		return b, nil

	case schema.TypeDate:
		if !present || raw == nil || raw == "" {
			if def.Required {
				return fail(fmt.Sprintf("%s is required", def.Label))
			}
			return nil, nil
		}
		t, err := CoerceDate(raw)
		if err != nil {
			return fail(fmt.Sprintf("%s must be a valid date", def.Label))
		}
		return t.UTC().Format(time.RFC3339), nil

	case schema.TypeEnum:
		if !present || raw == nil {
			if def.Required {
				return fail(fmt.Sprintf("%s is required", def.Label))
			}
			return nil, nil
		}
		s, ok := raw.(string)
		if !ok {
			return fail(fmt.Sprintf("%s must be a string", def.Label))
		}
		if s == "" {
			if def.Required {
				return fail(fmt.Sprintf("%s must not be empty", def.Label))
			}
			// Empty string means "no value" for an optional enum.
			return s, nil
		}
		if !def.HasOption(s) {
			return fail(fmt.Sprintf("%s must be one of: %s", def.Label, strings.Join(def.Options, ", ")))
		}
		return s, nil
	}

	return fail(fmt.Sprintf("unknown field type %q", def.Type))
}

func evalExpression(prg cel.Program, val any, all values.FieldValues) error {
	out, _, err := prg.Eval(map[string]any{
		"value":  celValue(val),
		"values": celValues(all),
	})
	if err != nil {
		return fmt.Errorf("validation expression failed: %v", err)
	}
	ok, isBool := out.Value().(bool)
	if !isBool {
		return fmt.Errorf("validation expression must return a boolean")
	}
	if !ok {
		return fmt.Errorf("value does not satisfy validation expression")
	}
	return nil
}

// celValue converts normalized values into types cel-go understands natively.
func celValue(v any) any {
	if n, ok := v.(json.Number); ok {
		f, err := n.Float64()
		if err == nil {
			return f
		}
	}
	return v
}

func celValues(all values.FieldValues) map[string]any {
	out := make(map[string]any, len(all))
	for k, v := range all {
		out[k] = celValue(v)
	}
	return out
}

// CoerceNumber parses any JSON-shaped numeric input into a finite decimal.
func CoerceNumber(raw any) (decimal.Decimal, error) {
	switch n := raw.(type) {
	case json.Number:
		return decimal.NewFromString(n.String())
	case float64:
		return decimal.NewFromFloat(n), nil
	case float32:
		return decimal.NewFromFloat32(n), nil
	case int:
		return decimal.NewFromInt(int64(n)), nil
	case int64:
		return decimal.NewFromInt(n), nil
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return decimal.Zero, fmt.Errorf("empty string is not a number")
		}
		return decimal.NewFromString(s)
	case decimal.Decimal:
		return n, nil
	}
	return decimal.Zero, fmt.Errorf("cannot coerce %T to number", raw)
}

// CoerceDate parses any JSON-shaped date input into a time.Time.
func CoerceDate(raw any) (time.Time, error) {
	switch d := raw.(type) {
	case time.Time:
		return d, nil
	case string:
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, d); err == nil {
				return t, nil
			}
		}
		return time.Time{}, fmt.Errorf("unrecognized date format %q", d)
	}
	return time.Time{}, fmt.Errorf("cannot coerce %T to date", raw)
}

// CoerceBoolean accepts only plain booleans.
func CoerceBoolean(raw any) (bool, error) {
	if b, ok := raw.(bool); ok {
		return b, nil
	}
	return false, fmt.Errorf("cannot coerce %T to boolean", raw)
}
