// Package migrate reconciles existing records with a replaced entity field
// map: it classifies field deltas, resolves backfill defaults for newly
// required fields, and rewrites affected records inside the caller's
// transaction. Either every newly required field gets a usable default or
// the whole entity update is rejected; partial backfill never occurs.
package migrate

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"tessera/internal/core/apperror"
	"tessera/internal/core/id"
	"tessera/internal/domain/schema"
	"tessera/internal/domain/validate"
	"tessera/internal/domain/values"
	"tessera/pkg/logger"
)

// Delta is the classification of field changes between two field maps.
type Delta struct {
	// NewlyRequired holds keys that are required in the new map and were
	// either absent or optional in the old one.
	NewlyRequired []string

	// DeletedKeys holds keys present in the old map but not in the new one.
	DeletedKeys []string
}

// Empty reports whether no reconciliation work is needed.
func (d Delta) Empty() bool {
	return len(d.NewlyRequired) == 0 && len(d.DeletedKeys) == 0
}

// ClassifyDelta computes the field delta between the stored field map and its
// replacement. Pure function, no I/O.
func ClassifyDelta(existing, replacement schema.FieldMap) Delta {
	var d Delta

	for key, def := range replacement {
		if !def.Required {
			continue
		}
		old, had := existing[key]
		if !had || !old.Required {
			d.NewlyRequired = append(d.NewlyRequired, key)
		}
	}
	for key := range existing {
		if _, kept := replacement[key]; !kept {
			d.DeletedKeys = append(d.DeletedKeys, key)
		}
	}

	sort.Strings(d.NewlyRequired)
	sort.Strings(d.DeletedKeys)
	return d
}

// ResolveDefaults validates the caller-supplied raw defaults for every newly
// required field. Pure function, no I/O. All fields lacking a usable value
// are reported together as MissingDefaults; only when none are missing are
// type failures reported as InvalidDefaults. Resolved values are normalized
// exactly as the validator would normalize them.
func ResolveDefaults(fields schema.FieldMap, newlyRequired []string, raw values.FieldValues) (values.FieldValues, error) {
	resolved := make(values.FieldValues, len(newlyRequired))
	var missing, invalid []string

	for _, key := range newlyRequired {
		def, ok := fields[key]
		if !ok {
			continue
		}

		val, present := raw[key]
		if !present || val == nil || val == "" {
			missing = append(missing, key)
			continue
		}

		normalized, err := resolveDefault(def, val)
		if err != nil {
			invalid = append(invalid, key)
			continue
		}
		resolved[key] = normalized
	}

	if len(missing) > 0 {
		return nil, apperror.NewMissingDefaults(missing)
	}
	if len(invalid) > 0 {
		return nil, apperror.NewInvalidDefaults(invalid)
	}
	return resolved, nil
}

// resolveDefault coerces one supplied default to its field type.
func resolveDefault(def schema.FieldDef, val any) (any, error) {
	switch def.Type {
	case schema.TypeEnum:
		s, ok := val.(string)
		if !ok {
			return nil, apperror.NewValidation("enum default must be a string")
		}
		if !def.HasOption(s) {
			return nil, apperror.NewValidation("enum default must be a defined option")
		}
		return s, nil

	case schema.TypeString:
		s, ok := val.(string)
		if !ok {
			return nil, apperror.NewValidation("default must be a string")
		}
		return s, nil

	case schema.TypeNumber:
		d, err := validate.CoerceNumber(val)
		if err != nil {
			return nil, err
		}
		return json.Number(d.String()), nil

	case schema.TypeBoolean:
		return validate.CoerceBoolean(val)

	case schema.TypeDate:
		t, err := validate.CoerceDate(val)
		if err != nil {
			return nil, err
		}
		return t.UTC().Format(time.RFC3339), nil
	}

	return nil, apperror.NewValidation("unknown field type")
}

// RecordRewriter is the slice of record persistence the engine needs.
// Implemented by the postgres record repository.
type RecordRewriter interface {
	// ListFieldValuesByEntity returns id + field values for every record of
	// the entity, in stable fetch order.
	ListFieldValuesByEntity(ctx context.Context, entityID id.ID) ([]RecordValues, error)

	// RewriteFieldValues persists a record's replacement field values and
	// bumps its updated_at.
	RewriteFieldValues(ctx context.Context, recordID id.ID, fv values.FieldValues) error

	// CountMissingAnyField counts records of the entity whose field values
	// lack (absent or null) at least one of the given keys.
	CountMissingAnyField(ctx context.Context, entityID id.ID, keys []string) (int64, error)
}

// RecordValues is the minimal record projection the engine rewrites.
type RecordValues struct {
	ID          id.ID
	FieldValues values.FieldValues
}

// Engine rewrites an entity's records to match a replaced field map.
// It holds no state between runs and must be invoked inside the same
// transaction as the entity row update.
type Engine struct {
	records RecordRewriter
}

// Compile-time check that Engine satisfies the schema store's contract.
var _ schema.Migrator = (*Engine)(nil)

// NewEngine creates a migration engine over the given record access.
func NewEngine(records RecordRewriter) *Engine {
	return &Engine{records: records}
}

// Reconcile runs the full migration for one entity update: classify the
// delta, resolve every backfill default, and only then rewrite records.
// A resolution failure returns before any record is read or written.
func (e *Engine) Reconcile(ctx context.Context, entityID id.ID, existing, replacement schema.FieldMap, rawDefaults values.FieldValues) (schema.MigrationSummary, error) {
	delta := ClassifyDelta(existing, replacement)
	if delta.Empty() {
		return schema.MigrationSummary{}, nil
	}

	defaults, err := ResolveDefaults(replacement, delta.NewlyRequired, rawDefaults)
	if err != nil {
		return schema.MigrationSummary{}, err
	}

	return e.Apply(ctx, entityID, delta, defaults)
}

// Apply rewrites every record of the entity: deleted keys are pruned,
// resolved defaults are backfilled into absent or null slots. An existing
// empty string is a present value and is never overwritten. Records whose
// values did not change are not written.
func (e *Engine) Apply(ctx context.Context, entityID id.ID, delta Delta, defaults values.FieldValues) (schema.MigrationSummary, error) {
	var res schema.MigrationSummary
	if delta.Empty() {
		return res, nil
	}

	records, err := e.records.ListFieldValuesByEntity(ctx, entityID)
	if err != nil {
		return res, err
	}
	res.RecordsExamined = len(records)

	for _, rec := range records {
		fv := rec.FieldValues.Clone()
		if fv == nil {
			fv = make(values.FieldValues)
		}
		changed := fv.StripForbidden()

		for _, key := range delta.DeletedKeys {
			if fv.Has(key) {
				fv.Delete(key)
				changed = true
				res.PrunedKeys++
			}
		}

		for _, key := range delta.NewlyRequired {
			def, ok := defaults[key]
			if !ok {
				continue
			}
			// Only nil or absent values are backfilled; an existing empty
			// string stays as-is.
			if fv.IsMissing(key) {
				fv.Set(key, def)
				changed = true
				res.BackfilledFields++
			}
		}

		if !changed {
			continue
		}
		if err := e.records.RewriteFieldValues(ctx, rec.ID, fv); err != nil {
			return res, err
		}
		res.RecordsRewritten++
	}

	logger.Debug(ctx, "migration applied",
		"entity_id", entityID,
		"examined", res.RecordsExamined,
		"rewritten", res.RecordsRewritten,
	)
	return res, nil
}

// AffectedCount returns how many records of the entity are missing any of
// the given field keys. Collaborators use it to warn users before committing
// a migration.
func (e *Engine) AffectedCount(ctx context.Context, entityID id.ID, keys []string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	return e.records.CountMissingAnyField(ctx, entityID, keys)
}
