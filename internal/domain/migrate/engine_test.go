package migrate

import (
	"context"
	"encoding/json"
	"reflect"
	"testing"

	"tessera/internal/core/apperror"
	"tessera/internal/core/id"
	"tessera/internal/domain/schema"
	"tessera/internal/domain/values"
)

// Mock objects

type mockRewriter struct {
	records   []RecordValues
	rewritten map[string]values.FieldValues
	missing   int64
}

func newMockRewriter(records ...RecordValues) *mockRewriter {
	return &mockRewriter{
		records:   records,
		rewritten: make(map[string]values.FieldValues),
	}
}

func (m *mockRewriter) ListFieldValuesByEntity(_ context.Context, _ id.ID) ([]RecordValues, error) {
	return m.records, nil
}

func (m *mockRewriter) RewriteFieldValues(_ context.Context, recordID id.ID, fv values.FieldValues) error {
	m.rewritten[recordID.String()] = fv
	return nil
}

func (m *mockRewriter) CountMissingAnyField(_ context.Context, _ id.ID, _ []string) (int64, error) {
	return m.missing, nil
}

func TestClassifyDelta(t *testing.T) {
	existing := schema.FieldMap{
		"name":   {Type: schema.TypeString, Required: true},
		"legacy": {Type: schema.TypeString},
		"count":  {Type: schema.TypeNumber},
	}
	replacement := schema.FieldMap{
		"name":  {Type: schema.TypeString, Required: true},
		"count": {Type: schema.TypeNumber, Required: true},
		"tier":  {Type: schema.TypeEnum, Options: []string{"a"}, Required: true},
	}

	d := ClassifyDelta(existing, replacement)

	if want := []string{"count", "tier"}; !reflect.DeepEqual(d.NewlyRequired, want) {
		t.Errorf("NewlyRequired = %v, want %v", d.NewlyRequired, want)
	}
	if want := []string{"legacy"}; !reflect.DeepEqual(d.DeletedKeys, want) {
		t.Errorf("DeletedKeys = %v, want %v", d.DeletedKeys, want)
	}

	// Already-required fields are never re-classified.
	if !ClassifyDelta(replacement, replacement).Empty() {
		t.Error("identical maps should produce an empty delta")
	}
}

func TestResolveDefaults(t *testing.T) {
	fields := schema.FieldMap{
		"count": {Label: "Count", Type: schema.TypeNumber, Required: true},
		"tier":  {Label: "Tier", Type: schema.TypeEnum, Options: []string{"gold"}, Required: true},
	}

	t.Run("valid", func(t *testing.T) {
		resolved, err := ResolveDefaults(fields, []string{"count", "tier"}, values.FieldValues{
			"count": "10.50",
			"tier":  "gold",
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if n := resolved["count"].(json.Number); n.String() != "10.5" {
			t.Errorf("count = %s", n)
		}
		if resolved["tier"] != "gold" {
			t.Errorf("tier = %v", resolved["tier"])
		}
	})

	t.Run("missing reported before invalid", func(t *testing.T) {
		// tier is absent AND count is garbage: missing wins.
		_, err := ResolveDefaults(fields, []string{"count", "tier"}, values.FieldValues{
			"count": "garbage",
		})
		appErr, ok := apperror.AsAppError(err)
		if !ok || appErr.Code != apperror.CodeMissingDefaults {
			t.Fatalf("err = %v, want %s", err, apperror.CodeMissingDefaults)
		}
	})

	t.Run("empty string counts as missing", func(t *testing.T) {
		_, err := ResolveDefaults(fields, []string{"tier"}, values.FieldValues{"tier": ""})
		appErr, ok := apperror.AsAppError(err)
		if !ok || appErr.Code != apperror.CodeMissingDefaults {
			t.Fatalf("err = %v, want %s", err, apperror.CodeMissingDefaults)
		}
	})

	t.Run("invalid when all present", func(t *testing.T) {
		_, err := ResolveDefaults(fields, []string{"count", "tier"}, values.FieldValues{
			"count": "garbage",
			"tier":  "gold",
		})
		appErr, ok := apperror.AsAppError(err)
		if !ok || appErr.Code != apperror.CodeInvalidDefaults {
			t.Fatalf("err = %v, want %s", err, apperror.CodeInvalidDefaults)
		}
	})

	t.Run("enum default outside options", func(t *testing.T) {
		_, err := ResolveDefaults(fields, []string{"tier"}, values.FieldValues{"tier": "bronze"})
		appErr, ok := apperror.AsAppError(err)
		if !ok || appErr.Code != apperror.CodeInvalidDefaults {
			t.Fatalf("err = %v, want %s", err, apperror.CodeInvalidDefaults)
		}
	})
}

func TestApply_BackfillAndPrune(t *testing.T) {
	ctx := context.Background()

	idFilled := id.New()
	idMissing := id.New()
	idEmpty := id.New()
	idNull := id.New()

	rw := newMockRewriter(
		RecordValues{ID: idFilled, FieldValues: values.FieldValues{"tier": "silver", "legacy": 1}},
		RecordValues{ID: idMissing, FieldValues: values.FieldValues{}},
		RecordValues{ID: idEmpty, FieldValues: values.FieldValues{"tier": ""}},
		RecordValues{ID: idNull, FieldValues: values.FieldValues{"tier": nil}},
	)
	engine := NewEngine(rw)

	delta := Delta{
		NewlyRequired: []string{"tier"},
		DeletedKeys:   []string{"legacy"},
	}
	defaults := values.FieldValues{"tier": "gold"}

	res, err := engine.Apply(ctx, id.New(), delta, defaults)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	if res.RecordsExamined != 4 {
		t.Errorf("RecordsExamined = %d", res.RecordsExamined)
	}
	// Filled record loses its legacy key, missing and null records gain the
	// default, empty-string record is untouched.
	if res.RecordsRewritten != 3 {
		t.Errorf("RecordsRewritten = %d, want 3", res.RecordsRewritten)
	}
	if res.BackfilledFields != 2 {
		t.Errorf("BackfilledFields = %d, want 2", res.BackfilledFields)
	}
	if res.PrunedKeys != 1 {
		t.Errorf("PrunedKeys = %d, want 1", res.PrunedKeys)
	}

	if got := rw.rewritten[idFilled.String()]; got.Has("legacy") || got.GetString("tier") != "silver" {
		t.Errorf("filled record = %v", got)
	}
	if got := rw.rewritten[idMissing.String()]; got.GetString("tier") != "gold" {
		t.Errorf("absent slot not backfilled: %v", got)
	}
	if got := rw.rewritten[idNull.String()]; got.GetString("tier") != "gold" {
		t.Errorf("null slot not backfilled: %v", got)
	}
	if _, touched := rw.rewritten[idEmpty.String()]; touched {
		t.Error("empty string is a present value and must not be rewritten")
	}
}

func TestApply_Idempotent(t *testing.T) {
	ctx := context.Background()
	recID := id.New()

	rw := newMockRewriter(RecordValues{ID: recID, FieldValues: values.FieldValues{"tier": "gold"}})
	engine := NewEngine(rw)

	res, err := engine.Apply(ctx, id.New(), Delta{NewlyRequired: []string{"tier"}}, values.FieldValues{"tier": "gold"})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if res.RecordsRewritten != 0 {
		t.Errorf("already-satisfied record was rewritten: %+v", res)
	}
}

func TestReconcile_FailsBeforeAnyWrite(t *testing.T) {
	ctx := context.Background()

	rw := newMockRewriter(RecordValues{ID: id.New(), FieldValues: values.FieldValues{}})
	engine := NewEngine(rw)

	existing := schema.FieldMap{"name": {Type: schema.TypeString}}
	replacement := schema.FieldMap{
		"name": {Type: schema.TypeString},
		"tier": {Type: schema.TypeEnum, Options: []string{"gold"}, Required: true},
	}

	_, err := engine.Reconcile(ctx, id.New(), existing, replacement, nil)
	if err == nil {
		t.Fatal("expected MissingDefaults")
	}
	if len(rw.rewritten) != 0 {
		t.Error("records were written despite default resolution failure")
	}
}

func TestReconcile_EmptyDelta(t *testing.T) {
	engine := NewEngine(newMockRewriter())
	fields := schema.FieldMap{"name": {Type: schema.TypeString, Required: true}}

	res, err := engine.Reconcile(context.Background(), id.New(), fields, fields, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res != (schema.MigrationSummary{}) {
		t.Errorf("empty delta produced work: %+v", res)
	}
}

func TestAffectedCount(t *testing.T) {
	rw := newMockRewriter()
	rw.missing = 7
	engine := NewEngine(rw)

	n, err := engine.AffectedCount(context.Background(), id.New(), []string{"tier"})
	if err != nil || n != 7 {
		t.Fatalf("AffectedCount = %d, %v", n, err)
	}

	n, err = engine.AffectedCount(context.Background(), id.New(), nil)
	if err != nil || n != 0 {
		t.Fatalf("no keys should count nothing, got %d, %v", n, err)
	}
}
