package record

import (
	"context"
	"encoding/json"
	"testing"

	"tessera/internal/core/apperror"
	"tessera/internal/core/id"
	"tessera/internal/domain/values"
)

func TestService_Create(t *testing.T) {
	entity := switchEntity()
	repo := newMockRecordRepo()
	svc := NewService(repo, newMockEntityRepo(entity), &fakeTxManager{})

	rec, err := svc.Create(context.Background(),
		entity.ID,
		map[string]any{"hostname": "sw-1", "ports": 48, "rogue": "x", "__proto__": "evil"},
		map[string]any{"rack": "A3"},
	)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	// Values are normalized, unknown and forbidden keys stripped.
	if n, ok := rec.FieldValues["ports"].(json.Number); !ok || n.String() != "48" {
		t.Errorf("ports = %#v", rec.FieldValues["ports"])
	}
	if rec.FieldValues.Has("rogue") || rec.FieldValues.Has("__proto__") {
		t.Errorf("unknown/forbidden keys survived: %v", rec.FieldValues)
	}
	if rec.Metadata["rack"] != "A3" {
		t.Errorf("metadata = %v", rec.Metadata)
	}
	if _, ok := repo.records[rec.ID]; !ok {
		t.Error("record not persisted")
	}
}

func TestService_CreateValidationFailure(t *testing.T) {
	entity := switchEntity()
	repo := newMockRecordRepo()
	svc := NewService(repo, newMockEntityRepo(entity), &fakeTxManager{})

	_, err := svc.Create(context.Background(), entity.ID, map[string]any{"ports": 48}, nil)
	appErr, ok := apperror.AsAppError(err)
	if !ok || appErr.Code != apperror.CodeValidation {
		t.Fatalf("err = %v, want %s", err, apperror.CodeValidation)
	}
	fields, ok := appErr.Details["fields"].(map[string][]string)
	if !ok || len(fields["hostname"]) == 0 {
		t.Errorf("expected per-field errors, got %#v", appErr.Details)
	}
	if len(repo.records) != 0 {
		t.Error("invalid record persisted")
	}
}

func TestService_CreateUnknownEntity(t *testing.T) {
	svc := NewService(newMockRecordRepo(), newMockEntityRepo(), &fakeTxManager{})

	_, err := svc.Create(context.Background(), id.New(), map[string]any{"hostname": "x"}, nil)
	if !apperror.IsNotFound(err) {
		t.Fatalf("err = %v, want not found", err)
	}
}

func TestService_UpdateReplacesWholesale(t *testing.T) {
	entity := switchEntity()
	rec := NewRecord(entity.ID, values.FieldValues{"hostname": "sw-1", "tier": "edge"}, nil)
	repo := newMockRecordRepo(rec)
	txm := &fakeTxManager{}
	svc := NewService(repo, newMockEntityRepo(entity), txm)

	err := svc.Update(context.Background(), rec.ID, map[string]any{"hostname": "sw-1b"}, nil)
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if txm.calls != 1 {
		t.Errorf("expected the read-validate-write to run in one transaction, got %d", txm.calls)
	}

	got := repo.records[rec.ID]
	if got.FieldValues.GetString("hostname") != "sw-1b" {
		t.Errorf("hostname = %q", got.FieldValues.GetString("hostname"))
	}
	// Wholesale replacement: keys left out of the new object are gone.
	if got.FieldValues.Has("tier") {
		t.Error("omitted key survived wholesale update")
	}
}

func TestService_ListByEntityRejectsUnsortableField(t *testing.T) {
	entity := switchEntity() // no field is marked sortable
	svc := NewService(newMockRecordRepo(), newMockEntityRepo(entity), &fakeTxManager{})

	_, err := svc.ListByEntity(context.Background(), entity.ID, ListFilter{OrderByField: "hostname"})
	if err == nil {
		t.Fatal("sorting on an unsortable field accepted")
	}
}

func TestService_ListByEntityRunsReadOnly(t *testing.T) {
	entity := switchEntity()
	rec := NewRecord(entity.ID, values.FieldValues{"hostname": "sw-1"}, nil)
	txm := &fakeTxManager{}
	svc := NewService(newMockRecordRepo(rec), newMockEntityRepo(entity), txm)

	res, err := svc.ListByEntity(context.Background(), entity.ID, ListFilter{})
	if err != nil {
		t.Fatalf("ListByEntity failed: %v", err)
	}
	if len(res.Items) != 1 {
		t.Fatalf("got %d items, want 1", len(res.Items))
	}
	if txm.readOnlyCalls != 1 || txm.calls != 0 {
		t.Errorf("tx usage = %d read-only, %d read-write; want 1, 0", txm.readOnlyCalls, txm.calls)
	}
}
