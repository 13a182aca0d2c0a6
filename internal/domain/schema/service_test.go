package schema

import (
	"context"
	"strconv"
	"testing"

	"tessera/internal/core/apperror"
	"tessera/internal/core/id"
	"tessera/internal/domain/values"
)

// Mock objects

type fakeTxManager struct{}

func (fakeTxManager) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (fakeTxManager) ReadOnly(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type mockRepo struct {
	entities map[id.ID]*Entity
}

func newMockRepo(entities ...*Entity) *mockRepo {
	m := &mockRepo{entities: make(map[id.ID]*Entity)}
	for _, e := range entities {
		m.entities[e.ID] = e
	}
	return m
}

func (m *mockRepo) Create(_ context.Context, e *Entity) error {
	m.entities[e.ID] = e
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, entityID id.ID) (*Entity, error) {
	e, ok := m.entities[entityID]
	if !ok {
		return nil, apperror.NewNotFound("entity", entityID.String())
	}
	return e, nil
}

func (m *mockRepo) Update(_ context.Context, e *Entity) error {
	m.entities[e.ID] = e
	e.Version++
	return nil
}

func (m *mockRepo) Delete(_ context.Context, entityID id.ID) error {
	if _, ok := m.entities[entityID]; !ok {
		return apperror.NewNotFound("entity", entityID.String())
	}
	delete(m.entities, entityID)
	return nil
}

func (m *mockRepo) List(_ context.Context, _ ListFilter) (ListResult, error) {
	return ListResult{}, nil
}

type mockMigrator struct {
	calls   int
	lastOld FieldMap
	lastNew FieldMap
	err     error
	summary MigrationSummary
}

func (m *mockMigrator) Reconcile(_ context.Context, _ id.ID, existing, replacement FieldMap, _ values.FieldValues) (MigrationSummary, error) {
	m.calls++
	m.lastOld = existing
	m.lastNew = replacement
	return m.summary, m.err
}

func (m *mockMigrator) AffectedCount(_ context.Context, _ id.ID, _ []string) (int64, error) {
	return 5, nil
}

func newTestService(repo Repository, migrator Migrator) *Service {
	return NewService(ServiceConfig{
		Repo:      repo,
		TxManager: fakeTxManager{},
		Migrator:  migrator,
	})
}

func validFields() FieldMap {
	return FieldMap{
		"hostname": {Label: "Hostname", Type: TypeString, Required: true},
		"tier":     {Label: "Tier", Type: TypeEnum, Options: []string{"core", "edge"}},
	}
}

func TestService_Create(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo, &mockMigrator{})

	entity, err := svc.Create(context.Background(), CreateInput{Name: "Switch", Fields: validFields()})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if entity.Version != 1 {
		t.Errorf("Version = %d, want 1", entity.Version)
	}
	if _, ok := repo.entities[entity.ID]; !ok {
		t.Error("entity not persisted")
	}
}

func TestService_CreateValidation(t *testing.T) {
	svc := newTestService(newMockRepo(), &mockMigrator{})
	ctx := context.Background()

	tests := []struct {
		name string
		in   CreateInput
	}{
		{"empty name", CreateInput{Name: "  ", Fields: validFields()}},
		{"no fields", CreateInput{Name: "Switch"}},
		{"enum without options", CreateInput{Name: "Switch", Fields: FieldMap{
			"tier": {Label: "Tier", Type: TypeEnum},
		}}},
		{"options on non-enum", CreateInput{Name: "Switch", Fields: FieldMap{
			"name": {Label: "Name", Type: TypeString, Options: []string{"a"}},
		}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Create(ctx, tt.in); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestService_CreateRejectsUncompilableExpression(t *testing.T) {
	svc := NewService(ServiceConfig{
		Repo:      newMockRepo(),
		TxManager: fakeTxManager{},
		Migrator:  &mockMigrator{},
		ExprCheck: func(FieldMap) error {
			return apperror.NewValidation("compile failed")
		},
	})

	_, err := svc.Create(context.Background(), CreateInput{Name: "Switch", Fields: validFields()})
	if err == nil {
		t.Fatal("expected expression check failure to reject the definition")
	}
}

func TestService_CreateFieldCountLimit(t *testing.T) {
	svc := NewService(ServiceConfig{
		Repo:      newMockRepo(),
		TxManager: fakeTxManager{},
		Migrator:  &mockMigrator{},
		MaxFields: 3,
	})

	fields := make(FieldMap)
	for i := 0; i < 4; i++ {
		fields["f"+strconv.Itoa(i)] = FieldDef{Label: "F", Type: TypeString, Order: i}
	}

	_, err := svc.Create(context.Background(), CreateInput{Name: "Big", Fields: fields})
	appErr, ok := apperror.AsAppError(err)
	if !ok || appErr.Code != apperror.CodeFieldCountExceeded {
		t.Fatalf("err = %v, want %s", err, apperror.CodeFieldCountExceeded)
	}
}

func TestService_UpdateRunsMigration(t *testing.T) {
	existing := NewEntity("Switch", nil, validFields())
	repo := newMockRepo(existing)
	migrator := &mockMigrator{}
	svc := newTestService(repo, migrator)

	replacement := validFields()
	replacement["ports"] = FieldDef{Label: "Ports", Type: TypeNumber, Required: true, Order: 5}

	updated, err := svc.Update(context.Background(), UpdateInput{
		ID:       existing.ID,
		Name:     "Switch",
		Fields:   replacement,
		Defaults: values.FieldValues{"ports": 24},
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	if migrator.calls != 1 {
		t.Fatalf("migrator called %d times", migrator.calls)
	}
	if _, ok := migrator.lastNew["ports"]; !ok {
		t.Error("migrator did not receive the replacement field map")
	}
	if _, ok := updated.Fields["ports"]; !ok {
		t.Error("definition not replaced")
	}
}

func TestService_UpdateAbortsOnMigrationFailure(t *testing.T) {
	existing := NewEntity("Switch", nil, validFields())
	repo := newMockRepo(existing)
	migrator := &mockMigrator{err: apperror.NewMissingDefaults([]string{"ports"})}
	svc := newTestService(repo, migrator)

	replacement := validFields()
	replacement["ports"] = FieldDef{Label: "Ports", Type: TypeNumber, Required: true}

	_, err := svc.Update(context.Background(), UpdateInput{
		ID:     existing.ID,
		Name:   "Switch",
		Fields: replacement,
	})
	appErr, ok := apperror.AsAppError(err)
	if !ok || appErr.Code != apperror.CodeMissingDefaults {
		t.Fatalf("err = %v, want %s", err, apperror.CodeMissingDefaults)
	}
	if _, ok := repo.entities[existing.ID].Fields["ports"]; ok {
		t.Error("definition replaced despite migration failure")
	}
}

func TestService_AffectedRecordCount(t *testing.T) {
	existing := NewEntity("Switch", nil, validFields())
	svc := newTestService(newMockRepo(existing), &mockMigrator{})

	n, err := svc.AffectedRecordCount(context.Background(), existing.ID, []string{"ports"})
	if err != nil || n != 5 {
		t.Fatalf("AffectedRecordCount = %d, %v", n, err)
	}

	// Unknown entity is rejected before counting.
	if _, err := svc.AffectedRecordCount(context.Background(), id.New(), []string{"ports"}); err == nil {
		t.Error("unknown entity accepted")
	}
}
