package record

import (
	"context"

	"tessera/internal/core/apperror"
	"tessera/internal/core/id"
	"tessera/internal/domain/schema"
	"tessera/internal/domain/values"
)

// Mock objects

type fakeTxManager struct {
	calls         int
	readOnlyCalls int
}

func (m *fakeTxManager) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	m.calls++
	return fn(ctx)
}

func (m *fakeTxManager) ReadOnly(ctx context.Context, fn func(ctx context.Context) error) error {
	m.readOnlyCalls++
	return fn(ctx)
}

type mockEntityRepo struct {
	entities map[id.ID]*schema.Entity
}

func newMockEntityRepo(entities ...*schema.Entity) *mockEntityRepo {
	m := &mockEntityRepo{entities: make(map[id.ID]*schema.Entity)}
	for _, e := range entities {
		m.entities[e.ID] = e
	}
	return m
}

func (m *mockEntityRepo) Create(_ context.Context, e *schema.Entity) error {
	m.entities[e.ID] = e
	return nil
}

func (m *mockEntityRepo) GetByID(_ context.Context, entityID id.ID) (*schema.Entity, error) {
	e, ok := m.entities[entityID]
	if !ok {
		return nil, apperror.NewNotFound("entity", entityID.String())
	}
	return e, nil
}

func (m *mockEntityRepo) Update(_ context.Context, e *schema.Entity) error {
	m.entities[e.ID] = e
	return nil
}

func (m *mockEntityRepo) Delete(_ context.Context, entityID id.ID) error {
	delete(m.entities, entityID)
	return nil
}

func (m *mockEntityRepo) List(_ context.Context, _ schema.ListFilter) (schema.ListResult, error) {
	return schema.ListResult{}, nil
}

type mockRecordRepo struct {
	records      map[id.ID]*Record
	batchCreated [][]*Record
	rewritten    map[string]values.FieldValues
}

func newMockRecordRepo(records ...*Record) *mockRecordRepo {
	m := &mockRecordRepo{
		records:   make(map[id.ID]*Record),
		rewritten: make(map[string]values.FieldValues),
	}
	for _, r := range records {
		m.records[r.ID] = r
	}
	return m
}

func (m *mockRecordRepo) Create(_ context.Context, rec *Record) error {
	m.records[rec.ID] = rec
	return nil
}

func (m *mockRecordRepo) GetByID(_ context.Context, recordID id.ID) (*Record, error) {
	rec, ok := m.records[recordID]
	if !ok {
		return nil, apperror.NewNotFound("record", recordID.String())
	}
	return rec, nil
}

func (m *mockRecordRepo) Update(_ context.Context, rec *Record) error {
	if _, ok := m.records[rec.ID]; !ok {
		return apperror.NewNotFound("record", rec.ID.String())
	}
	m.records[rec.ID] = rec
	return nil
}

func (m *mockRecordRepo) Delete(_ context.Context, recordID id.ID) error {
	if _, ok := m.records[recordID]; !ok {
		return apperror.NewNotFound("record", recordID.String())
	}
	delete(m.records, recordID)
	return nil
}

func (m *mockRecordRepo) ListByEntity(_ context.Context, entityID id.ID, filter ListFilter) (ListResult, error) {
	var result ListResult
	for _, rec := range m.records {
		if rec.EntityID == entityID {
			result.Items = append(result.Items, rec)
		}
	}
	result.TotalCount = int64(len(result.Items))
	result.Limit = filter.Limit
	result.Offset = filter.Offset
	return result, nil
}

func (m *mockRecordRepo) CreateBatch(_ context.Context, recs []*Record) error {
	m.batchCreated = append(m.batchCreated, recs)
	for _, rec := range recs {
		m.records[rec.ID] = rec
	}
	return nil
}

func (m *mockRecordRepo) GetManyForUpdate(_ context.Context, recordIDs []id.ID) ([]*Record, error) {
	var out []*Record
	for _, recordID := range recordIDs {
		if rec, ok := m.records[recordID]; ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (m *mockRecordRepo) RewriteFieldValues(_ context.Context, recordID id.ID, fv values.FieldValues) error {
	rec, ok := m.records[recordID]
	if !ok {
		return apperror.NewNotFound("record", recordID.String())
	}
	rec.FieldValues = fv
	m.rewritten[recordID.String()] = fv
	return nil
}

func (m *mockRecordRepo) DeleteMany(_ context.Context, recordIDs []id.ID) ([]id.ID, error) {
	var deleted []id.ID
	for _, recordID := range recordIDs {
		if _, ok := m.records[recordID]; ok {
			delete(m.records, recordID)
			deleted = append(deleted, recordID)
		}
	}
	return deleted, nil
}
