package record

import (
	"context"

	"tessera/internal/core/id"
	"tessera/internal/domain/values"
)

// ListFilter contains filtering options for record list operations.
type ListFilter struct {
	// OrderByField sorts on a field value inside the JSONB document.
	// The service only accepts keys marked sortable on the entity.
	OrderByField string

	// Descending reverses the sort order.
	Descending bool

	// Pagination
	Limit  int
	Offset int
}

// DefaultListFilter returns sensible defaults.
func DefaultListFilter() ListFilter {
	return ListFilter{Limit: 50}
}

// ListResult contains paginated results.
type ListResult struct {
	Items      []*Record `json:"items"`
	TotalCount int64     `json:"totalCount"`
	Limit      int       `json:"limit"`
	Offset     int       `json:"offset"`
}

// Repository defines persistence for records.
// Implemented in infrastructure/storage/postgres/record_repo.
type Repository interface {
	// Create inserts a single record. A missing entity surfaces as a
	// referential violation translated by the store.
	Create(ctx context.Context, rec *Record) error

	// GetByID retrieves a record by ID.
	GetByID(ctx context.Context, recordID id.ID) (*Record, error)

	// Update persists field values and metadata of an existing record.
	Update(ctx context.Context, rec *Record) error

	// Delete removes a record.
	Delete(ctx context.Context, recordID id.ID) error

	// ListByEntity retrieves records of one entity with pagination.
	ListByEntity(ctx context.Context, entityID id.ID, filter ListFilter) (ListResult, error)

	// CreateBatch inserts all records in one statement. Must run inside a
	// transaction; the caller guarantees every record is already validated.
	CreateBatch(ctx context.Context, recs []*Record) error

	// GetManyForUpdate fetches records by ID with row locks, in a stable
	// order. Missing IDs are simply absent from the result.
	GetManyForUpdate(ctx context.Context, recordIDs []id.ID) ([]*Record, error)

	// RewriteFieldValues persists a record's replacement field values and
	// bumps its updated_at.
	RewriteFieldValues(ctx context.Context, recordID id.ID, fv values.FieldValues) error

	// DeleteMany removes the given records and returns the IDs actually
	// deleted. Missing IDs are not an error.
	DeleteMany(ctx context.Context, recordIDs []id.ID) ([]id.ID, error)
}
