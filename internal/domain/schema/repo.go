package schema

import (
	"context"

	"tessera/internal/core/id"
)

// ListFilter contains filtering options for entity list operations.
type ListFilter struct {
	// Search matches against entity name (case-insensitive substring)
	Search string

	// OrderBy specifies sorting (e.g., "name", "-created_at")
	OrderBy string

	// Pagination
	Limit  int
	Offset int
}

// DefaultListFilter returns sensible defaults.
func DefaultListFilter() ListFilter {
	return ListFilter{
		Limit:   50,
		OrderBy: "name",
	}
}

// ListResult contains paginated results.
type ListResult struct {
	Items      []*Entity `json:"items"`
	TotalCount int64     `json:"totalCount"`
	Limit      int       `json:"limit"`
	Offset     int       `json:"offset"`
}

// MigrationSummary reports what one schema migration run touched.
type MigrationSummary struct {
	RecordsExamined  int `json:"records_examined"`
	RecordsRewritten int `json:"records_rewritten"`
	BackfilledFields int `json:"backfilled_fields"`
	PrunedKeys       int `json:"pruned_keys"`
}

// Repository defines persistence for entity definitions.
// Implemented in infrastructure/storage/postgres/entity_repo.
type Repository interface {
	// Create inserts a new entity definition. A unique-constraint conflict
	// on name surfaces as a Duplicate error.
	Create(ctx context.Context, entity *Entity) error

	// GetByID retrieves an entity by ID.
	GetByID(ctx context.Context, id id.ID) (*Entity, error)

	// Update replaces name, description and fields with optimistic locking
	// on the version column.
	Update(ctx context.Context, entity *Entity) error

	// Delete removes the entity; the store cascades to its records.
	Delete(ctx context.Context, id id.ID) error

	// List retrieves entities with filtering and pagination.
	List(ctx context.Context, filter ListFilter) (ListResult, error)
}
