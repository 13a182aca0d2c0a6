package dto

import (
	"time"

	"tessera/internal/domain/schema"
)

// --- Entity Requests ---

// CreateEntityRequest for creating entity definitions.
type CreateEntityRequest struct {
	Name        string          `json:"name" binding:"required"`
	Description *string         `json:"description"`
	Fields      schema.FieldMap `json:"fields" binding:"required"`
}

// UpdateEntityRequest replaces an entity definition wholesale.
// DefaultValues supplies backfill values for fields that become required.
type UpdateEntityRequest struct {
	Name          string          `json:"name" binding:"required"`
	Description   *string         `json:"description"`
	Fields        schema.FieldMap `json:"fields" binding:"required"`
	DefaultValues map[string]any  `json:"defaultValues"`
}

// ListEntitiesRequest contains entity list filters.
type ListEntitiesRequest struct {
	PaginationRequest
	Search  string `form:"search"`
	OrderBy string `form:"orderBy"`
}

// AffectedCountRequest asks how many records a backfill would rewrite.
type AffectedCountRequest struct {
	FieldKeys []string `json:"fieldKeys" binding:"required,min=1"`
}

// --- Entity Responses ---

// EntityResponse contains one entity definition.
type EntityResponse struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description *string         `json:"description,omitempty"`
	Fields      schema.FieldMap `json:"fields"`
	Version     int             `json:"version"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// FromEntity creates EntityResponse from schema.Entity.
func FromEntity(e *schema.Entity) EntityResponse {
	return EntityResponse{
		ID:          e.ID.String(),
		Name:        e.Name,
		Description: e.Description,
		Fields:      e.Fields,
		Version:     e.Version,
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
	}
}

// EntityListResponse wraps an entity listing.
type EntityListResponse struct {
	Items      []EntityResponse `json:"items"`
	TotalCount int64            `json:"totalCount"`
	Limit      int              `json:"limit"`
	Offset     int              `json:"offset"`
}

// FromEntityList creates EntityListResponse from a repository listing.
func FromEntityList(r schema.ListResult) EntityListResponse {
	items := make([]EntityResponse, 0, len(r.Items))
	for _, e := range r.Items {
		items = append(items, FromEntity(e))
	}
	return EntityListResponse{
		Items:      items,
		TotalCount: r.TotalCount,
		Limit:      r.Limit,
		Offset:     r.Offset,
	}
}

// AffectedCountResponse reports the backfill blast radius.
type AffectedCountResponse struct {
	AffectedRecords int64 `json:"affectedRecords"`
}
