package dto

import (
	"encoding/json"
	"time"

	"tessera/internal/domain/record"
)

// --- Record Requests ---

// CreateRecordRequest for creating a record of an entity.
type CreateRecordRequest struct {
	EntityID    string         `json:"entityId" binding:"required"`
	FieldValues map[string]any `json:"fieldValues" binding:"required"`
	Metadata    map[string]any `json:"metadata"`
}

// UpdateRecordRequest replaces a record's field values wholesale.
type UpdateRecordRequest struct {
	FieldValues map[string]any `json:"fieldValues" binding:"required"`
	Metadata    map[string]any `json:"metadata"`
}

// ListRecordsRequest contains record list filters.
type ListRecordsRequest struct {
	PaginationRequest
	OrderBy    string `form:"orderBy"`
	Descending bool   `form:"desc"`
}

// --- Batch Requests ---

// BatchCreateRequest creates up to the batch limit of records atomically.
type BatchCreateRequest struct {
	Items []BatchCreateItem `json:"items" binding:"required,min=1"`
}

// BatchCreateItem is one record of a batch create.
type BatchCreateItem struct {
	EntityID    string         `json:"entityId" binding:"required"`
	FieldValues map[string]any `json:"fieldValues" binding:"required"`
	Metadata    map[string]any `json:"metadata"`
}

// BatchUpdateFieldRequest sets or clears one field across many records of
// one entity.
type BatchUpdateFieldRequest struct {
	RecordIDs []string `json:"recordIds" binding:"required,min=1"`
	EntityID  string   `json:"entityId" binding:"required"`
	FieldKey  string   `json:"fieldKey" binding:"required"`
	Value     any      `json:"value"`
	Clear     bool     `json:"clear"`
}

// BatchDeleteRequest removes many records atomically.
type BatchDeleteRequest struct {
	RecordIDs []string `json:"recordIds" binding:"required,min=1"`
}

// --- Record Responses ---

// RecordResponse contains one record.
type RecordResponse struct {
	ID          string          `json:"id"`
	EntityID    string          `json:"entityId"`
	FieldValues map[string]any  `json:"fieldValues"`
	Metadata    map[string]any  `json:"metadata,omitempty"`
	Assets      json.RawMessage `json:"assets,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// FromRecord creates RecordResponse from record.Record.
func FromRecord(r *record.Record) RecordResponse {
	return RecordResponse{
		ID:          r.ID.String(),
		EntityID:    r.EntityID.String(),
		FieldValues: r.FieldValues,
		Metadata:    r.Metadata,
		Assets:      r.Assets,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

// RecordListResponse wraps a record listing.
type RecordListResponse struct {
	Items      []RecordResponse `json:"items"`
	TotalCount int64            `json:"totalCount"`
	Limit      int              `json:"limit"`
	Offset     int              `json:"offset"`
}

// FromRecordList creates RecordListResponse from a repository listing.
func FromRecordList(r record.ListResult) RecordListResponse {
	items := make([]RecordResponse, 0, len(r.Items))
	for _, rec := range r.Items {
		items = append(items, FromRecord(rec))
	}
	return RecordListResponse{
		Items:      items,
		TotalCount: r.TotalCount,
		Limit:      r.Limit,
		Offset:     r.Offset,
	}
}
