// Package dto provides Data Transfer Objects for API requests/responses.
package dto

import (
	"tessera/internal/core/id"
)

// --- Pagination ---

// PaginationRequest contains pagination parameters.
type PaginationRequest struct {
	Limit  int `form:"limit" binding:"omitempty,min=1,max=200"`
	Offset int `form:"offset" binding:"omitempty,min=0"`
}

// Defaults sets default pagination values.
func (p *PaginationRequest) Defaults() {
	if p.Limit == 0 {
		p.Limit = 50
	}
}

// --- ID Responses ---

// IDResponse for create operations.
type IDResponse struct {
	ID string `json:"id"`
}

// NewIDResponse creates ID response.
func NewIDResponse(i id.ID) IDResponse {
	return IDResponse{ID: i.String()}
}

// IDsResponse for batch operations returning multiple IDs.
type IDsResponse struct {
	IDs []string `json:"ids"`
}

// NewIDsResponse creates a batch ID response preserving input order.
func NewIDsResponse(ids []id.ID) IDsResponse {
	out := IDsResponse{IDs: make([]string, 0, len(ids))}
	for _, i := range ids {
		out.IDs = append(out.IDs, i.String())
	}
	return out
}

// --- Success Response ---

// SuccessResponse for operations without data.
type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// --- Error Response ---

// ErrorResponse for error details.
type ErrorResponse struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// ParseIDs converts string UUIDs into typed IDs, reporting the first
// malformed value.
func ParseIDs(raw []string) ([]id.ID, string, bool) {
	ids := make([]id.ID, 0, len(raw))
	for _, s := range raw {
		parsed, err := id.Parse(s)
		if err != nil {
			return nil, s, false
		}
		ids = append(ids, parsed)
	}
	return ids, "", true
}
