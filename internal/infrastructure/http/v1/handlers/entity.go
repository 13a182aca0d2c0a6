package handlers

import (
	"github.com/gin-gonic/gin"

	"tessera/internal/domain/schema"
	"tessera/internal/infrastructure/http/v1/dto"
)

// EntityHandler handles entity definition endpoints.
type EntityHandler struct {
	*BaseHandler
	service *schema.Service
}

// NewEntityHandler creates an entity handler.
func NewEntityHandler(base *BaseHandler, service *schema.Service) *EntityHandler {
	return &EntityHandler{BaseHandler: base, service: service}
}

// List handles GET /entities
func (h *EntityHandler) List(c *gin.Context) {
	var req dto.ListEntitiesRequest
	if !h.BindQuery(c, &req) {
		return
	}
	req.Defaults()

	result, err := h.service.List(c.Request.Context(), schema.ListFilter{
		Search:  req.Search,
		OrderBy: req.OrderBy,
		Limit:   req.Limit,
		Offset:  req.Offset,
	})
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.FromEntityList(result))
}

// Create handles POST /entities
func (h *EntityHandler) Create(c *gin.Context) {
	var req dto.CreateEntityRequest
	if !h.BindJSON(c, &req) {
		return
	}

	entity, err := h.service.Create(c.Request.Context(), schema.CreateInput{
		Name:        req.Name,
		Description: req.Description,
		Fields:      req.Fields,
	})
	if err != nil {
		h.Error(c, err)
		return
	}

	h.CreatedData(c, dto.FromEntity(entity))
}

// Get handles GET /entities/:id
func (h *EntityHandler) Get(c *gin.Context) {
	entityID, ok := h.PathID(c, "id")
	if !ok {
		return
	}

	entity, err := h.service.GetByID(c.Request.Context(), entityID)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.FromEntity(entity))
}

// Update handles PUT /entities/:id
//
// Replaces the definition wholesale and reconciles existing records in the
// same transaction. Fields that become required need entries in
// defaultValues or the whole update is rejected.
func (h *EntityHandler) Update(c *gin.Context) {
	entityID, ok := h.PathID(c, "id")
	if !ok {
		return
	}

	var req dto.UpdateEntityRequest
	if !h.BindJSON(c, &req) {
		return
	}

	entity, err := h.service.Update(c.Request.Context(), schema.UpdateInput{
		ID:          entityID,
		Name:        req.Name,
		Description: req.Description,
		Fields:      req.Fields,
		Defaults:    req.DefaultValues,
	})
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.FromEntity(entity))
}

// Delete handles DELETE /entities/:id
func (h *EntityHandler) Delete(c *gin.Context) {
	entityID, ok := h.PathID(c, "id")
	if !ok {
		return
	}

	if err := h.service.Delete(c.Request.Context(), entityID); err != nil {
		h.Error(c, err)
		return
	}

	h.NoContent(c)
}

// AffectedCount handles POST /entities/:id/affected-count
//
// Reports how many records would be rewritten if the given field keys
// became required, without performing any migration.
func (h *EntityHandler) AffectedCount(c *gin.Context) {
	entityID, ok := h.PathID(c, "id")
	if !ok {
		return
	}

	var req dto.AffectedCountRequest
	if !h.BindJSON(c, &req) {
		return
	}

	count, err := h.service.AffectedRecordCount(c.Request.Context(), entityID, req.FieldKeys)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.AffectedCountResponse{AffectedRecords: count})
}
