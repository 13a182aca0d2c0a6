package handlers

import (
	"github.com/gin-gonic/gin"

	"tessera/internal/core/apperror"
	"tessera/internal/domain/record"
	"tessera/internal/infrastructure/http/v1/dto"
)

// RecordHandler handles record endpoints.
type RecordHandler struct {
	*BaseHandler
	service *record.Service
}

// NewRecordHandler creates a record handler.
func NewRecordHandler(base *BaseHandler, service *record.Service) *RecordHandler {
	return &RecordHandler{BaseHandler: base, service: service}
}

// Create handles POST /records
func (h *RecordHandler) Create(c *gin.Context) {
	var req dto.CreateRecordRequest
	if !h.BindJSON(c, &req) {
		return
	}

	entityID, err := parseID(req.EntityID)
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid entityId").WithDetail("entityId", req.EntityID))
		return
	}

	rec, err := h.service.Create(c.Request.Context(), entityID, req.FieldValues, req.Metadata)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.CreatedData(c, dto.FromRecord(rec))
}

// Get handles GET /records/:id
func (h *RecordHandler) Get(c *gin.Context) {
	recordID, ok := h.PathID(c, "id")
	if !ok {
		return
	}

	rec, err := h.service.GetByID(c.Request.Context(), recordID)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.FromRecord(rec))
}

// Update handles PUT /records/:id
//
// The field values in the body replace the stored values wholesale after
// validation against the record's entity.
func (h *RecordHandler) Update(c *gin.Context) {
	recordID, ok := h.PathID(c, "id")
	if !ok {
		return
	}

	var req dto.UpdateRecordRequest
	if !h.BindJSON(c, &req) {
		return
	}

	if err := h.service.Update(c.Request.Context(), recordID, req.FieldValues, req.Metadata); err != nil {
		h.Error(c, err)
		return
	}

	rec, err := h.service.GetByID(c.Request.Context(), recordID)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.FromRecord(rec))
}

// Delete handles DELETE /records/:id
func (h *RecordHandler) Delete(c *gin.Context) {
	recordID, ok := h.PathID(c, "id")
	if !ok {
		return
	}

	if err := h.service.Delete(c.Request.Context(), recordID); err != nil {
		h.Error(c, err)
		return
	}

	h.NoContent(c)
}

// ListByEntity handles GET /entities/:id/records
func (h *RecordHandler) ListByEntity(c *gin.Context) {
	entityID, ok := h.PathID(c, "id")
	if !ok {
		return
	}

	var req dto.ListRecordsRequest
	if !h.BindQuery(c, &req) {
		return
	}
	req.Defaults()

	result, err := h.service.ListByEntity(c.Request.Context(), entityID, record.ListFilter{
		OrderByField: req.OrderBy,
		Descending:   req.Descending,
		Limit:        req.Limit,
		Offset:       req.Offset,
	})
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.FromRecordList(result))
}
