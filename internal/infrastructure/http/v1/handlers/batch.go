package handlers

import (
	"github.com/gin-gonic/gin"

	"tessera/internal/core/apperror"
	"tessera/internal/domain/record"
	"tessera/internal/infrastructure/http/v1/dto"
)

// BatchHandler handles atomic multi-record endpoints. Every operation either
// applies to the whole batch or to none of it.
type BatchHandler struct {
	*BaseHandler
	service *record.BatchService
}

// NewBatchHandler creates a batch handler.
func NewBatchHandler(base *BaseHandler, service *record.BatchService) *BatchHandler {
	return &BatchHandler{BaseHandler: base, service: service}
}

// Create handles POST /records/batch
func (h *BatchHandler) Create(c *gin.Context) {
	var req dto.BatchCreateRequest
	if !h.BindJSON(c, &req) {
		return
	}

	items := make([]record.BatchItem, 0, len(req.Items))
	for i, item := range req.Items {
		entityID, err := parseID(item.EntityID)
		if err != nil {
			h.Error(c, apperror.NewValidation("invalid entityId").
				WithDetail("index", i).
				WithDetail("entityId", item.EntityID))
			return
		}
		items = append(items, record.BatchItem{
			EntityID:    entityID,
			FieldValues: item.FieldValues,
			Metadata:    item.Metadata,
		})
	}

	ids, err := h.service.CreateBatch(c.Request.Context(), items)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.CreatedData(c, dto.NewIDsResponse(ids))
}

// UpdateField handles POST /records/batch/update-field
func (h *BatchHandler) UpdateField(c *gin.Context) {
	var req dto.BatchUpdateFieldRequest
	if !h.BindJSON(c, &req) {
		return
	}

	recordIDs, bad, ok := dto.ParseIDs(req.RecordIDs)
	if !ok {
		h.Error(c, apperror.NewValidation("invalid record id").WithDetail("recordId", bad))
		return
	}
	entityID, err := parseID(req.EntityID)
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid entityId").WithDetail("entityId", req.EntityID))
		return
	}

	ids, err := h.service.UpdateFieldBatch(c.Request.Context(), record.UpdateFieldInput{
		RecordIDs: recordIDs,
		EntityID:  entityID,
		FieldKey:  req.FieldKey,
		Value:     req.Value,
		Clear:     req.Clear,
	})
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.NewIDsResponse(ids))
}

// Delete handles POST /records/batch/delete
func (h *BatchHandler) Delete(c *gin.Context) {
	var req dto.BatchDeleteRequest
	if !h.BindJSON(c, &req) {
		return
	}

	recordIDs, bad, ok := dto.ParseIDs(req.RecordIDs)
	if !ok {
		h.Error(c, apperror.NewValidation("invalid record id").WithDetail("recordId", bad))
		return
	}

	ids, err := h.service.DeleteBatch(c.Request.Context(), recordIDs)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.NewIDsResponse(ids))
}
