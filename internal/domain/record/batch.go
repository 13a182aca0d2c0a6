package record

import (
	"context"
	"fmt"
	"net/http"

	"tessera/internal/core/apperror"
	"tessera/internal/core/id"
	"tessera/internal/core/tx"
	"tessera/internal/domain/schema"
	"tessera/internal/domain/validate"
	"tessera/internal/domain/values"
	"tessera/pkg/logger"
)

// DefaultMaxBatchSize bounds every batch operation.
const DefaultMaxBatchSize = 100

// BatchItem is one record to create in a batch, addressed to its entity.
type BatchItem struct {
	EntityID    id.ID
	FieldValues map[string]any
	Metadata    map[string]any
}

// IndexedError reports a validation failure for one batch item by its
// 0-based input position.
type IndexedError struct {
	Index   int                 `json:"index"`
	Message string              `json:"message"`
	Fields  map[string][]string `json:"fields,omitempty"`
}

// UpdateFieldInput addresses one field across many records of one entity.
// Clear removes the key; otherwise Value overwrites it.
type UpdateFieldInput struct {
	RecordIDs []id.ID
	EntityID  id.ID
	FieldKey  string
	Value     any
	Clear     bool
}

// BatchService provides atomic multi-record operations. Every operation
// validates all items before committing any write: either the whole batch
// lands or none of it does.
type BatchService struct {
	repo      Repository
	entities  schema.Repository
	txManager tx.Manager
	maxSize   int
}

// NewBatchService creates a batch operations service. A maxSize of zero or
// less falls back to the default limit.
func NewBatchService(repo Repository, entities schema.Repository, txManager tx.Manager, maxSize int) *BatchService {
	if maxSize <= 0 {
		maxSize = DefaultMaxBatchSize
	}
	return &BatchService{
		repo:      repo,
		entities:  entities,
		txManager: txManager,
		maxSize:   maxSize,
	}
}

// CreateBatch validates every item against its entity's current field map and
// inserts all of them in one transaction. A single invalid item rejects the
// whole batch with per-index failures; returned IDs preserve input order.
func (s *BatchService) CreateBatch(ctx context.Context, items []BatchItem) ([]id.ID, error) {
	if err := s.checkSize(len(items)); err != nil {
		return nil, err
	}

	// Entities are fetched once per distinct ID to avoid N lookups. A missing
	// entity is kept as a nil sentinel and reported per item in the loop below
	// so failure indices come out in input order.
	entities := make(map[id.ID]*schema.Entity)
	validators := make(map[id.ID]*validate.Validator)

	for _, item := range items {
		if _, seen := entities[item.EntityID]; seen {
			continue
		}
		fetched, err := s.entities.GetByID(ctx, item.EntityID)
		if err != nil {
			if apperror.IsNotFound(err) {
				entities[item.EntityID] = nil
				continue
			}
			return nil, err
		}
		entities[item.EntityID] = fetched

		v, err := validate.Build(fetched.Fields)
		if err != nil {
			return nil, apperror.NewInternal(err)
		}
		validators[fetched.ID] = v
	}

	var indexErrs []IndexedError
	recs := make([]*Record, 0, len(items))
	for i, item := range items {
		entity := entities[item.EntityID]
		if entity == nil {
			indexErrs = append(indexErrs, IndexedError{Index: i, Message: "entity not found"})
			continue
		}

		normalized, fieldErrs := validators[entity.ID].Validate(values.FieldValues(item.FieldValues))
		if len(fieldErrs) > 0 {
			indexErrs = append(indexErrs, IndexedError{
				Index:   i,
				Message: "field validation failed",
				Fields:  validate.GroupErrors(fieldErrs),
			})
			continue
		}
		for key := range normalized {
			if _, known := entity.Fields[key]; !known {
				normalized.Delete(key)
			}
		}
		normalized.StripForbidden()

		meta, err := values.SanitizeMetadata(item.Metadata)
		if err != nil {
			msg := "metadata invalid"
			if appErr, ok := apperror.AsAppError(err); ok {
				if reason, ok := appErr.Details["reason"].(string); ok {
					msg = reason
				}
			}
			indexErrs = append(indexErrs, IndexedError{Index: i, Message: msg})
			continue
		}

		recs = append(recs, NewRecord(entity.ID, normalized, meta))
	}

	if len(indexErrs) > 0 {
		return nil, batchValidationError(indexErrs)
	}

	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		return s.repo.CreateBatch(ctx, recs)
	})
	if err != nil {
		return nil, err
	}

	ids := make([]id.ID, len(recs))
	for i, rec := range recs {
		ids[i] = rec.ID
	}

	logger.Info(ctx, "batch create committed", "count", len(ids))
	return ids, nil
}

// UpdateFieldBatch sets or clears one field across many records of one
// entity. All preconditions are checked before any write; a record belonging
// to a different entity aborts the whole operation.
func (s *BatchService) UpdateFieldBatch(ctx context.Context, in UpdateFieldInput) ([]id.ID, error) {
	if err := s.checkSize(len(in.RecordIDs)); err != nil {
		return nil, err
	}

	entity, err := s.entities.GetByID(ctx, in.EntityID)
	if err != nil {
		return nil, err
	}

	def, ok := entity.Fields[in.FieldKey]
	if !ok {
		return nil, apperror.NewValidation("field is not defined on entity").
			WithDetail("field", in.FieldKey)
	}

	var newValue any
	if in.Clear {
		if def.Required {
			return nil, apperror.NewValidation("cannot clear a required field").
				WithDetail("field", in.FieldKey)
		}
	} else {
		// Reuse the dynamic validator for the single addressed field so
		// enum membership and required/non-empty rules match record writes.
		v, err := validate.Build(schema.FieldMap{in.FieldKey: def})
		if err != nil {
			return nil, apperror.NewInternal(err)
		}
		normalized, fieldErrs := v.Validate(values.FieldValues{in.FieldKey: in.Value})
		if len(fieldErrs) > 0 {
			return nil, apperror.NewFieldValidation("field validation failed", validate.GroupErrors(fieldErrs))
		}
		newValue = normalized[in.FieldKey]
	}

	var updated []id.ID
	err = s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		recs, err := s.repo.GetManyForUpdate(ctx, in.RecordIDs)
		if err != nil {
			return err
		}

		// Cross-entity guard: a single mismatched record aborts everything.
		for _, rec := range recs {
			if rec.EntityID != entity.ID {
				return apperror.NewEntityMismatch(rec.ID, entity.ID)
			}
		}

		for _, rec := range recs {
			fv := rec.FieldValues.Clone()
			if fv == nil {
				fv = make(values.FieldValues)
			}
			if in.Clear {
				fv.Delete(in.FieldKey)
			} else {
				fv.Set(in.FieldKey, newValue)
			}
			if err := s.repo.RewriteFieldValues(ctx, rec.ID, fv); err != nil {
				return err
			}
			updated = append(updated, rec.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "batch field update committed",
		"entity_id", entity.ID, "field", in.FieldKey, "count", len(updated))
	return updated, nil
}

// DeleteBatch removes the given records in one transaction and returns the
// IDs actually deleted. Missing IDs simply do not appear in the result.
func (s *BatchService) DeleteBatch(ctx context.Context, recordIDs []id.ID) ([]id.ID, error) {
	if err := s.checkSize(len(recordIDs)); err != nil {
		return nil, err
	}

	var deleted []id.ID
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		deleted, err = s.repo.DeleteMany(ctx, recordIDs)
		return err
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "batch delete committed", "count", len(deleted))
	return deleted, nil
}

func (s *BatchService) checkSize(n int) error {
	if n < 1 || n > s.maxSize {
		return apperror.NewBatchSizeExceeded(n, s.maxSize)
	}
	return nil
}

func batchValidationError(indexErrs []IndexedError) *apperror.AppError {
	return &apperror.AppError{
		Code:       apperror.CodeBatchValidation,
		Message:    fmt.Sprintf("%d of the submitted items failed validation", len(indexErrs)),
		HTTPStatus: http.StatusBadRequest,
		Details:    map[string]any{"items": indexErrs},
	}
}
