package record

import (
	"context"

	"tessera/internal/core/apperror"
	"tessera/internal/core/id"
	"tessera/internal/core/tx"
	"tessera/internal/domain/schema"
	"tessera/internal/domain/validate"
	"tessera/internal/domain/values"
	"tessera/pkg/logger"
)

// Service provides business logic for single-record operations. Every write
// path validates the submitted field values against the owning entity's
// current field map; the validator receives the map as an explicit snapshot,
// never shared mutable state.
type Service struct {
	repo      Repository
	entities  schema.Repository
	txManager tx.Manager
}

// NewService creates a record service.
func NewService(repo Repository, entities schema.Repository, txManager tx.Manager) *Service {
	return &Service{repo: repo, entities: entities, txManager: txManager}
}

// Create validates, normalizes and persists a new record for the entity.
func (s *Service) Create(ctx context.Context, entityID id.ID, fieldValues map[string]any, metadata map[string]any) (*Record, error) {
	entity, err := s.entities.GetByID(ctx, entityID)
	if err != nil {
		return nil, err
	}

	fv, err := s.validateValues(entity.Fields, fieldValues)
	if err != nil {
		return nil, err
	}

	meta, err := values.SanitizeMetadata(metadata)
	if err != nil {
		return nil, err
	}

	rec := NewRecord(entity.ID, fv, meta)
	if err := s.repo.Create(ctx, rec); err != nil {
		return nil, err
	}

	logger.Debug(ctx, "record created", "record_id", rec.ID, "entity_id", entity.ID)
	return rec, nil
}

// Update replaces a record's field values and metadata. A full values object
// is expected; partial updates are not supported at this layer. The
// read-validate-write sequence runs in one transaction so the field map the
// values were validated against is the one in effect at write time.
func (s *Service) Update(ctx context.Context, recordID id.ID, fieldValues map[string]any, metadata map[string]any) error {
	return s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		rec, err := s.repo.GetByID(ctx, recordID)
		if err != nil {
			return err
		}

		entity, err := s.entities.GetByID(ctx, rec.EntityID)
		if err != nil {
			return err
		}

		fv, err := s.validateValues(entity.Fields, fieldValues)
		if err != nil {
			return err
		}

		meta, err := values.SanitizeMetadata(metadata)
		if err != nil {
			return err
		}

		rec.FieldValues = fv
		rec.Metadata = meta
		rec.Touch()
		return s.repo.Update(ctx, rec)
	})
}

// Delete removes a record.
func (s *Service) Delete(ctx context.Context, recordID id.ID) error {
	return s.repo.Delete(ctx, recordID)
}

// GetByID retrieves a record.
func (s *Service) GetByID(ctx context.Context, recordID id.ID) (*Record, error) {
	return s.repo.GetByID(ctx, recordID)
}

// ListByEntity retrieves records of one entity under a read-only
// transaction, so the entity's field map and the page of records come from
// one snapshot. Sorting is only permitted on fields the entity marks
// sortable.
func (s *Service) ListByEntity(ctx context.Context, entityID id.ID, filter ListFilter) (ListResult, error) {
	var result ListResult
	err := s.txManager.ReadOnly(ctx, func(ctx context.Context) error {
		entity, err := s.entities.GetByID(ctx, entityID)
		if err != nil {
			return err
		}

		if filter.OrderByField != "" {
			def, ok := entity.Fields[filter.OrderByField]
			if !ok || !def.Sortable {
				return apperror.NewValidation("field is not sortable").
					WithDetail("field", filter.OrderByField)
			}
		}
		if filter.Limit <= 0 {
			filter.Limit = DefaultListFilter().Limit
		}

		result, err = s.repo.ListByEntity(ctx, entity.ID, filter)
		return err
	})
	if err != nil {
		return ListResult{}, err
	}
	return result, nil
}

// validateValues runs the dynamic validator against submitted field values
// and strips keys the field map does not define. The validator itself passes
// unknown keys through; dropping them here is a deliberate
// forward-compatibility choice.
func (s *Service) validateValues(fields schema.FieldMap, in map[string]any) (values.FieldValues, error) {
	v, err := validate.Build(fields)
	if err != nil {
		// Expressions were compile-checked at schema save; a failure here
		// means the stored definition is corrupt.
		return nil, apperror.NewInternal(err)
	}

	normalized, fieldErrs := v.Validate(values.FieldValues(in))
	if len(fieldErrs) > 0 {
		return nil, apperror.NewFieldValidation("field validation failed", validate.GroupErrors(fieldErrs))
	}

	for key := range normalized {
		if _, known := fields[key]; !known {
			normalized.Delete(key)
		}
	}
	normalized.StripForbidden()
	return normalized, nil
}
