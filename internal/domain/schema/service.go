package schema

import (
	"context"
	"strings"

	"tessera/internal/core/apperror"
	"tessera/internal/core/id"
	"tessera/internal/core/tx"
	"tessera/internal/domain/values"
	"tessera/pkg/logger"
)

// ExpressionChecker verifies that every per-field validation expression in a
// field map compiles. Implemented by the validate package; defined here so
// the store does not depend on it.
type ExpressionChecker func(FieldMap) error

// Migrator reconciles existing records with a replaced field map inside the
// caller's transaction. Implemented by migrate.Engine; defined here so the
// store does not depend on the engine package.
type Migrator interface {
	// Reconcile classifies the delta between the stored and replacement
	// field maps, resolves backfill defaults, and rewrites affected records.
	// It must not write anything when default resolution fails.
	Reconcile(ctx context.Context, entityID id.ID, existing, replacement FieldMap, rawDefaults values.FieldValues) (MigrationSummary, error)

	// AffectedCount counts records missing any of the given field keys.
	AffectedCount(ctx context.Context, entityID id.ID, keys []string) (int64, error)
}

// DefaultMaxFields caps how many fields one entity may define.
const DefaultMaxFields = 100

// Auditor records schema changes for the audit trail. Implemented by the
// postgres audit service; a nil auditor disables the trail.
type Auditor interface {
	LogSchemaChange(ctx context.Context, entityID id.ID, action string, changes map[string]any) error
}

// CreateInput carries a new entity definition.
type CreateInput struct {
	Name        string
	Description *string
	Fields      FieldMap
}

// UpdateInput carries a wholesale replacement of an entity definition.
// Defaults supplies backfill values for fields that become required.
type UpdateInput struct {
	ID          id.ID
	Name        string
	Description *string
	Fields      FieldMap
	Defaults    values.FieldValues
}

// Service provides business logic for entity definitions. Updating an entity
// triggers the migration engine inside the same transaction, so the field map
// and its records never diverge.
type Service struct {
	repo      Repository
	txManager tx.Manager
	migrator  Migrator
	auditor   Auditor
	exprCheck ExpressionChecker
	maxFields int
}

// ServiceConfig configures a schema Service.
type ServiceConfig struct {
	Repo      Repository
	TxManager tx.Manager
	Migrator  Migrator
	Auditor   Auditor
	ExprCheck ExpressionChecker
	MaxFields int
}

// NewService creates a schema service.
func NewService(cfg ServiceConfig) *Service {
	maxFields := cfg.MaxFields
	if maxFields <= 0 {
		maxFields = DefaultMaxFields
	}
	return &Service{
		repo:      cfg.Repo,
		txManager: cfg.TxManager,
		migrator:  cfg.Migrator,
		auditor:   cfg.Auditor,
		exprCheck: cfg.ExprCheck,
		maxFields: maxFields,
	}
}

// Create validates and persists a new entity definition.
func (s *Service) Create(ctx context.Context, in CreateInput) (*Entity, error) {
	if err := s.validateDefinition(in.Name, in.Fields); err != nil {
		return nil, err
	}

	entity := NewEntity(strings.TrimSpace(in.Name), in.Description, in.Fields)
	if err := s.repo.Create(ctx, entity); err != nil {
		return nil, err
	}

	logger.Info(ctx, "entity created", "entity_id", entity.ID, "name", entity.Name)
	s.audit(ctx, entity.ID, "create", map[string]any{"fields": in.Fields})
	return entity, nil
}

// Update replaces an entity's definition wholesale and reconciles its records
// in one transaction. Backfill defaults are fully resolved before any write;
// either every newly required field gets a usable default or nothing changes.
func (s *Service) Update(ctx context.Context, in UpdateInput) (*Entity, error) {
	if err := s.validateDefinition(in.Name, in.Fields); err != nil {
		return nil, err
	}

	var updated *Entity
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		existing, err := s.repo.GetByID(ctx, in.ID)
		if err != nil {
			return err
		}

		result, err := s.migrator.Reconcile(ctx, existing.ID, existing.Fields, in.Fields, in.Defaults)
		if err != nil {
			return err
		}

		existing.Name = strings.TrimSpace(in.Name)
		existing.Description = in.Description
		existing.Fields = in.Fields
		existing.Touch()
		if err := s.repo.Update(ctx, existing); err != nil {
			return err
		}
		updated = existing

		s.audit(ctx, existing.ID, "update", map[string]any{
			"fields":    in.Fields,
			"migration": result,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "entity updated", "entity_id", updated.ID, "name", updated.Name)
	return updated, nil
}

// Delete removes an entity definition. The store cascades to its records.
func (s *Service) Delete(ctx context.Context, entityID id.ID) error {
	if err := s.repo.Delete(ctx, entityID); err != nil {
		return err
	}
	logger.Info(ctx, "entity deleted", "entity_id", entityID)
	s.audit(ctx, entityID, "delete", nil)
	return nil
}

// GetByID retrieves an entity definition.
func (s *Service) GetByID(ctx context.Context, entityID id.ID) (*Entity, error) {
	return s.repo.GetByID(ctx, entityID)
}

// List retrieves entity definitions with filtering and pagination. The page
// and its total count are read in one read-only transaction.
func (s *Service) List(ctx context.Context, filter ListFilter) (ListResult, error) {
	if filter.Limit <= 0 {
		filter.Limit = DefaultListFilter().Limit
	}
	var result ListResult
	err := s.txManager.ReadOnly(ctx, func(ctx context.Context) error {
		var err error
		result, err = s.repo.List(ctx, filter)
		return err
	})
	if err != nil {
		return ListResult{}, err
	}
	return result, nil
}

// AffectedRecordCount returns how many records of the entity are missing any
// of the given field keys, for pre-migration warnings.
func (s *Service) AffectedRecordCount(ctx context.Context, entityID id.ID, keys []string) (int64, error) {
	if _, err := s.repo.GetByID(ctx, entityID); err != nil {
		return 0, err
	}
	return s.migrator.AffectedCount(ctx, entityID, keys)
}

// validateDefinition enforces the structural rules shared by create and
// update: non-empty unique-ish name (uniqueness is the store's constraint),
// a non-empty field map within the count limit, shape-valid definitions, and
// compilable validation expressions.
func (s *Service) validateDefinition(name string, fields FieldMap) error {
	if strings.TrimSpace(name) == "" {
		return apperror.NewValidation("entity name must not be empty")
	}
	if len(fields) == 0 {
		return apperror.NewValidation("entity must define at least one field")
	}
	if len(fields) > s.maxFields {
		return apperror.NewFieldCountExceeded(len(fields), s.maxFields)
	}
	for key, def := range fields {
		if err := ValidateShape(key, def); err != nil {
			return err
		}
	}
	if s.exprCheck != nil {
		if err := s.exprCheck(fields); err != nil {
			return apperror.NewValidation("invalid validation expression").WithCause(err)
		}
	}
	return nil
}

func (s *Service) audit(ctx context.Context, entityID id.ID, action string, changes map[string]any) {
	if s.auditor == nil {
		return
	}
	if err := s.auditor.LogSchemaChange(ctx, entityID, action, changes); err != nil {
		logger.Warn(ctx, "schema audit log failed", "entity_id", entityID, "error", err)
	}
}
