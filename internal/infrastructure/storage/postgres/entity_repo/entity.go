// Package entity_repo provides the PostgreSQL implementation of the entity
// definition repository.
package entity_repo

import (
	"context"
	"fmt"
	"strings"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"tessera/internal/core/apperror"
	"tessera/internal/core/id"
	"tessera/internal/domain/schema"
	"tessera/internal/infrastructure/storage/postgres"
)

const tableName = "entities"

var selectCols = []string{
	"id", "name", "description", "fields", "version", "created_at", "updated_at",
}

// Compile-time check that Repo implements the domain repository.
var _ schema.Repository = (*Repo)(nil)

// Repo persists entity definitions. Queries run on the transaction carried
// by context when present, otherwise on the pool.
type Repo struct {
	txManager *postgres.TxManager
}

// New creates an entity repository.
func New(txManager *postgres.TxManager) *Repo {
	return &Repo{txManager: txManager}
}

// Builder returns a new squirrel builder with PostgreSQL placeholder format.
func (r *Repo) Builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

func (r *Repo) baseSelect() squirrel.SelectBuilder {
	return r.Builder().Select(selectCols...).From(tableName)
}

// Create inserts a new entity definition.
func (r *Repo) Create(ctx context.Context, entity *schema.Entity) error {
	q := r.Builder().
		Insert(tableName).
		SetMap(map[string]any{
			"id":          entity.ID,
			"name":        entity.Name,
			"description": entity.Description,
			"fields":      entity.Fields,
			"version":     entity.Version,
			"created_at":  entity.CreatedAt,
			"updated_at":  entity.UpdatedAt,
		})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	querier := r.txManager.GetQuerier(ctx)
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return postgres.ClassifyError(err, "entity")
	}
	return nil
}

// GetByID retrieves an entity definition by ID.
func (r *Repo) GetByID(ctx context.Context, entityID id.ID) (*schema.Entity, error) {
	entity := &schema.Entity{}

	q := r.baseSelect().
		Where(squirrel.Eq{"id": entityID}).
		Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, entity, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("entity", entityID.String())
		}
		return nil, postgres.ClassifyError(err, "entity")
	}

	return entity, nil
}

// Update replaces the mutable columns with optimistic locking on version.
func (r *Repo) Update(ctx context.Context, entity *schema.Entity) error {
	q := r.Builder().
		Update(tableName).
		SetMap(map[string]any{
			"name":        entity.Name,
			"description": entity.Description,
			"fields":      entity.Fields,
			"updated_at":  entity.UpdatedAt,
		}).
		Set("version", squirrel.Expr("version + 1")).
		Where(squirrel.Eq{"id": entity.ID}).
		Where(squirrel.Eq{"version": entity.Version}) // optimistic lock: expect current version

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	querier := r.txManager.GetQuerier(ctx)
	result, err := querier.Exec(ctx, sql, args...)
	if err != nil {
		return postgres.ClassifyError(err, "entity")
	}
	if result.RowsAffected() == 0 {
		return apperror.NewConcurrentModification("entity", entity.ID.String())
	}

	entity.Version++
	return nil
}

// Delete removes an entity. Dependent records are removed by the store's
// ON DELETE CASCADE; a referential error only surfaces when the cascade is
// disabled.
func (r *Repo) Delete(ctx context.Context, entityID id.ID) error {
	q := r.Builder().
		Delete(tableName).
		Where(squirrel.Eq{"id": entityID})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}

	querier := r.txManager.GetQuerier(ctx)
	result, err := querier.Exec(ctx, sql, args...)
	if err != nil {
		return postgres.ClassifyError(err, "entity")
	}
	if result.RowsAffected() == 0 {
		return apperror.NewNotFound("entity", entityID.String())
	}
	return nil
}

// List retrieves entity definitions with filtering and pagination.
func (r *Repo) List(ctx context.Context, filter schema.ListFilter) (schema.ListResult, error) {
	result := schema.ListResult{
		Limit:  filter.Limit,
		Offset: filter.Offset,
	}

	q := r.baseSelect()

	if filter.Search != "" {
		q = q.Where(squirrel.ILike{"name": "%" + filter.Search + "%"})
	}

	// Count total (before pagination)
	countQ := r.Builder().
		Select("COUNT(*)").
		FromSelect(q, "sub")

	countSQL, countArgs, err := countQ.ToSql()
	if err != nil {
		return result, fmt.Errorf("build count: %w", err)
	}

	querier := r.txManager.GetQuerier(ctx)
	if err := querier.QueryRow(ctx, countSQL, countArgs...).Scan(&result.TotalCount); err != nil {
		return result, postgres.ClassifyError(err, "entity")
	}

	q = q.OrderBy(orderClause(filter.OrderBy))
	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		q = q.Offset(uint64(filter.Offset))
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return result, fmt.Errorf("build query: %w", err)
	}

	if err := pgxscan.Select(ctx, querier, &result.Items, sql, args...); err != nil {
		return result, postgres.ClassifyError(err, "entity")
	}

	return result, nil
}

// orderClause maps the filter's OrderBy to a safe ORDER BY expression.
// Only known columns are accepted; anything else falls back to name.
func orderClause(orderBy string) string {
	desc := strings.HasPrefix(orderBy, "-")
	col := strings.TrimPrefix(orderBy, "-")

	switch col {
	case "name", "created_at", "updated_at":
	default:
		col = "name"
	}
	if desc {
		return col + " DESC"
	}
	return col + " ASC"
}
