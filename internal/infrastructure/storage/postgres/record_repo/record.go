// Package record_repo provides the PostgreSQL implementation of the record
// repository, including the bulk paths used by batch operations and schema
// migration.
package record_repo

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"

	"tessera/internal/core/apperror"
	"tessera/internal/core/id"
	"tessera/internal/domain/migrate"
	"tessera/internal/domain/record"
	"tessera/internal/domain/values"
	"tessera/internal/infrastructure/storage/postgres"
)

const tableName = "records"

var selectCols = []string{
	"id", "entity_id", "field_values", "metadata", "assets", "created_at", "updated_at",
}

// Compile-time checks against both consumers of this repository.
var (
	_ record.Repository      = (*Repo)(nil)
	_ migrate.RecordRewriter = (*Repo)(nil)
)

// Repo persists records. Queries run on the transaction carried by context
// when present, otherwise on the pool.
type Repo struct {
	txManager *postgres.TxManager
}

// New creates a record repository.
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

// Create inserts a single record.
func (r *Repo) Create(ctx context.Context, rec *record.Record) error {
	q := r.Builder().
		Insert(tableName).
		SetMap(map[string]any{
			"id":           rec.ID,
			"entity_id":    rec.EntityID,
			"field_values": rec.FieldValues,
			"metadata":     rec.Metadata,
			"assets":       rec.Assets,
			"created_at":   rec.CreatedAt,
			"updated_at":   rec.UpdatedAt,
		})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	querier := r.txManager.GetQuerier(ctx)
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return postgres.ClassifyError(err, "record")
	}
	return nil
}

// GetByID retrieves a record by ID.
func (r *Repo) GetByID(ctx context.Context, recordID id.ID) (*record.Record, error) {
	rec := &record.Record{}

	q := r.baseSelect().
		Where(squirrel.Eq{"id": recordID}).
		Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, rec, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("record", recordID.String())
		}
		return nil, postgres.ClassifyError(err, "record")
	}

	return rec, nil
}

// Update persists field values and metadata of an existing record.
func (r *Repo) Update(ctx context.Context, rec *record.Record) error {
	q := r.Builder().
		Update(tableName).
		SetMap(map[string]any{
			"field_values": rec.FieldValues,
			"metadata":     rec.Metadata,
			"updated_at":   rec.UpdatedAt,
		}).
		Where(squirrel.Eq{"id": rec.ID})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	querier := r.txManager.GetQuerier(ctx)
	result, err := querier.Exec(ctx, sql, args...)
	if err != nil {
		return postgres.ClassifyError(err, "record")
	}
	if result.RowsAffected() == 0 {
		return apperror.NewNotFound("record", rec.ID.String())
	}
	return nil
}

// Delete removes a record.
func (r *Repo) Delete(ctx context.Context, recordID id.ID) error {
	q := r.Builder().
		Delete(tableName).
		Where(squirrel.Eq{"id": recordID})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}

	querier := r.txManager.GetQuerier(ctx)
	result, err := querier.Exec(ctx, sql, args...)
	if err != nil {
		return postgres.ClassifyError(err, "record")
	}
	if result.RowsAffected() == 0 {
		return apperror.NewNotFound("record", recordID.String())
	}
	return nil
}

// ListByEntity retrieves records of one entity with pagination. Sorting on a
// field value orders by its JSONB text representation; the service has
// already checked the field is sortable.
func (r *Repo) ListByEntity(ctx context.Context, entityID id.ID, filter record.ListFilter) (record.ListResult, error) {
	result := record.ListResult{
		Limit:  filter.Limit,
		Offset: filter.Offset,
	}

	q := r.baseSelect().Where(squirrel.Eq{"entity_id": entityID})

	countQ := r.Builder().
		Select("COUNT(*)").
		FromSelect(q, "sub")

	countSQL, countArgs, err := countQ.ToSql()
	if err != nil {
		return result, fmt.Errorf("build count: %w", err)
	}

	querier := r.txManager.GetQuerier(ctx)
	if err := querier.QueryRow(ctx, countSQL, countArgs...).Scan(&result.TotalCount); err != nil {
		return result, postgres.ClassifyError(err, "record")
	}

	if filter.OrderByField != "" {
		dir := "ASC"
		if filter.Descending {
			dir = "DESC"
		}
		q = q.OrderByClause("field_values->>? "+dir, filter.OrderByField)
	} else {
		q = q.OrderBy("id ASC")
	}
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
		return result, postgres.ClassifyError(err, "record")
	}

	return result, nil
}

// CreateBatch inserts all records through the COPY protocol. Requires the
// surrounding transaction so a failure rolls back every row.
func (r *Repo) CreateBatch(ctx context.Context, recs []*record.Record) error {
	tx := r.txManager.GetTx(ctx)
	if tx == nil {
		return fmt.Errorf("CreateBatch requires transaction context")
	}

	rows := make([][]any, 0, len(recs))
	for _, rec := range recs {
		fv, err := json.Marshal(rec.FieldValues)
		if err != nil {
			return fmt.Errorf("marshal field values: %w", err)
		}
		var meta []byte
		if rec.Metadata != nil {
			meta, err = json.Marshal(rec.Metadata)
			if err != nil {
				return fmt.Errorf("marshal metadata: %w", err)
			}
		}
		rows = append(rows, []any{
			rec.ID, rec.EntityID, fv, meta, []byte(rec.Assets),
			rec.CreatedAt, rec.UpdatedAt,
		})
	}

	_, err := tx.CopyFrom(ctx, pgx.Identifier{tableName}, selectCols, pgx.CopyFromRows(rows))
	if err != nil {
		return postgres.ClassifyError(err, "record")
	}
	return nil
}

// GetManyForUpdate fetches records by ID with row locks in stable order.
func (r *Repo) GetManyForUpdate(ctx context.Context, recordIDs []id.ID) ([]*record.Record, error) {
	q := r.baseSelect().
		Where(squirrel.Eq{"id": recordIDs}).
		OrderBy("id ASC").
		Suffix("FOR UPDATE")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var recs []*record.Record
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &recs, sql, args...); err != nil {
		return nil, postgres.ClassifyError(err, "record")
	}
	return recs, nil
}

// RewriteFieldValues persists a record's replacement field values.
func (r *Repo) RewriteFieldValues(ctx context.Context, recordID id.ID, fv values.FieldValues) error {
	q := r.Builder().
		Update(tableName).
		Set("field_values", fv).
		Set("updated_at", squirrel.Expr("now()")).
		Where(squirrel.Eq{"id": recordID})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	querier := r.txManager.GetQuerier(ctx)
	result, err := querier.Exec(ctx, sql, args...)
	if err != nil {
		return postgres.ClassifyError(err, "record")
	}
	if result.RowsAffected() == 0 {
		return apperror.NewNotFound("record", recordID.String())
	}
	return nil
}

// DeleteMany removes the given records and returns the IDs actually deleted.
func (r *Repo) DeleteMany(ctx context.Context, recordIDs []id.ID) ([]id.ID, error) {
	q := r.Builder().
		Delete(tableName).
		Where(squirrel.Eq{"id": recordIDs}).
		Suffix("RETURNING id")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build delete: %w", err)
	}

	querier := r.txManager.GetQuerier(ctx)
	rows, err := querier.Query(ctx, sql, args...)
	if err != nil {
		return nil, postgres.ClassifyError(err, "record")
	}
	defer rows.Close()

	var deleted []id.ID
	for rows.Next() {
		var rid id.ID
		if err := rows.Scan(&rid); err != nil {
			return nil, postgres.ClassifyError(err, "record")
		}
		deleted = append(deleted, rid)
	}
	if err := rows.Err(); err != nil {
		return nil, postgres.ClassifyError(err, "record")
	}
	return deleted, nil
}

// ListFieldValuesByEntity returns id + field values for every record of the
// entity, in id order. Used by the migration engine.
func (r *Repo) ListFieldValuesByEntity(ctx context.Context, entityID id.ID) ([]migrate.RecordValues, error) {
	q := r.Builder().
		Select("id", "field_values").
		From(tableName).
		Where(squirrel.Eq{"entity_id": entityID}).
		OrderBy("id ASC")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	querier := r.txManager.GetQuerier(ctx)
	rows, err := querier.Query(ctx, sql, args...)
	if err != nil {
		return nil, postgres.ClassifyError(err, "record")
	}
	defer rows.Close()

	var out []migrate.RecordValues
	for rows.Next() {
		var rv migrate.RecordValues
		if err := rows.Scan(&rv.ID, &rv.FieldValues); err != nil {
			return nil, postgres.ClassifyError(err, "record")
		}
		out = append(out, rv)
	}
	if err := rows.Err(); err != nil {
		return nil, postgres.ClassifyError(err, "record")
	}
	return out, nil
}

// CountMissingAnyField counts records of the entity whose field values lack
// (absent or null) at least one of the given keys. jsonb_exists is used
// instead of the ? operator to keep placeholders unambiguous.
func (r *Repo) CountMissingAnyField(ctx context.Context, entityID id.ID, keys []string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}

	missing := make(squirrel.Or, 0, len(keys))
	for _, key := range keys {
		missing = append(missing, squirrel.Expr(
			"(NOT jsonb_exists(field_values, ?) OR field_values -> ? = 'null'::jsonb)",
			key, key,
		))
	}

	q := r.Builder().
		Select("COUNT(*)").
		From(tableName).
		Where(squirrel.Eq{"entity_id": entityID}).
		Where(missing)

	sql, args, err := q.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count: %w", err)
	}

	var count int64
	querier := r.txManager.GetQuerier(ctx)
	if err := querier.QueryRow(ctx, sql, args...).Scan(&count); err != nil {
		return 0, postgres.ClassifyError(err, "record")
	}
	return count, nil
}
