// Package tx abstracts transaction management so domain services never
// import a database driver. The postgres implementation lives in
// infrastructure/storage.
package tx

import (
	"context"
)

// Manager runs functions inside database transactions.
type Manager interface {
	// RunInTransaction executes fn within a transaction: commit on nil,
	// rollback on error. A call made while a transaction is already on the
	// context joins it instead of opening a new one.
	RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error

	// ReadOnly executes fn in a read-only transaction. Writes made through
	// it fail at the database.
	ReadOnly(ctx context.Context, fn func(ctx context.Context) error) error
}
