package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"

	"tessera/internal/core/apperror"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		wantCode      string
		wantRetryable bool
	}{
		{
			name:     "unique violation",
			err:      &pgconn.PgError{Code: "23505", ConstraintName: "entities_name_key"},
			wantCode: apperror.CodeDuplicate,
		},
		{
			name:     "foreign key violation",
			err:      &pgconn.PgError{Code: "23503"},
			wantCode: apperror.CodeReferential,
		},
		{
			name:          "serialization failure",
			err:           &pgconn.PgError{Code: "40001"},
			wantCode:      apperror.CodeConflict,
			wantRetryable: true,
		},
		{
			name:          "deadlock",
			err:           &pgconn.PgError{Code: "40P01"},
			wantCode:      apperror.CodeConflict,
			wantRetryable: true,
		},
		{
			name:          "statement timeout",
			err:           &pgconn.PgError{Code: "57014"},
			wantCode:      apperror.CodeTimeout,
			wantRetryable: true,
		},
		{
			name:          "connection exception class",
			err:           &pgconn.PgError{Code: "08006"},
			wantCode:      apperror.CodeConnection,
			wantRetryable: true,
		},
		{
			name:          "context deadline",
			err:           context.DeadlineExceeded,
			wantCode:      apperror.CodeTimeout,
			wantRetryable: true,
		},
		{
			name:     "unknown error",
			err:      errors.New("boom"),
			wantCode: apperror.CodeInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			appErr, ok := apperror.AsAppError(ClassifyError(tt.err, "entity"))
			if !ok {
				t.Fatal("expected AppError")
			}
			if appErr.Code != tt.wantCode {
				t.Errorf("Code = %s, want %s", appErr.Code, tt.wantCode)
			}
			if appErr.Retryable != tt.wantRetryable {
				t.Errorf("Retryable = %v, want %v", appErr.Retryable, tt.wantRetryable)
			}
		})
	}
}

func TestClassifyError_Passthrough(t *testing.T) {
	if ClassifyError(nil, "entity") != nil {
		t.Error("nil should stay nil")
	}

	orig := apperror.NewNotFound("record", "x")
	if ClassifyError(orig, "entity") != orig {
		t.Error("AppError should pass through unchanged")
	}
}

func TestConstraintField(t *testing.T) {
	tests := []struct {
		constraint string
		want       string
	}{
		{"entities_name_key", "name"},
		{"", "value"},
		{"oddname", "oddname"},
	}
	for _, tt := range tests {
		got := constraintField(&pgconn.PgError{ConstraintName: tt.constraint})
		if got != tt.want {
			t.Errorf("constraintField(%q) = %q, want %q", tt.constraint, got, tt.want)
		}
	}
}
