package db

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
)

type fakeTx struct {
	pgx.Tx
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain error", errors.New("boom"), false},
		{"serialization failure", &pgconn.PgError{Code: CodeSerializationFailure}, true},
		{"deadlock", fmt.Errorf("lock provider: %w", &pgconn.PgError{Code: CodeDeadlockDetected}), true},
		{"exclusion violation", &pgconn.PgError{Code: CodeExclusionViolation}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestIsExclusionViolation(t *testing.T) {
	err := fmt.Errorf("insert appointment: %w", &pgconn.PgError{Code: CodeExclusionViolation})
	if !IsExclusionViolation(err) {
		t.Error("expected wrapped 23P01 to be an exclusion violation")
	}
	if IsExclusionViolation(&pgconn.PgError{Code: CodeUniqueViolation}) {
		t.Error("unique violation is not an exclusion violation")
	}
	if !IsUniqueViolation(&pgconn.PgError{Code: CodeUniqueViolation}) {
		t.Error("expected unique violation")
	}
}

func TestTxFromContext_Empty(t *testing.T) {
	if tx := TxFromContext(context.Background()); tx != nil {
		t.Errorf("expected nil tx, got %v", tx)
	}
}

func TestWithTx_ReusesOpenTransaction(t *testing.T) {
	tx := fakeTx{}
	ctx := context.WithValue(context.Background(), txKey, pgx.Tx(tx))

	tr := NewTransactor(nil, zerolog.Nop())
	called := false
	err := tr.WithTx(ctx, func(inner context.Context) error {
		called = true
		if TxFromContext(inner) == nil {
			t.Error("expected the outer transaction to be visible")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Error("expected fn to be called")
	}
}

func TestWithTx_NestedErrorPropagates(t *testing.T) {
	ctx := context.WithValue(context.Background(), txKey, pgx.Tx(fakeTx{}))
	sentinel := errors.New("validation failed")

	err := NewTransactor(nil, zerolog.Nop()).WithTx(ctx, func(context.Context) error {
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Errorf("expected sentinel error, got %v", err)
	}
}
