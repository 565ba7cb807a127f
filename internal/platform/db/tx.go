package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"
)

type contextKey string

const txKey contextKey = "db_tx"

// PostgreSQL error codes the scheduling layer reacts to.
const (
	CodeSerializationFailure = "40001"
	CodeDeadlockDetected     = "40P01"
	CodeExclusionViolation   = "23P01"
	CodeUniqueViolation      = "23505"
)

// Querier is the query surface shared by *pgxpool.Pool and pgx.Tx.
type Querier interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// TxFromContext returns the transaction opened by WithTx, or nil outside one.
func TxFromContext(ctx context.Context) pgx.Tx {
	tx, _ := ctx.Value(txKey).(pgx.Tx)
	return tx
}

// Conn returns the active transaction when there is one and the pool otherwise.
func Conn(ctx context.Context, pool *pgxpool.Pool) Querier {
	if tx := TxFromContext(ctx); tx != nil {
		return tx
	}
	return pool
}

// TxRunner executes fn atomically. *Transactor is the PostgreSQL implementation.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Transactor runs functions inside a single database transaction and retries
// the whole function on serialization failures and deadlocks.
type Transactor struct {
	pool       *pgxpool.Pool
	opts       pgx.TxOptions
	maxRetries uint64
	baseDelay  time.Duration
	logger     zerolog.Logger
}

func NewTransactor(pool *pgxpool.Pool, logger zerolog.Logger) *Transactor {
	return &Transactor{
		pool:       pool,
		opts:       pgx.TxOptions{IsoLevel: pgx.ReadCommitted},
		maxRetries: 3,
		baseDelay:  20 * time.Millisecond,
		logger:     logger,
	}
}

// WithTx calls fn with a context carrying the transaction. Any error returned
// by fn rolls the transaction back. Calls nested inside an open transaction
// reuse it.
func (t *Transactor) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if TxFromContext(ctx) != nil {
		return fn(ctx)
	}

	backoff := retry.WithMaxRetries(t.maxRetries, retry.NewExponential(t.baseDelay))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := t.run(ctx, fn)
		if IsRetryable(err) {
			t.logger.Warn().Err(err).Msg("retrying transaction")
			return retry.RetryableError(err)
		}
		return err
	})
}

func (t *Transactor) run(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, err := t.pool.BeginTx(ctx, t.opts)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(context.WithValue(ctx, txKey, tx)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// IsRetryable reports whether err is a transient conflict worth re-running the transaction for.
func IsRetryable(err error) bool {
	code := pgCode(err)
	return code == CodeSerializationFailure || code == CodeDeadlockDetected
}

// IsExclusionViolation reports whether err came from an EXCLUDE constraint.
func IsExclusionViolation(err error) bool {
	return pgCode(err) == CodeExclusionViolation
}

func IsUniqueViolation(err error) bool {
	return pgCode(err) == CodeUniqueViolation
}
