// Package repository is the sole owner of SQL for the outbox dispatcher.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"dispatchbox/internal/model"
)

const (
	fetchPendingSQL = `
		SELECT id, aggregate_type, aggregate_id, event_type, payload,
		       status, attempts, next_run_at, created_at
		FROM outbox_event
		WHERE status IN ('pending','retry')
		  AND next_run_at <= now()
		ORDER BY id
		FOR UPDATE SKIP LOCKED
		LIMIT $1`

	markSuccessSQL = `
		UPDATE outbox_event
		SET status = 'done', attempts = attempts + 1
		WHERE id = $1`

	markRetrySQL = `
		UPDATE outbox_event
		SET status = CASE WHEN attempts + 1 >= $1 THEN 'dead' ELSE 'retry' END,
		    attempts = attempts + 1,
		    next_run_at = CASE WHEN attempts + 1 >= $1 THEN next_run_at ELSE $2 END
		WHERE id = $3
		RETURNING status`

	fetchDeadSQLBase = `
		SELECT id, aggregate_type, aggregate_id, event_type, payload,
		       status, attempts, next_run_at, created_at
		FROM outbox_event
		WHERE status = 'dead'`

	countDeadSQLBase = `SELECT count(*) FROM outbox_event WHERE status = 'dead'`

	getDeadSQL = `
		SELECT id, aggregate_type, aggregate_id, event_type, payload,
		       status, attempts, next_run_at, created_at
		FROM outbox_event
		WHERE id = $1 AND status = 'dead'`

	retryDeadSQL = `
		UPDATE outbox_event
		SET status = 'pending', attempts = 0, next_run_at = now()
		WHERE id = $1 AND status = 'dead'`

	retryDeadBatchSQL = `
		UPDATE outbox_event
		SET status = 'pending', attempts = 0, next_run_at = now()
		WHERE id = ANY($1) AND status = 'dead'`
)

// ErrInvalidArgument marks a value-range error (programming error), raised
// synchronously without touching the database.
var ErrInvalidArgument = errors.New("repository: invalid argument")

// Config bundles the Repository's tunables. New rejects an empty DSN, a
// MaxAttempts below 1 and a negative RetryBackoff; a zero QueryTimeout
// disables the statement timeout, and zero pool sizes keep pgxpool's
// defaults.
type Config struct {
	DSN           string
	RetryBackoff  time.Duration
	MaxAttempts   int
	QueryTimeout  time.Duration
	DBMaxConns    int32
	DBMinConns    int32
	DBMaxConnLife time.Duration
	DBMaxConnIdle time.Duration
}

// Repository is the sole SQL owner for outbox_event. Safe for concurrent use.
type Repository struct {
	pool         *pgxpool.Pool
	logger       *zap.Logger
	dsn          string
	retryBackoff time.Duration
	maxAttempts  int
	queryTimeout time.Duration
	poolCfg      *pgxpool.Config
}

// New builds a Repository and establishes the initial connection pool.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Repository, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("%w: dsn must not be empty", ErrInvalidArgument)
	}
	if cfg.MaxAttempts < 1 {
		return nil, fmt.Errorf("%w: max_attempts must be at least 1", ErrInvalidArgument)
	}
	if cfg.RetryBackoff < 0 {
		return nil, fmt.Errorf("%w: retry_backoff must be non-negative", ErrInvalidArgument)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	if cfg.DBMaxConns > 0 {
		poolCfg.MaxConns = cfg.DBMaxConns
	}
	if cfg.DBMinConns > 0 {
		poolCfg.MinConns = cfg.DBMinConns
	}
	if cfg.DBMaxConnLife > 0 {
		poolCfg.MaxConnLifetime = cfg.DBMaxConnLife
	}
	if cfg.DBMaxConnIdle > 0 {
		poolCfg.MaxConnIdleTime = cfg.DBMaxConnIdle
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	return &Repository{
		pool:         pool,
		logger:       logger,
		dsn:          cfg.DSN,
		retryBackoff: cfg.RetryBackoff,
		maxAttempts:  cfg.MaxAttempts,
		queryTimeout: cfg.QueryTimeout,
		poolCfg:      poolCfg,
	}, nil
}

// Close releases the underlying connection pool.
func (r *Repository) Close() {
	r.pool.Close()
}

// IsConnected is a non-throwing liveness probe.
func (r *Repository) IsConnected(ctx context.Context) bool {
	return r.pool.Ping(ctx) == nil
}

// reconnect rebuilds the connection pool once, used after a probe failure.
func (r *Repository) reconnect(ctx context.Context) error {
	r.logger.Warn("database connection lost, attempting to reconnect")
	r.pool.Close()

	pool, err := pgxpool.NewWithConfig(ctx, r.poolCfg)
	if err != nil {
		r.logger.Error("failed to reconnect to database", zap.Error(err))
		return err
	}
	r.pool = pool
	r.logger.Info("database connection restored")
	return nil
}

// ensureConnected probes the connection and reconnects once on failure,
// matching the teacher's "liveness probe before every operation" contract.
func (r *Repository) ensureConnected(ctx context.Context) error {
	if r.pool.Ping(ctx) == nil {
		return nil
	}
	return r.reconnect(ctx)
}

// setStatementTimeout sets a transaction-local (SET LOCAL) statement
// timeout. SET is a utility statement and does not accept a bind parameter
// over pgx's extended query protocol ("syntax error at or near $1"), so the
// millisecond value is inlined directly; it comes from Config, never from
// caller input.
func (r *Repository) setStatementTimeout(ctx context.Context, tx pgx.Tx) error {
	if r.queryTimeout <= 0 {
		return nil
	}
	sql := fmt.Sprintf("SET LOCAL statement_timeout = %d", r.queryTimeout.Milliseconds())
	_, err := tx.Exec(ctx, sql)
	return err
}

// FetchPending claims up to batchSize pending/retry rows under
// FOR UPDATE SKIP LOCKED and commits, releasing the locks. The caller is
// responsible for immediately closing each row out via MarkSuccess or
// MarkRetry (see spec design note on stricter locking regimes).
func (r *Repository) FetchPending(ctx context.Context, batchSize int) ([]model.Event, error) {
	if batchSize < 1 {
		return nil, fmt.Errorf("%w: batch_size must be at least 1", ErrInvalidArgument)
	}
	if err := r.ensureConnected(ctx); err != nil {
		return nil, err
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			r.logger.Debug("rollback failed", zap.Error(err))
		}
	}()

	if err := r.setStatementTimeout(ctx, tx); err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, fetchPendingSQL, batchSize)
	if err != nil {
		return nil, err
	}
	events, err := scanEvents(rows)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return events, nil
}

// MarkSuccess sets status='done', attempts+=1, and commits.
func (r *Repository) MarkSuccess(ctx context.Context, id int64) error {
	if id < 1 {
		return fmt.Errorf("%w: id must be a positive integer", ErrInvalidArgument)
	}
	if err := r.ensureConnected(ctx); err != nil {
		return err
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			r.logger.Debug("rollback failed", zap.Error(err))
		}
	}()

	if err := r.setStatementTimeout(ctx, tx); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, markSuccessSQL, id); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// MarkRetry atomically decides retry vs dead from the row's own attempts
// count in a single conditional UPDATE, race-free with concurrent readers.
// Logs a warning if the post-state is dead.
func (r *Repository) MarkRetry(ctx context.Context, id int64) error {
	if id < 1 {
		return fmt.Errorf("%w: id must be a positive integer", ErrInvalidArgument)
	}
	if err := r.ensureConnected(ctx); err != nil {
		return err
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			r.logger.Debug("rollback failed", zap.Error(err))
		}
	}()

	if err := r.setStatementTimeout(ctx, tx); err != nil {
		return err
	}

	nextRunAt := time.Now().UTC().Add(r.retryBackoff)
	var status string
	err = tx.QueryRow(ctx, markRetrySQL, r.maxAttempts, nextRunAt, id).Scan(&status)
	if err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	if status == string(model.StatusDead) {
		r.logger.Warn("event exceeded max_attempts, marked as dead",
			zap.Int64("event_id", id), zap.Int("max_attempts", r.maxAttempts))
	}
	return nil
}

// DeadFilter narrows FetchDead/CountDead by equality; empty fields are
// unfiltered.
type DeadFilter struct {
	AggregateType string
	EventType     string
}

// withTx runs fn inside a transaction with the per-statement timeout set
// first, committing on success. Every DLQ read/write goes through this so
// each one is timeout-bounded, matching FetchPending/MarkSuccess/MarkRetry.
func (r *Repository) withTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			r.logger.Debug("rollback failed", zap.Error(err))
		}
	}()

	if err := r.setStatementTimeout(ctx, tx); err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// FetchDead returns status='dead' rows ordered by created_at DESC.
func (r *Repository) FetchDead(ctx context.Context, limit, offset int, filter DeadFilter) ([]model.Event, error) {
	if limit < 1 {
		return nil, fmt.Errorf("%w: limit must be at least 1", ErrInvalidArgument)
	}
	if offset < 0 {
		return nil, fmt.Errorf("%w: offset must be non-negative", ErrInvalidArgument)
	}
	if err := r.ensureConnected(ctx); err != nil {
		return nil, err
	}

	query := fetchDeadSQLBase
	args := []any{}
	if filter.AggregateType != "" {
		args = append(args, filter.AggregateType)
		query += fmt.Sprintf(" AND aggregate_type = $%d", len(args))
	}
	if filter.EventType != "" {
		args = append(args, filter.EventType)
		query += fmt.Sprintf(" AND event_type = $%d", len(args))
	}
	args = append(args, limit, offset)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	var events []model.Event
	err := r.withTx(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		events, err = scanEvents(rows)
		return err
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}

// CountDead returns the number of dead rows matching filter.
func (r *Repository) CountDead(ctx context.Context, filter DeadFilter) (int, error) {
	if err := r.ensureConnected(ctx); err != nil {
		return 0, err
	}

	query := countDeadSQLBase
	args := []any{}
	if filter.AggregateType != "" {
		args = append(args, filter.AggregateType)
		query += fmt.Sprintf(" AND aggregate_type = $%d", len(args))
	}
	if filter.EventType != "" {
		args = append(args, filter.EventType)
		query += fmt.Sprintf(" AND event_type = $%d", len(args))
	}

	var count int
	err := r.withTx(ctx, func(tx pgx.Tx) error {
		return tx.QueryRow(ctx, query, args...).Scan(&count)
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// GetDead returns the dead row with the given id, or nil if it doesn't
// exist or is no longer dead.
func (r *Repository) GetDead(ctx context.Context, id int64) (*model.Event, error) {
	if id < 1 {
		return nil, fmt.Errorf("%w: id must be a positive integer", ErrInvalidArgument)
	}
	if err := r.ensureConnected(ctx); err != nil {
		return nil, err
	}

	var events []model.Event
	err := r.withTx(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, getDeadSQL, id)
		if err != nil {
			return err
		}
		events, err = scanEvents(rows)
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, nil
	}
	return &events[0], nil
}

// RetryDead resets a dead row to pending, returning whether it took effect.
func (r *Repository) RetryDead(ctx context.Context, id int64) (bool, error) {
	if id < 1 {
		return false, fmt.Errorf("%w: id must be a positive integer", ErrInvalidArgument)
	}
	if err := r.ensureConnected(ctx); err != nil {
		return false, err
	}

	var affected bool
	err := r.withTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, retryDeadSQL, id)
		if err != nil {
			return err
		}
		affected = tag.RowsAffected() > 0
		return nil
	})
	if err != nil {
		return false, err
	}
	return affected, nil
}

// RetryDeadBatch resets a set of dead rows to pending in one statement,
// returning the affected count.
func (r *Repository) RetryDeadBatch(ctx context.Context, ids []int64) (int, error) {
	if len(ids) == 0 {
		return 0, fmt.Errorf("%w: ids must be a non-empty list", ErrInvalidArgument)
	}
	for _, id := range ids {
		if id < 1 {
			return 0, fmt.Errorf("%w: ids must all be positive", ErrInvalidArgument)
		}
	}
	if err := r.ensureConnected(ctx); err != nil {
		return 0, err
	}

	var affected int
	err := r.withTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, retryDeadBatchSQL, ids)
		if err != nil {
			return err
		}
		affected = int(tag.RowsAffected())
		return nil
	})
	if err != nil {
		return 0, err
	}
	return affected, nil
}

func scanEvents(rows pgx.Rows) ([]model.Event, error) {
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		var row model.Row
		if err := rows.Scan(
			&row.ID, &row.AggregateType, &row.AggregateID, &row.EventType,
			&row.Payload, &row.Status, &row.Attempts, &row.NextRunAt, &row.CreatedAt,
		); err != nil {
			return nil, err
		}
		event, err := model.FromRow(row)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}
