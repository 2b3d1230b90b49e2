package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/kpizzy812/TMAMARKET/internal/ports/persistence"
)

const (
	maxTxAttempts = 3
	txRetryDelay  = 20 * time.Millisecond
)

var (
	_ persistence.Persistence = (*DB)(nil)
	_ persistence.Transactor  = (*DB)(nil)
)

// DB пул соединений PostgreSQL
type DB struct {
	queryer
	db  *sqlx.DB
	log *slog.Logger
}

func NewDB(db *sqlx.DB, log *slog.Logger) *DB {
	return &DB{
		queryer: queryer{ext: db},
		db:      db,
		log:     log,
	}
}

// WithTransaction выполняет fn в транзакции READ COMMITTED.
// Deadlock и serialization failure повторяются целиком, fn должна быть идемпотентной до commit.
func (d *DB) WithTransaction(ctx context.Context, fn func(context.Context, persistence.Transaction) error) error {
	var err error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		err = d.runTx(ctx, fn)
		if err == nil || !IsRetryable(err) || attempt == maxTxAttempts {
			return err
		}

		d.log.Warn("transaction conflict, retrying",
			"error", err,
			"attempt", attempt,
		)
		select {
		case <-ctx.Done():
			return errors.Join(err, ctx.Err())
		case <-time.After(time.Duration(attempt) * txRetryDelay):
		}
	}
	return err
}

func (d *DB) runTx(ctx context.Context, fn func(context.Context, persistence.Transaction) error) error {
	tx, err := d.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}

	if err := fn(ctx, &Tx{queryer: queryer{ext: tx}, tx: tx}); err != nil {
		if rollbackErr := tx.Rollback(); rollbackErr != nil {
			return errors.Join(err, fmt.Errorf("rollback: %w", rollbackErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (d *DB) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

func (d *DB) Close() error {
	return d.db.Close()
}
