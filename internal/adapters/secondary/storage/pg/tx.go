package pg

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/kpizzy812/TMAMARKET/internal/ports/persistence"
)

// queryer операции поверх *sqlx.DB или *sqlx.Tx
type queryer struct {
	ext sqlx.ExtContext
}

func (q queryer) Get(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	return sqlx.GetContext(ctx, q.ext, dest, query, args...)
}

func (q queryer) Select(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	return sqlx.SelectContext(ctx, q.ext, dest, query, args...)
}

func (q queryer) Exec(ctx context.Context, query string, args ...interface{}) error {
	_, err := q.ext.ExecContext(ctx, query, args...)
	return err
}

func (q queryer) ExecWithResult(ctx context.Context, query string, args ...interface{}) (int64, error) {
	result, err := q.ext.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

var _ persistence.Transaction = (*Tx)(nil)

// Tx транзакция, репозитории поверх неё видят незакоммиченные изменения друг друга
type Tx struct {
	queryer
	tx *sqlx.Tx
}

func (t *Tx) Commit() error {
	return t.tx.Commit()
}

func (t *Tx) Rollback() error {
	return t.tx.Rollback()
}
