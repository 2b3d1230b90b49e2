package persistence

import (
	"context"
)

// Persistence общий набор операций, его реализуют и подключение, и транзакция,
// поэтому репозиторий, созданный поверх транзакции, работает внутри неё
type Persistence interface {
	Get(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	Select(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	Exec(ctx context.Context, query string, args ...interface{}) error
	// ExecWithResult количество затронутых строк, на нём держатся CAS-переходы
	ExecWithResult(ctx context.Context, query string, args ...interface{}) (int64, error)
}

// Transaction транзакция БД
type Transaction interface {
	Persistence
	Commit() error
	Rollback() error
}

// Transactor выполняет функцию в транзакции: commit при nil, иначе rollback
type Transactor interface {
	WithTransaction(ctx context.Context, fn func(context.Context, Transaction) error) error
}
