package uow

import (
	"context"

	"log/slog"

	"github.com/kpizzy812/TMAMARKET/internal/ports/persistence"
	ports "github.com/kpizzy812/TMAMARKET/internal/ports/repository"
	orderSettlementRepo "github.com/kpizzy812/TMAMARKET/internal/repository/ordersettlement"
	paymentRequestRepo "github.com/kpizzy812/TMAMARKET/internal/repository/paymentrequest"
	settlementRepo "github.com/kpizzy812/TMAMARKET/internal/repository/settlement"
	unmatchedRepo "github.com/kpizzy812/TMAMARKET/internal/repository/unmatched"
)

// Manager собирает репозитории поверх одной транзакции БД
type Manager struct {
	transactor persistence.Transactor
	log        *slog.Logger
}

func New(transactor persistence.Transactor, log *slog.Logger) ports.ITxManager {
	return &Manager{
		transactor: transactor,
		log:        log,
	}
}

func (m *Manager) WithinTransaction(ctx context.Context, fn func(ctx context.Context, repos ports.TxRepositories) error) error {
	return m.transactor.WithTransaction(ctx, func(ctx context.Context, tx persistence.Transaction) error {
		return fn(ctx, Repositories(tx, m.log))
	})
}

// Repositories репозитории поверх произвольного Persistence (подключение или транзакция)
func Repositories(db persistence.Persistence, log *slog.Logger) ports.TxRepositories {
	return ports.TxRepositories{
		Requests:  paymentRequestRepo.New(db, log),
		Ledger:    settlementRepo.New(db, log),
		Unmatched: unmatchedRepo.New(db, log),
		Orders:    orderSettlementRepo.New(db, log),
	}
}
