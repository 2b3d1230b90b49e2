package orderSettlementRepo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"log/slog"

	"github.com/google/uuid"
	"github.com/kpizzy812/TMAMARKET/internal/domain"
	"github.com/kpizzy812/TMAMARKET/internal/ports/persistence"
	ports "github.com/kpizzy812/TMAMARKET/internal/ports/repository"
)

type Repository struct {
	db  persistence.Persistence
	Log *slog.Logger
}

func New(db persistence.Persistence, log *slog.Logger) ports.IOrderSettlementRepo {
	return &Repository{
		db:  db,
		Log: log,
	}
}

const orderColumns = "order_id, state, payment_request_id, created_at, updated_at"

// Open создаёт заказ или перепривязывает к нему новую заявку, пока заказ ждёт оплату
func (r *Repository) Open(ctx context.Context, orderID string, requestID uuid.UUID) (*domain.OrderSettlement, error) {
	query := `
		INSERT INTO order_settlements (order_id, state, payment_request_id, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		ON CONFLICT (order_id) DO UPDATE SET
			payment_request_id = EXCLUDED.payment_request_id,
			updated_at = NOW()
		WHERE order_settlements.state = $2
		RETURNING ` + orderColumns

	var order domain.OrderSettlement
	err := r.db.Get(ctx, &order, query, orderID, string(domain.OrderStateAwaitingPayment), requestID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			r.Log.Warn("order payment is already closed", "order_id", orderID)
			return nil, domain.ErrOrderClosed
		}
		r.Log.Error("failed to open order settlement",
			"error", err,
			"order_id", orderID,
		)
		return nil, fmt.Errorf("failed to open order settlement: %w", err)
	}
	return &order, nil
}

func (r *Repository) Get(ctx context.Context, orderID string) (*domain.OrderSettlement, error) {
	query := `SELECT ` + orderColumns + ` FROM order_settlements WHERE order_id = $1`

	var order domain.OrderSettlement
	if err := r.db.Get(ctx, &order, query, orderID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("order %s: %w", orderID, domain.ErrNotFound)
		}
		r.Log.Error("failed to get order settlement", "error", err, "order_id", orderID)
		return nil, fmt.Errorf("failed to get order settlement: %w", err)
	}
	return &order, nil
}

// Transition compare-and-swap состояния заказа
func (r *Repository) Transition(ctx context.Context, orderID string, from, to domain.OrderPaymentState) (bool, error) {
	if !domain.CanTransitionOrder(from, to) {
		return false, nil
	}

	query := `UPDATE order_settlements SET state = $1, updated_at = NOW() WHERE order_id = $2 AND state = $3`

	rows, err := r.db.ExecWithResult(ctx, query, string(to), orderID, string(from))
	if err != nil {
		r.Log.Error("failed to transition order",
			"error", err,
			"order_id", orderID,
			"from", from,
			"to", to,
		)
		return false, fmt.Errorf("failed to transition order: %w", err)
	}
	return rows == 1, nil
}
