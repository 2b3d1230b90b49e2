package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/kpizzy812/TMAMARKET/internal/domain"
)

// IOrderSettlementRepo состояния оплаты заказов
type IOrderSettlementRepo interface {
	// Open создаёт заказ в awaiting_payment или привязывает новую заявку к заказу в awaiting_payment,
	// domain.ErrOrderClosed если заказ уже вышел из awaiting_payment
	Open(ctx context.Context, orderID string, requestID uuid.UUID) (*domain.OrderSettlement, error)
	Get(ctx context.Context, orderID string) (*domain.OrderSettlement, error)
	Transition(ctx context.Context, orderID string, from, to domain.OrderPaymentState) (bool, error)
}
