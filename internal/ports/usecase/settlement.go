package usecase

import (
	"context"

	"github.com/kpizzy812/TMAMARKET/internal/domain"
)

// ISettlementCoordinator автомат состояний оплаты заказа
type ISettlementCoordinator interface {
	OnPaymentMatched(ctx context.Context, result *domain.MatchResult) error
	OnPaymentExpired(ctx context.Context, req *domain.PaymentRequest) error
	OnPaymentCancelled(ctx context.Context, req *domain.PaymentRequest) error
	MarkFulfilling(ctx context.Context, orderID string) error
	MarkCompleted(ctx context.Context, orderID string) error
	GetState(ctx context.Context, orderID string) (*domain.OrderSettlement, error)
}
