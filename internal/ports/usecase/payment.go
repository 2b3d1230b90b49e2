package usecase

import (
	"context"

	"github.com/google/uuid"
	"github.com/kpizzy812/TMAMARKET/internal/domain"
	"github.com/shopspring/decimal"
)

// CreatePaymentRequest входные данные create_payment_request
type CreatePaymentRequest struct {
	OrderID        string
	Amount         decimal.Decimal
	Network        domain.Network
	CustomerChatID *int64
}

// OrderPayment заявка заказа вместе с состоянием оплаты
type OrderPayment struct {
	Request    *domain.PaymentRequest
	Settlement *domain.OrderSettlement
}

// IPaymentUseCase реестр заявок на оплату (use case слой)
type IPaymentUseCase interface {
	CreatePaymentRequest(ctx context.Context, in CreatePaymentRequest) (*domain.PaymentRequest, error)
	CancelPaymentRequest(ctx context.Context, orderID string) error
	GetPaymentRequest(ctx context.Context, id uuid.UUID) (*domain.PaymentRequest, error)
	GetOrderPayment(ctx context.Context, orderID string) (*OrderPayment, error)
	ListUnmatched(ctx context.Context, limit int) ([]*domain.UnmatchedTransfer, error)
}
