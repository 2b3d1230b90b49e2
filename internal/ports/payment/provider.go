package payment

import (
	"context"

	"github.com/kpizzy812/TMAMARKET/internal/domain"
	"github.com/shopspring/decimal"
)

// IPaymentGateway банковский шлюз (СБП).
// Use case зависит только от этого интерфейса, не зная деталей реализации
type IPaymentGateway interface {
	// RegisterOrder регистрирует заказ в шлюзе и возвращает ссылку и QR для оплаты
	RegisterOrder(ctx context.Context, req RegisterOrderRequest) (*domain.GatewayOrder, error)
	// GetOrderStatus статус заказа по id шлюза
	GetOrderStatus(ctx context.Context, gatewayOrderID string) (*domain.GatewayOrderStatus, error)
	// VerifyCallback проверяет подпись push-уведомления
	VerifyCallback(body []byte, signature string) bool
	// ParseCallback разбирает тело push-уведомления
	ParseCallback(body []byte) (*domain.GatewayOrderStatus, error)
	MerchantID() string
}

// RegisterOrderRequest запрос на регистрацию заказа в шлюзе
type RegisterOrderRequest struct {
	Reference   string // PAY-... номер платежа
	Amount      decimal.Decimal
	Description string
}
