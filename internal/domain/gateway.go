package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// GatewayStatus нормализованный статус заказа в платёжном шлюзе
type GatewayStatus string

const (
	GatewayStatusPending   GatewayStatus = "pending"
	GatewayStatusPaid      GatewayStatus = "paid"
	GatewayStatusFailed    GatewayStatus = "failed"
	GatewayStatusCancelled GatewayStatus = "cancelled"
)

// GatewayOrder заказ, зарегистрированный в шлюзе
type GatewayOrder struct {
	OrderID    string
	PaymentURL string
	QRPayload  string
}

// GatewayOrderStatus статус заказа в шлюзе (опрос или push-уведомление)
type GatewayOrderStatus struct {
	OrderID       string          `json:"order_id"`
	Status        GatewayStatus   `json:"status"`
	TransactionID string          `json:"transaction_id"`
	Amount        decimal.Decimal `json:"amount"`
	MerchantID    string          `json:"merchant_id"`
	Payer         string          `json:"payer"`
	PaidAt        time.Time       `json:"paid_at"`
}

// ToObservedTransfer приводит оплаченный заказ шлюза к общему виду перевода
func (s *GatewayOrderStatus) ToObservedTransfer(now time.Time) (ObservedTransfer, bool) {
	if s.Status != GatewayStatusPaid || s.TransactionID == "" {
		return ObservedTransfer{}, false
	}

	occurredAt := s.PaidAt
	if occurredAt.IsZero() {
		occurredAt = now
	}

	return ObservedTransfer{
		Network:          NetworkSBP,
		ExternalTxID:     s.TransactionID,
		Amount:           s.Amount,
		Sender:           s.Payer,
		Recipient:        s.MerchantID,
		ObservedAt:       now,
		OccurredAt:       occurredAt,
		Confirmations:    1,
		GatewayReference: s.OrderID,
	}, true
}
