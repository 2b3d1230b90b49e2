package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EventType тип исходящего события, передаётся в заголовке event_type
type EventType string

const (
	EventPaymentSettled   EventType = "payment.settled"
	EventPaymentExpired   EventType = "payment.expired"
	EventPaymentCancelled EventType = "payment.cancelled"
	EventNetworkDegraded  EventType = "network.degraded"
	EventNetworkRecovered EventType = "network.recovered"
)

// SettlementEvent заказ оплачен
type SettlementEvent struct {
	OrderID          string          `json:"order_id"`
	PaymentRequestID uuid.UUID       `json:"payment_request_id"`
	Network          Network         `json:"network"`
	Amount           decimal.Decimal `json:"amount"`
	ExternalTxID     string          `json:"external_tx_id"`
	ExplorerURL      string          `json:"explorer_url,omitempty"`
	SettledAt        time.Time       `json:"settled_at"`
}

// ExpiryEvent окно оплаты истекло, заказ можно освобождать
type ExpiryEvent struct {
	OrderID          string    `json:"order_id"`
	PaymentRequestID uuid.UUID `json:"payment_request_id"`
	ExpiredAt        time.Time `json:"expired_at"`
}

// CancellationEvent покупатель отказался от оплаты
type CancellationEvent struct {
	OrderID          string    `json:"order_id"`
	PaymentRequestID uuid.UUID `json:"payment_request_id"`
	CancelledAt      time.Time `json:"cancelled_at"`
}

// DegradedNetworkSignal наблюдатель сети не может достучаться до источника
type DegradedNetworkSignal struct {
	Network     Network    `json:"network"`
	Since       time.Time  `json:"since"`
	Failures    int        `json:"failures"`
	LastError   string     `json:"last_error,omitempty"`
	RecoveredAt *time.Time `json:"recovered_at,omitempty"`
}

// NetworkHealth состояние наблюдателя сети
type NetworkHealth struct {
	Network             Network    `json:"network"`
	Degraded            bool       `json:"degraded"`
	DegradedSince       *time.Time `json:"degraded_since,omitempty"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	LastError           string     `json:"last_error,omitempty"`
	LastSuccessAt       *time.Time `json:"last_success_at,omitempty"`
	Checkpoint          uint64     `json:"checkpoint"`
}
