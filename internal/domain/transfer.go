package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ObservedTransfer входящий перевод, который увидел наблюдатель сети.
// Один и тот же перевод может прийти несколько раз, ключ дедупликации external_tx_id.
type ObservedTransfer struct {
	Network       Network         `json:"network"`
	ExternalTxID  string          `json:"external_tx_id"`
	Amount        decimal.Decimal `json:"amount"`
	Sender        string          `json:"sender"`
	Recipient     string          `json:"recipient"`
	ObservedAt    time.Time       `json:"observed_at"`
	OccurredAt    time.Time       `json:"occurred_at"` // время блока или оплаты в шлюзе
	Confirmations uint64          `json:"confirmations"`

	// GatewayReference заполняется только шлюзом: перевод относится ровно к этой заявке
	GatewayReference string `json:"gateway_reference,omitempty"`

	// Cursor позиция в потоке сети (номер блока, timestamp, lt), по ней двигается checkpoint
	Cursor uint64 `json:"-"`
}

// IsConfirmed достаточно ли подтверждений
func (t ObservedTransfer) IsConfirmed(threshold uint64) bool {
	return t.Confirmations >= threshold
}

// SettlementRecord запись леджера: внешний перевод зачтён в оплату заявки.
// external_tx_id уникален глобально.
type SettlementRecord struct {
	ExternalTxID     string          `json:"external_tx_id" db:"external_tx_id"`
	Network          Network         `json:"network" db:"network"`
	PaymentRequestID uuid.UUID       `json:"payment_request_id" db:"payment_request_id"`
	SettledAmount    decimal.Decimal `json:"settled_amount" db:"settled_amount"`
	Sender           string          `json:"sender" db:"sender"`
	SettledAt        time.Time       `json:"settled_at" db:"settled_at"`
}

// UnmatchedReason почему перевод не был зачтён автоматически
type UnmatchedReason string

const (
	UnmatchedReasonNoMatchingRequest       UnmatchedReason = "no_matching_request"
	UnmatchedReasonConcurrentStateConflict UnmatchedReason = "concurrent_state_conflict"
)

// UnmatchedTransfer перевод без заявки, хранится для ручной сверки
type UnmatchedTransfer struct {
	Network           Network         `json:"network" db:"network"`
	ExternalTxID      string          `json:"external_tx_id" db:"external_tx_id"`
	Amount            decimal.Decimal `json:"amount" db:"amount"`
	Sender            string          `json:"sender" db:"sender"`
	Recipient         string          `json:"recipient" db:"recipient"`
	Reason            UnmatchedReason `json:"reason" db:"reason"`
	ObservedAt        time.Time       `json:"observed_at" db:"observed_at"`
	FirstSeenAt       time.Time       `json:"first_seen_at" db:"first_seen_at"`
	LastSeenAt        time.Time       `json:"last_seen_at" db:"last_seen_at"`
	SeenCount         int             `json:"seen_count" db:"seen_count"`
	ResolvedAt        *time.Time      `json:"resolved_at,omitempty" db:"resolved_at"`
	ResolvedRequestID *uuid.UUID      `json:"resolved_request_id,omitempty" db:"resolved_request_id"`
}

// MatchResult результат успешного сопоставления
type MatchResult struct {
	Request *PaymentRequest
	Record  *SettlementRecord
}

// Checkpoint позиция наблюдателя в потоке сети, version для оптимистичной записи
type Checkpoint struct {
	Network   Network   `json:"network" db:"network"`
	Cursor    uint64    `json:"cursor" db:"cursor"`
	Version   int64     `json:"version" db:"version"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
