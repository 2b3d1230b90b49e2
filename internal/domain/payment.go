package domain

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentRequestStatus статус заявки на оплату
type PaymentRequestStatus string

const (
	PaymentRequestStatusPending   PaymentRequestStatus = "pending"   // ждём перевод
	PaymentRequestStatusMatched   PaymentRequestStatus = "matched"   // перевод найден и зачтён
	PaymentRequestStatusExpired   PaymentRequestStatus = "expired"   // окно оплаты истекло
	PaymentRequestStatusCancelled PaymentRequestStatus = "cancelled" // покупатель отказался от оплаты
)

func (s PaymentRequestStatus) IsValid() bool {
	switch s {
	case PaymentRequestStatusPending, PaymentRequestStatusMatched,
		PaymentRequestStatusExpired, PaymentRequestStatusCancelled:
		return true
	default:
		return false
	}
}

// IsTerminal из терминального статуса переходов нет
func (s PaymentRequestStatus) IsTerminal() bool {
	return s == PaymentRequestStatusMatched ||
		s == PaymentRequestStatusExpired ||
		s == PaymentRequestStatusCancelled
}

// CanTransitionRequest разрешены только переходы pending -> терминальный статус
func CanTransitionRequest(from, to PaymentRequestStatus) bool {
	return from == PaymentRequestStatusPending && to.IsTerminal()
}

// PaymentRequest заявка на оплату заказа.
// После создания меняются только status и matched_transfer_id.
type PaymentRequest struct {
	ID                uuid.UUID            `json:"id" db:"id"`
	Reference         string               `json:"reference" db:"reference"` // PAY-20240101120000-1A2B3C4D
	OrderID           string               `json:"order_id" db:"order_id"`
	Network           Network              `json:"network" db:"network"`
	ExpectedAmount    decimal.Decimal      `json:"expected_amount" db:"expected_amount"`
	BaseAmount        decimal.Decimal      `json:"base_amount" db:"base_amount"` // сумма заказа без уникальной добавки
	CollectorAddress  string               `json:"collector_address" db:"collector"`
	GatewayReference  *string              `json:"gateway_reference,omitempty" db:"gateway_reference"` // id заказа в платёжном шлюзе (СБП)
	GatewayPaymentURL *string              `json:"payment_url,omitempty" db:"gateway_payment_url"`
	GatewayQRPayload  *string              `json:"qr_payload,omitempty" db:"gateway_qr_payload"`
	CustomerChatID    *int64               `json:"customer_chat_id,omitempty" db:"customer_chat_id"`
	Status            PaymentRequestStatus `json:"status" db:"status"`
	MatchedTransferID *string              `json:"matched_transfer_id,omitempty" db:"matched_transfer_id"`
	CreatedAt         time.Time            `json:"created_at" db:"created_at"`
	ExpiresAt         time.Time            `json:"expires_at" db:"expires_at"`
	UpdatedAt         time.Time            `json:"updated_at" db:"updated_at"`
}

// IsExpiredAt окно оплаты истекло строго раньше now
func (r *PaymentRequest) IsExpiredAt(now time.Time) bool {
	return r.ExpiresAt.Before(now)
}

// ExplorerURL ссылка на зачтённую транзакцию
func (r *PaymentRequest) ExplorerURL() string {
	if r.MatchedTransferID == nil {
		return ""
	}
	return r.Network.ExplorerTxURL(*r.MatchedTransferID)
}

// NewPaymentReference генерирует читаемый номер платежа: PAY-YYYYmmddHHMMSS-XXXXXXXX
func NewPaymentReference(now time.Time) string {
	buf := make([]byte, 4)
	_, _ = rand.Read(buf)
	return "PAY-" + now.UTC().Format("20060102150405") + "-" + strings.ToUpper(hex.EncodeToString(buf))
}
