package sbp

import (
	"strings"
	"time"

	"github.com/kpizzy812/TMAMARKET/internal/domain"
	"github.com/shopspring/decimal"
)

type registerOrderRequest struct {
	MerchantID  string `json:"merchant_id"`
	OrderNumber string `json:"order_number"`
	Amount      int64  `json:"amount"` // в копейках
	Currency    string `json:"currency"`
	Description string `json:"description,omitempty"`
	CallbackURL string `json:"callback_url,omitempty"`
}

type registerOrderResponse struct {
	OrderID    string `json:"order_id"`
	PaymentURL string `json:"payment_url"`
	QRPayload  string `json:"qr_payload"`
}

// orderStatusPayload ответ GET /v1/orders/{id} и тело push-уведомления
type orderStatusPayload struct {
	OrderID       string `json:"order_id"`
	Status        string `json:"status"`
	TransactionID string `json:"transaction_id"`
	Amount        int64  `json:"amount"` // в копейках
	MerchantID    string `json:"merchant_id"`
	Payer         string `json:"payer,omitempty"`
	PaidAt        string `json:"paid_at,omitempty"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (p orderStatusPayload) toDomain() *domain.GatewayOrderStatus {
	status := &domain.GatewayOrderStatus{
		OrderID:       p.OrderID,
		Status:        NormalizeStatus(p.Status),
		TransactionID: p.TransactionID,
		Amount:        decimal.NewFromInt(p.Amount).Shift(-2),
		MerchantID:    p.MerchantID,
		Payer:         p.Payer,
	}
	if p.PaidAt != "" {
		if paidAt, err := time.Parse(time.RFC3339, p.PaidAt); err == nil {
			status.PaidAt = paidAt.UTC()
		}
	}
	return status
}

// NormalizeStatus сводит статусы банка к четырём
func NormalizeStatus(raw string) domain.GatewayStatus {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "PAID", "SUCCESS", "CONFIRMED", "COMPLETED":
		return domain.GatewayStatusPaid
	case "DECLINED", "REJECTED", "FAILED":
		return domain.GatewayStatusFailed
	case "EXPIRED", "CANCELLED", "CANCELED":
		return domain.GatewayStatusCancelled
	default:
		return domain.GatewayStatusPending
	}
}

// toKopecks сумма в копейках, дробная часть меньше копейки отбрасывается
func toKopecks(amount decimal.Decimal) int64 {
	return amount.Shift(2).Truncate(0).IntPart()
}
