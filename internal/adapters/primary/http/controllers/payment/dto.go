package payment

import (
	"time"

	"github.com/google/uuid"
	"github.com/kpizzy812/TMAMARKET/internal/domain"
	"github.com/shopspring/decimal"
)

type CreatePaymentRequestBody struct {
	OrderID        string          `json:"order_id" binding:"required"`
	Amount         decimal.Decimal `json:"amount"`
	Network        string          `json:"network" binding:"required"`
	CustomerChatID *int64          `json:"customer_chat_id,omitempty"`
}

type PaymentRequestResponse struct {
	ID                uuid.UUID                   `json:"id"`
	Reference         string                      `json:"reference"`
	OrderID           string                      `json:"order_id"`
	Network           domain.Network              `json:"network"`
	Currency          string                      `json:"currency"`
	ExpectedAmount    decimal.Decimal             `json:"expected_amount"`
	BaseAmount        decimal.Decimal             `json:"base_amount"`
	CollectorAddress  string                      `json:"collector_address"`
	PaymentURL        *string                     `json:"payment_url,omitempty"`
	QRPayload         *string                     `json:"qr_payload,omitempty"`
	Status            domain.PaymentRequestStatus `json:"status"`
	MatchedTransferID *string                     `json:"matched_transfer_id,omitempty"`
	ExplorerURL       string                      `json:"explorer_url,omitempty"`
	CreatedAt         time.Time                   `json:"created_at"`
	ExpiresAt         time.Time                   `json:"expires_at"`
}

func toResponse(req *domain.PaymentRequest) PaymentRequestResponse {
	return PaymentRequestResponse{
		ID:                req.ID,
		Reference:         req.Reference,
		OrderID:           req.OrderID,
		Network:           req.Network,
		Currency:          req.Network.Currency(),
		ExpectedAmount:    req.ExpectedAmount,
		BaseAmount:        req.BaseAmount,
		CollectorAddress:  req.CollectorAddress,
		PaymentURL:        req.GatewayPaymentURL,
		QRPayload:         req.GatewayQRPayload,
		Status:            req.Status,
		MatchedTransferID: req.MatchedTransferID,
		ExplorerURL:       req.ExplorerURL(),
		CreatedAt:         req.CreatedAt,
		ExpiresAt:         req.ExpiresAt,
	}
}

type OrderPaymentResponse struct {
	OrderID string                   `json:"order_id"`
	State   domain.OrderPaymentState `json:"state,omitempty"`
	Request PaymentRequestResponse   `json:"payment_request"`
}

type UnmatchedListResponse struct {
	Count     int                         `json:"count"`
	Transfers []*domain.UnmatchedTransfer `json:"transfers"`
}
