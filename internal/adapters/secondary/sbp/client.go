package sbp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"log/slog"

	"github.com/go-resty/resty/v2"
	"github.com/kpizzy812/TMAMARKET/internal/adapters/secondary/chain"
	"github.com/kpizzy812/TMAMARKET/internal/domain"
	"github.com/kpizzy812/TMAMARKET/internal/ports/payment"
)

const signatureHeader = "X-Signature"

var _ payment.IPaymentGateway = (*Client)(nil)

// Client клиент банковского шлюза СБП
type Client struct {
	cfg  *Config
	http *resty.Client
	Log  *slog.Logger
}

func NewClient(cfg *Config, log *slog.Logger) *Client {
	client := chain.NewRestyClient(cfg.BaseURL, cfg.RequestTimeout, cfg.SkipSSL).
		SetHeader("Content-Type", "application/json").
		SetHeader("X-Merchant-Id", cfg.MerchantID)

	return &Client{
		cfg:  cfg,
		http: client,
		Log:  log,
	}
}

func (c *Client) MerchantID() string {
	return c.cfg.MerchantID
}

// RegisterOrder регистрирует заказ, номер платежа используется как номер заказа в банке
func (c *Client) RegisterOrder(ctx context.Context, req payment.RegisterOrderRequest) (*domain.GatewayOrder, error) {
	kopecks := toKopecks(req.Amount)
	if kopecks <= 0 {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidAmount, req.Amount)
	}

	body, err := json.Marshal(registerOrderRequest{
		MerchantID:  c.cfg.MerchantID,
		OrderNumber: req.Reference,
		Amount:      kopecks,
		Currency:    "RUB",
		Description: req.Description,
		CallbackURL: c.cfg.CallbackURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal register order: %w", err)
	}

	var (
		result  registerOrderResponse
		failure errorResponse
	)

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader(signatureHeader, Sign(c.cfg.SecretKey, body)).
		SetBody(body).
		SetResult(&result).
		SetError(&failure).
		Post("/v1/orders")
	if err != nil {
		return nil, domain.NewTransientSourceError(domain.NetworkSBP, "register_order", err)
	}

	if resp.IsError() {
		c.Log.Debug("sbp gateway returned non-2xx status",
			"status_code", resp.StatusCode(),
			"code", failure.Code,
			"body_preview", chain.TruncateString(resp.String(), 200),
		)
		err := fmt.Errorf("sbp register order error [status=%d]: %s", resp.StatusCode(), failure.Message)
		if resp.StatusCode() >= 500 {
			return nil, domain.NewTransientSourceError(domain.NetworkSBP, "register_order", err)
		}
		return nil, err
	}

	if result.OrderID == "" {
		return nil, errors.New("sbp register order: empty order_id in response")
	}

	c.Log.Debug("sbp order registered",
		"reference", req.Reference,
		"gateway_order_id", result.OrderID,
	)

	return &domain.GatewayOrder{
		OrderID:    result.OrderID,
		PaymentURL: result.PaymentURL,
		QRPayload:  result.QRPayload,
	}, nil
}

// GetOrderStatus статус заказа в банке
func (c *Client) GetOrderStatus(ctx context.Context, gatewayOrderID string) (*domain.GatewayOrderStatus, error) {
	var (
		result  orderStatusPayload
		failure errorResponse
	)

	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", gatewayOrderID).
		SetHeader(signatureHeader, Sign(c.cfg.SecretKey, []byte(gatewayOrderID))).
		SetResult(&result).
		SetError(&failure).
		Get("/v1/orders/{id}")
	if err != nil {
		return nil, domain.NewTransientSourceError(domain.NetworkSBP, "order_status", err)
	}

	if resp.IsError() {
		c.Log.Debug("sbp gateway returned non-2xx status",
			"status_code", resp.StatusCode(),
			"gateway_order_id", gatewayOrderID,
			"body_preview", chain.TruncateString(resp.String(), 200),
		)
		return nil, domain.NewTransientSourceError(domain.NetworkSBP, "order_status",
			fmt.Errorf("status=%d: %s", resp.StatusCode(), failure.Message))
	}

	status := result.toDomain()
	if status.OrderID == "" {
		status.OrderID = gatewayOrderID
	}
	if status.MerchantID == "" {
		status.MerchantID = c.cfg.MerchantID
	}
	return status, nil
}

func (c *Client) VerifyCallback(body []byte, signature string) bool {
	return Verify(c.cfg.SecretKey, body, signature)
}

// ParseCallback разбирает push-уведомление, подпись проверяется отдельно
func (c *Client) ParseCallback(body []byte) (*domain.GatewayOrderStatus, error) {
	var payload orderStatusPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal sbp callback: %w", err)
	}
	if payload.OrderID == "" {
		return nil, errors.New("sbp callback without order_id")
	}

	status := payload.toDomain()
	if status.MerchantID == "" {
		status.MerchantID = c.cfg.MerchantID
	}
	return status, nil
}
