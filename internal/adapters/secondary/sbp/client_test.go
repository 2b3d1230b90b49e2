package sbp

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kpizzy812/TMAMARKET/internal/domain"
	"github.com/kpizzy812/TMAMARKET/internal/ports/payment"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "gateway-secret"

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := &Config{
		BaseURL:        srv.URL,
		MerchantID:     "merchant-1",
		SecretKey:      secret,
		CallbackURL:    "https://pay.example.com/api/v1/sbp/callback",
		RequestTimeout: time.Second,
	}
	return NewClient(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRegisterOrder(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/orders", r.URL.Path)
		assert.Equal(t, "merchant-1", r.Header.Get("X-Merchant-Id"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.True(t, Verify(secret, body, r.Header.Get(signatureHeader)))

		var req registerOrderRequest
		require.NoError(t, json.Unmarshal(body, &req))
		assert.Equal(t, int64(149999), req.Amount)
		assert.Equal(t, "RUB", req.Currency)
		assert.Equal(t, "PAY-ABCD1234", req.OrderNumber)

		writeJSON(w, registerOrderResponse{
			OrderID:    "gw-1",
			PaymentURL: "https://qr.nspk.ru/gw-1",
			QRPayload:  "https://qr.nspk.ru/gw-1",
		})
	})

	order, err := client.RegisterOrder(context.Background(), payment.RegisterOrderRequest{
		Reference: "PAY-ABCD1234",
		Amount:    decimal.RequireFromString("1499.999"),
	})
	require.NoError(t, err)
	assert.Equal(t, "gw-1", order.OrderID)
	assert.Equal(t, "https://qr.nspk.ru/gw-1", order.PaymentURL)
}

func TestRegisterOrder_Errors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		transient bool
	}{
		{name: "gateway unavailable", status: http.StatusBadGateway, transient: true},
		{name: "rejected", status: http.StatusBadRequest, transient: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"code":"E1","message":"nope"}`))
			})

			_, err := client.RegisterOrder(context.Background(), payment.RegisterOrderRequest{
				Reference: "PAY-ABCD1234",
				Amount:    decimal.NewFromInt(100),
			})
			require.Error(t, err)
			assert.Equal(t, tt.transient, domain.IsTransientSourceError(err))
		})
	}
}

func TestRegisterOrder_RejectsSubKopeckAmount(t *testing.T) {
	client := newTestClient(t, func(http.ResponseWriter, *http.Request) {
		t.Fatal("gateway must not be called")
	})

	_, err := client.RegisterOrder(context.Background(), payment.RegisterOrderRequest{
		Reference: "PAY-ABCD1234",
		Amount:    decimal.RequireFromString("0.004"),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
}

func TestGetOrderStatus(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/orders/gw-1", r.URL.Path)
		assert.Equal(t, Sign(secret, []byte("gw-1")), r.Header.Get(signatureHeader))

		writeJSON(w, orderStatusPayload{
			Status:        "success",
			TransactionID: "bank-tx-1",
			Amount:        150000,
			Payer:         "+7******1234",
			PaidAt:        "2024-03-01T10:00:00+03:00",
		})
	})

	status, err := client.GetOrderStatus(context.Background(), "gw-1")
	require.NoError(t, err)
	assert.Equal(t, "gw-1", status.OrderID)
	assert.Equal(t, domain.GatewayStatusPaid, status.Status)
	assert.True(t, status.Amount.Equal(decimal.NewFromInt(1500)))
	assert.Equal(t, "merchant-1", status.MerchantID)
	assert.Equal(t, time.Date(2024, 3, 1, 7, 0, 0, 0, time.UTC), status.PaidAt)
}

func TestGetOrderStatus_ErrorIsTransient(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := client.GetOrderStatus(context.Background(), "gw-404")
	assert.True(t, domain.IsTransientSourceError(err))
}

func TestCallback(t *testing.T) {
	client := newTestClient(t, func(http.ResponseWriter, *http.Request) {})

	body := []byte(`{"order_id":"gw-7","status":"PAID","transaction_id":"bank-tx-7","amount":99900}`)
	assert.True(t, client.VerifyCallback(body, Sign(secret, body)))
	assert.False(t, client.VerifyCallback(body, Sign("other", body)))

	status, err := client.ParseCallback(body)
	require.NoError(t, err)
	assert.Equal(t, "gw-7", status.OrderID)
	assert.Equal(t, domain.GatewayStatusPaid, status.Status)
	assert.True(t, status.Amount.Equal(decimal.RequireFromString("999")))
	assert.Equal(t, "merchant-1", status.MerchantID)

	_, err = client.ParseCallback([]byte(`{"status":"PAID"}`))
	assert.Error(t, err)
	_, err = client.ParseCallback([]byte(`not json`))
	assert.Error(t, err)
}

func TestVerify(t *testing.T) {
	body := []byte(`{"order_id":"gw-1"}`)
	sig := Sign(secret, body)

	assert.True(t, Verify(secret, body, sig))
	assert.True(t, Verify(secret, body, " "+sig+"\n"))
	assert.False(t, Verify(secret, []byte(`{"order_id":"gw-2"}`), sig))
	assert.False(t, Verify("", body, Sign("", body)))
	assert.False(t, Verify(secret, body, ""))
	assert.False(t, Verify(secret, body, "zz"))
}

func TestNormalizeStatus(t *testing.T) {
	tests := map[string]domain.GatewayStatus{
		"PAID":       domain.GatewayStatusPaid,
		" completed": domain.GatewayStatusPaid,
		"Confirmed":  domain.GatewayStatusPaid,
		"DECLINED":   domain.GatewayStatusFailed,
		"rejected":   domain.GatewayStatusFailed,
		"EXPIRED":    domain.GatewayStatusCancelled,
		"canceled":   domain.GatewayStatusCancelled,
		"CREATED":    domain.GatewayStatusPending,
		"":           domain.GatewayStatusPending,
	}
	for raw, want := range tests {
		assert.Equal(t, want, NormalizeStatus(raw), raw)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
