package sbp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/kpizzy812/TMAMARKET/internal/domain"
	"github.com/kpizzy812/TMAMARKET/internal/ports/payment"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGateway struct {
	valid bool
}

func (g *fakeGateway) RegisterOrder(context.Context, payment.RegisterOrderRequest) (*domain.GatewayOrder, error) {
	return nil, errors.New("not implemented")
}

func (g *fakeGateway) GetOrderStatus(context.Context, string) (*domain.GatewayOrderStatus, error) {
	return nil, errors.New("not implemented")
}

func (g *fakeGateway) VerifyCallback(_ []byte, signature string) bool {
	return g.valid && signature != ""
}

func (g *fakeGateway) ParseCallback(body []byte) (*domain.GatewayOrderStatus, error) {
	var payload struct {
		OrderID       string `json:"order_id"`
		Status        string `json:"status"`
		TransactionID string `json:"transaction_id"`
		Amount        string `json:"amount"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, err
	}
	return &domain.GatewayOrderStatus{
		OrderID:       payload.OrderID,
		Status:        domain.GatewayStatus(payload.Status),
		TransactionID: payload.TransactionID,
		Amount:        decimal.RequireFromString(payload.Amount),
	}, nil
}

func (g *fakeGateway) MerchantID() string {
	return "merchant-1"
}

type processorFunc func(ctx context.Context, t domain.ObservedTransfer) (*domain.MatchResult, error)

func (f processorFunc) Process(ctx context.Context, t domain.ObservedTransfer) (*domain.MatchResult, error) {
	return f(ctx, t)
}

func newRouter(gateway payment.IPaymentGateway, processor processorFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	New(gateway, processor, slog.New(slog.NewTextHandler(io.Discard, nil))).RegisterRoutes(router)
	return router
}

func postCallback(router *gin.Engine, body, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/callbacks/sbp", bytes.NewBufferString(body))
	if signature != "" {
		req.Header.Set(signatureHeader, signature)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

const paidBody = `{"order_id":"gw-1","status":"paid","transaction_id":"bank-tx-1","amount":"1500"}`

func TestCallback_RejectsBadSignature(t *testing.T) {
	called := false
	router := newRouter(&fakeGateway{valid: false}, func(context.Context, domain.ObservedTransfer) (*domain.MatchResult, error) {
		called = true
		return nil, nil
	})

	rec := postCallback(router, paidBody, "deadbeef")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, called)

	rec = postCallback(router, paidBody, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCallback_PaidOrderGoesToEngine(t *testing.T) {
	var got domain.ObservedTransfer
	router := newRouter(&fakeGateway{valid: true}, func(_ context.Context, t domain.ObservedTransfer) (*domain.MatchResult, error) {
		got = t
		return &domain.MatchResult{}, nil
	})

	rec := postCallback(router, paidBody, "sig")
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, domain.NetworkSBP, got.Network)
	assert.Equal(t, "bank-tx-1", got.ExternalTxID)
	assert.Equal(t, "gw-1", got.GatewayReference)
	assert.Equal(t, "merchant-1", got.Recipient)
	assert.True(t, got.Amount.Equal(decimal.NewFromInt(1500)))
}

func TestCallback_Outcomes(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "matched", err: nil, want: http.StatusOK},
		{name: "duplicate", err: domain.ErrDuplicateTransfer, want: http.StatusOK},
		{name: "no matching request", err: domain.ErrNoMatchingRequest, want: http.StatusOK},
		{name: "in flight", err: domain.ErrTransferInFlight, want: http.StatusOK},
		{name: "storage down", err: errors.New("connection refused"), want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newRouter(&fakeGateway{valid: true}, func(context.Context, domain.ObservedTransfer) (*domain.MatchResult, error) {
				return nil, tt.err
			})
			assert.Equal(t, tt.want, postCallback(router, paidBody, "sig").Code)
		})
	}
}

func TestCallback_PendingStatusIgnored(t *testing.T) {
	called := false
	router := newRouter(&fakeGateway{valid: true}, func(context.Context, domain.ObservedTransfer) (*domain.MatchResult, error) {
		called = true
		return nil, nil
	})

	rec := postCallback(router, `{"order_id":"gw-1","status":"pending","amount":"0"}`, "sig")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, called)

	rec = postCallback(router, `{broken`, "sig")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
