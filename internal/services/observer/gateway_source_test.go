package observer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kpizzy812/TMAMARKET/internal/adapters/secondary/storage/inmemory"
	"github.com/kpizzy812/TMAMARKET/internal/domain"
	"github.com/kpizzy812/TMAMARKET/internal/ports/payment"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGateway struct {
	statuses map[string]*domain.GatewayOrderStatus
	errs     map[string]error
	calls    []string
}

func (g *fakeGateway) RegisterOrder(context.Context, payment.RegisterOrderRequest) (*domain.GatewayOrder, error) {
	return nil, errors.New("not implemented")
}

func (g *fakeGateway) GetOrderStatus(_ context.Context, id string) (*domain.GatewayOrderStatus, error) {
	g.calls = append(g.calls, id)
	if err := g.errs[id]; err != nil {
		return nil, err
	}
	if st, ok := g.statuses[id]; ok {
		return st, nil
	}
	return &domain.GatewayOrderStatus{OrderID: id, Status: domain.GatewayStatusPending}, nil
}

func (g *fakeGateway) VerifyCallback([]byte, string) bool { return true }

func (g *fakeGateway) ParseCallback([]byte) (*domain.GatewayOrderStatus, error) {
	return nil, errors.New("not implemented")
}

func (g *fakeGateway) MerchantID() string { return "merchant-1" }

func sbpRequest(t *testing.T, store *inmemory.Store, orderID, gatewayRef string) *domain.PaymentRequest {
	t.Helper()
	ref := gatewayRef
	now := time.Now().UTC()
	req := &domain.PaymentRequest{
		ID:               uuid.New(),
		OrderID:          orderID,
		Network:          domain.NetworkSBP,
		ExpectedAmount:   decimal.RequireFromString("990"),
		CollectorAddress: "merchant-1",
		GatewayReference: &ref,
		Status:           domain.PaymentRequestStatusPending,
		CreatedAt:        now,
		ExpiresAt:        now.Add(30 * time.Minute),
	}
	require.NoError(t, store.Requests().Create(context.Background(), req))
	return req
}

func TestGatewaySource_ReturnsPaidOrders(t *testing.T) {
	store := inmemory.NewStore()
	paid := sbpRequest(t, store, "order-paid", "gw-paid")
	sbpRequest(t, store, "order-waiting", "gw-waiting")
	sbpRequest(t, store, "order-failed", "gw-failed")

	gateway := &fakeGateway{statuses: map[string]*domain.GatewayOrderStatus{
		"gw-paid": {
			OrderID:       "gw-paid",
			Status:        domain.GatewayStatusPaid,
			TransactionID: "sbp-tx-1",
			Amount:        decimal.RequireFromString("990"),
		},
		"gw-failed": {OrderID: "gw-failed", Status: domain.GatewayStatusFailed},
	}}

	source := NewGatewaySource(store.Requests(), gateway, time.Minute, discardLogger())
	batch, err := source.Fetch(context.Background(), 0)
	require.NoError(t, err)

	require.Len(t, batch.Transfers, 1)
	tr := batch.Transfers[0]
	assert.Equal(t, "sbp-tx-1", tr.ExternalTxID)
	assert.Equal(t, "gw-paid", tr.GatewayReference)
	assert.Equal(t, "merchant-1", tr.Recipient, "пустой merchant_id заменяется своим")
	assert.Zero(t, batch.Next)
	assert.Equal(t, 1, source.Attempts(paid.ID))
	assert.Len(t, gateway.calls, 3)
}

func TestGatewaySource_ThrottlesChecks(t *testing.T) {
	store := inmemory.NewStore()
	req := sbpRequest(t, store, "order-1", "gw-1")
	gateway := &fakeGateway{}

	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	source := NewGatewaySource(store.Requests(), gateway, time.Minute, discardLogger())
	source.now = func() time.Time { return now }

	_, err := source.Fetch(context.Background(), 0)
	require.NoError(t, err)
	_, err = source.Fetch(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, gateway.calls, 1)

	now = now.Add(time.Minute)
	_, err = source.Fetch(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, gateway.calls, 2)
	assert.Equal(t, 2, source.Attempts(req.ID))
}

func TestGatewaySource_TransientErrorFailsFetch(t *testing.T) {
	store := inmemory.NewStore()
	sbpRequest(t, store, "order-1", "gw-1")
	sbpRequest(t, store, "order-2", "gw-2")

	down := domain.NewTransientSourceError(domain.NetworkSBP, "status", errors.New("502"))
	gateway := &fakeGateway{errs: map[string]error{"gw-1": down, "gw-2": down}}

	source := NewGatewaySource(store.Requests(), gateway, time.Minute, discardLogger())
	_, err := source.Fetch(context.Background(), 0)
	assert.True(t, domain.IsTransientSourceError(err))
}

func TestGatewaySource_ForgetsClosedRequests(t *testing.T) {
	store := inmemory.NewStore()
	req := sbpRequest(t, store, "order-1", "gw-1")
	source := NewGatewaySource(store.Requests(), &fakeGateway{}, time.Minute, discardLogger())

	_, err := source.Fetch(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, source.Attempts(req.ID))

	ok, err := store.Requests().Transition(context.Background(), req.ID, domain.PaymentRequestStatusPending, domain.PaymentRequestStatusCancelled)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = source.Fetch(context.Background(), 0)
	require.NoError(t, err)
	assert.Zero(t, source.Attempts(req.ID))
}

func TestHealthRegistry_MirrorsToCache(t *testing.T) {
	c := &mapCache{values: map[string]string{}}
	health := NewHealthRegistry(c, discardLogger())
	health.Register(domain.NetworkTON)

	health.SetCheckpoint(context.Background(), domain.NetworkTON, 42)

	raw, ok := c.values["network_health:TON"]
	require.True(t, ok)
	assert.Contains(t, raw, `"checkpoint":42`)
}

type mapCache struct {
	values map[string]string
}

func (m *mapCache) Get(_ context.Context, key string) (string, error) { return m.values[key], nil }
func (m *mapCache) Set(_ context.Context, key, value string, _ time.Duration) error {
	m.values[key] = value
	return nil
}
func (m *mapCache) Delete(_ context.Context, key string) error { delete(m.values, key); return nil }
func (m *mapCache) Exists(_ context.Context, key string) (bool, error) {
	_, ok := m.values[key]
	return ok, nil
}
func (m *mapCache) Close() error { return nil }
