package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kpizzy812/TMAMARKET/internal/adapters/secondary/storage/inmemory"
	"github.com/kpizzy812/TMAMARKET/internal/domain"
	"github.com/kpizzy812/TMAMARKET/internal/services/events"
	"github.com/kpizzy812/TMAMARKET/internal/usecases/settlement"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubCoordinator struct {
	mu         sync.Mutex
	matched    []uuid.UUID
	expired    []uuid.UUID
	cancelled  []uuid.UUID
	expiredErr error
}

func (c *stubCoordinator) OnPaymentMatched(_ context.Context, r *domain.MatchResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.matched = append(c.matched, r.Request.ID)
	return nil
}

func (c *stubCoordinator) OnPaymentExpired(_ context.Context, req *domain.PaymentRequest) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.expired = append(c.expired, req.ID)
	return c.expiredErr
}

func (c *stubCoordinator) OnPaymentCancelled(_ context.Context, req *domain.PaymentRequest) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelled = append(c.cancelled, req.ID)
	return nil
}

func (c *stubCoordinator) MarkFulfilling(context.Context, string) error { return nil }
func (c *stubCoordinator) MarkCompleted(context.Context, string) error  { return nil }
func (c *stubCoordinator) GetState(context.Context, string) (*domain.OrderSettlement, error) {
	return nil, domain.ErrNotFound
}

func createRequest(t *testing.T, store *inmemory.Store, orderID string, expiresAt time.Time) *domain.PaymentRequest {
	t.Helper()
	ctx := context.Background()
	req := &domain.PaymentRequest{
		ID:             uuid.New(),
		OrderID:        orderID,
		Network:        domain.NetworkTON,
		ExpectedAmount: decimal.RequireFromString("3"),
		Status:         domain.PaymentRequestStatusPending,
		CreatedAt:      expiresAt.Add(-30 * time.Minute),
		ExpiresAt:      expiresAt,
	}
	require.NoError(t, store.Requests().Create(ctx, req))
	_, err := store.Orders().Open(ctx, orderID, req.ID)
	require.NoError(t, err)
	return req
}

// newStore часы хранилища на час раньше прохода sweeper, изменения уже вне grace
func newStore() *inmemory.Store {
	return inmemory.NewStore().WithClock(func() time.Time { return testNow.Add(-time.Hour) })
}

func newSweeper(store *inmemory.Store, coordinator *stubCoordinator) *ExpirySweeper {
	sweeper := NewExpirySweeper(store.Requests(), store.Ledger(), coordinator, 0, time.Minute, discardLogger())
	sweeper.now = func() time.Time { return testNow }
	return sweeper
}

func TestExpirySweeper_ExpiresOnlyPastWindow(t *testing.T) {
	store := newStore()
	coordinator := &stubCoordinator{}
	sweeper := newSweeper(store, coordinator)

	past := createRequest(t, store, "order-past", testNow.Add(-time.Second))
	boundary := createRequest(t, store, "order-boundary", testNow)
	future := createRequest(t, store, "order-future", testNow.Add(time.Minute))

	require.NoError(t, sweeper.Run(context.Background()))

	get := func(id uuid.UUID) domain.PaymentRequestStatus {
		req, err := store.Requests().GetByID(context.Background(), id)
		require.NoError(t, err)
		return req.Status
	}
	assert.Equal(t, domain.PaymentRequestStatusExpired, get(past.ID))
	assert.Equal(t, domain.PaymentRequestStatusPending, get(boundary.ID))
	assert.Equal(t, domain.PaymentRequestStatusPending, get(future.ID))
	assert.Contains(t, coordinator.expired, past.ID)
}

func TestExpirySweeper_MatchedRequestIsNotExpired(t *testing.T) {
	store := newStore()
	coordinator := &stubCoordinator{}
	sweeper := newSweeper(store, coordinator)
	ctx := context.Background()

	req := createRequest(t, store, "order-1", testNow.Add(-time.Minute))
	ok, err := store.Requests().MarkMatched(ctx, req.ID, "tx-1")
	require.NoError(t, err)
	require.True(t, ok)
	_, err = store.Ledger().TryInsert(ctx, &domain.SettlementRecord{ExternalTxID: "tx-1", PaymentRequestID: req.ID})
	require.NoError(t, err)

	require.NoError(t, sweeper.Run(ctx))

	got, err := store.Requests().GetByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentRequestStatusMatched, got.Status)
	assert.Empty(t, coordinator.expired)
	// заказ всё ещё awaiting_payment, поэтому матч передоставлен координатору
	assert.Equal(t, []uuid.UUID{req.ID}, coordinator.matched)
}

func TestExpirySweeper_RedrivesFailedExpiry(t *testing.T) {
	store := newStore()
	coordinator := &stubCoordinator{expiredErr: errors.New("kafka down")}
	sweeper := newSweeper(store, coordinator)
	ctx := context.Background()

	req := createRequest(t, store, "order-1", testNow.Add(-time.Minute))

	require.NoError(t, sweeper.Run(ctx))
	// первый вызов из expire, второй из redrive в том же проходе
	assert.Equal(t, []uuid.UUID{req.ID, req.ID}, coordinator.expired)

	coordinator.expiredErr = nil
	require.NoError(t, sweeper.Run(ctx))
	assert.Len(t, coordinator.expired, 3)
}

func TestExpirySweeper_RedrivesCancelled(t *testing.T) {
	store := newStore()
	coordinator := &stubCoordinator{}
	sweeper := newSweeper(store, coordinator)
	ctx := context.Background()

	req := createRequest(t, store, "order-1", testNow.Add(time.Hour))
	ok, err := store.Requests().Transition(ctx, req.ID, domain.PaymentRequestStatusPending, domain.PaymentRequestStatusCancelled)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, sweeper.Run(ctx))
	assert.Equal(t, []uuid.UUID{req.ID}, coordinator.cancelled)
}

func TestExpirySweeper_NextRun(t *testing.T) {
	sweeper := NewExpirySweeper(nil, nil, nil, 45*time.Second, time.Minute, discardLogger())
	assert.Equal(t, testNow.Add(45*time.Second), sweeper.NextRun(testNow))

	byDefault := NewExpirySweeper(nil, nil, nil, 0, -time.Second, discardLogger())
	assert.Equal(t, testNow.Add(30*time.Second), byDefault.NextRun(testNow))
	assert.Equal(t, "expiry-sweeper", byDefault.Name())
	assert.Zero(t, byDefault.grace)
}

// gatedProducer первый Send ждёт release, остальные проходят сразу
type gatedProducer struct {
	mu      sync.Mutex
	calls   int
	ids     []string
	entered chan struct{}
	release chan struct{}
}

func newGatedProducer() *gatedProducer {
	return &gatedProducer{
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (p *gatedProducer) Send(_ context.Context, _ string, _ []byte, headers map[string]string) error {
	p.mu.Lock()
	p.calls++
	first := p.calls == 1
	p.mu.Unlock()

	if first {
		close(p.entered)
		<-p.release
	}

	p.mu.Lock()
	p.ids = append(p.ids, headers["event_id"])
	p.mu.Unlock()
	return nil
}

func (p *gatedProducer) Close() error { return nil }

func (p *gatedProducer) eventIDs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.ids...)
}

// matchedInFlight заявка только что сматчена, координатор публикует событие и стоит в Send
func matchedInFlight(t *testing.T, store *inmemory.Store, producer *gatedProducer) (*settlement.Service, <-chan error) {
	t.Helper()
	ctx := context.Background()
	coordinator := settlement.New(store.Orders(), events.New(producer, discardLogger()), nil, 0, discardLogger())

	req := createRequest(t, store, "order-1", testNow.Add(time.Hour))
	ok, err := store.Requests().MarkMatched(ctx, req.ID, "tx-1")
	require.NoError(t, err)
	require.True(t, ok)

	record := &domain.SettlementRecord{
		ExternalTxID:     "tx-1",
		Network:          domain.NetworkTON,
		PaymentRequestID: req.ID,
		SettledAmount:    decimal.RequireFromString("3"),
		SettledAt:        testNow,
	}
	_, err = store.Ledger().TryInsert(ctx, record)
	require.NoError(t, err)

	matched, err := store.Requests().GetByID(ctx, req.ID)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		done <- coordinator.OnPaymentMatched(ctx, &domain.MatchResult{Request: matched, Record: record})
	}()
	<-producer.entered
	return coordinator, done
}

func TestExpirySweeper_RedriveSkipsMatchInFlight(t *testing.T) {
	store := inmemory.NewStore().WithClock(func() time.Time { return testNow })
	producer := newGatedProducer()
	ctx := context.Background()

	coordinator, done := matchedInFlight(t, store, producer)

	sweeper := NewExpirySweeper(store.Requests(), store.Ledger(), coordinator, 0, time.Minute, discardLogger())
	sweeper.now = func() time.Time { return testNow.Add(10 * time.Second) }
	require.NoError(t, sweeper.Run(ctx))

	close(producer.release)
	require.NoError(t, <-done)

	assert.Len(t, producer.eventIDs(), 1)
	order, err := store.Orders().Get(ctx, "order-1")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatePaid, order.State)
}

func TestExpirySweeper_RedriveAfterGraceRepublishesSameEventID(t *testing.T) {
	store := inmemory.NewStore().WithClock(func() time.Time { return testNow })
	producer := newGatedProducer()
	ctx := context.Background()

	coordinator, done := matchedInFlight(t, store, producer)

	sweeper := NewExpirySweeper(store.Requests(), store.Ledger(), coordinator, 0, time.Minute, discardLogger())
	sweeper.now = func() time.Time { return testNow.Add(2 * time.Minute) }
	require.NoError(t, sweeper.Run(ctx))

	close(producer.release)
	require.NoError(t, <-done)

	ids := producer.eventIDs()
	require.Len(t, ids, 2)
	assert.Equal(t, ids[0], ids[1])

	order, err := store.Orders().Get(ctx, "order-1")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatePaid, order.State)
}
