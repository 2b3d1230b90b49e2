package inmemory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kpizzy812/TMAMARKET/internal/domain"
	ports "github.com/kpizzy812/TMAMARKET/internal/ports/repository"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func pending(orderID string, amount string) *domain.PaymentRequest {
	return &domain.PaymentRequest{
		ID:               uuid.New(),
		OrderID:          orderID,
		Network:          domain.NetworkBEP20,
		ExpectedAmount:   decimal.RequireFromString(amount),
		CollectorAddress: "0xcollector",
		Status:           domain.PaymentRequestStatusPending,
		CreatedAt:        now,
		ExpiresAt:        now.Add(30 * time.Minute),
	}
}

func TestTransactionRollback(t *testing.T) {
	store := NewStore().WithClock(func() time.Time { return now })
	ctx := context.Background()
	req := pending("order-1", "10")
	require.NoError(t, store.Requests().Create(ctx, req))

	boom := errors.New("boom")
	err := store.TxManager().WithinTransaction(ctx, func(ctx context.Context, repos ports.TxRepositories) error {
		inserted, err := repos.Ledger.TryInsert(ctx, &domain.SettlementRecord{
			ExternalTxID:     "0xhash:1",
			Network:          domain.NetworkBEP20,
			PaymentRequestID: req.ID,
		})
		require.NoError(t, err)
		require.True(t, inserted)

		ok, err := repos.Requests.MarkMatched(ctx, req.ID, "0xhash:1")
		require.NoError(t, err)
		require.True(t, ok)

		require.NoError(t, repos.Unmatched.Record(ctx, domain.ObservedTransfer{
			Network:      domain.NetworkBEP20,
			ExternalTxID: "0xother:0",
		}, domain.UnmatchedReasonNoMatchingRequest))
		return boom
	})
	require.ErrorIs(t, err, boom)

	exists, err := store.Ledger().Exists(ctx, "0xhash:1")
	require.NoError(t, err)
	assert.False(t, exists)

	got, err := store.Requests().GetByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentRequestStatusPending, got.Status)
	assert.Nil(t, got.MatchedTransferID)

	unmatched, err := store.Unmatched().ListUnresolved(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, unmatched)
}

func TestOnePendingRequestPerOrder(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	require.NoError(t, store.Requests().Create(ctx, pending("order-1", "10")))
	assert.ErrorIs(t, store.Requests().Create(ctx, pending("order-1", "11")), domain.ErrDuplicateActiveRequest)
	assert.NoError(t, store.Requests().Create(ctx, pending("order-2", "10")))
}

func TestLedgerUniqueness(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	reqID := uuid.New()

	inserted, err := store.Ledger().TryInsert(ctx, &domain.SettlementRecord{ExternalTxID: "tx", PaymentRequestID: reqID})
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = store.Ledger().TryInsert(ctx, &domain.SettlementRecord{ExternalTxID: "tx", PaymentRequestID: uuid.New()})
	require.NoError(t, err)
	assert.False(t, inserted)

	// одна заявка не может быть оплачена дважды
	_, err = store.Ledger().TryInsert(ctx, &domain.SettlementRecord{ExternalTxID: "tx-2", PaymentRequestID: reqID})
	assert.ErrorIs(t, err, domain.ErrConcurrentStateConflict)
}

func TestTransitionIsCompareAndSwap(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	req := pending("order-1", "10")
	require.NoError(t, store.Requests().Create(ctx, req))

	ok, err := store.Requests().Transition(ctx, req.ID, domain.PaymentRequestStatusPending, domain.PaymentRequestStatusExpired)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.Requests().MarkMatched(ctx, req.ID, "tx")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = store.Requests().Transition(ctx, req.ID, domain.PaymentRequestStatusExpired, domain.PaymentRequestStatusPending)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUnmatchedRecordAndResolve(t *testing.T) {
	clock := now
	store := NewStore().WithClock(func() time.Time { return clock })
	ctx := context.Background()
	tr := domain.ObservedTransfer{Network: domain.NetworkTON, ExternalTxID: "h1", Amount: decimal.RequireFromString("5")}

	require.NoError(t, store.Unmatched().Record(ctx, tr, domain.UnmatchedReasonNoMatchingRequest))
	clock = now.Add(time.Minute)
	require.NoError(t, store.Unmatched().Record(ctx, tr, domain.UnmatchedReasonNoMatchingRequest))

	list, err := store.Unmatched().ListUnresolved(ctx, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 2, list[0].SeenCount)
	assert.Equal(t, now, list[0].FirstSeenAt)
	assert.Equal(t, now.Add(time.Minute), list[0].LastSeenAt)

	require.NoError(t, store.Unmatched().Resolve(ctx, domain.NetworkTON, "h1", uuid.New()))
	list, err = store.Unmatched().ListUnresolved(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestCheckpointOptimisticSave(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	cp, err := store.Checkpoints().Get(ctx, domain.NetworkTRC20)
	require.NoError(t, err)
	assert.Zero(t, cp.Cursor)

	stale := *cp
	cp.Cursor = 100
	saved, err := store.Checkpoints().Save(ctx, cp)
	require.NoError(t, err)
	assert.True(t, saved)
	assert.Equal(t, int64(1), cp.Version)

	stale.Cursor = 50
	saved, err = store.Checkpoints().Save(ctx, &stale)
	require.NoError(t, err)
	assert.False(t, saved)

	got, err := store.Checkpoints().Get(ctx, domain.NetworkTRC20)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), got.Cursor)
}

func TestOrderOpenRejectsClosedOrder(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	_, err := store.Orders().Open(ctx, "order-1", uuid.New())
	require.NoError(t, err)
	ok, err := store.Orders().Transition(ctx, "order-1", domain.OrderStateAwaitingPayment, domain.OrderStatePaid)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = store.Orders().Open(ctx, "order-1", uuid.New())
	assert.ErrorIs(t, err, domain.ErrOrderClosed)
}

func TestListAwaitingCoordination(t *testing.T) {
	store := NewStore().WithClock(func() time.Time { return now })
	ctx := context.Background()
	req := pending("order-1", "10")
	require.NoError(t, store.Requests().Create(ctx, req))
	_, err := store.Orders().Open(ctx, "order-1", req.ID)
	require.NoError(t, err)

	list, err := store.Requests().ListAwaitingCoordination(ctx, now.Add(time.Minute), 10)
	require.NoError(t, err)
	assert.Empty(t, list)

	ok, err := store.Requests().Transition(ctx, req.ID, domain.PaymentRequestStatusPending, domain.PaymentRequestStatusExpired)
	require.NoError(t, err)
	require.True(t, ok)

	// только что изменённая заявка ещё не видна
	list, err = store.Requests().ListAwaitingCoordination(ctx, now, 10)
	require.NoError(t, err)
	assert.Empty(t, list)

	list, err = store.Requests().ListAwaitingCoordination(ctx, now.Add(time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, req.ID, list[0].ID)
}

func TestLockTTL(t *testing.T) {
	clock := now
	lock := &Lock{entries: make(map[string]time.Time), now: func() time.Time { return clock }}
	ctx := context.Background()

	ok, err := lock.Acquire(ctx, "k", time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, _ = lock.Acquire(ctx, "k", time.Second)
	assert.False(t, ok)

	clock = now.Add(2 * time.Second)
	ok, _ = lock.Acquire(ctx, "k", time.Second)
	assert.True(t, ok)

	require.NoError(t, lock.Release(ctx, "k"))
	ok, _ = lock.Acquire(ctx, "k", time.Second)
	assert.True(t, ok)
}
