package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseNetwork(t *testing.T) {
	tests := []struct {
		in      string
		want    Network
		wantErr bool
	}{
		{in: "TRC20", want: NetworkTRC20},
		{in: "usdt_trc20", want: NetworkTRC20},
		{in: " bep20 ", want: NetworkBEP20},
		{in: "ton", want: NetworkTON},
		{in: "sbp", want: NetworkSBP},
		{in: "erc20", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseNetwork(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrUnsupportedNetwork))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNetworkProperties(t *testing.T) {
	assert.True(t, NetworkTRC20.IsBlockchain())
	assert.True(t, NetworkTON.IsBlockchain())
	assert.False(t, NetworkSBP.IsBlockchain())

	assert.Equal(t, "RUB", NetworkSBP.Currency())
	assert.Equal(t, "USDT", NetworkBEP20.Currency())
	assert.Equal(t, int32(2), NetworkSBP.Precision())
	assert.Equal(t, int32(6), NetworkTRC20.Precision())
}

func TestExplorerTxURL(t *testing.T) {
	assert.Equal(t, "https://tronscan.org/#/transaction/abc", NetworkTRC20.ExplorerTxURL("abc"))
	assert.Equal(t, "https://bscscan.com/tx/0xdead", NetworkBEP20.ExplorerTxURL("0xdead:3"))
	assert.Equal(t, "https://tonscan.org/tx/h", NetworkTON.ExplorerTxURL("h"))
	assert.Empty(t, NetworkSBP.ExplorerTxURL("tx-1"))
	assert.Empty(t, NetworkTRC20.ExplorerTxURL(""))
}

func TestRequestTransitions(t *testing.T) {
	assert.True(t, CanTransitionRequest(PaymentRequestStatusPending, PaymentRequestStatusMatched))
	assert.True(t, CanTransitionRequest(PaymentRequestStatusPending, PaymentRequestStatusExpired))
	assert.True(t, CanTransitionRequest(PaymentRequestStatusPending, PaymentRequestStatusCancelled))
	assert.False(t, CanTransitionRequest(PaymentRequestStatusPending, PaymentRequestStatusPending))
	assert.False(t, CanTransitionRequest(PaymentRequestStatusMatched, PaymentRequestStatusExpired))
	assert.False(t, CanTransitionRequest(PaymentRequestStatusExpired, PaymentRequestStatusMatched))
}

func TestOrderTransitions(t *testing.T) {
	assert.True(t, CanTransitionOrder(OrderStateAwaitingPayment, OrderStatePaid))
	assert.True(t, CanTransitionOrder(OrderStatePaid, OrderStateFulfilling))
	assert.True(t, CanTransitionOrder(OrderStateFulfilling, OrderStateCompleted))
	assert.False(t, CanTransitionOrder(OrderStatePaid, OrderStateExpired))
	assert.False(t, CanTransitionOrder(OrderStateExpired, OrderStatePaid))
	assert.False(t, CanTransitionOrder(OrderStateAwaitingPayment, OrderStateCompleted))

	assert.True(t, OrderStateCompleted.IsTerminal())
	assert.False(t, OrderStatePaid.IsTerminal())
}

func TestIsExpiredAt(t *testing.T) {
	expires := time.Date(2024, 1, 1, 12, 30, 0, 0, time.UTC)
	req := &PaymentRequest{ExpiresAt: expires}

	assert.False(t, req.IsExpiredAt(expires), "граница окна ещё не истекла")
	assert.False(t, req.IsExpiredAt(expires.Add(-time.Second)))
	assert.True(t, req.IsExpiredAt(expires.Add(time.Nanosecond)))
}

func TestNewPaymentReference(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	ref := NewPaymentReference(now)

	assert.Regexp(t, `^PAY-20240101120000-[0-9A-F]{8}$`, ref)
	assert.NotEqual(t, ref, NewPaymentReference(now))
}

func TestSettledOutcome(t *testing.T) {
	assert.True(t, IsSettledOutcome(nil))
	assert.True(t, IsSettledOutcome(ErrDuplicateTransfer))
	assert.True(t, IsSettledOutcome(ErrNoMatchingRequest))
	assert.True(t, IsSettledOutcome(WrapBusinessError(ErrConcurrentStateConflict)))
	assert.False(t, IsSettledOutcome(ErrTransferInFlight))
	assert.False(t, IsSettledOutcome(errors.New("db down")))
}

func TestTransientSourceError(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewTransientSourceError(NetworkBEP20, "eth_getLogs", cause)

	assert.True(t, IsTransientSourceError(err))
	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, "BEP20 eth_getLogs: connection refused", err.Error())
	assert.False(t, IsTransientSourceError(cause))
}

func TestGatewayStatusToObservedTransfer(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	paid := &GatewayOrderStatus{
		OrderID:       "gw-1",
		Status:        GatewayStatusPaid,
		TransactionID: "sbp-tx-1",
		Amount:        decimal.RequireFromString("1500.00"),
		MerchantID:    "merchant",
	}
	tr, ok := paid.ToObservedTransfer(now)
	require.True(t, ok)
	assert.Equal(t, NetworkSBP, tr.Network)
	assert.Equal(t, "sbp-tx-1", tr.ExternalTxID)
	assert.Equal(t, "gw-1", tr.GatewayReference)
	assert.Equal(t, now, tr.OccurredAt)
	assert.True(t, tr.IsConfirmed(1))

	pending := &GatewayOrderStatus{OrderID: "gw-2", Status: GatewayStatusPending}
	_, ok = pending.ToObservedTransfer(now)
	assert.False(t, ok)

	noTx := &GatewayOrderStatus{OrderID: "gw-3", Status: GatewayStatusPaid}
	_, ok = noTx.ToObservedTransfer(now)
	assert.False(t, ok)
}
