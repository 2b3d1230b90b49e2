package events

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kpizzy812/TMAMARKET/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentMessage struct {
	key     string
	value   []byte
	headers map[string]string
}

type fakeProducer struct {
	sent []sentMessage
	err  error
}

func (p *fakeProducer) Send(_ context.Context, key string, value []byte, headers map[string]string) error {
	if p.err != nil {
		return p.err
	}
	p.sent = append(p.sent, sentMessage{key: key, value: value, headers: headers})
	return nil
}

func (p *fakeProducer) Close() error { return nil }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPublishSettlement(t *testing.T) {
	producer := &fakeProducer{}
	publisher := New(producer, discardLogger())

	event := domain.SettlementEvent{
		OrderID:          "order-1",
		PaymentRequestID: uuid.New(),
		Network:          domain.NetworkTRC20,
		Amount:           decimal.RequireFromString("25.37"),
		ExternalTxID:     "tx-1",
		SettledAt:        time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	require.NoError(t, publisher.PublishSettlement(context.Background(), event))

	require.Len(t, producer.sent, 1)
	msg := producer.sent[0]
	assert.Equal(t, "order-1", msg.key)
	assert.Equal(t, string(domain.EventPaymentSettled), msg.headers[headerEventType])
	_, err := uuid.Parse(msg.headers[headerEventID])
	assert.NoError(t, err)

	var decoded domain.SettlementEvent
	require.NoError(t, json.Unmarshal(msg.value, &decoded))
	assert.Equal(t, "tx-1", decoded.ExternalTxID)
	assert.True(t, decoded.Amount.Equal(event.Amount))
}

func TestPublishKeysAndTypes(t *testing.T) {
	producer := &fakeProducer{}
	publisher := New(producer, discardLogger())
	ctx := context.Background()

	require.NoError(t, publisher.PublishExpiry(ctx, domain.ExpiryEvent{OrderID: "order-2"}))
	require.NoError(t, publisher.PublishCancellation(ctx, domain.CancellationEvent{OrderID: "order-3"}))
	require.NoError(t, publisher.PublishDegraded(ctx, domain.DegradedNetworkSignal{Network: domain.NetworkTON, Failures: 5}))
	require.NoError(t, publisher.PublishRecovered(ctx, domain.DegradedNetworkSignal{Network: domain.NetworkTON}))

	require.Len(t, producer.sent, 4)
	want := []struct {
		key       string
		eventType domain.EventType
	}{
		{"order-2", domain.EventPaymentExpired},
		{"order-3", domain.EventPaymentCancelled},
		{"TON", domain.EventNetworkDegraded},
		{"TON", domain.EventNetworkRecovered},
	}
	for i, w := range want {
		assert.Equal(t, w.key, producer.sent[i].key)
		assert.Equal(t, string(w.eventType), producer.sent[i].headers[headerEventType])
	}
}

func TestPublishFailure(t *testing.T) {
	publisher := New(&fakeProducer{err: errors.New("kafka: broker not available")}, discardLogger())

	err := publisher.PublishExpiry(context.Background(), domain.ExpiryEvent{OrderID: "order-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), string(domain.EventPaymentExpired))
}

func TestPublishWithoutProducer(t *testing.T) {
	publisher := New(nil, discardLogger())

	assert.NoError(t, publisher.PublishSettlement(context.Background(), domain.SettlementEvent{OrderID: "order-1"}))
}

func TestPublishSettlement_RepublishKeepsEventID(t *testing.T) {
	producer := &fakeProducer{}
	publisher := New(producer, discardLogger())
	ctx := context.Background()

	requestID := uuid.New()
	event := domain.SettlementEvent{OrderID: "order-1", PaymentRequestID: requestID, ExternalTxID: "tx-1"}
	require.NoError(t, publisher.PublishSettlement(ctx, event))
	require.NoError(t, publisher.PublishSettlement(ctx, event))
	require.NoError(t, publisher.PublishExpiry(ctx, domain.ExpiryEvent{OrderID: "order-1", PaymentRequestID: requestID}))
	require.NoError(t, publisher.PublishSettlement(ctx, domain.SettlementEvent{OrderID: "order-2", PaymentRequestID: uuid.New()}))

	require.Len(t, producer.sent, 4)
	first := producer.sent[0].headers[headerEventID]
	assert.Equal(t, first, producer.sent[1].headers[headerEventID])
	assert.Equal(t, EventID(domain.EventPaymentSettled, requestID.String()), first)
	// тот же источник, другой тип события
	assert.NotEqual(t, first, producer.sent[2].headers[headerEventID])
	assert.NotEqual(t, first, producer.sent[3].headers[headerEventID])
}

func TestPublishDegraded_EventIDPerIncident(t *testing.T) {
	producer := &fakeProducer{}
	publisher := New(producer, discardLogger())
	ctx := context.Background()

	since := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, publisher.PublishDegraded(ctx, domain.DegradedNetworkSignal{Network: domain.NetworkTON, Since: since}))
	require.NoError(t, publisher.PublishDegraded(ctx, domain.DegradedNetworkSignal{Network: domain.NetworkTON, Since: since.Add(time.Hour)}))

	require.Len(t, producer.sent, 2)
	assert.NotEqual(t, producer.sent[0].headers[headerEventID], producer.sent[1].headers[headerEventID])
}
