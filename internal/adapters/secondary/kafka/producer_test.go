package kafka

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProducerSend(t *testing.T) {
	mock := mocks.NewSyncProducer(t, nil)
	mock.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		assert.Equal(t, "payments.events", msg.Topic)

		key, err := msg.Key.Encode()
		require.NoError(t, err)
		assert.Equal(t, "order-1", string(key))

		require.Len(t, msg.Headers, 2)
		assert.Equal(t, "event_id", string(msg.Headers[0].Key))
		assert.Equal(t, "event_type", string(msg.Headers[1].Key))
		assert.Equal(t, "payment.matched", string(msg.Headers[1].Value))
		return nil
	})

	p := newProducer(mock, "payments.events", slog.New(slog.NewTextHandler(io.Discard, nil)))
	err := p.Send(context.Background(), "order-1", []byte(`{}`), map[string]string{
		"event_type": "payment.matched",
		"event_id":   "e-1",
	})
	require.NoError(t, err)
	require.NoError(t, p.Close())
}

func TestProducerSendFailure(t *testing.T) {
	mock := mocks.NewSyncProducer(t, nil)
	mock.ExpectSendMessageAndFail(sarama.ErrNotLeaderForPartition)

	p := newProducer(mock, "payments.events", slog.New(slog.NewTextHandler(io.Discard, nil)))
	err := p.Send(context.Background(), "order-1", []byte(`{}`), nil)

	require.Error(t, err)
	assert.True(t, errors.Is(err, sarama.ErrNotLeaderForPartition))
	require.NoError(t, p.Close())
}

func TestProducerSendCancelled(t *testing.T) {
	mock := mocks.NewSyncProducer(t, nil)
	p := newProducer(mock, "payments.events", slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, p.Send(ctx, "order-1", nil, nil), context.Canceled)
	require.NoError(t, p.Close())
}
