package notifier

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/kpizzy812/TMAMARKET/internal/domain"
	"github.com/kpizzy812/TMAMARKET/internal/ports/telegram"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTelegram struct {
	sent   []telegram.Message
	failOn int64
}

func (f *fakeTelegram) Send(_ context.Context, msg telegram.Message) error {
	if f.failOn != 0 && msg.ChatID == f.failOn {
		return errors.New("chat not found")
	}
	f.sent = append(f.sent, msg)
	return nil
}

func paidRequest(chatID *int64) *domain.PaymentRequest {
	return &domain.PaymentRequest{
		ID:             uuid.New(),
		Reference:      "PAY-20240301120000-1A2B3C4D",
		OrderID:        "order-7",
		Network:        domain.NetworkTRC20,
		ExpectedAmount: decimal.RequireFromString("25.37"),
		CustomerChatID: chatID,
	}
}

func TestNotifyPaid(t *testing.T) {
	tg := &fakeTelegram{}
	s := New(tg, -100, slog.New(slog.NewTextHandler(io.Discard, nil)))
	chat := int64(555)

	err := s.NotifyPaid(context.Background(), paidRequest(&chat), &domain.SettlementRecord{
		ExternalTxID:  "abc123",
		SettledAmount: decimal.RequireFromString("25.37"),
	})
	require.NoError(t, err)
	require.Len(t, tg.sent, 2)

	customer := tg.sent[0]
	assert.Equal(t, int64(555), customer.ChatID)
	assert.True(t, customer.HTML)
	assert.Contains(t, customer.Text, "order-7")
	assert.Contains(t, customer.Text, "25.37 USDT")
	assert.Contains(t, customer.Text, "https://tronscan.org/#/transaction/abc123")

	admin := tg.sent[1]
	assert.Equal(t, int64(-100), admin.ChatID)
	assert.False(t, admin.HTML)
	assert.Contains(t, admin.Text, "tx: abc123")
}

func TestNotifyExpiredWithoutCustomerChat(t *testing.T) {
	tg := &fakeTelegram{}
	s := New(tg, -100, slog.New(slog.NewTextHandler(io.Discard, nil)))

	require.NoError(t, s.NotifyExpired(context.Background(), paidRequest(nil)))
	require.Len(t, tg.sent, 1)
	assert.Equal(t, int64(-100), tg.sent[0].ChatID)
	assert.Contains(t, tg.sent[0].Text, "PAY-20240301120000-1A2B3C4D")
}

func TestNotifyReportsPartialFailure(t *testing.T) {
	tg := &fakeTelegram{failOn: 555}
	s := New(tg, -100, slog.New(slog.NewTextHandler(io.Discard, nil)))
	chat := int64(555)

	err := s.NotifyExpired(context.Background(), paidRequest(&chat))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "customer: chat not found")
	assert.Len(t, tg.sent, 1)
}
