package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/kpizzy812/TMAMARKET/internal/domain"
	"github.com/shopspring/decimal"
)

// IPaymentRequestRepo реестр заявок на оплату
type IPaymentRequestRepo interface {
	// Create сохраняет заявку, domain.ErrDuplicateActiveRequest если у заказа уже есть pending заявка
	Create(ctx context.Context, req *domain.PaymentRequest) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.PaymentRequest, error)
	GetPendingByOrder(ctx context.Context, orderID string) (*domain.PaymentRequest, error)
	GetLatestByOrder(ctx context.Context, orderID string) (*domain.PaymentRequest, error)
	// ListActive pending заявки сети, старые первыми
	ListActive(ctx context.Context, network domain.Network) ([]*domain.PaymentRequest, error)
	// ListExpired pending заявки с expires_at < now
	ListExpired(ctx context.Context, now time.Time, limit int) ([]*domain.PaymentRequest, error)
	// ListAwaitingCoordination заявки в терминальном статусе, чей заказ всё ещё awaiting_payment,
	// с updated_at строго раньше before
	ListAwaitingCoordination(ctx context.Context, before time.Time, limit int) ([]*domain.PaymentRequest, error)
	ExistsPendingAmount(ctx context.Context, network domain.Network, collector string, amount decimal.Decimal) (bool, error)
	// Transition compare-and-swap статуса, false если текущий статус уже не from
	Transition(ctx context.Context, id uuid.UUID, from, to domain.PaymentRequestStatus) (bool, error)
	// MarkMatched CAS pending -> matched с записью matched_transfer_id
	MarkMatched(ctx context.Context, id uuid.UUID, externalTxID string) (bool, error)
}
