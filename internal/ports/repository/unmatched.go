package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/kpizzy812/TMAMARKET/internal/domain"
)

// IUnmatchedTransferRepo переводы без заявки для ручной сверки
type IUnmatchedTransferRepo interface {
	// Record upsert по (network, external_tx_id), повтор увеличивает seen_count
	Record(ctx context.Context, transfer domain.ObservedTransfer, reason domain.UnmatchedReason) error
	Resolve(ctx context.Context, network domain.Network, externalTxID string, requestID uuid.UUID) error
	ListUnresolved(ctx context.Context, limit int) ([]*domain.UnmatchedTransfer, error)
}
