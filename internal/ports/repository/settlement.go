package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/kpizzy812/TMAMARKET/internal/domain"
)

// ISettlementLedger append-only леджер зачтённых переводов
type ISettlementLedger interface {
	Exists(ctx context.Context, externalTxID string) (bool, error)
	// TryInsert false если external_tx_id уже есть,
	// domain.ErrConcurrentStateConflict если заявка уже оплачена другим переводом
	TryInsert(ctx context.Context, record *domain.SettlementRecord) (bool, error)
	GetByRequestID(ctx context.Context, requestID uuid.UUID) (*domain.SettlementRecord, error)
}
