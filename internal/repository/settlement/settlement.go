package settlementRepo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"log/slog"

	"github.com/google/uuid"
	"github.com/kpizzy812/TMAMARKET/internal/adapters/secondary/storage/pg"
	"github.com/kpizzy812/TMAMARKET/internal/domain"
	"github.com/kpizzy812/TMAMARKET/internal/ports/persistence"
	ports "github.com/kpizzy812/TMAMARKET/internal/ports/repository"
)

const requestConstraint = "ux_settlement_records_request"

type settlementColumns struct {
	TableName        string
	ExternalTxID     string
	Network          string
	PaymentRequestID string
	SettledAmount    string
	Sender           string
	SettledAt        string
}

type Repository struct {
	db      persistence.Persistence
	Log     *slog.Logger
	columns settlementColumns
}

func New(db persistence.Persistence, log *slog.Logger) ports.ISettlementLedger {
	cols := settlementColumns{
		TableName:        "settlement_records",
		ExternalTxID:     "external_tx_id",
		Network:          "network",
		PaymentRequestID: "payment_request_id",
		SettledAmount:    "settled_amount",
		Sender:           "sender",
		SettledAt:        "settled_at",
	}
	return &Repository{
		db:      db,
		Log:     log,
		columns: cols,
	}
}

func (r *Repository) allColumns() string {
	return fmt.Sprintf("%s, %s, %s, %s, %s, %s",
		r.columns.ExternalTxID,
		r.columns.Network,
		r.columns.PaymentRequestID,
		r.columns.SettledAmount,
		r.columns.Sender,
		r.columns.SettledAt,
	)
}

// Exists есть ли перевод в леджере
func (r *Repository) Exists(ctx context.Context, externalTxID string) (bool, error) {
	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE %s = $1)`,
		r.columns.TableName,
		r.columns.ExternalTxID,
	)

	var exists bool
	if err := r.db.Get(ctx, &exists, query, externalTxID); err != nil {
		r.Log.Error("failed to check settlement record",
			"error", err,
			"external_tx_id", externalTxID,
		)
		return false, fmt.Errorf("failed to check settlement record: %w", err)
	}
	return exists, nil
}

// TryInsert вставляет запись, повтор external_tx_id не ошибка, а false.
// Заявка, уже оплаченная другим переводом, даёт domain.ErrConcurrentStateConflict.
func (r *Repository) TryInsert(ctx context.Context, record *domain.SettlementRecord) (bool, error) {
	query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES ($1, $2, $3, $4, $5, $6) ON CONFLICT (%s) DO NOTHING`,
		r.columns.TableName,
		r.allColumns(),
		r.columns.ExternalTxID,
	)

	rows, err := r.db.ExecWithResult(ctx, query,
		record.ExternalTxID,
		string(record.Network),
		record.PaymentRequestID,
		record.SettledAmount,
		record.Sender,
		record.SettledAt,
	)
	if err != nil {
		if pg.IsUniqueViolation(err, requestConstraint) {
			r.Log.Warn("payment request already settled by another transfer",
				"external_tx_id", record.ExternalTxID,
				"payment_request_id", record.PaymentRequestID,
			)
			return false, fmt.Errorf("payment request %s: %w", record.PaymentRequestID, domain.ErrConcurrentStateConflict)
		}
		r.Log.Error("failed to insert settlement record",
			"error", err,
			"external_tx_id", record.ExternalTxID,
			"payment_request_id", record.PaymentRequestID,
		)
		return false, fmt.Errorf("failed to insert settlement record: %w", err)
	}

	if rows == 0 {
		r.Log.Debug("settlement record already exists", "external_tx_id", record.ExternalTxID)
		return false, nil
	}
	return true, nil
}

// GetByRequestID запись, которой оплачена заявка
func (r *Repository) GetByRequestID(ctx context.Context, requestID uuid.UUID) (*domain.SettlementRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s = $1`,
		r.allColumns(),
		r.columns.TableName,
		r.columns.PaymentRequestID,
	)

	var record domain.SettlementRecord
	if err := r.db.Get(ctx, &record, query, requestID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("settlement for request %s: %w", requestID, domain.ErrNotFound)
		}
		r.Log.Error("failed to get settlement record",
			"error", err,
			"payment_request_id", requestID,
		)
		return nil, fmt.Errorf("failed to get settlement record: %w", err)
	}
	return &record, nil
}
