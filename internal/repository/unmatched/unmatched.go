package unmatchedRepo

import (
	"context"
	"fmt"

	"log/slog"

	"github.com/google/uuid"
	"github.com/kpizzy812/TMAMARKET/internal/domain"
	"github.com/kpizzy812/TMAMARKET/internal/ports/persistence"
	ports "github.com/kpizzy812/TMAMARKET/internal/ports/repository"
)

type unmatchedColumns struct {
	TableName         string
	Network           string
	ExternalTxID      string
	Amount            string
	Sender            string
	Recipient         string
	Reason            string
	ObservedAt        string
	FirstSeenAt       string
	LastSeenAt        string
	SeenCount         string
	ResolvedAt        string
	ResolvedRequestID string
}

type Repository struct {
	db      persistence.Persistence
	Log     *slog.Logger
	columns unmatchedColumns
}

func New(db persistence.Persistence, log *slog.Logger) ports.IUnmatchedTransferRepo {
	cols := unmatchedColumns{
		TableName:         "unmatched_transfers",
		Network:           "network",
		ExternalTxID:      "external_tx_id",
		Amount:            "amount",
		Sender:            "sender",
		Recipient:         "recipient",
		Reason:            "reason",
		ObservedAt:        "observed_at",
		FirstSeenAt:       "first_seen_at",
		LastSeenAt:        "last_seen_at",
		SeenCount:         "seen_count",
		ResolvedAt:        "resolved_at",
		ResolvedRequestID: "resolved_request_id",
	}
	return &Repository{
		db:      db,
		Log:     log,
		columns: cols,
	}
}

func (r *Repository) allColumns() string {
	return fmt.Sprintf("%s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s",
		r.columns.Network,
		r.columns.ExternalTxID,
		r.columns.Amount,
		r.columns.Sender,
		r.columns.Recipient,
		r.columns.Reason,
		r.columns.ObservedAt,
		r.columns.FirstSeenAt,
		r.columns.LastSeenAt,
		r.columns.SeenCount,
		r.columns.ResolvedAt,
		r.columns.ResolvedRequestID,
	)
}

// Record сохраняет перевод без заявки, повторное наблюдение обновляет last_seen_at и причину
func (r *Repository) Record(ctx context.Context, transfer domain.ObservedTransfer, reason domain.UnmatchedReason) error {
	query := fmt.Sprintf(`
		INSERT INTO %[1]s (%[2]s, %[3]s, %[4]s, %[5]s, %[6]s, %[7]s, %[8]s)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (%[2]s, %[3]s) DO UPDATE SET
			%[9]s = NOW(),
			%[10]s = %[1]s.%[10]s + 1,
			%[7]s = EXCLUDED.%[7]s
		WHERE %[1]s.%[11]s IS NULL`,
		r.columns.TableName,
		r.columns.Network,
		r.columns.ExternalTxID,
		r.columns.Amount,
		r.columns.Sender,
		r.columns.Recipient,
		r.columns.Reason,
		r.columns.ObservedAt,
		r.columns.LastSeenAt,
		r.columns.SeenCount,
		r.columns.ResolvedAt,
	)

	err := r.db.Exec(ctx, query,
		string(transfer.Network),
		transfer.ExternalTxID,
		transfer.Amount,
		transfer.Sender,
		transfer.Recipient,
		string(reason),
		transfer.ObservedAt,
	)
	if err != nil {
		r.Log.Error("failed to record unmatched transfer",
			"error", err,
			"network", transfer.Network,
			"external_tx_id", transfer.ExternalTxID,
		)
		return fmt.Errorf("failed to record unmatched transfer: %w", err)
	}
	return nil
}

// Resolve помечает перевод разобранным; если записи не было, ничего не делает
func (r *Repository) Resolve(ctx context.Context, network domain.Network, externalTxID string, requestID uuid.UUID) error {
	query := fmt.Sprintf(`UPDATE %s SET %s = NOW(), %s = $1 WHERE %s = $2 AND %s = $3 AND %s IS NULL`,
		r.columns.TableName,
		r.columns.ResolvedAt,
		r.columns.ResolvedRequestID,
		r.columns.Network,
		r.columns.ExternalTxID,
		r.columns.ResolvedAt,
	)

	if err := r.db.Exec(ctx, query, requestID, string(network), externalTxID); err != nil {
		r.Log.Error("failed to resolve unmatched transfer",
			"error", err,
			"network", network,
			"external_tx_id", externalTxID,
		)
		return fmt.Errorf("failed to resolve unmatched transfer: %w", err)
	}
	return nil
}

// ListUnresolved переводы, ждущие ручной сверки
func (r *Repository) ListUnresolved(ctx context.Context, limit int) ([]*domain.UnmatchedTransfer, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s IS NULL ORDER BY %s ASC LIMIT $1`,
		r.allColumns(),
		r.columns.TableName,
		r.columns.ResolvedAt,
		r.columns.FirstSeenAt,
	)

	var transfers []*domain.UnmatchedTransfer
	if err := r.db.Select(ctx, &transfers, query, limit); err != nil {
		r.Log.Error("failed to list unmatched transfers", "error", err)
		return nil, fmt.Errorf("failed to list unmatched transfers: %w", err)
	}
	return transfers, nil
}
