package checkpointRepo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"log/slog"

	"github.com/kpizzy812/TMAMARKET/internal/domain"
	"github.com/kpizzy812/TMAMARKET/internal/ports/persistence"
	ports "github.com/kpizzy812/TMAMARKET/internal/ports/repository"
)

type Repository struct {
	db  persistence.Persistence
	Log *slog.Logger
}

func New(db persistence.Persistence, log *slog.Logger) ports.ICheckpointRepo {
	return &Repository{
		db:  db,
		Log: log,
	}
}

func (r *Repository) Get(ctx context.Context, network domain.Network) (*domain.Checkpoint, error) {
	query := `SELECT network, cursor, version, updated_at FROM network_checkpoints WHERE network = $1`

	var cp domain.Checkpoint
	if err := r.db.Get(ctx, &cp, query, string(network)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &domain.Checkpoint{Network: network}, nil
		}
		r.Log.Error("failed to get checkpoint", "error", err, "network", network)
		return nil, fmt.Errorf("failed to get checkpoint: %w", err)
	}
	return &cp, nil
}

// Save оптимистичная запись: version 0 значит, что записи ещё нет
func (r *Repository) Save(ctx context.Context, cp *domain.Checkpoint) (bool, error) {
	var (
		rows int64
		err  error
	)

	if cp.Version == 0 {
		query := `
			INSERT INTO network_checkpoints (network, cursor, version, updated_at)
			VALUES ($1, $2, 1, NOW())
			ON CONFLICT (network) DO NOTHING`
		rows, err = r.db.ExecWithResult(ctx, query, string(cp.Network), int64(cp.Cursor))
	} else {
		query := `
			UPDATE network_checkpoints SET cursor = $1, version = version + 1, updated_at = NOW()
			WHERE network = $2 AND version = $3`
		rows, err = r.db.ExecWithResult(ctx, query, int64(cp.Cursor), string(cp.Network), cp.Version)
	}
	if err != nil {
		r.Log.Error("failed to save checkpoint",
			"error", err,
			"network", cp.Network,
			"cursor", cp.Cursor,
		)
		return false, fmt.Errorf("failed to save checkpoint: %w", err)
	}

	if rows != 1 {
		r.Log.Warn("checkpoint version conflict",
			"network", cp.Network,
			"version", cp.Version,
		)
		return false, nil
	}

	cp.Version++
	return true, nil
}
