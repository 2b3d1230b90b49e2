package repository

import (
	"context"

	"github.com/kpizzy812/TMAMARKET/internal/domain"
)

// ICheckpointRepo позиции наблюдателей, пишет только наблюдатель своей сети
type ICheckpointRepo interface {
	// Get возвращает checkpoint с нулевыми cursor и version, если записи ещё нет
	Get(ctx context.Context, network domain.Network) (*domain.Checkpoint, error)
	// Save записывает cursor, если version не изменилась; при успехе увеличивает cp.Version
	Save(ctx context.Context, cp *domain.Checkpoint) (bool, error)
}
