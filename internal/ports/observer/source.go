package observer

import (
	"context"

	"github.com/kpizzy812/TMAMARKET/internal/domain"
)

// Batch результат одного опроса источника
type Batch struct {
	Transfers []domain.ObservedTransfer
	// Next позиция, с которой продолжать, если все переводы пачки обработаны
	Next uint64
}

// Source вариант наблюдателя для одной сети: TronGrid, BSC RPC, TonCenter, шлюз СБП
type Source interface {
	Network() domain.Network
	// Fetch возвращает входящие переводы на адреса сборщиков, начиная с позиции since включительно
	Fetch(ctx context.Context, since uint64) (*Batch, error)
}

// TransferProcessor получатель наблюдённых переводов (движок сопоставления)
type TransferProcessor interface {
	Process(ctx context.Context, transfer domain.ObservedTransfer) (*domain.MatchResult, error)
}
