package service

import (
	"context"

	"github.com/kpizzy812/TMAMARKET/internal/domain"
)

// IEventPublisher исходящие события для сервиса заказов и уведомлений
type IEventPublisher interface {
	PublishSettlement(ctx context.Context, event domain.SettlementEvent) error
	PublishExpiry(ctx context.Context, event domain.ExpiryEvent) error
	PublishCancellation(ctx context.Context, event domain.CancellationEvent) error
	PublishDegraded(ctx context.Context, signal domain.DegradedNetworkSignal) error
	PublishRecovered(ctx context.Context, signal domain.DegradedNetworkSignal) error
}
