package service

import (
	"context"

	"github.com/kpizzy812/TMAMARKET/internal/domain"
)

// INotificationService уведомления покупателю и администратору, доставка не гарантируется
type INotificationService interface {
	NotifyPaid(ctx context.Context, req *domain.PaymentRequest, record *domain.SettlementRecord) error
	NotifyExpired(ctx context.Context, req *domain.PaymentRequest) error
}

// IAlerterService сообщения операторам о сбоях: деградация сети, упавшие джобы
type IAlerterService interface {
	SendAlert(ctx context.Context, message string) error
}
