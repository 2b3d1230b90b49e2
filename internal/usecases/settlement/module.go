package settlement

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"log/slog"

	"github.com/kpizzy812/TMAMARKET/internal/domain"
	"github.com/kpizzy812/TMAMARKET/internal/ports/repository"
	"github.com/kpizzy812/TMAMARKET/internal/ports/service"
	"github.com/kpizzy812/TMAMARKET/internal/ports/usecase"
)

const defaultNotifyTimeout = 10 * time.Second

// Service координатор оплаты заказов: автомат состояний и исходящие события
type Service struct {
	Orders        repository.IOrderSettlementRepo
	Events        service.IEventPublisher
	Notifier      service.INotificationService // может быть nil
	Log           *slog.Logger
	NotifyTimeout time.Duration

	now      func() time.Time
	inflight sync.WaitGroup
}

func New(
	orders repository.IOrderSettlementRepo,
	events service.IEventPublisher,
	notifier service.INotificationService,
	notifyTimeout time.Duration,
	log *slog.Logger,
) *Service {
	if notifyTimeout <= 0 {
		notifyTimeout = defaultNotifyTimeout
	}
	return &Service{
		Orders:        orders,
		Events:        events,
		Notifier:      notifier,
		Log:           log,
		NotifyTimeout: notifyTimeout,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

var _ usecase.ISettlementCoordinator = (*Service)(nil)

// OnPaymentMatched awaiting_payment -> paid.
// Событие публикуется до перехода: если публикация упала, заказ остаётся awaiting_payment и будет передоставлен.
func (s *Service) OnPaymentMatched(ctx context.Context, result *domain.MatchResult) error {
	req := result.Request
	record := result.Record

	order, ok, err := s.expectAwaiting(ctx, req, "paid")
	if err != nil || !ok {
		return err
	}

	event := domain.SettlementEvent{
		OrderID:          req.OrderID,
		PaymentRequestID: req.ID,
		Network:          req.Network,
		Amount:           record.SettledAmount,
		ExternalTxID:     record.ExternalTxID,
		ExplorerURL:      req.Network.ExplorerTxURL(record.ExternalTxID),
		SettledAt:        record.SettledAt,
	}
	if err := s.Events.PublishSettlement(ctx, event); err != nil {
		return fmt.Errorf("failed to publish settlement for order %s: %w", req.OrderID, err)
	}

	if ok, err := s.transition(ctx, order.OrderID, domain.OrderStatePaid); err != nil || !ok {
		return err
	}

	s.Log.Info("order paid",
		"order_id", req.OrderID,
		"payment_request_id", req.ID,
		"network", req.Network,
		"amount", record.SettledAmount,
		"external_tx_id", record.ExternalTxID,
	)

	s.notify(ctx, req, func(ctx context.Context) error {
		return s.Notifier.NotifyPaid(ctx, req, record)
	})
	return nil
}

// OnPaymentExpired awaiting_payment -> expired
func (s *Service) OnPaymentExpired(ctx context.Context, req *domain.PaymentRequest) error {
	order, ok, err := s.expectAwaiting(ctx, req, "expired")
	if err != nil || !ok {
		return err
	}

	event := domain.ExpiryEvent{
		OrderID:          req.OrderID,
		PaymentRequestID: req.ID,
		ExpiredAt:        req.ExpiresAt,
	}
	if err := s.Events.PublishExpiry(ctx, event); err != nil {
		return fmt.Errorf("failed to publish expiry for order %s: %w", req.OrderID, err)
	}

	if ok, err := s.transition(ctx, order.OrderID, domain.OrderStateExpired); err != nil || !ok {
		return err
	}

	s.Log.Info("order payment expired",
		"order_id", req.OrderID,
		"payment_request_id", req.ID,
		"expires_at", req.ExpiresAt,
	)

	s.notify(ctx, req, func(ctx context.Context) error {
		return s.Notifier.NotifyExpired(ctx, req)
	})
	return nil
}

// OnPaymentCancelled awaiting_payment -> cancelled
func (s *Service) OnPaymentCancelled(ctx context.Context, req *domain.PaymentRequest) error {
	order, ok, err := s.expectAwaiting(ctx, req, "cancelled")
	if err != nil || !ok {
		return err
	}

	event := domain.CancellationEvent{
		OrderID:          req.OrderID,
		PaymentRequestID: req.ID,
		CancelledAt:      s.now(),
	}
	if err := s.Events.PublishCancellation(ctx, event); err != nil {
		return fmt.Errorf("failed to publish cancellation for order %s: %w", req.OrderID, err)
	}

	if ok, err := s.transition(ctx, order.OrderID, domain.OrderStateCancelled); err != nil || !ok {
		return err
	}

	s.Log.Info("order payment cancelled",
		"order_id", req.OrderID,
		"payment_request_id", req.ID,
	)
	return nil
}

// MarkFulfilling paid -> fulfilling, вызывается сервисом доставки
func (s *Service) MarkFulfilling(ctx context.Context, orderID string) error {
	return s.hook(ctx, orderID, domain.OrderStatePaid, domain.OrderStateFulfilling)
}

// MarkCompleted fulfilling -> completed
func (s *Service) MarkCompleted(ctx context.Context, orderID string) error {
	return s.hook(ctx, orderID, domain.OrderStateFulfilling, domain.OrderStateCompleted)
}

func (s *Service) GetState(ctx context.Context, orderID string) (*domain.OrderSettlement, error) {
	return s.Orders.Get(ctx, orderID)
}

// Wait ждёт отправки уведомлений, запущенных в фоне
func (s *Service) Wait() {
	s.inflight.Wait()
}

func (s *Service) hook(ctx context.Context, orderID string, from, to domain.OrderPaymentState) error {
	ok, err := s.Orders.Transition(ctx, orderID, from, to)
	if err != nil {
		return fmt.Errorf("failed to move order %s to %s: %w", orderID, to, err)
	}
	if ok {
		s.Log.Info("order state changed",
			"order_id", orderID,
			"from", from,
			"to", to,
		)
		return nil
	}

	order, err := s.Orders.Get(ctx, orderID)
	if err != nil {
		return err
	}

	s.Log.Warn("order is not in expected state, hook dropped",
		"order_id", orderID,
		"state", order.State,
		"expected", from,
		"target", to,
	)
	return domain.WrapBusinessError(fmt.Errorf("order %s is %s: %w", orderID, order.State, domain.ErrConcurrentStateConflict))
}

// expectAwaiting проверяет, что заказ ждёт оплату именно по этой заявке; иначе событие логируется и отбрасывается
func (s *Service) expectAwaiting(ctx context.Context, req *domain.PaymentRequest, target string) (*domain.OrderSettlement, bool, error) {
	order, err := s.Orders.Get(ctx, req.OrderID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.Log.Warn("order settlement not found, event dropped",
				"order_id", req.OrderID,
				"payment_request_id", req.ID,
				"target", target,
			)
			return nil, false, nil
		}
		return nil, false, err
	}

	if order.State != domain.OrderStateAwaitingPayment {
		s.Log.Warn("order is not awaiting payment, event dropped",
			"order_id", req.OrderID,
			"payment_request_id", req.ID,
			"state", order.State,
			"target", target,
		)
		return nil, false, nil
	}

	if order.PaymentRequestID != nil && *order.PaymentRequestID != req.ID {
		s.Log.Warn("event references a stale payment request, dropped",
			"order_id", req.OrderID,
			"payment_request_id", req.ID,
			"current_payment_request_id", *order.PaymentRequestID,
			"target", target,
		)
		return nil, false, nil
	}

	return order, true, nil
}

func (s *Service) transition(ctx context.Context, orderID string, to domain.OrderPaymentState) (bool, error) {
	ok, err := s.Orders.Transition(ctx, orderID, domain.OrderStateAwaitingPayment, to)
	if err != nil {
		s.Log.Error("failed to transition order",
			"error", err,
			"order_id", orderID,
			"to", to,
		)
		return false, fmt.Errorf("failed to move order %s to %s: %w", orderID, to, err)
	}
	if !ok {
		s.Log.Warn("order state changed concurrently, transition dropped",
			"order_id", orderID,
			"to", to,
		)
	}
	return ok, nil
}

// notify доставка в фоне со своим таймаутом, ошибка только логируется
func (s *Service) notify(ctx context.Context, req *domain.PaymentRequest, send func(ctx context.Context) error) {
	if s.Notifier == nil {
		return
	}

	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()

		notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.NotifyTimeout)
		defer cancel()

		if err := send(notifyCtx); err != nil {
			s.Log.Warn("failed to send payment notification",
				"error", err,
				"order_id", req.OrderID,
				"payment_request_id", req.ID,
			)
		}
	}()
}
