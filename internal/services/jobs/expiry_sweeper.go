package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kpizzy812/TMAMARKET/internal/domain"
	"github.com/kpizzy812/TMAMARKET/internal/ports/repository"
	"github.com/kpizzy812/TMAMARKET/internal/ports/usecase"
)

const (
	expirySweeperName    = "expiry-sweeper"
	defaultSweepInterval = 30 * time.Second
	sweepBatchSize       = 500
)

// ExpirySweeper переводит просроченные pending заявки в expired и передоставляет координатору
// заявки, чей заказ остался в awaiting_payment после сбоя.
// Заявки, изменённые позже чем grace назад, не передоставляются: их ещё ведёт исходный вызов.
type ExpirySweeper struct {
	requests    repository.IPaymentRequestRepo
	ledger      repository.ISettlementLedger
	coordinator usecase.ISettlementCoordinator
	interval    time.Duration
	grace       time.Duration
	log         *slog.Logger
	now         func() time.Time
}

func NewExpirySweeper(
	requests repository.IPaymentRequestRepo,
	ledger repository.ISettlementLedger,
	coordinator usecase.ISettlementCoordinator,
	interval time.Duration,
	grace time.Duration,
	log *slog.Logger,
) *ExpirySweeper {
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	if grace < 0 {
		grace = 0
	}
	return &ExpirySweeper{
		requests:    requests,
		ledger:      ledger,
		coordinator: coordinator,
		interval:    interval,
		grace:       grace,
		log:         log,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (j *ExpirySweeper) Name() string {
	return expirySweeperName
}

// NextRun фиксированный интервал
func (j *ExpirySweeper) NextRun(now time.Time) time.Time {
	return now.Add(j.interval)
}

func (j *ExpirySweeper) Run(ctx context.Context) error {
	expired, err := j.expire(ctx)
	if err != nil {
		return err
	}

	redriven, err := j.redrive(ctx)
	if err != nil {
		return err
	}

	if expired > 0 || redriven > 0 {
		j.log.Info("expiry sweep finished",
			"expired", expired,
			"redriven", redriven,
		)
	}
	return nil
}

func (j *ExpirySweeper) expire(ctx context.Context) (int, error) {
	requests, err := j.requests.ListExpired(ctx, j.now(), sweepBatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to list expired requests: %w", err)
	}

	expired := 0
	for _, req := range requests {
		ok, err := j.requests.Transition(ctx, req.ID, domain.PaymentRequestStatusPending, domain.PaymentRequestStatusExpired)
		if err != nil {
			return expired, fmt.Errorf("failed to expire request %s: %w", req.ID, err)
		}
		if !ok {
			j.log.Debug("request left pending before expiry, skipped",
				"payment_request_id", req.ID,
				"order_id", req.OrderID,
			)
			continue
		}
		expired++
		req.Status = domain.PaymentRequestStatusExpired

		j.log.Info("payment request expired",
			"payment_request_id", req.ID,
			"order_id", req.OrderID,
			"network", req.Network,
			"expires_at", req.ExpiresAt,
		)

		if err := j.coordinator.OnPaymentExpired(ctx, req); err != nil {
			// заказ останется awaiting_payment и попадёт в redrive
			j.log.Error("failed to notify coordinator about expiry",
				"error", err,
				"order_id", req.OrderID,
			)
		}
	}
	return expired, nil
}

// redrive заявки в терминальном статусе, чей заказ всё ещё ждёт оплату
func (j *ExpirySweeper) redrive(ctx context.Context) (int, error) {
	requests, err := j.requests.ListAwaitingCoordination(ctx, j.now().Add(-j.grace), sweepBatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to list requests awaiting coordination: %w", err)
	}

	redriven := 0
	for _, req := range requests {
		if err := j.redriveOne(ctx, req); err != nil {
			j.log.Error("failed to redrive order transition",
				"error", err,
				"order_id", req.OrderID,
				"payment_request_id", req.ID,
				"status", req.Status,
			)
			continue
		}
		redriven++
	}
	return redriven, nil
}

func (j *ExpirySweeper) redriveOne(ctx context.Context, req *domain.PaymentRequest) error {
	switch req.Status {
	case domain.PaymentRequestStatusMatched:
		record, err := j.ledger.GetByRequestID(ctx, req.ID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return fmt.Errorf("matched request without settlement record: %w", err)
			}
			return err
		}
		return j.coordinator.OnPaymentMatched(ctx, &domain.MatchResult{Request: req, Record: record})
	case domain.PaymentRequestStatusExpired:
		return j.coordinator.OnPaymentExpired(ctx, req)
	case domain.PaymentRequestStatusCancelled:
		return j.coordinator.OnPaymentCancelled(ctx, req)
	default:
		return fmt.Errorf("unexpected request status %s", req.Status)
	}
}
