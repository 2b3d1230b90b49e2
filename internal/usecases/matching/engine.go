package matching

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"log/slog"

	"github.com/kpizzy812/TMAMARKET/internal/domain"
	"github.com/kpizzy812/TMAMARKET/internal/ports/cache"
	"github.com/kpizzy812/TMAMARKET/internal/ports/observer"
	"github.com/kpizzy812/TMAMARKET/internal/ports/repository"
	"github.com/kpizzy812/TMAMARKET/internal/ports/usecase"
	"github.com/shopspring/decimal"
)

const (
	defaultClockSkew = 2 * time.Minute
	defaultLockTTL   = 30 * time.Second
)

// NetworkPolicy правила сопоставления для одной сети
type NetworkPolicy struct {
	// Tolerance допустимое отклонение суммы в обе стороны
	Tolerance decimal.Decimal
}

// Engine сопоставляет наблюдённые переводы с заявками и зачисляет их в леджер
type Engine struct {
	Tx          repository.ITxManager
	Ledger      repository.ISettlementLedger
	Unmatched   repository.IUnmatchedTransferRepo
	Lock        cache.ILock // может быть nil
	Coordinator usecase.ISettlementCoordinator
	Policies    map[domain.Network]NetworkPolicy
	ClockSkew   time.Duration
	LockTTL     time.Duration
	Log         *slog.Logger

	now func() time.Time
}

type Config struct {
	Policies  map[domain.Network]NetworkPolicy
	ClockSkew time.Duration
	LockTTL   time.Duration
}

func New(
	tx repository.ITxManager,
	ledger repository.ISettlementLedger,
	unmatched repository.IUnmatchedTransferRepo,
	lock cache.ILock,
	coordinator usecase.ISettlementCoordinator,
	cfg Config,
	log *slog.Logger,
) *Engine {
	if cfg.ClockSkew <= 0 {
		cfg.ClockSkew = defaultClockSkew
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = defaultLockTTL
	}
	return &Engine{
		Tx:          tx,
		Ledger:      ledger,
		Unmatched:   unmatched,
		Lock:        lock,
		Coordinator: coordinator,
		Policies:    cfg.Policies,
		ClockSkew:   cfg.ClockSkew,
		LockTTL:     cfg.LockTTL,
		Log:         log,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

var _ observer.TransferProcessor = (*Engine)(nil)

// Process обрабатывает один перевод. Повторная доставка того же external_tx_id возвращает domain.ErrDuplicateTransfer.
func (e *Engine) Process(ctx context.Context, t domain.ObservedTransfer) (*domain.MatchResult, error) {
	log := e.Log.With(
		"network", t.Network,
		"external_tx_id", t.ExternalTxID,
		"amount", t.Amount,
	)

	if t.ExternalTxID == "" {
		return nil, errors.New("transfer without external_tx_id")
	}

	if e.Lock != nil {
		key := "transfer:" + string(t.Network) + ":" + t.ExternalTxID
		acquired, err := e.Lock.Acquire(ctx, key, e.LockTTL)
		switch {
		case err != nil:
			// однократность держат уникальность леджера и CAS заявки, блокировка только снижает гонки
			log.Warn("failed to acquire transfer lock, processing without it", "error", err)
		case !acquired:
			log.Debug("transfer is already being processed")
			return nil, domain.ErrTransferInFlight
		default:
			defer func() {
				if err := e.Lock.Release(context.WithoutCancel(ctx), key); err != nil {
					log.Warn("failed to release transfer lock", "error", err)
				}
			}()
		}
	}

	exists, err := e.Ledger.Exists(ctx, t.ExternalTxID)
	if err != nil {
		return nil, fmt.Errorf("failed to check ledger: %w", err)
	}
	if exists {
		log.Debug("transfer already settled, skipped")
		return nil, domain.ErrDuplicateTransfer
	}

	var result *domain.MatchResult
	err = e.Tx.WithinTransaction(ctx, func(ctx context.Context, repos repository.TxRepositories) error {
		active, err := repos.Requests.ListActive(ctx, t.Network)
		if err != nil {
			return fmt.Errorf("failed to list active requests: %w", err)
		}

		req := e.pick(t, active)
		if req == nil {
			if err := repos.Unmatched.Record(ctx, t, domain.UnmatchedReasonNoMatchingRequest); err != nil {
				return fmt.Errorf("failed to record unmatched transfer: %w", err)
			}
			return nil
		}

		// CAS заявки первым: строка заявки блокируется до конца транзакции,
		// конкурирующий перевод на ту же заявку получает false после коммита победителя
		matched, err := repos.Requests.MarkMatched(ctx, req.ID, t.ExternalTxID)
		if err != nil {
			return fmt.Errorf("failed to mark request matched: %w", err)
		}
		if !matched {
			return fmt.Errorf("request %s: %w", req.ID, domain.ErrConcurrentStateConflict)
		}

		record := &domain.SettlementRecord{
			ExternalTxID:     t.ExternalTxID,
			Network:          t.Network,
			PaymentRequestID: req.ID,
			SettledAmount:    t.Amount,
			Sender:           t.Sender,
			SettledAt:        e.now(),
		}
		inserted, err := repos.Ledger.TryInsert(ctx, record)
		if err != nil {
			return fmt.Errorf("failed to insert settlement record: %w", err)
		}
		if !inserted {
			return domain.ErrDuplicateTransfer
		}

		if err := repos.Unmatched.Resolve(ctx, t.Network, t.ExternalTxID, req.ID); err != nil {
			return fmt.Errorf("failed to resolve unmatched transfer: %w", err)
		}

		matchedID := t.ExternalTxID
		req.Status = domain.PaymentRequestStatusMatched
		req.MatchedTransferID = &matchedID
		result = &domain.MatchResult{Request: req, Record: record}
		return nil
	})

	switch {
	case errors.Is(err, domain.ErrDuplicateTransfer):
		log.Debug("transfer settled concurrently, skipped")
		return nil, domain.ErrDuplicateTransfer
	case errors.Is(err, domain.ErrConcurrentStateConflict):
		log.Warn("payment request changed state concurrently, transfer kept as unmatched", "error", err)
		if recordErr := e.Unmatched.Record(ctx, t, domain.UnmatchedReasonConcurrentStateConflict); recordErr != nil {
			return nil, fmt.Errorf("failed to record conflicting transfer: %w", recordErr)
		}
		return nil, err
	case err != nil:
		log.Error("failed to process transfer", "error", err)
		return nil, err
	}

	if result == nil {
		log.Warn("no matching payment request, transfer kept for reconciliation",
			"recipient", t.Recipient,
			"sender", t.Sender,
		)
		return nil, domain.ErrNoMatchingRequest
	}

	log.Info("transfer matched",
		"payment_request_id", result.Request.ID,
		"order_id", result.Request.OrderID,
		"expected_amount", result.Request.ExpectedAmount,
	)

	if e.Coordinator != nil {
		if err := e.Coordinator.OnPaymentMatched(ctx, result); err != nil {
			// заявка уже matched, заказ довезёт передоставка в sweeper
			log.Error("failed to notify coordinator", "error", err, "order_id", result.Request.OrderID)
		}
	}

	return result, nil
}

// pick выбирает заявку: точная сумма важнее, затем самая старая
func (e *Engine) pick(t domain.ObservedTransfer, active []*domain.PaymentRequest) *domain.PaymentRequest {
	policy := e.Policies[t.Network]

	candidates := make([]*domain.PaymentRequest, 0, len(active))
	for _, req := range active {
		if e.qualifies(t, req, policy) {
			candidates = append(candidates, req)
		}
	}
	if len(candidates) == 0 {
		return nil
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		ei := candidates[i].ExpectedAmount.Equal(t.Amount)
		ej := candidates[j].ExpectedAmount.Equal(t.Amount)
		if ei != ej {
			return ei
		}
		return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
	})
	return candidates[0]
}

func (e *Engine) qualifies(t domain.ObservedTransfer, req *domain.PaymentRequest, policy NetworkPolicy) bool {
	if req.Status != domain.PaymentRequestStatusPending || req.Network != t.Network {
		return false
	}
	if req.CollectorAddress != t.Recipient {
		return false
	}
	if t.GatewayReference != "" {
		if req.GatewayReference == nil || *req.GatewayReference != t.GatewayReference {
			return false
		}
	}
	if t.Amount.Sub(req.ExpectedAmount).Abs().GreaterThan(policy.Tolerance) {
		return false
	}

	// перевод не может оплатить заявку, созданную после него, и не засчитывается после окна оплаты
	if !t.OccurredAt.IsZero() {
		if req.CreatedAt.After(t.OccurredAt.Add(e.ClockSkew)) {
			return false
		}
		if t.OccurredAt.After(req.ExpiresAt.Add(e.ClockSkew)) {
			return false
		}
	}
	return true
}
