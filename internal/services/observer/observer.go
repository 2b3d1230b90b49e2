package observer

import (
	"context"
	"fmt"
	"sort"
	"time"

	"log/slog"

	"github.com/kpizzy812/TMAMARKET/internal/domain"
	"github.com/kpizzy812/TMAMARKET/internal/ports/observer"
	"github.com/kpizzy812/TMAMARKET/internal/ports/repository"
	"github.com/kpizzy812/TMAMARKET/internal/ports/service"
)

const defaultPollInterval = 15 * time.Second

type Config struct {
	PollInterval  time.Duration
	Confirmations uint64
	Backoff       BackoffConfig
}

// Worker наблюдатель одной сети: опрашивает источник, передаёт подтверждённые переводы в движок и двигает checkpoint
type Worker struct {
	source      observer.Source
	processor   observer.TransferProcessor
	checkpoints repository.ICheckpointRepo
	events      service.IEventPublisher
	alerter     service.IAlerterService
	health      *HealthRegistry
	backoff     *Backoff
	cfg         Config
	log         *slog.Logger
	now         func() time.Time
}

func NewWorker(
	source observer.Source,
	processor observer.TransferProcessor,
	checkpoints repository.ICheckpointRepo,
	events service.IEventPublisher,
	alerter service.IAlerterService,
	health *HealthRegistry,
	cfg Config,
	log *slog.Logger,
) *Worker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if health != nil {
		health.Register(source.Network())
	}
	return &Worker{
		source:      source,
		processor:   processor,
		checkpoints: checkpoints,
		events:      events,
		alerter:     alerter,
		health:      health,
		backoff:     NewBackoff(cfg.Backoff),
		cfg:         cfg,
		log:         log.With("network", source.Network()),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (w *Worker) Network() domain.Network {
	return w.source.Network()
}

// Run цикл опроса до отмены ctx. Ошибки источника не останавливают цикл.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info("observer started",
		"poll_interval", w.cfg.PollInterval,
		"confirmations", w.cfg.Confirmations,
	)

	for {
		wait := w.cfg.PollInterval
		if err := w.Poll(ctx); err != nil {
			if ctx.Err() != nil {
				break
			}
			if next := w.backoff.NextEligible(); next.After(w.now()) {
				wait = next.Sub(w.now())
			}
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			w.log.Info("observer stopped")
			return nil
		case <-timer.C:
		}
	}

	w.log.Info("observer stopped")
	return nil
}

// Poll один цикл опроса
func (w *Worker) Poll(ctx context.Context) error {
	network := w.source.Network()

	cp, err := w.checkpoints.Get(ctx, network)
	if err != nil {
		w.log.Error("failed to load checkpoint", "error", err)
		return fmt.Errorf("failed to load checkpoint: %w", err)
	}

	batch, err := w.source.Fetch(ctx, cp.Cursor)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		w.onSourceFailure(ctx, err)
		return err
	}
	w.onSourceSuccess(ctx)

	next := w.process(ctx, batch)
	if next < cp.Cursor {
		next = cp.Cursor
	}

	if next != cp.Cursor {
		previous := cp.Cursor
		cp.Cursor = next
		saved, err := w.checkpoints.Save(ctx, cp)
		if err != nil {
			w.log.Error("failed to save checkpoint", "error", err, "cursor", next)
			return fmt.Errorf("failed to save checkpoint: %w", err)
		}
		if !saved {
			w.log.Warn("checkpoint changed concurrently, will reload", "cursor", next)
			return nil
		}
		w.log.Debug("checkpoint advanced", "from", previous, "to", next)
	}

	if w.health != nil {
		w.health.SetCheckpoint(ctx, network, next)
	}
	return nil
}

// process отдаёт переводы движку и возвращает позицию, до которой можно двигать checkpoint.
// Неподтверждённый или необработанный перевод держит checkpoint на своей позиции, остальные обрабатываются.
func (w *Worker) process(ctx context.Context, batch *observer.Batch) uint64 {
	transfers := append([]domain.ObservedTransfer(nil), batch.Transfers...)
	sort.SliceStable(transfers, func(i, j int) bool { return transfers[i].Cursor < transfers[j].Cursor })

	next := batch.Next
	hold := func(cursor uint64) {
		if cursor < next {
			next = cursor
		}
	}

	for _, t := range transfers {
		if ctx.Err() != nil {
			hold(t.Cursor)
			break
		}

		if !t.IsConfirmed(w.cfg.Confirmations) {
			w.log.Debug("transfer awaits confirmations",
				"external_tx_id", t.ExternalTxID,
				"confirmations", t.Confirmations,
				"required", w.cfg.Confirmations,
			)
			hold(t.Cursor)
			continue
		}

		_, err := w.processor.Process(ctx, t)
		if !domain.IsSettledOutcome(err) {
			w.log.Warn("transfer not processed, will retry",
				"external_tx_id", t.ExternalTxID,
				"error", err,
			)
			hold(t.Cursor)
		}
	}

	return next
}

func (w *Worker) onSourceFailure(ctx context.Context, err error) {
	network := w.source.Network()
	now := w.now()

	delay, opened := w.backoff.Failure(now)
	failures := w.backoff.Failures()

	w.log.Warn("observer source failed",
		"error", err,
		"failures", failures,
		"retry_in", delay,
		"transient", domain.IsTransientSourceError(err),
	)

	if w.health != nil {
		w.health.RecordFailure(ctx, network, err, failures)
	}
	if !opened {
		return
	}

	w.log.Error("network degraded, circuit opened", "failures", failures, "error", err)
	if w.health != nil {
		w.health.MarkDegraded(ctx, network, now)
	}

	signal := domain.DegradedNetworkSignal{
		Network:   network,
		Since:     now,
		Failures:  failures,
		LastError: err.Error(),
	}
	if w.events != nil {
		if err := w.events.PublishDegraded(ctx, signal); err != nil {
			w.log.Warn("failed to publish degraded signal", "error", err)
		}
	}
	w.alert(ctx, fmt.Sprintf("🔴 Сеть %s недоступна\n\nОшибок подряд: %d\nПоследняя ошибка: %s", network, failures, err.Error()))
}

func (w *Worker) onSourceSuccess(ctx context.Context) {
	network := w.source.Network()
	now := w.now()
	since := w.backoff.OpenedAt()

	recovered := w.backoff.Success()
	if w.health != nil {
		w.health.RecordSuccess(ctx, network, now)
	}
	if !recovered {
		return
	}

	w.log.Info("network recovered", "degraded_since", since)
	if w.health != nil {
		w.health.MarkRecovered(ctx, network)
	}

	signal := domain.DegradedNetworkSignal{
		Network:     network,
		Since:       since,
		RecoveredAt: &now,
	}
	if w.events != nil {
		if err := w.events.PublishRecovered(ctx, signal); err != nil {
			w.log.Warn("failed to publish recovered signal", "error", err)
		}
	}
	w.alert(ctx, fmt.Sprintf("🟢 Сеть %s снова доступна\n\nНедоступна с %s", network, since.Format(time.RFC3339)))
}

func (w *Worker) alert(ctx context.Context, message string) {
	if w.alerter == nil {
		return
	}
	if err := w.alerter.SendAlert(ctx, message); err != nil {
		w.log.Warn("failed to send network alert", "error", err)
	}
}
