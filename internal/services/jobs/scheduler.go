package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kpizzy812/TMAMARKET/internal/ports/cache"
	"github.com/kpizzy812/TMAMARKET/internal/ports/jobs"
	"github.com/kpizzy812/TMAMARKET/internal/ports/service"
	"golang.org/x/sync/errgroup"
)

const jobLockPrefix = "job:"

// Scheduler крутит каждую джобу в своей горутине по её расписанию.
// ExclusiveJob берёт блокировку на запуск, реплика без блокировки пропускает тик.
type Scheduler struct {
	jobs    []jobs.Job
	alerter service.IAlerterService
	lock    cache.ILock
	log     *slog.Logger
	now     func() time.Time
}

func NewScheduler(log *slog.Logger, alerter service.IAlerterService, lock cache.ILock) *Scheduler {
	return &Scheduler{
		alerter: alerter,
		lock:    lock,
		log:     log,
		now:     time.Now,
	}
}

func (s *Scheduler) Register(job jobs.Job) {
	s.jobs = append(s.jobs, job)
}

// Run до отмены ctx
func (s *Scheduler) Run(ctx context.Context) error {
	if len(s.jobs) == 0 {
		s.log.Warn("no jobs registered, scheduler not started")
		return nil
	}

	names := make([]string, 0, len(s.jobs))
	g, gCtx := errgroup.WithContext(ctx)
	for _, job := range s.jobs {
		job := job
		names = append(names, job.Name())
		g.Go(func() error {
			s.loop(gCtx, job)
			return nil
		})
	}
	s.log.Info("job scheduler started", "jobs", names)

	err := g.Wait()
	s.log.Info("job scheduler stopped")
	return err
}

func (s *Scheduler) loop(ctx context.Context, job jobs.Job) {
	log := s.log.With("job", job.Name())
	for {
		now := s.now()
		timer := time.NewTimer(job.NextRun(now).Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		release, ok := s.claim(ctx, job, log)
		if !ok {
			continue
		}
		failures := s.runWithRetry(ctx, job, log)
		release()

		if len(failures) == 0 || ctx.Err() != nil {
			continue
		}
		log.Error("job failed", "attempts", len(failures), "error", failures[len(failures)-1])
		s.alert(ctx, job.Name(), failures)
	}
}

// claim блокировка для ExclusiveJob; ошибка Redis не блокирует запуск
func (s *Scheduler) claim(ctx context.Context, job jobs.Job, log *slog.Logger) (func(), bool) {
	exclusive, ok := job.(jobs.ExclusiveJob)
	if !ok || s.lock == nil {
		return func() {}, true
	}

	key := jobLockPrefix + job.Name()
	acquired, err := s.lock.Acquire(ctx, key, exclusive.Lease())
	if err != nil {
		log.Warn("job lock unavailable, running anyway", "error", err)
		return func() {}, true
	}
	if !acquired {
		log.Debug("job is running on another replica, tick skipped")
		return nil, false
	}
	return func() {
		if err := s.lock.Release(context.Background(), key); err != nil {
			log.Warn("failed to release job lock", "error", err)
		}
	}, true
}

// runWithRetry nil при успехе, иначе ошибки всех попыток по порядку
func (s *Scheduler) runWithRetry(ctx context.Context, job jobs.Job, log *slog.Logger) []error {
	var delays []time.Duration
	if retryable, ok := job.(jobs.RetryableJob); ok {
		delays = retryable.RetryDelays()
	}

	var failures []error
	for attempt := 0; ; attempt++ {
		err := job.Run(ctx)
		if err == nil {
			return nil
		}
		failures = append(failures, err)
		if attempt >= len(delays) {
			return failures
		}

		log.Warn("job attempt failed", "attempt", attempt+1, "retry_in", delays[attempt], "error", err)
		timer := time.NewTimer(delays[attempt])
		select {
		case <-ctx.Done():
			timer.Stop()
			return append(failures, ctx.Err())
		case <-timer.C:
		}
	}
}

func (s *Scheduler) alert(ctx context.Context, name string, failures []error) {
	if s.alerter == nil {
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "⚠️ Джоба %s не выполнилась\n", name)
	for i, err := range failures {
		fmt.Fprintf(&b, "\n%d. %s", i+1, err)
	}

	if err := s.alerter.SendAlert(ctx, b.String()); err != nil {
		s.log.Warn("failed to send job failure alert", "job", name, "error", err)
	}
}
