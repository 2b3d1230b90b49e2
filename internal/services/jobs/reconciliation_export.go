package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/kpizzy812/TMAMARKET/internal/domain"
	"github.com/kpizzy812/TMAMARKET/internal/ports/repository"
	"github.com/kpizzy812/TMAMARKET/internal/ports/service"
	"github.com/kpizzy812/TMAMARKET/internal/ports/storage"
	"github.com/robfig/cron/v3"
)

const (
	reconciliationExportName  = "reconciliation-export"
	DefaultReconciliationCron = "0 4 * * *"
	reconciliationExportLimit = 10000
	reconciliationLinkTTL     = 72 * time.Hour
)

// ReconciliationExport выгружает нерешённые unmatched переводы в S3 для ручной сверки
type ReconciliationExport struct {
	unmatched repository.IUnmatchedTransferRepo
	reports   storage.IReportStore
	alerter   service.IAlerterService
	schedule  cron.Schedule
	log       *slog.Logger
	now       func() time.Time
}

type reconciliationReport struct {
	GeneratedAt time.Time                   `json:"generated_at"`
	Count       int                         `json:"count"`
	Transfers   []*domain.UnmatchedTransfer `json:"transfers"`
}

func NewReconciliationExport(
	unmatched repository.IUnmatchedTransferRepo,
	reports storage.IReportStore,
	alerter service.IAlerterService,
	spec string,
	log *slog.Logger,
) (*ReconciliationExport, error) {
	if spec == "" {
		spec = DefaultReconciliationCron
	}
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid reconciliation schedule %q: %w", spec, err)
	}

	return &ReconciliationExport{
		unmatched: unmatched,
		reports:   reports,
		alerter:   alerter,
		schedule:  schedule,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

func (j *ReconciliationExport) Name() string {
	return reconciliationExportName
}

// NextRun по cron-расписанию, UTC
func (j *ReconciliationExport) NextRun(now time.Time) time.Time {
	return j.schedule.Next(now.UTC())
}

// Lease выгрузку за день делает одна реплика
func (j *ReconciliationExport) Lease() time.Duration {
	return 15 * time.Minute
}

func (j *ReconciliationExport) RetryDelays() []time.Duration {
	return []time.Duration{time.Minute, 5 * time.Minute}
}

func (j *ReconciliationExport) Run(ctx context.Context) error {
	transfers, err := j.unmatched.ListUnresolved(ctx, reconciliationExportLimit)
	if err != nil {
		return fmt.Errorf("failed to list unmatched transfers: %w", err)
	}
	if len(transfers) == 0 {
		j.log.Debug("no unmatched transfers to export")
		return nil
	}

	now := j.now()
	data, err := json.MarshalIndent(reconciliationReport{
		GeneratedAt: now,
		Count:       len(transfers),
		Transfers:   transfers,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal reconciliation report: %w", err)
	}

	path := ReconciliationPath(now)
	if err := j.reports.Upload(ctx, path, data, "application/json"); err != nil {
		return err
	}

	j.log.Info("reconciliation report exported",
		"path", path,
		"count", len(transfers),
	)

	if j.alerter == nil {
		return nil
	}

	url, err := j.reports.ShareLink(ctx, path, reconciliationLinkTTL)
	if err != nil {
		j.log.Warn("failed to presign reconciliation report", "error", err, "path", path)
		return nil
	}

	message := fmt.Sprintf("📋 Нераспознанные переводы: %d\n\nВыгрузка для сверки: %s", len(transfers), url)
	if err := j.alerter.SendAlert(ctx, message); err != nil {
		j.log.Warn("failed to send reconciliation alert", "error", err)
	}
	return nil
}

// ReconciliationPath reconciliation/YYYY-MM-DD/unmatched.json
func ReconciliationPath(at time.Time) string {
	return "reconciliation/" + at.UTC().Format("2006-01-02") + "/unmatched.json"
}
