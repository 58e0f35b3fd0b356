package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/jwalitptl/lab-api/internal/repository"
	"github.com/jwalitptl/lab-api/pkg/logger"
	"github.com/jwalitptl/lab-api/pkg/metrics"
)

type RetentionConfig struct {
	AlertDays int
	AuditDays int
	Interval  time.Duration
}

// RetentionWorker prunes acknowledged alerts and audit records past
// their retention windows. Alerts that still demand acknowledgment are
// never touched, whatever their age.
type RetentionWorker struct {
	alerts  repository.AlertRepository
	audits  repository.AuditRepository
	config  RetentionConfig
	logger  *logger.Logger
	metrics *metrics.Metrics
}

func NewRetentionWorker(
	alerts repository.AlertRepository,
	audits repository.AuditRepository,
	config RetentionConfig,
	logger *logger.Logger,
	metrics *metrics.Metrics,
) *RetentionWorker {
	if config.AlertDays <= 0 {
		panic("AlertDays must be greater than 0")
	}
	if config.AuditDays <= 0 {
		panic("AuditDays must be greater than 0")
	}
	if config.Interval <= 0 {
		panic("Interval must be greater than 0")
	}

	return &RetentionWorker{
		alerts:  alerts,
		audits:  audits,
		config:  config,
		logger:  logger,
		metrics: metrics,
	}
}

func (w *RetentionWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	w.logger.Info("starting retention worker")

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("stopping retention worker")
			return
		case <-ticker.C:
			if err := w.prune(ctx); err != nil {
				w.logger.Error(err, "failed to prune expired records")
			}
		}
	}
}

func (w *RetentionWorker) prune(ctx context.Context) error {
	now := time.Now().UTC()

	alerts, err := w.alerts.DeleteAcknowledgedBefore(ctx, now.AddDate(0, 0, -w.config.AlertDays))
	if err != nil {
		return fmt.Errorf("failed to prune acknowledged alerts: %w", err)
	}
	if alerts > 0 {
		w.metrics.RetentionDeleted.WithLabelValues("alerts").Add(float64(alerts))
		w.logger.Info("pruned acknowledged alerts", "deleted", alerts)
	}

	audits, err := w.audits.DeleteBefore(ctx, now.AddDate(0, 0, -w.config.AuditDays))
	if err != nil {
		return fmt.Errorf("failed to prune audit records: %w", err)
	}
	if audits > 0 {
		w.metrics.RetentionDeleted.WithLabelValues("audit_records").Add(float64(audits))
		w.logger.Info("pruned audit records", "deleted", audits)
	}

	return nil
}
