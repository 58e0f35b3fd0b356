package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jwalitptl/lab-api/internal/model"
	"github.com/jwalitptl/lab-api/internal/notifier"
	"github.com/jwalitptl/lab-api/internal/repository"
	"github.com/jwalitptl/lab-api/internal/service/event"
	"github.com/jwalitptl/lab-api/pkg/logger"
	"github.com/jwalitptl/lab-api/pkg/metrics"
)

type DispatcherConfig struct {
	BatchSize      int
	PollInterval   time.Duration
	BaseDelay      time.Duration
	MaxAttempts    int
	AttemptTimeout time.Duration
}

// Dispatcher walks pending alerts through the notifier with exponential
// backoff. It is the only component that moves alerts between delivery
// states; acknowledgment stays with the alert service.
type Dispatcher struct {
	alerts   repository.AlertRepository
	results  repository.ResultRepository
	notifier notifier.Notifier
	emitter  *event.Emitter
	config   DispatcherConfig
	logger   *logger.Logger
	metrics  *metrics.Metrics
}

func NewDispatcher(
	alerts repository.AlertRepository,
	results repository.ResultRepository,
	n notifier.Notifier,
	emitter *event.Emitter,
	config DispatcherConfig,
	logger *logger.Logger,
	metrics *metrics.Metrics,
) *Dispatcher {
	// Config validation instead of defaults
	if config.BatchSize <= 0 {
		panic("BatchSize must be greater than 0")
	}
	if config.PollInterval <= 0 {
		panic("PollInterval must be greater than 0")
	}
	if config.BaseDelay <= 0 {
		panic("BaseDelay must be greater than 0")
	}
	if config.MaxAttempts <= 0 {
		panic("MaxAttempts must be greater than 0")
	}
	if config.AttemptTimeout <= 0 {
		panic("AttemptTimeout must be greater than 0")
	}

	return &Dispatcher{
		alerts:   alerts,
		results:  results,
		notifier: n,
		emitter:  emitter,
		config:   config,
		logger:   logger,
		metrics:  metrics,
	}
}

func (d *Dispatcher) Start(ctx context.Context) {
	ticker := time.NewTicker(d.config.PollInterval)
	defer ticker.Stop()

	d.logger.Info("starting alert dispatcher")

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("stopping alert dispatcher")
			return
		case <-ticker.C:
			if err := d.processDue(ctx); err != nil {
				d.logger.Error(err, "failed to process due alerts")
			}
		}
	}
}

func (d *Dispatcher) processDue(ctx context.Context) error {
	d.metrics.DispatchCycles.Inc()

	due, err := d.alerts.ClaimDue(ctx, time.Now().UTC(), d.config.BatchSize)
	if err != nil {
		d.metrics.DatabaseOperations.WithLabelValues("claim_due_alerts", "error").Inc()
		return fmt.Errorf("failed to claim due alerts: %w", err)
	}
	d.metrics.DatabaseOperations.WithLabelValues("claim_due_alerts", "success").Inc()

	for _, alert := range due {
		if err := d.dispatch(ctx, alert); err != nil {
			d.logger.Error(err, "failed to dispatch alert",
				"alert_id", alert.ID.String(),
				"test_code", alert.TestCode)
			continue
		}
	}

	return nil
}

func (d *Dispatcher) dispatch(ctx context.Context, alert *model.Alert) error {
	result, err := d.results.Get(ctx, alert.ResultID)
	if err != nil {
		return fmt.Errorf("failed to load result %s: %w", alert.ResultID, err)
	}

	deliveryErr := d.attempt(ctx, alert, result)
	if deliveryErr == nil {
		if err := d.alerts.MarkDelivered(ctx, alert.ID, time.Now().UTC()); err != nil {
			return fmt.Errorf("failed to mark alert delivered: %w", err)
		}
		d.metrics.AlertsDispatched.Inc()
		d.logger.Info("alert delivered",
			"alert_id", alert.ID.String(),
			"test_code", alert.TestCode,
			"recipient_id", alert.RecipientID,
			"attempts", alert.Attempts)
		return nil
	}

	d.metrics.AlertsFailed.Inc()
	attempts := alert.Attempts + 1

	if attempts >= d.config.MaxAttempts {
		if err := d.alerts.MarkDeliveryFailed(ctx, alert.ID, attempts, deliveryErr.Error()); err != nil {
			return fmt.Errorf("failed to mark alert delivery failed: %w", err)
		}
		d.metrics.AlertsEscalated.Inc()
		d.logger.Error(deliveryErr, "alert delivery exhausted retries, escalating",
			"alert_id", alert.ID.String(),
			"test_code", alert.TestCode,
			"attempts", attempts)
		d.escalate(ctx, alert, attempts, deliveryErr)
		return nil
	}

	next := time.Now().UTC().Add(d.config.BaseDelay << uint(attempts))
	if err := d.alerts.RecordFailure(ctx, alert.ID, attempts, next, deliveryErr.Error()); err != nil {
		return fmt.Errorf("failed to record delivery failure: %w", err)
	}
	d.logger.Warn("alert delivery failed, will retry",
		"alert_id", alert.ID.String(),
		"test_code", alert.TestCode,
		"attempt", attempts,
		"next_attempt_at", next.Format(time.RFC3339),
		"error", deliveryErr.Error())
	return nil
}

// attempt runs one delivery against the notifier. SMTP delivery has no
// context support, so the per-attempt timeout is enforced here around a
// goroutine rather than inside the channel.
func (d *Dispatcher) attempt(ctx context.Context, alert *model.Alert, result *model.Result) error {
	timer := prometheus.NewTimer(d.metrics.DeliveryLatency)
	defer timer.ObserveDuration()

	attemptCtx, cancel := context.WithTimeout(ctx, d.config.AttemptTimeout)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- d.notifier.NotifyCriticalResult(attemptCtx, alert, result)
	}()

	select {
	case err := <-errCh:
		return err
	case <-attemptCtx.Done():
		return attemptCtx.Err()
	}
}

// escalate hands the alert to the supervisory queue. The alert is
// already parked in delivery_failed and stays acknowledgeable even if
// the publish is dropped.
func (d *Dispatcher) escalate(ctx context.Context, alert *model.Alert, attempts int, lastErr error) {
	d.emitter.Emit(ctx, model.EventAlertEscalated, map[string]interface{}{
		"alert_id":     alert.ID,
		"result_id":    alert.ResultID,
		"order_id":     alert.OrderID,
		"test_code":    alert.TestCode,
		"recipient_id": alert.RecipientID,
		"attempts":     attempts,
		"last_error":   lastErr.Error(),
	})
}
