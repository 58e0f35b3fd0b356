package worker_test

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/lab-api/internal/model"
	"github.com/jwalitptl/lab-api/internal/repository"
	"github.com/jwalitptl/lab-api/internal/repository/memory"
	"github.com/jwalitptl/lab-api/internal/service/event"
	"github.com/jwalitptl/lab-api/pkg/logger"
	"github.com/jwalitptl/lab-api/pkg/metrics"
	"github.com/jwalitptl/lab-api/pkg/worker"
)

// scriptedNotifier fails a fixed number of deliveries before
// succeeding, optionally stalling longer than any attempt deadline.
type scriptedNotifier struct {
	mu         sync.Mutex
	failFirst  int
	stall      time.Duration
	calls      int
	lastAlert  *model.Alert
	lastResult *model.Result
}

func (n *scriptedNotifier) NotifyCriticalResult(ctx context.Context, alert *model.Alert, result *model.Result) error {
	n.mu.Lock()
	n.calls++
	call := n.calls
	stall := n.stall
	n.lastAlert = alert
	n.lastResult = result
	n.mu.Unlock()

	if stall > 0 {
		time.Sleep(stall)
	}
	if call <= n.failFirst {
		return errors.New("smtp unavailable")
	}
	return nil
}

func (n *scriptedNotifier) callCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls
}

func (n *scriptedNotifier) delivered() (*model.Alert, *model.Result) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.lastAlert, n.lastResult
}

// recordingBroker counts publishes per channel.
type recordingBroker struct {
	mu       sync.Mutex
	messages map[string]int
}

func newRecordingBroker() *recordingBroker {
	return &recordingBroker{messages: make(map[string]int)}
}

func (b *recordingBroker) Publish(ctx context.Context, channel string, message interface{}) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages[channel]++
	return nil
}

func (b *recordingBroker) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	ch := make(chan []byte)
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch, nil
}

func (b *recordingBroker) Close() error { return nil }

func (b *recordingBroker) count(channel string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.messages[channel]
}

type dispatcherFixture struct {
	alerts  repository.AlertRepository
	results repository.ResultRepository
	broker  *recordingBroker
}

func newDispatcher(t *testing.T, n *scriptedNotifier, cfg worker.DispatcherConfig) (*worker.Dispatcher, *dispatcherFixture) {
	t.Helper()

	store := memory.NewStore()
	fx := &dispatcherFixture{
		alerts:  memory.NewAlertRepository(store),
		results: memory.NewResultRepository(store),
		broker:  newRecordingBroker(),
	}
	log := logger.NewLogger(&logger.Config{Level: logger.FatalLevel, TimeFormat: time.RFC3339, Output: io.Discard})
	m := metrics.New("dispatcher_test")
	emitter := event.NewEmitter(fx.broker, log, m)

	return worker.NewDispatcher(fx.alerts, fx.results, n, emitter, cfg, log, m), fx
}

func testDispatcherConfig() worker.DispatcherConfig {
	return worker.DispatcherConfig{
		BatchSize:      10,
		PollInterval:   5 * time.Millisecond,
		BaseDelay:      time.Millisecond,
		MaxAttempts:    5,
		AttemptTimeout: time.Second,
	}
}

func (fx *dispatcherFixture) seedAlert(t *testing.T) *model.Alert {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()

	result := &model.Result{
		ID:             uuid.New(),
		OrderID:        uuid.New(),
		TestCode:       "K",
		PatientID:      "patient-1",
		Value:          "7.2",
		Unit:           "mmol/L",
		IsCritical:     true,
		CatalogVersion: 1,
		CompletedAt:    now,
		UpdatedAt:      now,
	}
	_, err := fx.results.Upsert(ctx, result)
	require.NoError(t, err)

	alert, err := fx.alerts.EnqueueForResult(ctx, &model.Alert{
		ID:          uuid.New(),
		ResultID:    result.ID,
		OrderID:     result.OrderID,
		TestCode:    result.TestCode,
		RecipientID: "dr-reynolds",
		State:       model.AlertStatePendingDelivery,
		CreatedAt:   now,
	})
	require.NoError(t, err)
	return alert
}

func startDispatcher(t *testing.T, d *worker.Dispatcher) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		d.Start(ctx)
		close(stopped)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-stopped:
		case <-time.After(time.Second):
			t.Error("dispatcher did not stop on context cancellation")
		}
	})
}

func TestDispatcherDeliversPendingAlert(t *testing.T) {
	notifier := &scriptedNotifier{}
	d, fx := newDispatcher(t, notifier, testDispatcherConfig())
	seeded := fx.seedAlert(t)
	startDispatcher(t, d)

	require.Eventually(t, func() bool {
		alert, err := fx.alerts.Get(context.Background(), seeded.ID)
		return err == nil && alert.State == model.AlertStateDelivered
	}, 2*time.Second, 5*time.Millisecond)

	alert, err := fx.alerts.Get(context.Background(), seeded.ID)
	require.NoError(t, err)
	assert.Zero(t, alert.Attempts)
	assert.NotNil(t, alert.DeliveredAt)
	assert.True(t, alert.Active(), "delivered alerts still demand acknowledgment")

	gotAlert, gotResult := notifier.delivered()
	require.NotNil(t, gotAlert)
	require.NotNil(t, gotResult)
	assert.Equal(t, "dr-reynolds", gotAlert.RecipientID)
	assert.Equal(t, "7.2", gotResult.Value)
	assert.Zero(t, fx.broker.count(model.EventAlertEscalated))
}

func TestDispatcherRetriesUntilDelivered(t *testing.T) {
	notifier := &scriptedNotifier{failFirst: 2}
	d, fx := newDispatcher(t, notifier, testDispatcherConfig())
	seeded := fx.seedAlert(t)
	startDispatcher(t, d)

	require.Eventually(t, func() bool {
		alert, err := fx.alerts.Get(context.Background(), seeded.ID)
		return err == nil && alert.State == model.AlertStateDelivered
	}, 2*time.Second, 5*time.Millisecond)

	alert, err := fx.alerts.Get(context.Background(), seeded.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, alert.Attempts, "attempts counts recorded failures, not the winning try")
	assert.Equal(t, 3, notifier.callCount())
	assert.Zero(t, fx.broker.count(model.EventAlertEscalated))
}

func TestDispatcherEscalatesAfterRetryCeiling(t *testing.T) {
	notifier := &scriptedNotifier{failFirst: 100}
	d, fx := newDispatcher(t, notifier, testDispatcherConfig())
	seeded := fx.seedAlert(t)
	startDispatcher(t, d)

	require.Eventually(t, func() bool {
		alert, err := fx.alerts.Get(context.Background(), seeded.ID)
		return err == nil && alert.State == model.AlertStateDeliveryFailed
	}, 2*time.Second, 5*time.Millisecond)

	// A parked alert must not be claimed again.
	time.Sleep(50 * time.Millisecond)

	alert, err := fx.alerts.Get(context.Background(), seeded.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, alert.Attempts)
	require.NotNil(t, alert.LastError)
	assert.Equal(t, "smtp unavailable", *alert.LastError)
	assert.True(t, alert.Active(), "escalated alerts still demand acknowledgment")

	assert.Equal(t, 5, notifier.callCount())
	assert.Equal(t, 1, fx.broker.count(model.EventAlertEscalated))

	active, err := fx.alerts.CountActive(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, active)
}

func TestDispatcherTimesOutSlowDelivery(t *testing.T) {
	notifier := &scriptedNotifier{stall: 250 * time.Millisecond}
	cfg := testDispatcherConfig()
	cfg.AttemptTimeout = 10 * time.Millisecond
	cfg.BaseDelay = time.Hour
	d, fx := newDispatcher(t, notifier, cfg)
	seeded := fx.seedAlert(t)
	startDispatcher(t, d)

	require.Eventually(t, func() bool {
		alert, err := fx.alerts.Get(context.Background(), seeded.ID)
		return err == nil && alert.Attempts == 1
	}, 2*time.Second, 5*time.Millisecond)

	alert, err := fx.alerts.Get(context.Background(), seeded.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AlertStatePendingDelivery, alert.State)
	require.NotNil(t, alert.LastError)
	assert.Equal(t, context.DeadlineExceeded.Error(), *alert.LastError)
	require.NotNil(t, alert.NextAttemptAt)
	assert.True(t, alert.NextAttemptAt.After(time.Now().UTC().Add(30*time.Minute)),
		"backoff should push the retry well past the stall")
}

func TestDispatcherStopsOnContextCancel(t *testing.T) {
	d, _ := newDispatcher(t, &scriptedNotifier{}, testDispatcherConfig())

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		d.Start(ctx)
		close(stopped)
	}()

	cancel()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop on context cancellation")
	}
}

func TestNewDispatcherValidatesConfig(t *testing.T) {
	store := memory.NewStore()
	log := logger.NewLogger(&logger.Config{Level: logger.FatalLevel, TimeFormat: time.RFC3339, Output: io.Discard})
	m := metrics.New("dispatcher_config_test")
	emitter := event.NewEmitter(newRecordingBroker(), log, m)

	build := func(mutate func(*worker.DispatcherConfig)) func() {
		cfg := testDispatcherConfig()
		mutate(&cfg)
		return func() {
			worker.NewDispatcher(
				memory.NewAlertRepository(store),
				memory.NewResultRepository(store),
				&scriptedNotifier{},
				emitter,
				cfg,
				log,
				m,
			)
		}
	}

	assert.Panics(t, build(func(c *worker.DispatcherConfig) { c.BatchSize = 0 }))
	assert.Panics(t, build(func(c *worker.DispatcherConfig) { c.PollInterval = 0 }))
	assert.Panics(t, build(func(c *worker.DispatcherConfig) { c.BaseDelay = 0 }))
	assert.Panics(t, build(func(c *worker.DispatcherConfig) { c.MaxAttempts = 0 }))
	assert.Panics(t, build(func(c *worker.DispatcherConfig) { c.AttemptTimeout = 0 }))
	assert.NotPanics(t, build(func(c *worker.DispatcherConfig) {}))
}
