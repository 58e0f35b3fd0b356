package event

import (
	"context"

	"github.com/jwalitptl/lab-api/pkg/logger"
	"github.com/jwalitptl/lab-api/pkg/messaging"
	"github.com/jwalitptl/lab-api/pkg/metrics"
)

// Emitter publishes lifecycle events to the broker. Publishing is
// best-effort: no core contract depends on a subscriber, so a broker
// failure is logged, counted, and swallowed.
type Emitter struct {
	broker  messaging.Broker
	logger  *logger.Logger
	metrics *metrics.Metrics
}

func NewEmitter(broker messaging.Broker, logger *logger.Logger, m *metrics.Metrics) *Emitter {
	return &Emitter{broker: broker, logger: logger, metrics: m}
}

// Emit publishes payload on channel wrapped in the standard envelope.
func (e *Emitter) Emit(ctx context.Context, channel string, payload interface{}) {
	msg := &messaging.Message{
		Type:    channel,
		Payload: payload,
	}
	if err := e.broker.Publish(ctx, channel, msg); err != nil {
		e.metrics.EventsDropped.WithLabelValues(channel).Inc()
		e.logger.Warn("failed to publish event", "channel", channel, "error", err.Error())
		return
	}
	e.metrics.EventsPublished.WithLabelValues(channel).Inc()
}
