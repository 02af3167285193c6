package events

import (
	"context"
	"log/slog"
)

// BillingEventTypes lists every event the reconciler and the subscription
// service publish.
var BillingEventTypes = []string{
	EventTypeSubscriptionActivated,
	EventTypeSubscriptionPastDue,
	EventTypeSubscriptionCanceled,
	EventTypePaymentRecorded,
	EventTypePaymentFailed,
}

// RegisterLoggingHandlers attaches an audit-log consumer to every billing
// event type, so a published event always lands in the log even when no
// other subscriber exists.
func RegisterLoggingHandlers(bus *EventBus, logger *slog.Logger) {
	for _, eventType := range BillingEventTypes {
		bus.Subscribe(eventType, func(ctx context.Context, ev Event) error {
			logger.Info("billing event",
				"event_type", ev.EventType(),
				"event_id", ev.EventID(),
				"payload", ev.Payload())
			return nil
		})
	}
}
