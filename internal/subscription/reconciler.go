package subscription

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	errors "github.com/frahmantamala/subscription-billing/internal"
	"github.com/frahmantamala/subscription-billing/internal/core/datamodel/payment"
	"github.com/frahmantamala/subscription-billing/internal/core/datamodel/plan"
	"github.com/frahmantamala/subscription-billing/internal/core/datamodel/subscription"
	"github.com/frahmantamala/subscription-billing/internal/core/events"
	"github.com/frahmantamala/subscription-billing/internal/gateway"
)

// Engine applies normalized gateway events to the local ledger. Every
// application is a conditional read-modify-write: the matching subscription
// row is locked, the status transition derived, and any payment appended
// inside one transaction. Webhook delivery order is not trusted, so every
// money-moving transition is reachable directly from pending.
type Engine struct {
	tx     TxManager
	plans  PlanRepository
	bus    *events.EventBus
	logger *slog.Logger
	locks  *subscriptionLocks
	now    func() time.Time
}

func NewEngine(tx TxManager, plans PlanRepository, bus *events.EventBus, logger *slog.Logger) *Engine {
	return &Engine{
		tx:     tx,
		plans:  plans,
		bus:    bus,
		logger: logger,
		locks:  newSubscriptionLocks(),
		now:    time.Now,
	}
}

type applyOutcome struct {
	subscriptionID int64
	previousStatus string
	newStatus      string
	paymentCreated bool
	duplicate      bool
	events         []events.Event
}

// Apply reconciles one event. A nil return means the event was durably
// applied, recognized as a duplicate, or deliberately ignored; any error
// must make the transport respond non-2xx so the gateway redelivers.
func (e *Engine) Apply(ctx context.Context, ev *gateway.Event) error {
	if ev.Kind == gateway.KindIgnored {
		e.logger.Debug("ignoring unsupported gateway event",
			"gateway", ev.GatewayName,
			"subscription_id", ev.GatewaySubscriptionID)
		return nil
	}

	lockKey := ev.GatewayName + ":" + ev.GatewaySubscriptionID
	if ev.GatewaySubscriptionID == "" {
		lockKey = ev.GatewayName + ":cust:" + ev.GatewayCustomerID
	}
	unlock := e.locks.Lock(lockKey)
	defer unlock()

	var outcome applyOutcome
	err := e.tx.Transact(ctx, func(subs SubscriptionRepository, pays PaymentRepository) error {
		sub, err := e.resolveSubscription(subs, ev)
		if err != nil {
			return err
		}

		pl, err := e.plans.GetByID(sub.PlanID)
		if err != nil {
			return errors.NewInternalError("failed to load plan for reconciliation", err)
		}

		return e.applyLocked(subs, pays, sub, pl, ev, &outcome)
	})
	if err != nil {
		return err
	}

	if outcome.duplicate {
		e.logger.Info("duplicate gateway event skipped",
			"gateway", ev.GatewayName,
			"subscription_id", outcome.subscriptionID,
			"transaction_id", ev.TransactionID)
	} else {
		e.logger.Info("gateway event reconciled",
			"gateway", ev.GatewayName,
			"kind", string(ev.Kind),
			"subscription_id", outcome.subscriptionID,
			"previous_status", outcome.previousStatus,
			"new_status", outcome.newStatus,
			"payment_created", outcome.paymentCreated)
	}

	// published only after the transaction committed
	for _, evt := range outcome.events {
		if pubErr := e.bus.Publish(ctx, evt); pubErr != nil {
			e.logger.Error("failed to publish billing event",
				"event_type", evt.EventType(),
				"error", pubErr)
		}
	}

	return nil
}

// resolveSubscription locates the row an event belongs to. The primary key
// is the gateway subscription id; only when an event carries none at all is
// the most recent pending subscription for its customer id used as a
// best-effort last resort. An event naming a subscription id that is not on
// file stays unresolved: the row may simply not have committed yet, and the
// redelivery will find it. Falling back here would pin the event to an
// unrelated subscription of the same customer.
func (e *Engine) resolveSubscription(subs SubscriptionRepository, ev *gateway.Event) (*subscription.Subscription, error) {
	if ev.GatewaySubscriptionID != "" {
		sub, err := subs.GetByGatewaySubscriptionIDForUpdate(ev.GatewayName, ev.GatewaySubscriptionID)
		if err == nil {
			return sub, nil
		}
		if err != ErrNotFound {
			return nil, errors.NewInternalError("failed to load subscription", err)
		}
	} else if ev.GatewayCustomerID != "" {
		sub, err := subs.LatestPendingByCustomer(ev.GatewayName, ev.GatewayCustomerID)
		if err == nil {
			e.logger.Warn("subscription resolved via pending-by-customer heuristic",
				"gateway", ev.GatewayName,
				"customer_id", ev.GatewayCustomerID,
				"subscription_id", sub.ID)
			return sub, nil
		}
		if err != ErrNotFound {
			return nil, errors.NewInternalError("failed to load subscription", err)
		}
	}

	return nil, errors.NewNotFoundError("Subscription not found", errors.ErrCodeSubscriptionNotFound).
		WithCause(fmt.Errorf("gateway %s subscription %q customer %q", ev.GatewayName, ev.GatewaySubscriptionID, ev.GatewayCustomerID))
}

func (e *Engine) applyLocked(subs SubscriptionRepository, pays PaymentRepository, sub *subscription.Subscription, pl *plan.Plan, ev *gateway.Event, outcome *applyOutcome) error {
	outcome.subscriptionID = sub.ID
	outcome.previousStatus = sub.Status
	outcome.newStatus = sub.Status

	// terminal absorption: a canceled subscription never moves again and
	// never gains ledger rows
	if sub.IsTerminal() {
		outcome.duplicate = true
		return nil
	}

	now := e.now()
	wantPayment := false

	switch ev.Kind {
	case gateway.KindSubscriptionActivated:
		if sub.Status == subscription.StatusPending {
			e.activate(sub, pl, ev, now)
			outcome.events = append(outcome.events,
				events.NewSubscriptionActivatedEvent(sub.ID, sub.UserID, sub.GatewayName, sub.Status))
		} else {
			// late or duplicate activation: keep the derived status, only
			// backfill a missing next billing date
			if sub.NextBillingAt == nil && ev.NextBillingAt != nil {
				sub.NextBillingAt = ev.NextBillingAt
			}
		}

	case gateway.KindSubscriptionCharged, gateway.KindPaymentSucceeded:
		wantPayment = ev.TransactionID != ""
		switch sub.Status {
		case subscription.StatusPending:
			if ev.Kind == gateway.KindPaymentSucceeded {
				// first payment confirmation: a trial plan still enters its
				// trial window, the ledger row is recorded either way
				e.activate(sub, pl, ev, now)
			} else {
				// a cycle charge means the billing period started, trial
				// or not
				sub.Status = subscription.StatusActive
				started := ev.OccurredAt
				if started.IsZero() {
					started = now
				}
				sub.StartedAt = &started
				if ev.NextBillingAt != nil {
					sub.NextBillingAt = ev.NextBillingAt
				}
			}
			outcome.events = append(outcome.events,
				events.NewSubscriptionActivatedEvent(sub.ID, sub.UserID, sub.GatewayName, sub.Status))
		case subscription.StatusTrialing, subscription.StatusPastDue:
			sub.Status = subscription.StatusActive
			if ev.NextBillingAt != nil {
				sub.NextBillingAt = ev.NextBillingAt
			}
			outcome.events = append(outcome.events,
				events.NewSubscriptionActivatedEvent(sub.ID, sub.UserID, sub.GatewayName, sub.Status))
		case subscription.StatusActive:
			// idempotent renewal
			if ev.NextBillingAt != nil {
				sub.NextBillingAt = ev.NextBillingAt
			}
		}

	case gateway.KindSetupSucceeded:
		// trial mandate saved, no money moved
		if sub.Status == subscription.StatusPending {
			e.activate(sub, pl, ev, now)
			outcome.events = append(outcome.events,
				events.NewSubscriptionActivatedEvent(sub.ID, sub.UserID, sub.GatewayName, sub.Status))
		}

	case gateway.KindSubscriptionPastDue, gateway.KindPaymentFailed:
		sub.Status = subscription.StatusPastDue
		outcome.events = append(outcome.events,
			events.NewSubscriptionPastDueEvent(sub.ID, sub.UserID, sub.GatewayName),
			events.NewPaymentFailedEvent(sub.ID, sub.UserID, sub.GatewayName, ev.TransactionID))

	case gateway.KindSubscriptionCanceled:
		sub.Status = subscription.StatusCanceled
		canceledAt := ev.OccurredAt
		if canceledAt.IsZero() {
			canceledAt = now
		}
		sub.CanceledAt = &canceledAt
		outcome.events = append(outcome.events,
			events.NewSubscriptionCanceledEvent(sub.ID, sub.UserID, sub.GatewayName))
	}

	if wantPayment {
		p, err := e.appendPayment(pays, sub, ev)
		if err != nil {
			return err
		}
		if p != nil {
			outcome.paymentCreated = true
			outcome.events = append(outcome.events,
				events.NewPaymentRecordedEvent(p.ID, sub.ID, sub.UserID, p.AmountMinor, p.Currency, p.TransactionID))
		} else {
			outcome.duplicate = true
		}
	}

	sub.UpdatedAt = now
	if err := subs.Update(sub); err != nil {
		return errors.NewInternalError("failed to persist subscription transition", err)
	}

	outcome.newStatus = sub.Status
	return nil
}

// activate moves a pending subscription into its first live state. Plans
// with a trial enter trialing so the trial window is never silently skipped;
// plans without one go straight to active.
func (e *Engine) activate(sub *subscription.Subscription, pl *plan.Plan, ev *gateway.Event, now time.Time) {
	started := ev.OccurredAt
	if started.IsZero() {
		started = now
	}
	sub.StartedAt = &started

	if pl.HasTrial() {
		sub.Status = subscription.StatusTrialing
		if ev.NextBillingAt != nil {
			sub.TrialEndAt = ev.NextBillingAt
		} else if sub.TrialEndAt == nil {
			t := started.AddDate(0, 0, pl.TrialDays)
			sub.TrialEndAt = &t
		}
	} else {
		sub.Status = subscription.StatusActive
	}

	if ev.NextBillingAt != nil {
		sub.NextBillingAt = ev.NextBillingAt
	}
}

// appendPayment inserts the ledger row for a charge unless one already
// exists for the (subscription, transaction) pair. A nil payment with a nil
// error means the charge was already recorded.
func (e *Engine) appendPayment(pays PaymentRepository, sub *subscription.Subscription, ev *gateway.Event) (*payment.Payment, error) {
	exists, err := pays.ExistsByTransactionID(sub.ID, ev.TransactionID)
	if err != nil {
		return nil, errors.NewInternalError("failed to check payment ledger", err)
	}
	if exists {
		return nil, nil
	}

	paidAt := ev.OccurredAt
	if paidAt.IsZero() {
		paidAt = e.now()
	}

	p := &payment.Payment{
		SubscriptionID: sub.ID,
		UserID:         sub.UserID,
		AmountMinor:    ev.AmountMinor,
		Currency:       ev.Currency,
		TransactionID:  ev.TransactionID,
		Status:         payment.StatusCompleted,
		PaidAt:         &paidAt,
	}

	if err := pays.Create(p); err != nil {
		return nil, errors.NewInternalError("failed to append payment", err)
	}

	return p, nil
}
