package gateway

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v75"
)

// normalizeStripeEvent maps the provider's heterogeneous webhook shapes onto
// the closed Event union. Unknown event types come back as KindIgnored.
func normalizeStripeEvent(gatewayName string, rawBody []byte) (*Event, error) {
	var event stripe.Event
	if err := json.Unmarshal(rawBody, &event); err != nil {
		return nil, fmt.Errorf("decode stripe event: %w", err)
	}

	out := &Event{
		Kind:        KindIgnored,
		GatewayName: gatewayName,
		OccurredAt:  time.Unix(event.Created, 0),
		RawPayload:  rawBody,
	}

	switch event.Type {
	case "customer.subscription.created", "customer.subscription.updated":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return nil, fmt.Errorf("decode stripe subscription: %w", err)
		}
		out.GatewaySubscriptionID = sub.ID
		if sub.Customer != nil {
			out.GatewayCustomerID = sub.Customer.ID
		}
		if sub.CurrentPeriodEnd > 0 {
			t := time.Unix(sub.CurrentPeriodEnd, 0)
			out.NextBillingAt = &t
		}
		switch sub.Status {
		case stripe.SubscriptionStatusActive, stripe.SubscriptionStatusTrialing:
			out.Kind = KindSubscriptionActivated
		case stripe.SubscriptionStatusPastDue, stripe.SubscriptionStatusUnpaid:
			out.Kind = KindSubscriptionPastDue
		case stripe.SubscriptionStatusCanceled:
			out.Kind = KindSubscriptionCanceled
		default:
			// incomplete / incomplete_expired carry no transition for us
			out.Kind = KindIgnored
		}

	case "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return nil, fmt.Errorf("decode stripe subscription: %w", err)
		}
		out.Kind = KindSubscriptionCanceled
		out.GatewaySubscriptionID = sub.ID
		if sub.Customer != nil {
			out.GatewayCustomerID = sub.Customer.ID
		}

	case "invoice.payment_succeeded", "invoice.paid":
		var inv stripe.Invoice
		if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
			return nil, fmt.Errorf("decode stripe invoice: %w", err)
		}
		out.Kind = KindSubscriptionCharged
		if inv.Subscription != nil {
			out.GatewaySubscriptionID = inv.Subscription.ID
		}
		if inv.Customer != nil {
			out.GatewayCustomerID = inv.Customer.ID
		}
		out.AmountMinor = inv.AmountPaid
		out.Currency = string(inv.Currency)
		out.TransactionID = stripeChargeTransactionID(&inv, event.ID)
		if inv.PeriodEnd > 0 {
			t := time.Unix(inv.PeriodEnd, 0)
			out.NextBillingAt = &t
		}

	case "invoice.payment_failed":
		var inv stripe.Invoice
		if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
			return nil, fmt.Errorf("decode stripe invoice: %w", err)
		}
		out.Kind = KindPaymentFailed
		if inv.Subscription != nil {
			out.GatewaySubscriptionID = inv.Subscription.ID
		}
		if inv.Customer != nil {
			out.GatewayCustomerID = inv.Customer.ID
		}
		out.TransactionID = stripeChargeTransactionID(&inv, event.ID)

	case "payment_intent.succeeded":
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return nil, fmt.Errorf("decode stripe payment intent: %w", err)
		}
		out.Kind = KindPaymentSucceeded
		out.TransactionID = pi.ID
		out.AmountMinor = pi.Amount
		out.Currency = string(pi.Currency)
		if pi.Customer != nil {
			out.GatewayCustomerID = pi.Customer.ID
		}
		out.GatewaySubscriptionID = pi.Metadata["subscription_id"]

	case "setup_intent.succeeded":
		var si stripe.SetupIntent
		if err := json.Unmarshal(event.Data.Raw, &si); err != nil {
			return nil, fmt.Errorf("decode stripe setup intent: %w", err)
		}
		out.Kind = KindSetupSucceeded
		if si.Customer != nil {
			out.GatewayCustomerID = si.Customer.ID
		}
		out.GatewaySubscriptionID = si.Metadata["subscription_id"]
	}

	return out, nil
}

// stripeChargeTransactionID resolves the dedup key for an invoice-carried
// charge: payment intent id, then invoice id, then the delivery's event id.
// The chain must stay deterministic; it is the only thing standing between
// correct dedup and duplicate ledger rows.
func stripeChargeTransactionID(inv *stripe.Invoice, eventID string) string {
	if inv.PaymentIntent != nil && inv.PaymentIntent.ID != "" {
		return inv.PaymentIntent.ID
	}
	if inv.ID != "" {
		return inv.ID
	}
	return eventID
}
