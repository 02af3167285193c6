package gateway

import (
	"encoding/json"
	"fmt"
	"time"
)

type razorpaySubscriptionEntity struct {
	ID         string `json:"id"`
	PlanID     string `json:"plan_id"`
	CustomerID string `json:"customer_id"`
	Status     string `json:"status"`
	CurrentEnd int64  `json:"current_end"`
	ChargeAt   int64  `json:"charge_at"`
	EndedAt    int64  `json:"ended_at"`
}

type razorpayPaymentEntity struct {
	ID         string `json:"id"`
	Amount     int64  `json:"amount"`
	Currency   string `json:"currency"`
	Status     string `json:"status"`
	InvoiceID  string `json:"invoice_id"`
	CustomerID string `json:"customer_id"`
	CreatedAt  int64  `json:"created_at"`
}

type razorpayInvoiceEntity struct {
	ID             string `json:"id"`
	SubscriptionID string `json:"subscription_id"`
}

type razorpayWebhook struct {
	Entity    string `json:"entity"`
	Event     string `json:"event"`
	CreatedAt int64  `json:"created_at"`
	Payload   struct {
		Subscription struct {
			Entity *razorpaySubscriptionEntity `json:"entity"`
		} `json:"subscription"`
		Payment struct {
			Entity *razorpayPaymentEntity `json:"entity"`
		} `json:"payment"`
		Invoice struct {
			Entity *razorpayInvoiceEntity `json:"entity"`
		} `json:"invoice"`
	} `json:"payload"`
}

// normalizeRazorpayEvent maps this provider's envelope (event name plus
// nested entities) onto the closed Event union.
func normalizeRazorpayEvent(gatewayName string, rawBody []byte) (*Event, error) {
	var hook razorpayWebhook
	if err := json.Unmarshal(rawBody, &hook); err != nil {
		return nil, fmt.Errorf("decode razorpay webhook: %w", err)
	}

	out := &Event{
		Kind:        KindIgnored,
		GatewayName: gatewayName,
		OccurredAt:  time.Unix(hook.CreatedAt, 0),
		RawPayload:  rawBody,
	}

	sub := hook.Payload.Subscription.Entity
	pay := hook.Payload.Payment.Entity
	inv := hook.Payload.Invoice.Entity

	if sub != nil {
		out.GatewaySubscriptionID = sub.ID
		out.GatewayCustomerID = sub.CustomerID
		if next := razorpayNextBilling(sub); next != nil {
			out.NextBillingAt = next
		}
	}
	if out.GatewaySubscriptionID == "" && inv != nil {
		out.GatewaySubscriptionID = inv.SubscriptionID
	}
	if pay != nil {
		if out.GatewayCustomerID == "" {
			out.GatewayCustomerID = pay.CustomerID
		}
		out.AmountMinor = pay.Amount
		out.Currency = pay.Currency
	}

	switch hook.Event {
	case "subscription.activated", "subscription.authenticated", "subscription.resumed":
		out.Kind = KindSubscriptionActivated

	case "subscription.charged":
		out.Kind = KindSubscriptionCharged
		out.TransactionID = razorpayTransactionID(pay, inv, out.GatewaySubscriptionID, hook.CreatedAt)

	case "subscription.halted", "subscription.pending":
		out.Kind = KindSubscriptionPastDue

	case "subscription.cancelled", "subscription.completed", "subscription.expired":
		out.Kind = KindSubscriptionCanceled

	case "payment.captured":
		out.Kind = KindPaymentSucceeded
		out.TransactionID = razorpayTransactionID(pay, inv, out.GatewaySubscriptionID, hook.CreatedAt)

	case "payment.failed":
		out.Kind = KindPaymentFailed
		out.TransactionID = razorpayTransactionID(pay, inv, out.GatewaySubscriptionID, hook.CreatedAt)
	}

	return out, nil
}

func razorpayNextBilling(sub *razorpaySubscriptionEntity) *time.Time {
	var at int64
	switch {
	case sub.ChargeAt > 0:
		at = sub.ChargeAt
	case sub.CurrentEnd > 0:
		at = sub.CurrentEnd
	default:
		return nil
	}
	t := time.Unix(at, 0)
	return &t
}

// razorpayTransactionID resolves the dedup key: payment id, then invoice id,
// then a deterministic composite of subscription id and the webhook's
// created_at (this provider's body carries no event id).
func razorpayTransactionID(pay *razorpayPaymentEntity, inv *razorpayInvoiceEntity, subID string, createdAt int64) string {
	if pay != nil && pay.ID != "" {
		return pay.ID
	}
	if inv != nil && inv.ID != "" {
		return inv.ID
	}
	return fmt.Sprintf("rzp_%s_%d", subID, createdAt)
}
