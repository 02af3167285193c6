package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/frahmantamala/subscription-billing/internal/core/datamodel/plan"
	"github.com/frahmantamala/subscription-billing/internal/core/datamodel/user"
)

// EventKind is the closed set of normalized webhook event kinds. Anything a
// provider sends outside this set normalizes to KindIgnored so new remote
// event types never fail a whole webhook delivery.
type EventKind string

const (
	KindSubscriptionActivated EventKind = "subscription-activated"
	KindSubscriptionCharged   EventKind = "subscription-charged"
	KindSubscriptionPastDue   EventKind = "subscription-past-due"
	KindSubscriptionCanceled  EventKind = "subscription-canceled"
	KindPaymentSucceeded      EventKind = "payment-succeeded"
	KindPaymentFailed         EventKind = "payment-failed"
	KindSetupSucceeded        EventKind = "setup-succeeded"
	KindIgnored               EventKind = "ignored"
)

// Event is the gateway-agnostic representation of a webhook payload. It is
// ephemeral: produced by an adapter's normalizer, consumed once by the
// reconciliation engine, then discarded.
type Event struct {
	Kind                  EventKind
	GatewayName           string
	GatewaySubscriptionID string
	GatewayCustomerID     string
	// TransactionID is the dedup key half. Normalizers resolve it through the
	// fallback chain payment id, then invoice id, then event id, so the same
	// charge always maps to the same key no matter which event reported it.
	TransactionID string
	AmountMinor   int64
	Currency      string
	OccurredAt    time.Time
	NextBillingAt *time.Time
	RawPayload    json.RawMessage
}

type CustomerRef struct {
	ID string
}

// SubscriptionIntent is what a begin-subscription call hands back: the remote
// subscription id plus the handshake artifact (client secret or order id) the
// browser needs to finish collecting payment against the gateway's hosted UI.
type SubscriptionIntent struct {
	GatewayName           string
	GatewaySubscriptionID string
	CustomerID            string
	HandshakeArtifact     string
	// PriceID is the remote price/plan object used, reported back so the
	// caller can cache it on the Plan row for reuse.
	PriceID    string
	TrialEndAt *time.Time
}

// Client is the capability interface one payment provider implements.
// Remote failures surface as *GatewayError except for Cancel, which reports
// a boolean so callers can still mark local state canceled.
type Client interface {
	Name() string
	// SignatureHeader names the HTTP header carrying the webhook signature.
	SignatureHeader() string
	EnsureCustomer(ctx context.Context, u *user.User, existingCustomerID string) (CustomerRef, error)
	StartTrialSubscription(ctx context.Context, u *user.User, p *plan.Plan, customerID string, trialDays int) (*SubscriptionIntent, error)
	StartImmediateSubscription(ctx context.Context, u *user.User, p *plan.Plan, customerID string) (*SubscriptionIntent, error)
	Cancel(ctx context.Context, gatewaySubscriptionID string) bool
	VerifyWebhookSignature(rawBody []byte, signatureHeader string) bool
	ParseWebhook(rawBody []byte) (*Event, error)
}

// GatewayError wraps any remote-call failure so callers can distinguish
// retryable provider trouble from permanent validation errors without
// string-matching messages.
type GatewayError struct {
	Gateway string
	Op      string
	Cause   error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("%s gateway: %s: %v", e.Gateway, e.Op, e.Cause)
}

func (e *GatewayError) Unwrap() error {
	return e.Cause
}

func NewGatewayError(gatewayName, op string, cause error) *GatewayError {
	return &GatewayError{Gateway: gatewayName, Op: op, Cause: cause}
}
