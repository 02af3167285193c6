package subscription

import (
	"net/url"
	"strconv"
	"time"

	errors "github.com/frahmantamala/subscription-billing/internal"
	"github.com/frahmantamala/subscription-billing/internal/core/common/validation"
	"github.com/frahmantamala/subscription-billing/internal/core/datamodel/payment"
	"github.com/frahmantamala/subscription-billing/internal/core/datamodel/subscription"
)

type BeginSubscriptionRequest struct {
	UserID  int64  `json:"user_id"`
	PlanID  int64  `json:"plan_id"`
	Gateway string `json:"gateway"`
}

func (r *BeginSubscriptionRequest) Validate() *errors.AppError {
	v := validation.NewValidator()
	v.Field("user_id", r.UserID).Required().MinInt(1, errors.ErrCodeValidationFailed)
	v.Field("plan_id", r.PlanID).Required().MinInt(1, errors.ErrCodeValidationFailed)
	v.Field("gateway", r.Gateway).Required().OneOf(subscription.GatewayStripe, subscription.GatewayRazorpay)
	return v.Validate()
}

// BeginSubscriptionResponse carries the handshake artifact the frontend
// needs to finish collecting payment with the gateway's hosted flow.
type BeginSubscriptionResponse struct {
	SubscriptionID        int64      `json:"subscription_id"`
	Status                string     `json:"status"`
	Gateway               string     `json:"gateway"`
	GatewaySubscriptionID string     `json:"gateway_subscription_id"`
	HandshakeArtifact     string     `json:"handshake_artifact"`
	TrialEndAt            *time.Time `json:"trial_end_at,omitempty"`
}

// CancelSubscriptionResponse reports both sides of a cancellation. Local
// status is authoritative; remote failure only adds an advisory notice.
type CancelSubscriptionResponse struct {
	SubscriptionID        int64      `json:"subscription_id"`
	Status                string     `json:"status"`
	CanceledAt            *time.Time `json:"canceled_at,omitempty"`
	RemoteCancelSucceeded bool       `json:"remote_cancel_succeeded"`
	Notice                string     `json:"notice,omitempty"`
}

type SubscriptionResponse struct {
	ID                    int64      `json:"id"`
	UserID                int64      `json:"user_id"`
	PlanID                int64      `json:"plan_id"`
	Gateway               string     `json:"gateway"`
	GatewaySubscriptionID string     `json:"gateway_subscription_id,omitempty"`
	Status                string     `json:"status"`
	StartedAt             *time.Time `json:"started_at,omitempty"`
	TrialEndAt            *time.Time `json:"trial_end_at,omitempty"`
	NextBillingAt         *time.Time `json:"next_billing_at,omitempty"`
	CanceledAt            *time.Time `json:"canceled_at,omitempty"`
	CreatedAt             time.Time  `json:"created_at"`
}

func ToSubscriptionResponse(s *subscription.Subscription) *SubscriptionResponse {
	return &SubscriptionResponse{
		ID:                    s.ID,
		UserID:                s.UserID,
		PlanID:                s.PlanID,
		Gateway:               s.GatewayName,
		GatewaySubscriptionID: s.GatewaySubID(),
		Status:                s.Status,
		StartedAt:             s.StartedAt,
		TrialEndAt:            s.TrialEndAt,
		NextBillingAt:         s.NextBillingAt,
		CanceledAt:            s.CanceledAt,
		CreatedAt:             s.CreatedAt,
	}
}

type PaymentResponse struct {
	ID             int64      `json:"id"`
	SubscriptionID int64      `json:"subscription_id"`
	AmountMinor    int64      `json:"amount_minor"`
	Currency       string     `json:"currency"`
	TransactionID  string     `json:"transaction_id"`
	Status         string     `json:"status"`
	PaidAt         *time.Time `json:"paid_at,omitempty"`
}

func ToPaymentResponses(rows []*payment.Payment) []*PaymentResponse {
	out := make([]*PaymentResponse, 0, len(rows))
	for _, p := range rows {
		out = append(out, &PaymentResponse{
			ID:             p.ID,
			SubscriptionID: p.SubscriptionID,
			AmountMinor:    p.AmountMinor,
			Currency:       p.Currency,
			TransactionID:  p.TransactionID,
			Status:         p.Status,
			PaidAt:         p.PaidAt,
		})
	}
	return out
}

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// ParseListFilter reads list query params. Bad values fall back to defaults
// rather than failing the request; only an unknown status is rejected.
func ParseListFilter(q url.Values) (ListFilter, *errors.AppError) {
	filter := ListFilter{Limit: defaultListLimit}

	if raw := q.Get("user_id"); raw != "" {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil && id > 0 {
			filter.UserID = id
		}
	}

	if status := q.Get("status"); status != "" {
		if !subscription.ValidStatus(status) {
			return filter, errors.NewValidationFieldError("status", "unknown subscription status", errors.ErrCodeValidationFailed)
		}
		filter.Status = status
	}

	if raw := q.Get("from"); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			filter.From = &t
		}
	}
	if raw := q.Get("to"); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			filter.To = &t
		}
	}

	if raw := q.Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			if n > maxListLimit {
				n = maxListLimit
			}
			filter.Limit = n
		}
	}
	if raw := q.Get("offset"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n >= 0 {
			filter.Offset = n
		}
	}

	return filter, nil
}
