package subscription

import (
	"time"
)

// Status values a subscription moves through. Transitions only ever move
// forward; canceled is terminal.
const (
	StatusPending  = "pending"
	StatusTrialing = "trialing"
	StatusActive   = "active"
	StatusPastDue  = "past_due"
	StatusCanceled = "canceled"
)

const (
	GatewayStripe   = "stripe"
	GatewayRazorpay = "razorpay"
)

type Subscription struct {
	ID                    int64      `json:"id" gorm:"primaryKey"`
	UserID                int64      `json:"user_id" gorm:"column:user_id;not null"`
	PlanID                int64      `json:"plan_id" gorm:"column:plan_id;not null"`
	GatewayName           string     `json:"gateway_name" gorm:"column:gateway_name;not null"`
	GatewayCustomerID     string     `json:"gateway_customer_id" gorm:"column:gateway_customer_id"`
	GatewaySubscriptionID *string    `json:"gateway_subscription_id,omitempty" gorm:"column:gateway_subscription_id"`
	Status                string     `json:"status" gorm:"column:status;default:pending"`
	StartedAt             *time.Time `json:"started_at,omitempty" gorm:"column:started_at"`
	TrialEndAt            *time.Time `json:"trial_end_at,omitempty" gorm:"column:trial_end_at"`
	NextBillingAt         *time.Time `json:"next_billing_at,omitempty" gorm:"column:next_billing_at"`
	CanceledAt            *time.Time `json:"canceled_at,omitempty" gorm:"column:canceled_at"`
	CreatedAt             time.Time  `json:"created_at" gorm:"column:created_at;default:now()"`
	UpdatedAt             time.Time  `json:"updated_at" gorm:"column:updated_at;default:now()"`
}

func (Subscription) TableName() string {
	return "subscriptions"
}

// IsTerminal reports whether no further event may mutate this subscription.
func (s *Subscription) IsTerminal() bool {
	return s.Status == StatusCanceled
}

func (s *Subscription) GatewaySubID() string {
	if s.GatewaySubscriptionID == nil {
		return ""
	}
	return *s.GatewaySubscriptionID
}

func ValidStatus(status string) bool {
	switch status {
	case StatusPending, StatusTrialing, StatusActive, StatusPastDue, StatusCanceled:
		return true
	}
	return false
}

func ValidGateway(name string) bool {
	return name == GatewayStripe || name == GatewayRazorpay
}
