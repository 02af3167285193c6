package plan

import (
	"time"
)

const (
	IntervalMonth = "month"
	IntervalYear  = "year"
)

// Plan is owned by the plan-management collaborator; this engine only reads
// it and CAS-writes the per-gateway price id cache columns.
type Plan struct {
	ID             int64     `json:"id" gorm:"primaryKey"`
	Name           string    `json:"name" gorm:"column:name;not null"`
	AmountMinor    int64     `json:"amount_minor" gorm:"column:amount_minor;not null"`
	Currency       string    `json:"currency" gorm:"column:currency;not null"`
	Interval       string    `json:"interval" gorm:"column:interval;default:month"`
	TrialDays      int       `json:"trial_days" gorm:"column:trial_days;default:0"`
	StripePriceID  *string   `json:"stripe_price_id,omitempty" gorm:"column:stripe_price_id"`
	RazorpayPlanID *string   `json:"razorpay_plan_id,omitempty" gorm:"column:razorpay_plan_id"`
	CreatedAt      time.Time `json:"created_at" gorm:"column:created_at;default:now()"`
	UpdatedAt      time.Time `json:"updated_at" gorm:"column:updated_at;default:now()"`
}

func (Plan) TableName() string {
	return "plans"
}

func (p *Plan) HasTrial() bool {
	return p.TrialDays > 0
}

// CachedGatewayPriceID returns the stored remote price/plan id for the
// given gateway, or empty when it has not been created yet.
func (p *Plan) CachedGatewayPriceID(gatewayName string) string {
	switch gatewayName {
	case "stripe":
		if p.StripePriceID != nil {
			return *p.StripePriceID
		}
	case "razorpay":
		if p.RazorpayPlanID != nil {
			return *p.RazorpayPlanID
		}
	}
	return ""
}
