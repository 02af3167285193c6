package payment

import (
	"time"
)

const (
	StatusCompleted = "completed"
	StatusPending   = "pending"
)

// Payment is an append-only ledger row. The (subscription_id, transaction_id)
// pair is unique; that constraint is the sole defense against at-least-once
// webhook redelivery.
type Payment struct {
	ID             int64      `json:"id" gorm:"primaryKey"`
	SubscriptionID int64      `json:"subscription_id" gorm:"column:subscription_id;not null;uniqueIndex:idx_payments_dedup"`
	UserID         int64      `json:"user_id" gorm:"column:user_id;not null"`
	AmountMinor    int64      `json:"amount_minor" gorm:"column:amount_minor;not null"`
	Currency       string     `json:"currency" gorm:"column:currency;not null"`
	TransactionID  string     `json:"transaction_id" gorm:"column:transaction_id;not null;uniqueIndex:idx_payments_dedup"`
	Status         string     `json:"status" gorm:"column:status;default:completed"`
	PaidAt         *time.Time `json:"paid_at,omitempty" gorm:"column:paid_at"`
	CreatedAt      time.Time  `json:"created_at" gorm:"column:created_at;default:now()"`
}

func (Payment) TableName() string {
	return "payments"
}
