package postgres

import (
	"github.com/frahmantamala/subscription-billing/internal/core/datamodel/payment"
	subscriptionpkg "github.com/frahmantamala/subscription-billing/internal/subscription"
	"gorm.io/gorm"
)

type PaymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) subscriptionpkg.PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) Create(p *payment.Payment) error {
	return r.db.Create(p).Error
}

func (r *PaymentRepository) ExistsByTransactionID(subscriptionID int64, transactionID string) (bool, error) {
	var count int64
	err := r.db.Model(&payment.Payment{}).
		Where("subscription_id = ? AND transaction_id = ?", subscriptionID, transactionID).
		Count(&count).Error
	return count > 0, err
}

func (r *PaymentRepository) ListBySubscriptionID(subscriptionID int64) ([]*payment.Payment, error) {
	var rows []*payment.Payment
	err := r.db.Where("subscription_id = ?", subscriptionID).
		Order("created_at DESC").
		Find(&rows).Error
	return rows, err
}

func (r *PaymentRepository) ListByUserID(userID int64) ([]*payment.Payment, error) {
	var rows []*payment.Payment
	err := r.db.Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&rows).Error
	return rows, err
}
