package postgres

import (
	"github.com/frahmantamala/subscription-billing/internal/core/datamodel/subscription"
	subscriptionpkg "github.com/frahmantamala/subscription-billing/internal/subscription"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SubscriptionRepository struct {
	db *gorm.DB
}

func NewSubscriptionRepository(db *gorm.DB) subscriptionpkg.SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

func (r *SubscriptionRepository) Create(sub *subscription.Subscription) error {
	return r.db.Create(sub).Error
}

func (r *SubscriptionRepository) GetByID(id int64) (*subscription.Subscription, error) {
	var sub subscription.Subscription
	err := r.db.First(&sub, id).Error
	if err != nil {
		return nil, mapNotFound(err)
	}
	return &sub, nil
}

// GetByGatewaySubscriptionIDForUpdate locks the matching row for the rest of
// the surrounding transaction. Row locks exist only on postgres; under the
// sqlite test backend the query runs unlocked.
func (r *SubscriptionRepository) GetByGatewaySubscriptionIDForUpdate(gatewayName, gatewaySubID string) (*subscription.Subscription, error) {
	var sub subscription.Subscription
	q := r.db
	if r.db.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	err := q.Where("gateway_name = ? AND gateway_subscription_id = ?", gatewayName, gatewaySubID).
		First(&sub).Error
	if err != nil {
		return nil, mapNotFound(err)
	}
	return &sub, nil
}

func (r *SubscriptionRepository) LatestPendingByCustomer(gatewayName, gatewayCustomerID string) (*subscription.Subscription, error) {
	var sub subscription.Subscription
	q := r.db
	if r.db.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	err := q.Where("gateway_name = ? AND gateway_customer_id = ? AND status = ?",
		gatewayName, gatewayCustomerID, subscription.StatusPending).
		Order("created_at DESC").
		First(&sub).Error
	if err != nil {
		return nil, mapNotFound(err)
	}
	return &sub, nil
}

func (r *SubscriptionRepository) LatestCustomerID(gatewayName string, userID int64) (string, error) {
	var sub subscription.Subscription
	err := r.db.Where("gateway_name = ? AND user_id = ? AND gateway_customer_id <> ''", gatewayName, userID).
		Order("created_at DESC").
		First(&sub).Error
	if err != nil {
		return "", mapNotFound(err)
	}
	return sub.GatewayCustomerID, nil
}

func (r *SubscriptionRepository) Update(sub *subscription.Subscription) error {
	return r.db.Save(sub).Error
}

func (r *SubscriptionRepository) List(filter subscriptionpkg.ListFilter) ([]*subscription.Subscription, error) {
	q := r.db.Model(&subscription.Subscription{})

	if filter.UserID > 0 {
		q = q.Where("user_id = ?", filter.UserID)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.From != nil {
		q = q.Where("created_at >= ?", *filter.From)
	}
	if filter.To != nil {
		q = q.Where("created_at <= ?", *filter.To)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}

	var rows []*subscription.Subscription
	err := q.Order("created_at DESC").Find(&rows).Error
	return rows, err
}

func mapNotFound(err error) error {
	if err == gorm.ErrRecordNotFound {
		return subscriptionpkg.ErrNotFound
	}
	return err
}
