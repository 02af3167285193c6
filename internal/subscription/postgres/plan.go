package postgres

import (
	"fmt"

	"github.com/frahmantamala/subscription-billing/internal/core/datamodel/plan"
	"github.com/frahmantamala/subscription-billing/internal/core/datamodel/subscription"
	subscriptionpkg "github.com/frahmantamala/subscription-billing/internal/subscription"
	"gorm.io/gorm"
)

type PlanRepository struct {
	db *gorm.DB
}

func NewPlanRepository(db *gorm.DB) subscriptionpkg.PlanRepository {
	return &PlanRepository{db: db}
}

func (r *PlanRepository) GetByID(id int64) (*plan.Plan, error) {
	var p plan.Plan
	err := r.db.First(&p, id).Error
	if err != nil {
		return nil, mapNotFound(err)
	}
	return &p, nil
}

// CacheGatewayPriceID writes the remote price id only when the column is
// still NULL, so two concurrent begin calls cannot overwrite each other.
// Losing the race is fine: some price id is cached either way.
func (r *PlanRepository) CacheGatewayPriceID(planID int64, gatewayName, priceID string) error {
	var column string
	switch gatewayName {
	case subscription.GatewayStripe:
		column = "stripe_price_id"
	case subscription.GatewayRazorpay:
		column = "razorpay_plan_id"
	default:
		return fmt.Errorf("no price cache column for gateway %q", gatewayName)
	}

	return r.db.Model(&plan.Plan{}).
		Where(fmt.Sprintf("id = ? AND %s IS NULL", column), planID).
		Update(column, priceID).Error
}
