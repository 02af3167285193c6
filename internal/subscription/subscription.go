package subscription

import (
	"context"
	"errors"
	"time"

	"github.com/frahmantamala/subscription-billing/internal/core/datamodel/payment"
	"github.com/frahmantamala/subscription-billing/internal/core/datamodel/plan"
	"github.com/frahmantamala/subscription-billing/internal/core/datamodel/subscription"
	"github.com/frahmantamala/subscription-billing/internal/core/datamodel/user"
)

// ErrNotFound is returned by repositories when no row matches; callers decide
// whether that is a hard error or a trigger for a fallback lookup.
var ErrNotFound = errors.New("record not found")

type ListFilter struct {
	UserID int64
	Status string
	From   *time.Time
	To     *time.Time
	Limit  int
	Offset int
}

// SubscriptionRepository is the persistence boundary for subscription rows.
// Rows are never deleted, only status-transitioned.
type SubscriptionRepository interface {
	Create(sub *subscription.Subscription) error
	GetByID(id int64) (*subscription.Subscription, error)
	// GetByGatewaySubscriptionIDForUpdate acquires a row lock when running
	// inside a transaction on a backend that supports it.
	GetByGatewaySubscriptionIDForUpdate(gatewayName, gatewaySubID string) (*subscription.Subscription, error)
	// LatestPendingByCustomer backs the best-effort fallback when an event
	// carries a customer id but no subscription id.
	LatestPendingByCustomer(gatewayName, gatewayCustomerID string) (*subscription.Subscription, error)
	// LatestCustomerID returns the most recent non-empty gateway customer id
	// recorded for this user and gateway.
	LatestCustomerID(gatewayName string, userID int64) (string, error)
	Update(sub *subscription.Subscription) error
	List(filter ListFilter) ([]*subscription.Subscription, error)
}

// PaymentRepository persists the append-only payment ledger.
type PaymentRepository interface {
	Create(p *payment.Payment) error
	ExistsByTransactionID(subscriptionID int64, transactionID string) (bool, error)
	ListBySubscriptionID(subscriptionID int64) ([]*payment.Payment, error)
	ListByUserID(userID int64) ([]*payment.Payment, error)
}

type PlanRepository interface {
	GetByID(id int64) (*plan.Plan, error)
	// CacheGatewayPriceID stores a freshly created remote price id on the
	// plan, compare-and-set so concurrent builders do not stomp each other.
	CacheGatewayPriceID(planID int64, gatewayName, priceID string) error
}

type UserRepository interface {
	GetByID(id int64) (*user.User, error)
}

// TxManager runs a function against transaction-bound repositories so a
// status update and a payment insert commit or roll back as one unit.
type TxManager interface {
	Transact(ctx context.Context, fn func(subs SubscriptionRepository, pays PaymentRepository) error) error
}
