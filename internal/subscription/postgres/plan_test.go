package postgres

import (
	"context"
	"time"

	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
	"gorm.io/gorm"

	"github.com/frahmantamala/subscription-billing/internal/core/datamodel/subscription"
	subscriptionpkg "github.com/frahmantamala/subscription-billing/internal/subscription"
)

// PlanSQLite drops postgres-only column defaults for SQLite compatibility
type PlanSQLite struct {
	ID             int64     `gorm:"primaryKey"`
	Name           string    `gorm:"column:name;not null"`
	AmountMinor    int64     `gorm:"column:amount_minor;not null"`
	Currency       string    `gorm:"column:currency;not null"`
	Interval       string    `gorm:"column:interval"`
	TrialDays      int       `gorm:"column:trial_days"`
	StripePriceID  *string   `gorm:"column:stripe_price_id"`
	RazorpayPlanID *string   `gorm:"column:razorpay_plan_id"`
	CreatedAt      time.Time `gorm:"column:created_at"`
	UpdatedAt      time.Time `gorm:"column:updated_at"`
}

func (PlanSQLite) TableName() string {
	return "plans"
}

// UserSQLite drops postgres-only column defaults for SQLite compatibility
type UserSQLite struct {
	ID        int64     `gorm:"primaryKey"`
	Email     string    `gorm:"column:email;not null;uniqueIndex"`
	Name      string    `gorm:"column:name"`
	CreatedAt time.Time `gorm:"column:created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (UserSQLite) TableName() string {
	return "users"
}

var _ = ginkgo.Describe("PlanRepository", func() {
	var (
		db   *gorm.DB
		repo subscriptionpkg.PlanRepository
	)

	ginkgo.BeforeEach(func() {
		db = openTestDB()
		repo = NewPlanRepository(db)

		err := db.Exec(
			"INSERT INTO plans (id, name, amount_minor, currency, interval, trial_days, created_at, updated_at) VALUES (1, 'pro-monthly', 199900, 'INR', 'month', 7, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)",
		).Error
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
	})

	ginkgo.Describe("GetByID", func() {
		ginkgo.It("loads the plan", func() {
			p, err := repo.GetByID(1)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(p.Name).To(gomega.Equal("pro-monthly"))
			gomega.Expect(p.HasTrial()).To(gomega.BeTrue())
		})

		ginkgo.It("maps a missing plan to ErrNotFound", func() {
			_, err := repo.GetByID(404)
			gomega.Expect(err).To(gomega.Equal(subscriptionpkg.ErrNotFound))
		})
	})

	ginkgo.Describe("CacheGatewayPriceID", func() {
		ginkgo.It("stores the remote price id once and keeps the first value", func() {
			gomega.Expect(repo.CacheGatewayPriceID(1, subscription.GatewayStripe, "price_first")).To(gomega.Succeed())
			gomega.Expect(repo.CacheGatewayPriceID(1, subscription.GatewayStripe, "price_second")).To(gomega.Succeed())

			p, err := repo.GetByID(1)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(p.StripePriceID).ToNot(gomega.BeNil())
			gomega.Expect(*p.StripePriceID).To(gomega.Equal("price_first"))
		})

		ginkgo.It("keeps per-gateway columns independent", func() {
			gomega.Expect(repo.CacheGatewayPriceID(1, subscription.GatewayStripe, "price_s")).To(gomega.Succeed())
			gomega.Expect(repo.CacheGatewayPriceID(1, subscription.GatewayRazorpay, "plan_r")).To(gomega.Succeed())

			p, err := repo.GetByID(1)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(*p.StripePriceID).To(gomega.Equal("price_s"))
			gomega.Expect(*p.RazorpayPlanID).To(gomega.Equal("plan_r"))
		})

		ginkgo.It("rejects gateways without a cache column", func() {
			err := repo.CacheGatewayPriceID(1, "braintree", "x")
			gomega.Expect(err).To(gomega.HaveOccurred())
		})
	})
})

var _ = ginkgo.Describe("TxManager", func() {
	var (
		db *gorm.DB
		tx subscriptionpkg.TxManager
	)

	ginkgo.BeforeEach(func() {
		db = openTestDB()
		tx = NewTxManager(db)
	})

	ginkgo.It("commits subscription and payment writes together", func() {
		err := tx.Transact(context.Background(), func(subs subscriptionpkg.SubscriptionRepository, pays subscriptionpkg.PaymentRepository) error {
			sub := pendingSub("sub_tx", time.Now().UTC())
			if err := subs.Create(sub); err != nil {
				return err
			}
			return pays.Create(completedPayment(sub.ID, "pi_tx"))
		})
		gomega.Expect(err).ToNot(gomega.HaveOccurred())

		var count int64
		gomega.Expect(db.Table("payments").Count(&count).Error).ToNot(gomega.HaveOccurred())
		gomega.Expect(count).To(gomega.Equal(int64(1)))
	})

	ginkgo.It("rolls everything back when the function errors", func() {
		err := tx.Transact(context.Background(), func(subs subscriptionpkg.SubscriptionRepository, pays subscriptionpkg.PaymentRepository) error {
			sub := pendingSub("sub_rollback", time.Now().UTC())
			if err := subs.Create(sub); err != nil {
				return err
			}
			if err := pays.Create(completedPayment(sub.ID, "pi_rollback")); err != nil {
				return err
			}
			return gorm.ErrInvalidData
		})
		gomega.Expect(err).To(gomega.HaveOccurred())

		var subCount, payCount int64
		gomega.Expect(db.Table("subscriptions").Count(&subCount).Error).ToNot(gomega.HaveOccurred())
		gomega.Expect(db.Table("payments").Count(&payCount).Error).ToNot(gomega.HaveOccurred())
		gomega.Expect(subCount).To(gomega.BeZero())
		gomega.Expect(payCount).To(gomega.BeZero())
	})
})
