package postgres

import (
	"time"

	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
	"gorm.io/gorm"

	"github.com/frahmantamala/subscription-billing/internal/core/datamodel/payment"
	subscriptionpkg "github.com/frahmantamala/subscription-billing/internal/subscription"
)

// PaymentSQLite drops postgres-only column defaults for SQLite compatibility
type PaymentSQLite struct {
	ID             int64      `gorm:"primaryKey"`
	SubscriptionID int64      `gorm:"column:subscription_id;not null;uniqueIndex:idx_payments_dedup"`
	UserID         int64      `gorm:"column:user_id;not null"`
	AmountMinor    int64      `gorm:"column:amount_minor;not null"`
	Currency       string     `gorm:"column:currency;not null"`
	TransactionID  string     `gorm:"column:transaction_id;not null;uniqueIndex:idx_payments_dedup"`
	Status         string     `gorm:"column:status"`
	PaidAt         *time.Time `gorm:"column:paid_at"`
	CreatedAt      time.Time  `gorm:"column:created_at"`
}

func (PaymentSQLite) TableName() string {
	return "payments"
}

func completedPayment(subscriptionID int64, transactionID string) *payment.Payment {
	paidAt := time.Now().UTC()
	return &payment.Payment{
		SubscriptionID: subscriptionID,
		UserID:         10,
		AmountMinor:    199900,
		Currency:       "INR",
		TransactionID:  transactionID,
		Status:         payment.StatusCompleted,
		PaidAt:         &paidAt,
	}
}

var _ = ginkgo.Describe("PaymentRepository", func() {
	var (
		db   *gorm.DB
		repo subscriptionpkg.PaymentRepository
	)

	ginkgo.BeforeEach(func() {
		db = openTestDB()
		repo = NewPaymentRepository(db)
	})

	ginkgo.Describe("Create", func() {
		ginkgo.It("inserts a payment and sets the id", func() {
			p := completedPayment(1, "pi_1")
			gomega.Expect(repo.Create(p)).To(gomega.Succeed())
			gomega.Expect(p.ID).To(gomega.BeNumerically(">", 0))
		})

		ginkgo.It("refuses a second row for the same subscription and transaction", func() {
			gomega.Expect(repo.Create(completedPayment(1, "pi_dup"))).To(gomega.Succeed())
			err := repo.Create(completedPayment(1, "pi_dup"))
			gomega.Expect(err).To(gomega.HaveOccurred())
		})

		ginkgo.It("allows the same transaction id on another subscription", func() {
			gomega.Expect(repo.Create(completedPayment(1, "pi_shared"))).To(gomega.Succeed())
			gomega.Expect(repo.Create(completedPayment(2, "pi_shared"))).To(gomega.Succeed())
		})
	})

	ginkgo.Describe("ExistsByTransactionID", func() {
		ginkgo.It("reports presence scoped to the subscription", func() {
			gomega.Expect(repo.Create(completedPayment(1, "pi_x"))).To(gomega.Succeed())

			exists, err := repo.ExistsByTransactionID(1, "pi_x")
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(exists).To(gomega.BeTrue())

			exists, err = repo.ExistsByTransactionID(2, "pi_x")
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(exists).To(gomega.BeFalse())
		})
	})

	ginkgo.Describe("listing", func() {
		ginkgo.BeforeEach(func() {
			gomega.Expect(repo.Create(completedPayment(1, "pi_a"))).To(gomega.Succeed())
			gomega.Expect(repo.Create(completedPayment(1, "pi_b"))).To(gomega.Succeed())
			gomega.Expect(repo.Create(completedPayment(2, "pi_c"))).To(gomega.Succeed())
		})

		ginkgo.It("lists by subscription", func() {
			rows, err := repo.ListBySubscriptionID(1)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(rows).To(gomega.HaveLen(2))
		})

		ginkgo.It("lists by user", func() {
			rows, err := repo.ListByUserID(10)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(rows).To(gomega.HaveLen(3))
		})
	})
})
