package postgres

import (
	"context"

	subscriptionpkg "github.com/frahmantamala/subscription-billing/internal/subscription"
	"gorm.io/gorm"
)

// TxManager binds subscription and payment repositories to one gorm
// transaction so a status transition and its ledger row commit atomically.
type TxManager struct {
	db *gorm.DB
}

func NewTxManager(db *gorm.DB) subscriptionpkg.TxManager {
	return &TxManager{db: db}
}

func (m *TxManager) Transact(ctx context.Context, fn func(subs subscriptionpkg.SubscriptionRepository, pays subscriptionpkg.PaymentRepository) error) error {
	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewSubscriptionRepository(tx), NewPaymentRepository(tx))
	})
}
