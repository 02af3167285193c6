package subscription_test

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/subscription-billing/internal/core/datamodel/payment"
	"github.com/frahmantamala/subscription-billing/internal/core/datamodel/plan"
	"github.com/frahmantamala/subscription-billing/internal/core/datamodel/subscription"
	"github.com/frahmantamala/subscription-billing/internal/core/events"
	"github.com/frahmantamala/subscription-billing/internal/gateway"
	subscriptionPkg "github.com/frahmantamala/subscription-billing/internal/subscription"
)

// in-memory repositories backing the engine in tests

type memStore struct {
	mu            sync.Mutex
	nextSubID     int64
	nextPaymentID int64
	subs          map[int64]*subscription.Subscription
	payments      []*payment.Payment
}

func newMemStore() *memStore {
	return &memStore{
		nextSubID:     1,
		nextPaymentID: 1,
		subs:          make(map[int64]*subscription.Subscription),
	}
}

func (s *memStore) addSubscription(sub *subscription.Subscription) *subscription.Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *sub
	copied.ID = s.nextSubID
	s.nextSubID++
	s.subs[copied.ID] = &copied
	return &copied
}

type memSubRepo struct{ store *memStore }

func (r *memSubRepo) Create(sub *subscription.Subscription) error {
	created := r.store.addSubscription(sub)
	sub.ID = created.ID
	return nil
}

func (r *memSubRepo) GetByID(id int64) (*subscription.Subscription, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	sub, ok := r.store.subs[id]
	if !ok {
		return nil, subscriptionPkg.ErrNotFound
	}
	copied := *sub
	return &copied, nil
}

func (r *memSubRepo) GetByGatewaySubscriptionIDForUpdate(gatewayName, gatewaySubID string) (*subscription.Subscription, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, sub := range r.store.subs {
		if sub.GatewayName == gatewayName && sub.GatewaySubID() == gatewaySubID {
			copied := *sub
			return &copied, nil
		}
	}
	return nil, subscriptionPkg.ErrNotFound
}

func (r *memSubRepo) LatestPendingByCustomer(gatewayName, gatewayCustomerID string) (*subscription.Subscription, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var latest *subscription.Subscription
	for _, sub := range r.store.subs {
		if sub.GatewayName != gatewayName || sub.GatewayCustomerID != gatewayCustomerID {
			continue
		}
		if sub.Status != subscription.StatusPending {
			continue
		}
		if latest == nil || sub.CreatedAt.After(latest.CreatedAt) {
			latest = sub
		}
	}
	if latest == nil {
		return nil, subscriptionPkg.ErrNotFound
	}
	copied := *latest
	return &copied, nil
}

func (r *memSubRepo) LatestCustomerID(gatewayName string, userID int64) (string, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, sub := range r.store.subs {
		if sub.GatewayName == gatewayName && sub.UserID == userID && sub.GatewayCustomerID != "" {
			return sub.GatewayCustomerID, nil
		}
	}
	return "", subscriptionPkg.ErrNotFound
}

func (r *memSubRepo) Update(sub *subscription.Subscription) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	copied := *sub
	r.store.subs[sub.ID] = &copied
	return nil
}

func (r *memSubRepo) List(filter subscriptionPkg.ListFilter) ([]*subscription.Subscription, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var out []*subscription.Subscription
	for _, sub := range r.store.subs {
		if filter.UserID > 0 && sub.UserID != filter.UserID {
			continue
		}
		if filter.Status != "" && sub.Status != filter.Status {
			continue
		}
		copied := *sub
		out = append(out, &copied)
	}
	return out, nil
}

type memPaymentRepo struct{ store *memStore }

func (r *memPaymentRepo) Create(p *payment.Payment) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	copied := *p
	copied.ID = r.store.nextPaymentID
	r.store.nextPaymentID++
	r.store.payments = append(r.store.payments, &copied)
	p.ID = copied.ID
	return nil
}

func (r *memPaymentRepo) ExistsByTransactionID(subscriptionID int64, transactionID string) (bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, p := range r.store.payments {
		if p.SubscriptionID == subscriptionID && p.TransactionID == transactionID {
			return true, nil
		}
	}
	return false, nil
}

func (r *memPaymentRepo) ListBySubscriptionID(subscriptionID int64) ([]*payment.Payment, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var out []*payment.Payment
	for _, p := range r.store.payments {
		if p.SubscriptionID == subscriptionID {
			copied := *p
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *memPaymentRepo) ListByUserID(userID int64) ([]*payment.Payment, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var out []*payment.Payment
	for _, p := range r.store.payments {
		if p.UserID == userID {
			copied := *p
			out = append(out, &copied)
		}
	}
	return out, nil
}

type memTxManager struct {
	subs *memSubRepo
	pays *memPaymentRepo
}

func (m *memTxManager) Transact(ctx context.Context, fn func(subs subscriptionPkg.SubscriptionRepository, pays subscriptionPkg.PaymentRepository) error) error {
	return fn(m.subs, m.pays)
}

type memPlanRepo struct {
	mu    sync.Mutex
	plans map[int64]*plan.Plan
}

func (r *memPlanRepo) GetByID(id int64) (*plan.Plan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.plans[id]
	if !ok {
		return nil, subscriptionPkg.ErrNotFound
	}
	copied := *p
	return &copied, nil
}

func (r *memPlanRepo) CacheGatewayPriceID(planID int64, gatewayName, priceID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.plans[planID]
	if !ok {
		return subscriptionPkg.ErrNotFound
	}
	switch gatewayName {
	case subscription.GatewayStripe:
		if p.StripePriceID == nil {
			p.StripePriceID = &priceID
		}
	case subscription.GatewayRazorpay:
		if p.RazorpayPlanID == nil {
			p.RazorpayPlanID = &priceID
		}
	}
	return nil
}

var _ = Describe("Engine", func() {
	var (
		ctx       context.Context
		store     *memStore
		subRepo   *memSubRepo
		payRepo   *memPaymentRepo
		planRepo  *memPlanRepo
		bus       *events.EventBus
		engine    *subscriptionPkg.Engine
		published []string
		pubMu     sync.Mutex
	)

	trialPlan := &plan.Plan{ID: 1, Name: "pro-monthly", AmountMinor: 199900, Currency: "INR", Interval: plan.IntervalMonth, TrialDays: 7}
	paidPlan := &plan.Plan{ID: 2, Name: "basic-monthly", AmountMinor: 99900, Currency: "INR", Interval: plan.IntervalMonth, TrialDays: 0}

	recordEvents := func(types ...string) {
		for _, eventType := range types {
			et := eventType
			bus.Subscribe(et, func(ctx context.Context, evt events.Event) error {
				pubMu.Lock()
				published = append(published, et)
				pubMu.Unlock()
				return nil
			})
		}
	}

	publishedTypes := func() []string {
		pubMu.Lock()
		defer pubMu.Unlock()
		return append([]string(nil), published...)
	}

	newPendingSub := func(pl *plan.Plan, gatewaySubID string) *subscription.Subscription {
		id := gatewaySubID
		return store.addSubscription(&subscription.Subscription{
			UserID:                10,
			PlanID:                pl.ID,
			GatewayName:           subscription.GatewayStripe,
			GatewayCustomerID:     "cus_1",
			GatewaySubscriptionID: &id,
			Status:                subscription.StatusPending,
			CreatedAt:             time.Now(),
		})
	}

	reload := func(id int64) *subscription.Subscription {
		sub, err := subRepo.GetByID(id)
		Expect(err).ToNot(HaveOccurred())
		return sub
	}

	BeforeEach(func() {
		ctx = context.Background()
		store = newMemStore()
		subRepo = &memSubRepo{store: store}
		payRepo = &memPaymentRepo{store: store}
		planRepo = &memPlanRepo{plans: map[int64]*plan.Plan{trialPlan.ID: trialPlan, paidPlan.ID: paidPlan}}
		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
		bus = events.NewEventBus(logger)
		published = nil
		tx := &memTxManager{subs: subRepo, pays: payRepo}
		engine = subscriptionPkg.NewEngine(tx, planRepo, bus, logger)
	})

	activatedEvent := func(gatewaySubID string) *gateway.Event {
		next := time.Now().Add(7 * 24 * time.Hour)
		return &gateway.Event{
			Kind:                  gateway.KindSubscriptionActivated,
			GatewayName:           subscription.GatewayStripe,
			GatewaySubscriptionID: gatewaySubID,
			OccurredAt:            time.Now(),
			NextBillingAt:         &next,
		}
	}

	chargedEvent := func(gatewaySubID, txnID string) *gateway.Event {
		next := time.Now().Add(30 * 24 * time.Hour)
		return &gateway.Event{
			Kind:                  gateway.KindSubscriptionCharged,
			GatewayName:           subscription.GatewayStripe,
			GatewaySubscriptionID: gatewaySubID,
			TransactionID:         txnID,
			AmountMinor:           199900,
			Currency:              "INR",
			OccurredAt:            time.Now(),
			NextBillingAt:         &next,
		}
	}

	paymentSucceededEvent := func(gatewaySubID, txnID string) *gateway.Event {
		return &gateway.Event{
			Kind:                  gateway.KindPaymentSucceeded,
			GatewayName:           subscription.GatewayStripe,
			GatewaySubscriptionID: gatewaySubID,
			TransactionID:         txnID,
			AmountMinor:           199900,
			Currency:              "INR",
			OccurredAt:            time.Now(),
		}
	}

	Describe("activation", func() {
		It("moves a pending subscription on a trial plan to trialing", func() {
			recordEvents(events.EventTypeSubscriptionActivated)
			sub := newPendingSub(trialPlan, "sub_t1")

			Expect(engine.Apply(ctx, activatedEvent("sub_t1"))).To(Succeed())

			got := reload(sub.ID)
			Expect(got.Status).To(Equal(subscription.StatusTrialing))
			Expect(got.StartedAt).ToNot(BeNil())
			Expect(got.TrialEndAt).ToNot(BeNil())
			Expect(publishedTypes()).To(ContainElement(events.EventTypeSubscriptionActivated))
		})

		It("moves a pending subscription on a plan without trial straight to active", func() {
			sub := newPendingSub(paidPlan, "sub_p1")

			Expect(engine.Apply(ctx, activatedEvent("sub_p1"))).To(Succeed())

			Expect(reload(sub.ID).Status).To(Equal(subscription.StatusActive))
		})

		It("keeps the charge-derived state when activation arrives late", func() {
			sub := newPendingSub(trialPlan, "sub_t2")

			Expect(engine.Apply(ctx, chargedEvent("sub_t2", "pi_1"))).To(Succeed())
			afterCharge := reload(sub.ID)
			Expect(afterCharge.Status).To(Equal(subscription.StatusActive))
			chargeBilling := afterCharge.NextBillingAt
			Expect(chargeBilling).ToNot(BeNil())

			Expect(engine.Apply(ctx, activatedEvent("sub_t2"))).To(Succeed())
			afterActivation := reload(sub.ID)
			Expect(afterActivation.Status).To(Equal(subscription.StatusActive))
			Expect(afterActivation.NextBillingAt.Unix()).To(Equal(chargeBilling.Unix()))
		})
	})

	Describe("charges", func() {
		It("records exactly one payment for redelivered charge events", func() {
			sub := newPendingSub(paidPlan, "sub_p2")
			ev := chargedEvent("sub_p2", "pi_dup")

			Expect(engine.Apply(ctx, ev)).To(Succeed())
			Expect(engine.Apply(ctx, ev)).To(Succeed())
			Expect(engine.Apply(ctx, ev)).To(Succeed())

			rows, err := payRepo.ListBySubscriptionID(sub.ID)
			Expect(err).ToNot(HaveOccurred())
			Expect(rows).To(HaveLen(1))
			Expect(rows[0].TransactionID).To(Equal("pi_dup"))
			Expect(rows[0].AmountMinor).To(Equal(int64(199900)))
		})

		It("records distinct payments for distinct transaction ids", func() {
			sub := newPendingSub(paidPlan, "sub_p3")

			Expect(engine.Apply(ctx, chargedEvent("sub_p3", "pi_1"))).To(Succeed())
			Expect(engine.Apply(ctx, chargedEvent("sub_p3", "pi_2"))).To(Succeed())

			rows, err := payRepo.ListBySubscriptionID(sub.ID)
			Expect(err).ToNot(HaveOccurred())
			Expect(rows).To(HaveLen(2))
		})

		It("enters the trial window when the first payment confirmation lands on a trial plan", func() {
			sub := newPendingSub(trialPlan, "sub_t8")

			Expect(engine.Apply(ctx, paymentSucceededEvent("sub_t8", "pi_t8"))).To(Succeed())

			got := reload(sub.ID)
			Expect(got.Status).To(Equal(subscription.StatusTrialing))
			Expect(got.StartedAt).ToNot(BeNil())
			Expect(got.TrialEndAt).ToNot(BeNil())

			rows, err := payRepo.ListBySubscriptionID(sub.ID)
			Expect(err).ToNot(HaveOccurred())
			Expect(rows).To(HaveLen(1))
			Expect(rows[0].TransactionID).To(Equal("pi_t8"))
		})

		It("activates a plan without trial on the first payment confirmation", func() {
			sub := newPendingSub(paidPlan, "sub_p8")

			Expect(engine.Apply(ctx, paymentSucceededEvent("sub_p8", "pi_p8"))).To(Succeed())

			Expect(reload(sub.ID).Status).To(Equal(subscription.StatusActive))
			rows, err := payRepo.ListBySubscriptionID(sub.ID)
			Expect(err).ToNot(HaveOccurred())
			Expect(rows).To(HaveLen(1))
		})

		It("converts a trialing subscription to active on first charge", func() {
			sub := newPendingSub(trialPlan, "sub_t3")
			Expect(engine.Apply(ctx, activatedEvent("sub_t3"))).To(Succeed())
			Expect(reload(sub.ID).Status).To(Equal(subscription.StatusTrialing))

			Expect(engine.Apply(ctx, chargedEvent("sub_t3", "pi_9"))).To(Succeed())
			Expect(reload(sub.ID).Status).To(Equal(subscription.StatusActive))
		})

		It("recovers a past-due subscription when a charge lands", func() {
			sub := newPendingSub(paidPlan, "sub_p4")
			Expect(engine.Apply(ctx, activatedEvent("sub_p4"))).To(Succeed())
			Expect(engine.Apply(ctx, &gateway.Event{
				Kind:                  gateway.KindPaymentFailed,
				GatewayName:           subscription.GatewayStripe,
				GatewaySubscriptionID: "sub_p4",
				TransactionID:         "pi_fail",
				OccurredAt:            time.Now(),
			})).To(Succeed())
			Expect(reload(sub.ID).Status).To(Equal(subscription.StatusPastDue))

			Expect(engine.Apply(ctx, chargedEvent("sub_p4", "pi_retry"))).To(Succeed())
			Expect(reload(sub.ID).Status).To(Equal(subscription.StatusActive))
		})

		It("skips the payment ledger when the event carries no transaction id", func() {
			sub := newPendingSub(paidPlan, "sub_p5")
			ev := chargedEvent("sub_p5", "")

			Expect(engine.Apply(ctx, ev)).To(Succeed())

			rows, err := payRepo.ListBySubscriptionID(sub.ID)
			Expect(err).ToNot(HaveOccurred())
			Expect(rows).To(BeEmpty())
			Expect(reload(sub.ID).Status).To(Equal(subscription.StatusActive))
		})
	})

	Describe("cancellation", func() {
		It("marks the subscription canceled and ignores everything after", func() {
			recordEvents(events.EventTypeSubscriptionCanceled)
			sub := newPendingSub(paidPlan, "sub_p6")
			Expect(engine.Apply(ctx, activatedEvent("sub_p6"))).To(Succeed())

			Expect(engine.Apply(ctx, &gateway.Event{
				Kind:                  gateway.KindSubscriptionCanceled,
				GatewayName:           subscription.GatewayStripe,
				GatewaySubscriptionID: "sub_p6",
				OccurredAt:            time.Now(),
			})).To(Succeed())

			got := reload(sub.ID)
			Expect(got.Status).To(Equal(subscription.StatusCanceled))
			Expect(got.CanceledAt).ToNot(BeNil())
			Expect(publishedTypes()).To(ContainElement(events.EventTypeSubscriptionCanceled))

			// late charge after cancellation must not resurrect the row or
			// add ledger entries
			Expect(engine.Apply(ctx, chargedEvent("sub_p6", "pi_late"))).To(Succeed())
			Expect(reload(sub.ID).Status).To(Equal(subscription.StatusCanceled))
			rows, err := payRepo.ListBySubscriptionID(sub.ID)
			Expect(err).ToNot(HaveOccurred())
			Expect(rows).To(BeEmpty())
		})
	})

	Describe("resolution", func() {
		It("falls back to the latest pending subscription for the customer", func() {
			sub := newPendingSub(trialPlan, "sub_unlinked")

			Expect(engine.Apply(ctx, &gateway.Event{
				Kind:              gateway.KindSetupSucceeded,
				GatewayName:       subscription.GatewayStripe,
				GatewayCustomerID: "cus_1",
				OccurredAt:        time.Now(),
			})).To(Succeed())

			Expect(reload(sub.ID).Status).To(Equal(subscription.StatusTrialing))
		})

		It("does not fall back to another pending row when the event names a subscription id", func() {
			sub := newPendingSub(trialPlan, "sub_known")

			ev := chargedEvent("sub_not_on_file", "pi_stray")
			ev.GatewayCustomerID = "cus_1"
			Expect(engine.Apply(ctx, ev)).To(HaveOccurred())

			Expect(reload(sub.ID).Status).To(Equal(subscription.StatusPending))
			rows, err := payRepo.ListBySubscriptionID(sub.ID)
			Expect(err).ToNot(HaveOccurred())
			Expect(rows).To(BeEmpty())
		})

		It("returns an error for an unknown subscription so the gateway redelivers", func() {
			err := engine.Apply(ctx, activatedEvent("sub_missing"))
			Expect(err).To(HaveOccurred())
		})

		It("silently skips events already normalized to ignored", func() {
			Expect(engine.Apply(ctx, &gateway.Event{
				Kind:        gateway.KindIgnored,
				GatewayName: subscription.GatewayStripe,
			})).To(Succeed())
		})
	})

	Describe("concurrency", func() {
		It("applies concurrent duplicate charges exactly once", func() {
			sub := newPendingSub(paidPlan, "sub_conc")
			ev := chargedEvent("sub_conc", "pi_conc")

			var wg sync.WaitGroup
			for i := 0; i < 8; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					defer GinkgoRecover()
					Expect(engine.Apply(ctx, ev)).To(Succeed())
				}()
			}
			wg.Wait()

			rows, err := payRepo.ListBySubscriptionID(sub.ID)
			Expect(err).ToNot(HaveOccurred())
			Expect(rows).To(HaveLen(1))
		})
	})

	Describe("full lifecycle", func() {
		It("walks a trial plan from pending through trial, charge, failure and recovery", func() {
			sub := newPendingSub(trialPlan, "sub_life")

			Expect(engine.Apply(ctx, activatedEvent("sub_life"))).To(Succeed())
			Expect(reload(sub.ID).Status).To(Equal(subscription.StatusTrialing))

			Expect(engine.Apply(ctx, chargedEvent("sub_life", "pi_first"))).To(Succeed())
			Expect(reload(sub.ID).Status).To(Equal(subscription.StatusActive))

			Expect(engine.Apply(ctx, &gateway.Event{
				Kind:                  gateway.KindPaymentFailed,
				GatewayName:           subscription.GatewayStripe,
				GatewaySubscriptionID: "sub_life",
				TransactionID:         "pi_second",
				OccurredAt:            time.Now(),
			})).To(Succeed())
			Expect(reload(sub.ID).Status).To(Equal(subscription.StatusPastDue))

			Expect(engine.Apply(ctx, chargedEvent("sub_life", "pi_second_retry"))).To(Succeed())
			Expect(reload(sub.ID).Status).To(Equal(subscription.StatusActive))

			rows, err := payRepo.ListBySubscriptionID(sub.ID)
			Expect(err).ToNot(HaveOccurred())
			Expect(rows).To(HaveLen(2))
		})
	})
})
