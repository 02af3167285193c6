package subscription

import (
	"context"
	"log/slog"
	"time"

	errors "github.com/frahmantamala/subscription-billing/internal"
	"github.com/frahmantamala/subscription-billing/internal/core/datamodel/subscription"
	"github.com/frahmantamala/subscription-billing/internal/core/events"
	"github.com/frahmantamala/subscription-billing/internal/gateway"
)

// Service drives the outbound half of the billing flow: opening subscriptions
// against a gateway and coordinating cancellation. Inbound webhook state
// changes belong to Engine.
type Service struct {
	subs     SubscriptionRepository
	payments PaymentRepository
	plans    PlanRepository
	users    UserRepository
	gateways *gateway.Registry
	bus      *events.EventBus
	logger   *slog.Logger
	now      func() time.Time
}

func NewService(
	subs SubscriptionRepository,
	payments PaymentRepository,
	plans PlanRepository,
	users UserRepository,
	gateways *gateway.Registry,
	bus *events.EventBus,
	logger *slog.Logger,
) *Service {
	return &Service{
		subs:     subs,
		payments: payments,
		plans:    plans,
		users:    users,
		gateways: gateways,
		bus:      bus,
		logger:   logger,
		now:      time.Now,
	}
}

// Begin opens a subscription with the requested gateway. The local pending
// row is written only after the remote subscription exists, so the webhook
// that follows always finds a row to attach to; the handshake artifact is
// released to the caller last.
func (s *Service) Begin(ctx context.Context, req *BeginSubscriptionRequest) (*BeginSubscriptionResponse, error) {
	if req.Gateway == "" {
		req.Gateway = s.gateways.DefaultName()
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	u, err := s.users.GetByID(req.UserID)
	if err != nil {
		if err == ErrNotFound {
			return nil, errors.ErrUserNotFound
		}
		return nil, errors.NewInternalError("failed to load user", err)
	}

	pl, err := s.plans.GetByID(req.PlanID)
	if err != nil {
		if err == ErrNotFound {
			return nil, errors.ErrPlanNotFound
		}
		return nil, errors.NewInternalError("failed to load plan", err)
	}

	client, err := s.gateways.Get(req.Gateway)
	if err != nil {
		return nil, errors.ErrInvalidGateway
	}

	existingCustomerID, err := s.subs.LatestCustomerID(req.Gateway, u.ID)
	if err != nil && err != ErrNotFound {
		return nil, errors.NewInternalError("failed to look up gateway customer", err)
	}

	customer, err := client.EnsureCustomer(ctx, u, existingCustomerID)
	if err != nil {
		s.logger.Error("gateway customer provisioning failed",
			"gateway", req.Gateway, "user_id", u.ID, "error", err)
		return nil, errors.NewGatewayError(err)
	}

	var intent *gateway.SubscriptionIntent
	if pl.HasTrial() {
		intent, err = client.StartTrialSubscription(ctx, u, pl, customer.ID, pl.TrialDays)
	} else {
		intent, err = client.StartImmediateSubscription(ctx, u, pl, customer.ID)
	}
	if err != nil {
		s.logger.Error("gateway subscription creation failed",
			"gateway", req.Gateway, "user_id", u.ID, "plan_id", pl.ID, "error", err)
		return nil, errors.NewGatewayError(err)
	}

	now := s.now()
	remoteID := intent.GatewaySubscriptionID
	sub := &subscription.Subscription{
		UserID:                u.ID,
		PlanID:                pl.ID,
		GatewayName:           req.Gateway,
		GatewayCustomerID:     customer.ID,
		GatewaySubscriptionID: &remoteID,
		Status:                subscription.StatusPending,
		TrialEndAt:            intent.TrialEndAt,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if err := s.subs.Create(sub); err != nil {
		// remote side already exists; the id in this log line is the only
		// handle an operator has to clean it up
		s.logger.Error("orphaned gateway subscription: local persist failed",
			"gateway", req.Gateway,
			"gateway_subscription_id", remoteID,
			"gateway_customer_id", customer.ID,
			"user_id", u.ID,
			"error", err)
		return nil, errors.NewInternalError("failed to persist subscription", err)
	}

	if intent.PriceID != "" && pl.CachedGatewayPriceID(req.Gateway) == "" {
		if cacheErr := s.plans.CacheGatewayPriceID(pl.ID, req.Gateway, intent.PriceID); cacheErr != nil {
			s.logger.Warn("failed to cache gateway price id",
				"gateway", req.Gateway, "plan_id", pl.ID, "error", cacheErr)
		}
	}

	s.logger.Info("subscription opened",
		"subscription_id", sub.ID,
		"gateway", req.Gateway,
		"gateway_subscription_id", remoteID,
		"user_id", u.ID,
		"plan_id", pl.ID,
		"trial", pl.HasTrial())

	return &BeginSubscriptionResponse{
		SubscriptionID:        sub.ID,
		Status:                sub.Status,
		Gateway:               sub.GatewayName,
		GatewaySubscriptionID: remoteID,
		HandshakeArtifact:     intent.HandshakeArtifact,
		TrialEndAt:            intent.TrialEndAt,
	}, nil
}

// Cancel stops a subscription. The local row always ends up canceled even
// when the remote call fails; billing against a subscription the user asked
// to stop is the one outcome this method may not produce.
func (s *Service) Cancel(ctx context.Context, id int64) (*CancelSubscriptionResponse, error) {
	sub, err := s.subs.GetByID(id)
	if err != nil {
		if err == ErrNotFound {
			return nil, errors.ErrSubscriptionNotFound
		}
		return nil, errors.NewInternalError("failed to load subscription", err)
	}

	if sub.IsTerminal() {
		return &CancelSubscriptionResponse{
			SubscriptionID:        sub.ID,
			Status:                sub.Status,
			CanceledAt:            sub.CanceledAt,
			RemoteCancelSucceeded: true,
		}, nil
	}

	remoteOK := true
	if remoteID := sub.GatewaySubID(); remoteID != "" {
		client, gerr := s.gateways.Get(sub.GatewayName)
		if gerr != nil {
			remoteOK = false
		} else {
			remoteOK = client.Cancel(ctx, remoteID)
		}
	}

	now := s.now()
	sub.Status = subscription.StatusCanceled
	sub.CanceledAt = &now
	sub.UpdatedAt = now
	if err := s.subs.Update(sub); err != nil {
		return nil, errors.NewInternalError("failed to persist cancellation", err)
	}

	if !remoteOK {
		s.logger.Error("remote cancellation failed, local state canceled anyway",
			"subscription_id", sub.ID,
			"gateway", sub.GatewayName,
			"gateway_subscription_id", sub.GatewaySubID())
	}

	evt := events.NewSubscriptionCanceledEvent(sub.ID, sub.UserID, sub.GatewayName)
	if pubErr := s.bus.Publish(ctx, evt); pubErr != nil {
		s.logger.Error("failed to publish cancellation event",
			"subscription_id", sub.ID, "error", pubErr)
	}

	resp := &CancelSubscriptionResponse{
		SubscriptionID:        sub.ID,
		Status:                sub.Status,
		CanceledAt:            sub.CanceledAt,
		RemoteCancelSucceeded: remoteOK,
	}
	if !remoteOK {
		resp.Notice = "subscription canceled locally; provider-side cancellation is still pending and will be retried by support tooling"
	}
	return resp, nil
}

func (s *Service) GetByID(ctx context.Context, id int64) (*SubscriptionResponse, error) {
	sub, err := s.subs.GetByID(id)
	if err != nil {
		if err == ErrNotFound {
			return nil, errors.ErrSubscriptionNotFound
		}
		return nil, errors.NewInternalError("failed to load subscription", err)
	}
	return ToSubscriptionResponse(sub), nil
}

func (s *Service) List(ctx context.Context, filter ListFilter) ([]*SubscriptionResponse, error) {
	rows, err := s.subs.List(filter)
	if err != nil {
		return nil, errors.NewInternalError("failed to list subscriptions", err)
	}
	out := make([]*SubscriptionResponse, 0, len(rows))
	for _, sub := range rows {
		out = append(out, ToSubscriptionResponse(sub))
	}
	return out, nil
}

func (s *Service) ListPayments(ctx context.Context, subscriptionID int64) ([]*PaymentResponse, error) {
	if _, err := s.subs.GetByID(subscriptionID); err != nil {
		if err == ErrNotFound {
			return nil, errors.ErrSubscriptionNotFound
		}
		return nil, errors.NewInternalError("failed to load subscription", err)
	}
	rows, err := s.payments.ListBySubscriptionID(subscriptionID)
	if err != nil {
		return nil, errors.NewInternalError("failed to list payments", err)
	}
	return ToPaymentResponses(rows), nil
}

func (s *Service) ListUserPayments(ctx context.Context, userID int64) ([]*PaymentResponse, error) {
	if _, err := s.users.GetByID(userID); err != nil {
		if err == ErrNotFound {
			return nil, errors.ErrUserNotFound
		}
		return nil, errors.NewInternalError("failed to load user", err)
	}
	rows, err := s.payments.ListByUserID(userID)
	if err != nil {
		return nil, errors.NewInternalError("failed to list payments", err)
	}
	return ToPaymentResponses(rows), nil
}
