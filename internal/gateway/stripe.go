package gateway

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v75"
	"github.com/stripe/stripe-go/v75/client"
	"github.com/stripe/stripe-go/v75/webhook"

	internal "github.com/frahmantamala/subscription-billing/internal"
	"github.com/frahmantamala/subscription-billing/internal/core/datamodel/plan"
	"github.com/frahmantamala/subscription-billing/internal/core/datamodel/subscription"
	"github.com/frahmantamala/subscription-billing/internal/core/datamodel/user"
)

// StripeClient adapts the Stripe-like provider through the official SDK.
// The API key is injected at construction; nothing reads it ambiently.
type StripeClient struct {
	api         *client.API
	cfg         internal.StripeConfig
	callTimeout time.Duration
	logger      *slog.Logger
}

func NewStripeClient(cfg internal.StripeConfig, callTimeout time.Duration, logger *slog.Logger) *StripeClient {
	api := &client.API{}
	api.Init(cfg.SecretKey, nil)

	if callTimeout <= 0 {
		callTimeout = 15 * time.Second
	}

	return &StripeClient{
		api:         api,
		cfg:         cfg,
		callTimeout: callTimeout,
		logger:      logger,
	}
}

func (c *StripeClient) Name() string {
	return subscription.GatewayStripe
}

func (c *StripeClient) SignatureHeader() string {
	return "Stripe-Signature"
}

func (c *StripeClient) EnsureCustomer(ctx context.Context, u *user.User, existingCustomerID string) (CustomerRef, error) {
	if existingCustomerID != "" {
		return CustomerRef{ID: existingCustomerID}, nil
	}

	ctx, cancel := internal.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	params := &stripe.CustomerParams{
		Params: stripe.Params{Context: ctx},
		Email:  stripe.String(u.Email),
		Name:   stripe.String(u.Name),
	}
	params.AddMetadata("user_id", strconv.FormatInt(u.ID, 10))

	cust, err := c.api.Customers.New(params)
	if err != nil {
		return CustomerRef{}, NewGatewayError(c.Name(), "create customer", err)
	}

	c.logger.Info("stripe customer created", "customer_id", cust.ID, "user_id", u.ID)
	return CustomerRef{ID: cust.ID}, nil
}

// ensurePrice returns the cached remote price id for the plan, creating the
// remote price lazily on first use. The caller persists the returned id back
// onto the Plan row; a concurrent duplicate create is harmless.
func (c *StripeClient) ensurePrice(ctx context.Context, p *plan.Plan) (string, error) {
	if cached := p.CachedGatewayPriceID(c.Name()); cached != "" {
		return cached, nil
	}

	params := &stripe.PriceParams{
		Params:     stripe.Params{Context: ctx},
		Currency:   stripe.String(strings.ToLower(p.Currency)),
		UnitAmount: stripe.Int64(p.AmountMinor),
		Recurring: &stripe.PriceRecurringParams{
			Interval: stripe.String(p.Interval),
		},
		ProductData: &stripe.PriceProductDataParams{
			Name: stripe.String(p.Name),
		},
	}
	params.AddMetadata("plan_id", strconv.FormatInt(p.ID, 10))

	price, err := c.api.Prices.New(params)
	if err != nil {
		return "", NewGatewayError(c.Name(), "create price", err)
	}

	c.logger.Info("stripe price created", "price_id", price.ID, "plan_id", p.ID)
	return price.ID, nil
}

func (c *StripeClient) StartTrialSubscription(ctx context.Context, u *user.User, p *plan.Plan, customerID string, trialDays int) (*SubscriptionIntent, error) {
	ctx, cancel := internal.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	priceID, err := c.ensurePrice(ctx, p)
	if err != nil {
		return nil, err
	}

	params := &stripe.SubscriptionParams{
		Params:   stripe.Params{Context: ctx},
		Customer: stripe.String(customerID),
		Items: []*stripe.SubscriptionItemsParams{
			{Price: stripe.String(priceID)},
		},
		TrialPeriodDays: stripe.Int64(int64(trialDays)),
		PaymentBehavior: stripe.String("default_incomplete"),
		PaymentSettings: &stripe.SubscriptionPaymentSettingsParams{
			SaveDefaultPaymentMethod: stripe.String("on_subscription"),
		},
	}
	params.AddMetadata("user_id", strconv.FormatInt(u.ID, 10))
	params.AddExpand("pending_setup_intent")

	sub, err := c.api.Subscriptions.New(params)
	if err != nil {
		return nil, NewGatewayError(c.Name(), "create trial subscription", err)
	}

	// During a trial no charge happens up front; the handshake artifact is
	// the setup intent secret that saves the payment mandate for later.
	var artifact string
	if sub.PendingSetupIntent != nil {
		artifact = sub.PendingSetupIntent.ClientSecret
	}

	var trialEnd *time.Time
	if sub.TrialEnd > 0 {
		t := time.Unix(sub.TrialEnd, 0)
		trialEnd = &t
	}

	c.logger.Info("stripe trial subscription created",
		"subscription_id", sub.ID,
		"customer_id", customerID,
		"trial_days", trialDays)

	return &SubscriptionIntent{
		GatewayName:           c.Name(),
		GatewaySubscriptionID: sub.ID,
		CustomerID:            customerID,
		HandshakeArtifact:     artifact,
		PriceID:               priceID,
		TrialEndAt:            trialEnd,
	}, nil
}

func (c *StripeClient) StartImmediateSubscription(ctx context.Context, u *user.User, p *plan.Plan, customerID string) (*SubscriptionIntent, error) {
	ctx, cancel := internal.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	priceID, err := c.ensurePrice(ctx, p)
	if err != nil {
		return nil, err
	}

	params := &stripe.SubscriptionParams{
		Params:   stripe.Params{Context: ctx},
		Customer: stripe.String(customerID),
		Items: []*stripe.SubscriptionItemsParams{
			{Price: stripe.String(priceID)},
		},
		PaymentBehavior: stripe.String("default_incomplete"),
		PaymentSettings: &stripe.SubscriptionPaymentSettingsParams{
			SaveDefaultPaymentMethod: stripe.String("on_subscription"),
		},
	}
	params.AddMetadata("user_id", strconv.FormatInt(u.ID, 10))
	params.AddExpand("latest_invoice.payment_intent")

	sub, err := c.api.Subscriptions.New(params)
	if err != nil {
		return nil, NewGatewayError(c.Name(), "create subscription", err)
	}

	var artifact string
	if sub.LatestInvoice != nil && sub.LatestInvoice.PaymentIntent != nil {
		artifact = sub.LatestInvoice.PaymentIntent.ClientSecret
	}
	if artifact == "" {
		return nil, NewGatewayError(c.Name(), "create subscription", errors.New("no payment intent client secret on latest invoice"))
	}

	c.logger.Info("stripe subscription created",
		"subscription_id", sub.ID,
		"customer_id", customerID)

	return &SubscriptionIntent{
		GatewayName:           c.Name(),
		GatewaySubscriptionID: sub.ID,
		CustomerID:            customerID,
		HandshakeArtifact:     artifact,
		PriceID:               priceID,
	}, nil
}

// Cancel requests cancellation at period end. A remote failure reports false
// instead of an error: local state cancels regardless and remote state is
// reconciled by a later webhook or manual retry.
func (c *StripeClient) Cancel(ctx context.Context, gatewaySubscriptionID string) bool {
	ctx, cancel := internal.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	params := &stripe.SubscriptionParams{
		Params:            stripe.Params{Context: ctx},
		CancelAtPeriodEnd: stripe.Bool(true),
	}

	if _, err := c.api.Subscriptions.Update(gatewaySubscriptionID, params); err != nil {
		c.logger.Error("stripe cancel failed",
			"subscription_id", gatewaySubscriptionID,
			"error", err)
		return false
	}

	c.logger.Info("stripe subscription set to cancel at period end",
		"subscription_id", gatewaySubscriptionID)
	return true
}

func (c *StripeClient) VerifyWebhookSignature(rawBody []byte, signatureHeader string) bool {
	if err := webhook.ValidatePayload(rawBody, signatureHeader, c.cfg.WebhookSecret); err != nil {
		c.logger.Warn("stripe webhook signature rejected", "error", err)
		return false
	}
	return true
}

func (c *StripeClient) ParseWebhook(rawBody []byte) (*Event, error) {
	return normalizeStripeEvent(c.Name(), rawBody)
}
