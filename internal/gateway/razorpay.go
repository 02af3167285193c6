package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	internal "github.com/frahmantamala/subscription-billing/internal"
	"github.com/frahmantamala/subscription-billing/internal/core/datamodel/plan"
	"github.com/frahmantamala/subscription-billing/internal/core/datamodel/subscription"
	"github.com/frahmantamala/subscription-billing/internal/core/datamodel/user"
)

// RazorpayClient talks to the Razorpay-like provider's REST API directly:
// basic auth over four endpoints, no SDK involved.
type RazorpayClient struct {
	cfg         internal.RazorpayConfig
	httpClient  *http.Client
	callTimeout time.Duration
	logger      *slog.Logger
}

func NewRazorpayClient(cfg internal.RazorpayConfig, callTimeout time.Duration, logger *slog.Logger) *RazorpayClient {
	if callTimeout <= 0 {
		callTimeout = 15 * time.Second
	}

	return &RazorpayClient{
		cfg:         cfg,
		httpClient:  &http.Client{Timeout: callTimeout},
		callTimeout: callTimeout,
		logger:      logger,
	}
}

func (c *RazorpayClient) Name() string {
	return subscription.GatewayRazorpay
}

func (c *RazorpayClient) SignatureHeader() string {
	return "X-Razorpay-Signature"
}

func (c *RazorpayClient) doRequest(ctx context.Context, method, path string, payload interface{}, out interface{}) error {
	var body io.Reader
	if payload != nil {
		jsonData, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewBuffer(jsonData)
	}

	ctx, cancel := internal.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.SetBasicAuth(c.cfg.KeyID, c.cfg.KeySecret)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("razorpay API returned status %d: %s", resp.StatusCode, string(respBody))
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}

	return nil
}

func (c *RazorpayClient) EnsureCustomer(ctx context.Context, u *user.User, existingCustomerID string) (CustomerRef, error) {
	if existingCustomerID != "" {
		return CustomerRef{ID: existingCustomerID}, nil
	}

	payload := map[string]interface{}{
		"name":          u.Name,
		"email":         u.Email,
		"fail_existing": "0",
		"notes": map[string]string{
			"user_id": strconv.FormatInt(u.ID, 10),
		},
	}

	var created struct {
		ID string `json:"id"`
	}
	if err := c.doRequest(ctx, http.MethodPost, "/v1/customers", payload, &created); err != nil {
		return CustomerRef{}, NewGatewayError(c.Name(), "create customer", err)
	}

	c.logger.Info("razorpay customer created", "customer_id", created.ID, "user_id", u.ID)
	return CustomerRef{ID: created.ID}, nil
}

// ensurePlan mirrors the Stripe adapter's lazy price creation: the remote
// plan object is created on first use and its id reported back for caching.
func (c *RazorpayClient) ensurePlan(ctx context.Context, p *plan.Plan) (string, error) {
	if cached := p.CachedGatewayPriceID(c.Name()); cached != "" {
		return cached, nil
	}

	period := "monthly"
	if p.Interval == plan.IntervalYear {
		period = "yearly"
	}

	payload := map[string]interface{}{
		"period":   period,
		"interval": 1,
		"item": map[string]interface{}{
			"name":     p.Name,
			"amount":   p.AmountMinor,
			"currency": p.Currency,
		},
		"notes": map[string]string{
			"plan_id": strconv.FormatInt(p.ID, 10),
		},
	}

	var created struct {
		ID string `json:"id"`
	}
	if err := c.doRequest(ctx, http.MethodPost, "/v1/plans", payload, &created); err != nil {
		return "", NewGatewayError(c.Name(), "create plan", err)
	}

	c.logger.Info("razorpay plan created", "remote_plan_id", created.ID, "plan_id", p.ID)
	return created.ID, nil
}

type razorpaySubscriptionCreated struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	ShortURL string `json:"short_url"`
	StartAt  int64  `json:"start_at"`
}

func (c *RazorpayClient) createSubscription(ctx context.Context, u *user.User, p *plan.Plan, customerID string, startAt int64) (*SubscriptionIntent, error) {
	planID, err := c.ensurePlan(ctx, p)
	if err != nil {
		return nil, err
	}

	payload := map[string]interface{}{
		"plan_id":         planID,
		"customer_id":     customerID,
		"total_count":     12,
		"customer_notify": 0,
		"notes": map[string]string{
			"user_id": strconv.FormatInt(u.ID, 10),
		},
	}
	if startAt > 0 {
		payload["start_at"] = startAt
	}

	var created razorpaySubscriptionCreated
	if err := c.doRequest(ctx, http.MethodPost, "/v1/subscriptions", payload, &created); err != nil {
		return nil, NewGatewayError(c.Name(), "create subscription", err)
	}

	var trialEnd *time.Time
	if startAt > 0 {
		t := time.Unix(startAt, 0)
		trialEnd = &t
	}

	c.logger.Info("razorpay subscription created",
		"subscription_id", created.ID,
		"customer_id", customerID,
		"status", created.Status)

	// The checkout widget takes the subscription id itself; that is this
	// provider's handshake artifact.
	return &SubscriptionIntent{
		GatewayName:           c.Name(),
		GatewaySubscriptionID: created.ID,
		CustomerID:            customerID,
		HandshakeArtifact:     created.ID,
		PriceID:               planID,
		TrialEndAt:            trialEnd,
	}, nil
}

func (c *RazorpayClient) StartTrialSubscription(ctx context.Context, u *user.User, p *plan.Plan, customerID string, trialDays int) (*SubscriptionIntent, error) {
	startAt := time.Now().AddDate(0, 0, trialDays).Unix()
	return c.createSubscription(ctx, u, p, customerID, startAt)
}

func (c *RazorpayClient) StartImmediateSubscription(ctx context.Context, u *user.User, p *plan.Plan, customerID string) (*SubscriptionIntent, error) {
	return c.createSubscription(ctx, u, p, customerID, 0)
}

func (c *RazorpayClient) Cancel(ctx context.Context, gatewaySubscriptionID string) bool {
	payload := map[string]interface{}{
		"cancel_at_cycle_end": 1,
	}

	path := fmt.Sprintf("/v1/subscriptions/%s/cancel", gatewaySubscriptionID)
	if err := c.doRequest(ctx, http.MethodPost, path, payload, nil); err != nil {
		c.logger.Error("razorpay cancel failed",
			"subscription_id", gatewaySubscriptionID,
			"error", err)
		return false
	}

	c.logger.Info("razorpay subscription set to cancel at cycle end",
		"subscription_id", gatewaySubscriptionID)
	return true
}

// VerifyWebhookSignature checks the HMAC-SHA256 hex digest of the raw body
// against the signature header in constant time.
func (c *RazorpayClient) VerifyWebhookSignature(rawBody []byte, signatureHeader string) bool {
	if signatureHeader == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(c.cfg.WebhookSecret))
	mac.Write(rawBody)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(signatureHeader)) {
		c.logger.Warn("razorpay webhook signature rejected")
		return false
	}
	return true
}

func (c *RazorpayClient) ParseWebhook(rawBody []byte) (*Event, error) {
	return normalizeRazorpayEvent(c.Name(), rawBody)
}
