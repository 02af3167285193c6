package subscription_test

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"

	"github.com/go-chi/chi"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	apperrors "github.com/frahmantamala/subscription-billing/internal"
	"github.com/frahmantamala/subscription-billing/internal/core/datamodel/subscription"
	"github.com/frahmantamala/subscription-billing/internal/gateway"
	subscriptionPkg "github.com/frahmantamala/subscription-billing/internal/subscription"
	"github.com/frahmantamala/subscription-billing/internal/transport"
)

type stubReconciler struct {
	applied  []*gateway.Event
	applyErr error
}

func (s *stubReconciler) Apply(ctx context.Context, ev *gateway.Event) error {
	s.applied = append(s.applied, ev)
	return s.applyErr
}

var _ = Describe("WebhookHandler", func() {
	var (
		router     *chi.Mux
		stub       *stubGatewayClient
		reconciler *stubReconciler
	)

	post := func(path, body, signature string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
		if signature != "" {
			req.Header.Set("X-Stub-Signature", signature)
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	BeforeEach(func() {
		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
		stub = &stubGatewayClient{
			name: subscription.GatewayStripe,
			parsed: &gateway.Event{
				Kind:                  gateway.KindSubscriptionActivated,
				GatewayName:           subscription.GatewayStripe,
				GatewaySubscriptionID: "sub_1",
			},
		}
		registry := gateway.NewRegistry()
		registry.Register(stub)

		reconciler = &stubReconciler{}
		handler := subscriptionPkg.NewWebhookHandler(transport.NewBaseHandler(logger), registry, reconciler)

		router = chi.NewRouter()
		router.Post("/webhooks/{gateway}", handler.HandleWebhook)
	})

	It("processes a verified event and returns 200", func() {
		rec := post("/webhooks/stripe", `{"some":"payload"}`, "sig")
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(ContainSubstring("processed"))
		Expect(reconciler.applied).To(HaveLen(1))
		Expect(reconciler.applied[0].GatewaySubscriptionID).To(Equal("sub_1"))
	})

	It("returns 404 for an unregistered gateway", func() {
		rec := post("/webhooks/braintree", `{}`, "sig")
		Expect(rec.Code).To(Equal(http.StatusNotFound))
		Expect(reconciler.applied).To(BeEmpty())
	})

	It("rejects an invalid signature without touching the engine", func() {
		stub.verifyFail = true
		rec := post("/webhooks/stripe", `{}`, "bad")
		Expect(rec.Code).To(Equal(http.StatusUnauthorized))
		Expect(reconciler.applied).To(BeEmpty())
	})

	It("acknowledges ignored events without invoking the engine", func() {
		stub.parsed = &gateway.Event{Kind: gateway.KindIgnored, GatewayName: subscription.GatewayStripe}
		rec := post("/webhooks/stripe", `{}`, "sig")
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(ContainSubstring("ignored"))
		Expect(reconciler.applied).To(BeEmpty())
	})

	It("maps a missing subscription to a retryable non-2xx response", func() {
		reconciler.applyErr = apperrors.ErrSubscriptionNotFound
		rec := post("/webhooks/stripe", `{}`, "sig")
		Expect(rec.Code).To(Equal(http.StatusNotFound))
	})

	It("returns 500 for unexpected reconciliation failures", func() {
		reconciler.applyErr = context.DeadlineExceeded
		rec := post("/webhooks/stripe", `{}`, "sig")
		Expect(rec.Code).To(Equal(http.StatusInternalServerError))
	})

	It("rejects malformed payloads with 400", func() {
		stub.parseErr = context.Canceled
		rec := post("/webhooks/stripe", `not json`, "sig")
		Expect(rec.Code).To(Equal(http.StatusBadRequest))
	})
})
