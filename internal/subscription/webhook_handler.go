package subscription

import (
	"context"
	"io"
	"net/http"

	errors "github.com/frahmantamala/subscription-billing/internal"
	"github.com/frahmantamala/subscription-billing/internal/gateway"
	"github.com/frahmantamala/subscription-billing/internal/transport"
	"github.com/frahmantamala/subscription-billing/pkg/logger"
	"github.com/go-chi/chi"
)

// webhook bodies are small JSON documents; anything past this is hostile
const maxWebhookBodyBytes = 65536

type ReconcilerAPI interface {
	Apply(ctx context.Context, ev *gateway.Event) error
}

// WebhookHandler terminates gateway webhook deliveries. The contract with
// the gateways is blunt: 2xx means durably handled (or safely ignored), any
// other status means redeliver later.
type WebhookHandler struct {
	*transport.BaseHandler
	gateways *gateway.Registry
	engine   ReconcilerAPI
}

func NewWebhookHandler(baseHandler *transport.BaseHandler, gateways *gateway.Registry, engine ReconcilerAPI) *WebhookHandler {
	return &WebhookHandler{
		BaseHandler: baseHandler,
		gateways:    gateways,
		engine:      engine,
	}
}

type webhookResponse struct {
	Status string `json:"status"`
}

// HandleWebhook handles POST /api/v1/webhooks/{gateway}
func (h *WebhookHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	gatewayName := chi.URLParam(r, "gateway")
	log := logger.From(r.Context())

	client, err := h.gateways.Get(gatewayName)
	if err != nil {
		log.Warn("webhook for unknown gateway", "gateway", gatewayName)
		h.WriteError(w, http.StatusNotFound, "unknown gateway")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes))
	if err != nil {
		log.Error("failed to read webhook body", "gateway", gatewayName, "error", err)
		h.WriteError(w, http.StatusBadRequest, "unreadable request body")
		return
	}

	signature := r.Header.Get(client.SignatureHeader())
	if !client.VerifyWebhookSignature(body, signature) {
		log.Warn("webhook signature verification failed", "gateway", gatewayName)
		h.HandleError(w, errors.ErrInvalidSignature)
		return
	}

	ev, err := client.ParseWebhook(body)
	if err != nil {
		log.Error("failed to parse webhook payload", "gateway", gatewayName, "error", err)
		h.WriteError(w, http.StatusBadRequest, "malformed webhook payload")
		return
	}

	if ev.Kind == gateway.KindIgnored {
		h.WriteJSON(w, http.StatusOK, webhookResponse{Status: "ignored"})
		return
	}

	if err := h.engine.Apply(r.Context(), ev); err != nil {
		log.Error("webhook reconciliation failed",
			"gateway", gatewayName,
			"kind", string(ev.Kind),
			"gateway_subscription_id", ev.GatewaySubscriptionID,
			"error", err)
		// non-2xx so the gateway redelivers; a pending row may simply not
		// have committed yet
		if appErr, ok := errors.IsAppError(err); ok {
			h.HandleError(w, appErr)
			return
		}
		h.WriteError(w, http.StatusInternalServerError, "reconciliation failed")
		return
	}

	h.WriteJSON(w, http.StatusOK, webhookResponse{Status: "processed"})
}
