package subscription

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	errors "github.com/frahmantamala/subscription-billing/internal"
	"github.com/frahmantamala/subscription-billing/internal/transport"
	"github.com/frahmantamala/subscription-billing/pkg/logger"
	"github.com/go-chi/chi"
)

type ServiceAPI interface {
	Begin(ctx context.Context, req *BeginSubscriptionRequest) (*BeginSubscriptionResponse, error)
	Cancel(ctx context.Context, id int64) (*CancelSubscriptionResponse, error)
	GetByID(ctx context.Context, id int64) (*SubscriptionResponse, error)
	List(ctx context.Context, filter ListFilter) ([]*SubscriptionResponse, error)
	ListPayments(ctx context.Context, subscriptionID int64) ([]*PaymentResponse, error)
	ListUserPayments(ctx context.Context, userID int64) ([]*PaymentResponse, error)
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(service ServiceAPI) *Handler {
	lg := logger.LoggerWrapper()
	if lg == nil {
		lg = slog.Default()
	}
	return &Handler{
		BaseHandler: transport.NewBaseHandler(lg),
		Service:     service,
	}
}

// BeginSubscription handles POST /api/v1/subscriptions
func (h *Handler) BeginSubscription(w http.ResponseWriter, r *http.Request) {
	var req BeginSubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Logger.Error("BeginSubscription: failed to parse request body", "error", err)
		h.HandleError(w, errors.NewValidationError("invalid request body", errors.ErrCodeValidationFailed))
		return
	}

	resp, err := h.Service.Begin(r.Context(), &req)
	if err != nil {
		h.Logger.Error("BeginSubscription: service error", "error", err, "user_id", req.UserID, "plan_id", req.PlanID)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusCreated, resp)
}

// CancelSubscription handles POST /api/v1/subscriptions/{id}/cancel
func (h *Handler) CancelSubscription(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}

	resp, err := h.Service.Cancel(r.Context(), id)
	if err != nil {
		h.Logger.Error("CancelSubscription: service error", "error", err, "subscription_id", id)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, resp)
}

// GetSubscription handles GET /api/v1/subscriptions/{id}
func (h *Handler) GetSubscription(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}

	resp, err := h.Service.GetByID(r.Context(), id)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, resp)
}

// ListSubscriptions handles GET /api/v1/subscriptions
func (h *Handler) ListSubscriptions(w http.ResponseWriter, r *http.Request) {
	filter, appErr := ParseListFilter(r.URL.Query())
	if appErr != nil {
		h.HandleError(w, appErr)
		return
	}

	rows, err := h.Service.List(r.Context(), filter)
	if err != nil {
		h.Logger.Error("ListSubscriptions: service error", "error", err)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"subscriptions": rows,
		"limit":         filter.Limit,
		"offset":        filter.Offset,
	})
}

// ListSubscriptionPayments handles GET /api/v1/subscriptions/{id}/payments
func (h *Handler) ListSubscriptionPayments(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}

	rows, err := h.Service.ListPayments(r.Context(), id)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{"payments": rows})
}

// ListUserPayments handles GET /api/v1/users/{id}/payments
func (h *Handler) ListUserPayments(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}

	rows, err := h.Service.ListUserPayments(r.Context(), id)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{"payments": rows})
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		h.HandleError(w, errors.NewValidationError("invalid id in path", errors.ErrCodeValidationFailed))
		return 0, false
	}
	return id, true
}
