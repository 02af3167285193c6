package rest

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/frahmantamala/subscription-billing/internal/subscription"
	"github.com/frahmantamala/subscription-billing/internal/transport/middleware"
	"github.com/frahmantamala/subscription-billing/internal/transport/swagger"
	"github.com/go-chi/chi"
	chiMiddleware "github.com/go-chi/chi/middleware"
)

func RegisterAllRoutes(router *chi.Mux, db *sql.DB, subscriptionHandler *subscription.Handler, webhookHandler *subscription.WebhookHandler, logger *slog.Logger) {
	healthHandler := NewHealthHandler(db)

	// Apply global middleware
	router.Use(middleware.CORS)
	router.Use(chiMiddleware.RequestID)
	router.Use(middleware.RecoveryMiddleware(logger))

	// Serve OpenAPI spec at root (outside API prefix)
	router.Get("/openapi.yml", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, "./api/openapi.yml")
	})
	// Swagger UI route at root
	router.Handle("/swagger/*", swagger.Handler())

	// Mount API under /api/v1 to match OpenAPI basePath
	router.Route("/api/v1", func(r chi.Router) {
		// Health check routes
		r.Get("/health", healthHandler.healthCheckHandler)
		r.Get("/ping", healthHandler.pingHandler)

		// Gateway webhook ingress; signature verification replaces auth here
		if webhookHandler != nil {
			r.Post("/webhooks/{gateway}", webhookHandler.HandleWebhook)
		}

		if subscriptionHandler != nil {
			r.Route("/subscriptions", func(sr chi.Router) {
				sr.Post("/", subscriptionHandler.BeginSubscription)
				sr.Get("/", subscriptionHandler.ListSubscriptions)
				sr.Get("/{id}", subscriptionHandler.GetSubscription)
				sr.Post("/{id}/cancel", subscriptionHandler.CancelSubscription)
				sr.Get("/{id}/payments", subscriptionHandler.ListSubscriptionPayments)
			})

			r.Get("/users/{id}/payments", subscriptionHandler.ListUserPayments)
		}
	})
}
