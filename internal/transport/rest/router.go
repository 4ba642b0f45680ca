package rest

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"

	"github.com/gardenfresh/order-payments/internal"
	"github.com/gardenfresh/order-payments/internal/payment"
	"github.com/gardenfresh/order-payments/internal/transport/middleware"
)

// RegisterAllRoutes wires the HTTP surface. The gateway webhook stays outside
// the session-auth group; it authenticates with its own checksum signature.
func RegisterAllRoutes(router *chi.Mux, db *sql.DB, paymentHandler *payment.Handler, webhookHandler *payment.WebhookHandler, cfg *internal.Config, logger *slog.Logger) {
	healthHandler := NewHealthHandler(db)

	router.Use(middleware.CORSWithOrigins(cfg.Server.AllowedOrigins))
	router.Use(middleware.RequestID)
	router.Use(middleware.LoggingMiddleware(logger))
	router.Use(middleware.RecoveryMiddleware(logger))

	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", healthHandler.healthCheckHandler)
		r.Get("/ping", healthHandler.pingHandler)

		if webhookHandler != nil {
			r.Post("/payment/webhook", webhookHandler.HandleWebhook)
		}

		if paymentHandler != nil {
			r.Group(func(pr chi.Router) {
				pr.Use(middleware.SessionAuth(cfg.Security.SessionSecret, logger))

				pr.Post("/payment/intents", paymentHandler.CreateIntent)
				pr.Route("/orders/{id}", func(or chi.Router) {
					or.Get("/payment-status", paymentHandler.PaymentStatus)
					or.Post("/cod-confirm", paymentHandler.ConfirmCOD)
					or.Post("/cancel", paymentHandler.CancelOrder)
				})
			})
		}
	})

	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"ok": false, "error": "not found", "code": "NOT_FOUND"}`))
	})
}
