package payment

import (
	"encoding/json"
	"log/slog"
	"net/http"

	errors "github.com/gardenfresh/order-payments/internal"
	paymentmodel "github.com/gardenfresh/order-payments/internal/core/datamodel/payment"
	"github.com/gardenfresh/order-payments/internal/gateway"
	"github.com/gardenfresh/order-payments/internal/transport"
)

// WebhookHandler receives gateway IPN calls. Responses deliberately return
// 200 for every outcome that should stop gateway retries: unresolved
// orders, unknown orders, duplicates and mismatches all acknowledge. Only
// malformed input, failed verification and missing server configuration
// refuse.
type WebhookHandler struct {
	*transport.BaseHandler
	reconciler     *Reconciler
	mapper         *Mapper
	payments       PaymentRepository
	checksumSecret string
	logger         *slog.Logger
}

func NewWebhookHandler(baseHandler *transport.BaseHandler, reconciler *Reconciler, mapper *Mapper, payments PaymentRepository, checksumSecret string, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		BaseHandler:    baseHandler,
		reconciler:     reconciler,
		mapper:         mapper,
		payments:       payments,
		checksumSecret: checksumSecret,
		logger:         logger,
	}
}

type webhookAck struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

func (h *WebhookHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	if h.checksumSecret == "" {
		// Fail closed: without the shared secret nothing can be verified.
		h.logger.Error("webhook received but checksum secret is not configured")
		h.WriteError(w, http.StatusInternalServerError, "server misconfigured")
		return
	}

	var req WebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error("malformed webhook body", "error", err)
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Signature == "" || len(req.Data) == 0 {
		h.logger.Error("webhook missing signature or data payload")
		h.WriteError(w, http.StatusBadRequest, "signature and data are required")
		return
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(req.Data, &payload); err != nil {
		h.logger.Error("webhook data is not an object", "error", err)
		h.WriteError(w, http.StatusBadRequest, "invalid data payload")
		return
	}

	verified, err := gateway.VerifySignature(payload, req.Signature, h.checksumSecret)
	if err != nil {
		h.logger.Error("webhook signature verification error", "error", err)
		h.WriteError(w, http.StatusBadRequest, "invalid signature payload")
		return
	}
	if !verified {
		h.logger.Warn("webhook signature mismatch")
		h.WriteError(w, http.StatusUnauthorized, "signature verification failed")
		return
	}

	var n Notification
	if err := json.Unmarshal(req.Data, &n); err != nil {
		h.logger.Error("webhook data failed to decode", "error", err)
		h.WriteError(w, http.StatusBadRequest, "invalid data payload")
		return
	}

	orderID, err := h.mapper.ResolveOrderID(&n)
	if err != nil {
		// Acknowledge so the gateway stops retrying; keep the notification
		// for manual follow-up.
		h.recordUnresolved(&n, req.Data)
		h.WriteJSON(w, http.StatusOK, webhookAck{OK: true, Message: "order not resolved"})
		return
	}

	outcome, err := h.reconciler.Reconcile(r.Context(), orderID, &n, req.Data)
	if err != nil {
		if errors.IsCode(err, errors.ErrCodeOrderNotFound) {
			h.logger.Warn("webhook for unknown order acknowledged", "order_id", orderID)
			h.WriteJSON(w, http.StatusOK, webhookAck{OK: true, Message: "order not found"})
			return
		}
		h.logger.Error("reconciliation failed", "error", err, "order_id", orderID)
		h.WriteError(w, http.StatusInternalServerError, "failed to process notification")
		return
	}

	h.logger.Info("webhook processed",
		"order_id", outcome.OrderID,
		"previous_status", outcome.PreviousStatus,
		"new_status", outcome.NewStatus,
		"changed", outcome.Changed,
		"result", outcome.Result)

	h.WriteJSON(w, http.StatusOK, webhookAck{OK: true})
}

func (h *WebhookHandler) recordUnresolved(n *Notification, raw json.RawMessage) {
	entry := &paymentmodel.PaymentLog{
		GatewayCode: n.OrderCode,
		ExternalRef: n.PaymentLinkID,
		Amount:      n.Amount,
		RawStatus:   rawStatus(n),
		Signal:      string(n.Signal()),
		Outcome:     "unresolved",
		Payload:     raw,
	}
	if err := h.payments.AppendLog(entry); err != nil {
		h.logger.Error("failed to record unresolved notification", "error", err)
	}
}
