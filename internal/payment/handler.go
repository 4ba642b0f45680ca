package payment

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"

	errors "github.com/gardenfresh/order-payments/internal"
	"github.com/gardenfresh/order-payments/internal/transport"
)

// Handler serves the client-facing payment endpoints: intent creation, COD
// confirmation, cancellation and status polling.
type Handler struct {
	*transport.BaseHandler
	intents    *IntentService
	reconciler *Reconciler
	Logger     *slog.Logger
}

func NewHandler(baseHandler *transport.BaseHandler, intents *IntentService, reconciler *Reconciler, logger *slog.Logger) *Handler {
	return &Handler{
		BaseHandler: baseHandler,
		intents:     intents,
		reconciler:  reconciler,
		Logger:      logger,
	}
}

type envelope struct {
	OK    bool        `json:"ok"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
	Code  string      `json:"code,omitempty"`
}

func (h *Handler) writeOK(w http.ResponseWriter, data interface{}) {
	h.WriteJSON(w, http.StatusOK, envelope{OK: true, Data: data})
}

func (h *Handler) writeFailure(w http.ResponseWriter, err error) {
	if appErr, ok := errors.IsAppError(err); ok {
		h.WriteJSON(w, appErr.StatusCode, envelope{
			OK:    false,
			Error: appErr.GetDetailedMessage(),
			Code:  string(appErr.Code),
		})
		return
	}
	h.WriteJSON(w, http.StatusInternalServerError, envelope{OK: false, Error: "internal error"})
}

// CreateIntent handles POST /api/v1/payment/intents
func (h *Handler) CreateIntent(w http.ResponseWriter, r *http.Request) {
	var req CreateIntentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Logger.Error("CreateIntent: failed to parse request body", "error", err)
		h.writeFailure(w, errors.NewValidationError("invalid request body", errors.ErrCodeValidationFailed))
		return
	}

	result, err := h.intents.CreateIntent(r.Context(), &req)
	if err != nil {
		h.Logger.Error("CreateIntent: service error", "error", err, "order_id", req.OrderID)
		h.writeFailure(w, err)
		return
	}

	h.writeOK(w, result)
}

// ConfirmCOD handles POST /api/v1/orders/{id}/cod-confirm
func (h *Handler) ConfirmCOD(w http.ResponseWriter, r *http.Request) {
	orderID, err := h.orderIDParam(r)
	if err != nil {
		h.writeFailure(w, err)
		return
	}

	if err := h.reconciler.ConfirmCashOnDelivery(r.Context(), orderID); err != nil {
		h.Logger.Error("ConfirmCOD: service error", "error", err, "order_id", orderID)
		h.writeFailure(w, err)
		return
	}

	h.writeOK(w, map[string]interface{}{"orderId": orderID, "paymentStatus": "paid"})
}

// CancelOrder handles POST /api/v1/orders/{id}/cancel
func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	orderID, err := h.orderIDParam(r)
	if err != nil {
		h.writeFailure(w, err)
		return
	}

	if err := h.reconciler.Cancel(r.Context(), orderID); err != nil {
		h.Logger.Error("CancelOrder: service error", "error", err, "order_id", orderID)
		h.writeFailure(w, err)
		return
	}

	h.writeOK(w, map[string]interface{}{"orderId": orderID, "paymentStatus": "canceled"})
}

// PaymentStatus handles GET /api/v1/orders/{id}/payment-status
func (h *Handler) PaymentStatus(w http.ResponseWriter, r *http.Request) {
	orderID, err := h.orderIDParam(r)
	if err != nil {
		h.writeFailure(w, err)
		return
	}

	status, err := h.reconciler.Status(r.Context(), orderID)
	if err != nil {
		h.writeFailure(w, err)
		return
	}

	h.writeOK(w, status)
}

func (h *Handler) orderIDParam(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	orderID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || orderID <= 0 {
		return 0, errors.NewValidationError("invalid order id", errors.ErrCodeValidationFailed)
	}
	return orderID, nil
}
