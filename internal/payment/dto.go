package payment

import (
	"encoding/json"

	errors "github.com/gardenfresh/order-payments/internal"
	"github.com/gardenfresh/order-payments/internal/core/common/validation"
)

// WebhookRequest is the raw inbound gateway notification envelope. Data is
// kept raw so the signature can be verified over the exact payload before
// any interpretation happens.
type WebhookRequest struct {
	Signature string          `json:"signature"`
	Data      json.RawMessage `json:"data"`
}

// Notification is the interpreted payload of a gateway webhook.
type Notification struct {
	OrderCode     int64  `json:"orderCode"`
	Amount        int64  `json:"amount"`
	Code          string `json:"code"`
	Status        string `json:"status"`
	Success       *bool  `json:"success,omitempty"`
	Description   string `json:"description"`
	PaymentLinkID string `json:"paymentLinkId"`
}

// Signal derives the notification's meaning from whichever status field the
// gateway populated.
func (n *Notification) Signal() Signal {
	return NormalizeSignal(n.Code, n.Status, n.Success)
}

type CreateIntentRequest struct {
	OrderID     int64  `json:"orderId"`
	Amount      int64  `json:"amount"`
	Description string `json:"description"`
	ForceNew    bool   `json:"forceNew,omitempty"`
}

func (r *CreateIntentRequest) Validate() error {
	validator := validation.NewValidator()

	validator.Field("order_id", r.OrderID).Required().Positive(errors.ErrCodeValidationFailed)
	validator.Field("amount", r.Amount).Required().Positive(errors.ErrCodeInvalidAmount)
	validator.Field("description", r.Description).MaxLength(255)

	if appErr := validator.Validate(); appErr != nil {
		return appErr
	}
	return nil
}

// IntentResult carries the checkout artifacts back to the client. When the
// gateway floor forced the payable amount up, EffectiveAmount is what the
// QR charges and OriginalAmount is the order's true total.
type IntentResult struct {
	CheckoutURL     string `json:"checkoutUrl,omitempty"`
	QRCode          string `json:"qrCode,omitempty"`
	PaymentLinkID   string `json:"paymentLinkId,omitempty"`
	EffectiveAmount int64  `json:"effectiveAmount"`
	OriginalAmount  int64  `json:"originalAmount"`
}

// StatusResult is the polling response for an order's payment state.
type StatusResult struct {
	OrderID       int64  `json:"orderId"`
	OrderCode     string `json:"orderCode"`
	PaymentStatus string `json:"paymentStatus"`
	PaymentMethod string `json:"paymentMethod,omitempty"`
	PaidAt        string `json:"paidAt,omitempty"`
}
