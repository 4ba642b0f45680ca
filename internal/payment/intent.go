package payment

import (
	"context"
	"log/slog"
	"strings"
	"time"

	errors "github.com/gardenfresh/order-payments/internal"
	ordermodel "github.com/gardenfresh/order-payments/internal/core/datamodel/order"
	paymentmodel "github.com/gardenfresh/order-payments/internal/core/datamodel/payment"
	"github.com/gardenfresh/order-payments/internal/gateway"
)

const gatewayName = "qrpay"

// Descriptions the gateway accepts are short; retries after a parameter
// rejection truncate to this length.
const maxRetryDescriptionLen = 25

// GatewayAPI is the slice of the gateway client the intent creator uses.
type GatewayAPI interface {
	CreatePaymentLink(ctx context.Context, req gateway.CreateLinkRequest) (*gateway.CheckoutLink, error)
}

// IntentService creates gateway checkout artifacts and persists the pending
// payment slot for an order.
type IntentService struct {
	gateway   GatewayAPI
	orders    OrderRepository
	payments  PaymentRepository
	minAmount int64
	now       func() time.Time
	logger    *slog.Logger
}

func NewIntentService(gw GatewayAPI, orders OrderRepository, payments PaymentRepository, minAmount int64, logger *slog.Logger) *IntentService {
	return &IntentService{
		gateway:   gw,
		orders:    orders,
		payments:  payments,
		minAmount: minAmount,
		now:       time.Now,
		logger:    logger,
	}
}

// VariantCode derives a gateway order code that will not collide with a
// previously submitted one for the same order: base*1000 plus a
// time-derived suffix in [0,999].
func VariantCode(base int64, now time.Time) int64 {
	return base*1000 + now.Unix()%1000
}

// CreateIntent requests a checkout artifact for the order. The amount sent
// to the gateway is raised to the configured floor when the true total is
// below it; both amounts are reported back so the client can display the
// real total while rendering the payable QR.
func (s *IntentService) CreateIntent(ctx context.Context, req *CreateIntentRequest) (*IntentResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	ord, err := loadOrder(s.orders, req.OrderID)
	if err != nil {
		return nil, err
	}
	if ordermodel.IsSettled(ord.PaymentStatus) {
		return nil, errors.ErrOrderAlreadyPaid
	}

	originalAmount := req.Amount
	effectiveAmount := originalAmount
	if effectiveAmount < s.minAmount {
		// Gateway-imposed floor; the discrepancy is surfaced to the caller.
		effectiveAmount = s.minAmount
		s.logger.Info("raising intent amount to gateway floor",
			"order_id", ord.ID,
			"requested", originalAmount,
			"floor", s.minAmount)
	}

	code := s.chooseCode(ord.ID, req.ForceNew)
	description := req.Description
	if description == "" {
		description = ord.Code
	}

	link, err := s.createWithRetries(ctx, ord.ID, code, effectiveAmount, description)
	if err != nil {
		return nil, err
	}

	record := &paymentmodel.Payment{
		OrderID:     ord.ID,
		Amount:      effectiveAmount,
		Method:      ordermodel.MethodBank,
		Status:      paymentmodel.StatusPending,
		Gateway:     gatewayName,
		GatewayCode: link.orderCode,
		ExternalRef: link.artifact.PaymentLinkID,
		CheckoutURL: link.artifact.CheckoutURL,
		QRCode:      link.artifact.QRCode,
	}
	if err := s.payments.Upsert(record); err != nil {
		s.logger.Error("failed to persist pending payment", "error", err, "order_id", ord.ID)
		return nil, errors.NewInternalError("failed to persist payment record", err)
	}

	if ord.PaymentStatus == ordermodel.StatusUnpaid {
		if err := s.orders.UpdatePaymentStatus(ord.ID, ordermodel.StatusPendingConfirm, ord.PaymentMethod, nil); err != nil {
			s.logger.Error("failed to move order to pending confirmation", "error", err, "order_id", ord.ID)
		}
	}

	s.logger.Info("payment intent created",
		"order_id", ord.ID,
		"gateway_code", link.orderCode,
		"payment_link_id", link.artifact.PaymentLinkID,
		"effective_amount", effectiveAmount,
		"original_amount", originalAmount)

	return &IntentResult{
		CheckoutURL:     link.artifact.CheckoutURL,
		QRCode:          link.artifact.QRCode,
		PaymentLinkID:   link.artifact.PaymentLinkID,
		EffectiveAmount: effectiveAmount,
		OriginalAmount:  originalAmount,
	}, nil
}

// chooseCode reuses the code already registered with the gateway unless the
// caller explicitly forces a fresh one.
func (s *IntentService) chooseCode(orderID int64, forceNew bool) int64 {
	if forceNew {
		return VariantCode(orderID, s.now())
	}
	if existing, err := s.payments.GetByOrderID(orderID); err == nil && existing != nil && existing.GatewayCode > 0 {
		return existing.GatewayCode
	}
	return orderID
}

type createdLink struct {
	artifact  *gateway.CheckoutLink
	orderCode int64
}

func (s *IntentService) createWithRetries(ctx context.Context, orderID, code, amount int64, description string) (*createdLink, error) {
	link, err := s.gateway.CreatePaymentLink(ctx, gateway.CreateLinkRequest{
		OrderCode:   code,
		Amount:      amount,
		Description: description,
	})
	if err == nil {
		return &createdLink{artifact: link, orderCode: code}, nil
	}

	switch {
	case errors.IsCode(err, errors.ErrCodeDuplicateCode):
		variant := VariantCode(orderID, s.now())
		s.logger.Warn("retrying payment link with variant code",
			"order_id", orderID, "rejected_code", code, "variant_code", variant)
		link, retryErr := s.gateway.CreatePaymentLink(ctx, gateway.CreateLinkRequest{
			OrderCode:   variant,
			Amount:      amount,
			Description: description,
		})
		if retryErr != nil {
			return nil, retryErr
		}
		return &createdLink{artifact: link, orderCode: variant}, nil

	case errors.IsCode(err, errors.ErrCodeGatewayBadParams):
		sanitized := sanitizeDescription(description)
		s.logger.Warn("retrying payment link with sanitized description",
			"order_id", orderID, "description", sanitized)
		link, retryErr := s.gateway.CreatePaymentLink(ctx, gateway.CreateLinkRequest{
			OrderCode:   code,
			Amount:      amount,
			Description: sanitized,
		})
		if retryErr != nil {
			return nil, retryErr
		}
		return &createdLink{artifact: link, orderCode: code}, nil
	}

	return nil, err
}

func sanitizeDescription(desc string) string {
	var b strings.Builder
	for _, r := range desc {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == ' ' || r == '-' {
			b.WriteRune(r)
		}
	}
	out := strings.TrimSpace(b.String())
	if len(out) > maxRetryDescriptionLen {
		out = out[:maxRetryDescriptionLen]
	}
	if out == "" {
		out = "order payment"
	}
	return out
}
