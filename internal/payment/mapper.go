package payment

import (
	"log/slog"
	"regexp"
	"strconv"

	errors "github.com/gardenfresh/order-payments/internal"
)

// Order codes sent to the gateway may be variant codes (base*1000 + suffix)
// minted to dodge duplicate-order rejections. Anything above this threshold
// is assumed to be one.
const variantCodeThreshold = 100000

var descCodePattern = regexp.MustCompile(`(?i)GDN[-_]?(\d{6})`)

// Mapper resolves an inbound gateway notification to an internal order id.
// The stored payment record wins over numeric derivation because variant
// codes are intentionally randomized and only the record knows the truth.
type Mapper struct {
	payments PaymentRepository
	logger   *slog.Logger
}

func NewMapper(payments PaymentRepository, logger *slog.Logger) *Mapper {
	return &Mapper{payments: payments, logger: logger}
}

func (m *Mapper) ResolveOrderID(n *Notification) (int64, error) {
	if n.PaymentLinkID != "" {
		if p, err := m.payments.GetByExternalRef(n.PaymentLinkID); err == nil && p != nil {
			return p.OrderID, nil
		}
	}

	if n.OrderCode > 0 {
		if p, err := m.payments.GetByGatewayCode(n.OrderCode); err == nil && p != nil {
			return p.OrderID, nil
		}
	}

	if n.OrderCode > variantCodeThreshold {
		return n.OrderCode / 1000, nil
	}
	if n.OrderCode > 0 {
		return n.OrderCode, nil
	}

	if match := descCodePattern.FindStringSubmatch(n.Description); match != nil {
		id, err := strconv.ParseInt(match[1], 10, 64)
		if err == nil && id > 0 {
			return id, nil
		}
	}

	m.logger.Warn("could not resolve order from notification",
		"order_code", n.OrderCode,
		"payment_link_id", n.PaymentLinkID,
		"description", n.Description)
	return 0, errors.ErrOrderNotResolved
}
