package payment_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/gardenfresh/order-payments/internal"
	ordermodel "github.com/gardenfresh/order-payments/internal/core/datamodel/order"
	paymentmodel "github.com/gardenfresh/order-payments/internal/core/datamodel/payment"
	"github.com/gardenfresh/order-payments/internal/gateway"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// Mock order repository for testing
type mockOrderRepository struct {
	mu          sync.Mutex
	orders      map[int64]*ordermodel.Order
	getError    error
	updateError error
}

func newMockOrderRepository() *mockOrderRepository {
	return &mockOrderRepository{orders: make(map[int64]*ordermodel.Order)}
}

func (m *mockOrderRepository) add(o *ordermodel.Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o.Code == "" {
		o.Code = ordermodel.CodeForID(o.ID)
	}
	m.orders[o.ID] = o
}

func (m *mockOrderRepository) get(id int64) *ordermodel.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.orders[id]
}

func (m *mockOrderRepository) GetByID(id int64) (*ordermodel.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getError != nil {
		return nil, m.getError
	}
	o, exists := m.orders[id]
	if !exists {
		return nil, internal.ErrOrderNotFound
	}
	copied := *o
	return &copied, nil
}

func (m *mockOrderRepository) UpdatePaymentStatus(id int64, status string, method *string, paidAt *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateError != nil {
		return m.updateError
	}
	o, exists := m.orders[id]
	if !exists {
		return errors.New("order not found")
	}
	o.PaymentStatus = status
	o.PaymentMethod = method
	if paidAt != nil {
		o.PaidAt = paidAt
	}
	return nil
}

// Mock payment repository covering the slot plus the append-only log
type mockPaymentRepository struct {
	mu          sync.Mutex
	byOrder     map[int64]*paymentmodel.Payment
	logs        []*paymentmodel.PaymentLog
	stale       []*paymentmodel.Payment
	upsertError error
	getError    error
	updateError error
	appendError error
	updateCalls int
}

func newMockPaymentRepository() *mockPaymentRepository {
	return &mockPaymentRepository{byOrder: make(map[int64]*paymentmodel.Payment)}
}

func (m *mockPaymentRepository) slot(orderID int64) *paymentmodel.Payment {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byOrder[orderID]
}

func (m *mockPaymentRepository) logEntries() []*paymentmodel.PaymentLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*paymentmodel.PaymentLog, len(m.logs))
	copy(out, m.logs)
	return out
}

func (m *mockPaymentRepository) Upsert(p *paymentmodel.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.upsertError != nil {
		return m.upsertError
	}
	if existing, exists := m.byOrder[p.OrderID]; exists {
		p.ID = existing.ID
	} else {
		p.ID = int64(len(m.byOrder) + 1)
	}
	m.byOrder[p.OrderID] = p
	return nil
}

func (m *mockPaymentRepository) GetByOrderID(orderID int64) (*paymentmodel.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getError != nil {
		return nil, m.getError
	}
	p, exists := m.byOrder[orderID]
	if !exists {
		return nil, errors.New("payment not found")
	}
	return p, nil
}

func (m *mockPaymentRepository) GetByExternalRef(ref string) (*paymentmodel.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getError != nil {
		return nil, m.getError
	}
	for _, p := range m.byOrder {
		if p.ExternalRef == ref && ref != "" {
			return p, nil
		}
	}
	return nil, errors.New("payment not found")
}

func (m *mockPaymentRepository) GetByGatewayCode(code int64) (*paymentmodel.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getError != nil {
		return nil, m.getError
	}
	for _, p := range m.byOrder {
		if p.GatewayCode == code && code > 0 {
			return p, nil
		}
	}
	return nil, errors.New("payment not found")
}

func (m *mockPaymentRepository) UpdateOnNotification(orderID int64, status, externalRef string, amount int64, paidAt *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateCalls++
	if m.updateError != nil {
		return m.updateError
	}
	p, exists := m.byOrder[orderID]
	if !exists {
		p = &paymentmodel.Payment{OrderID: orderID}
		m.byOrder[orderID] = p
	}
	p.Status = status
	if externalRef != "" {
		p.ExternalRef = externalRef
	}
	if amount > 0 {
		p.Amount = amount
	}
	if paidAt != nil {
		p.PaidAt = paidAt
	}
	return nil
}

func (m *mockPaymentRepository) AppendLog(l *paymentmodel.PaymentLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendError != nil {
		return m.appendError
	}
	m.logs = append(m.logs, l)
	return nil
}

func (m *mockPaymentRepository) ListStalePending(olderThan time.Time, limit int) ([]*paymentmodel.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getError != nil {
		return nil, m.getError
	}
	if limit > 0 && len(m.stale) > limit {
		return m.stale[:limit], nil
	}
	return m.stale, nil
}

// Mock inventory counting consumptions per order
type mockInventory struct {
	mu           sync.Mutex
	consumed     map[int64]int
	consumeError error
}

func newMockInventory() *mockInventory {
	return &mockInventory{consumed: make(map[int64]int)}
}

func (m *mockInventory) ConsumeForOrder(ctx context.Context, orderID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.consumeError != nil {
		return m.consumeError
	}
	m.consumed[orderID]++
	return nil
}

func (m *mockInventory) consumedCount(orderID int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.consumed[orderID]
}

// Mock gateway client returning queued responses
type gatewayCall struct {
	req  gateway.CreateLinkRequest
	link *gateway.CheckoutLink
	err  error
}

type mockGateway struct {
	mu        sync.Mutex
	responses []gatewayCall
	requests  []gateway.CreateLinkRequest
}

func (m *mockGateway) queue(link *gateway.CheckoutLink, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, gatewayCall{link: link, err: err})
}

func (m *mockGateway) CreatePaymentLink(ctx context.Context, req gateway.CreateLinkRequest) (*gateway.CheckoutLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	if len(m.responses) == 0 {
		return &gateway.CheckoutLink{
			PaymentLinkID: "pl-default",
			CheckoutURL:   "https://pay.example.com/pl-default",
			QRCode:        "qr-default",
			Amount:        req.Amount,
		}, nil
	}
	next := m.responses[0]
	m.responses = m.responses[1:]
	return next.link, next.err
}

func (m *mockGateway) sentRequests() []gateway.CreateLinkRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]gateway.CreateLinkRequest, len(m.requests))
	copy(out, m.requests)
	return out
}
