package device

import (
	"sync"
	"time"
)

// ActiveOrder is the device-local pointer tying a payment screen session to
// its in-flight order and cached checkout artifact.
type ActiveOrder struct {
	OrderID         int64
	OrderCode       string
	QRCode          string
	CheckoutURL     string
	PaymentLinkID   string
	ExpiresAt       time.Time
	EffectiveAmount int64
	OriginalAmount  int64
}

func (a *ActiveOrder) Expired(now time.Time) bool {
	return !a.ExpiresAt.IsZero() && now.After(a.ExpiresAt)
}

// Store is the device-local key-value slot for payment state. Implementations
// stand in for the phone's persisted storage.
type Store interface {
	SaveActiveOrder(a ActiveOrder)
	ActiveOrder() (ActiveOrder, bool)
	ClearActiveOrder()
	SetLastOrderID(id int64)
	LastOrderID() (int64, bool)
	ClearLastOrderID()
}

type MemoryStore struct {
	mu      sync.Mutex
	active  *ActiveOrder
	lastID  int64
	hasLast bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) SaveActiveOrder(a ActiveOrder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = &a
}

func (s *MemoryStore) ActiveOrder() (ActiveOrder, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return ActiveOrder{}, false
	}
	return *s.active, true
}

func (s *MemoryStore) ClearActiveOrder() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = nil
}

func (s *MemoryStore) SetLastOrderID(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastID = id
	s.hasLast = true
}

func (s *MemoryStore) LastOrderID() (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastID, s.hasLast
}

func (s *MemoryStore) ClearLastOrderID() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastID = 0
	s.hasLast = false
}
