package storage

import (
	"context"
	"sync"

	"conference-payments/internal/models"
)

// MemoryStore is a mutex-guarded in-memory Store used in tests and local
// development. RunInTx serializes on the store mutex, which gives the same
// atomicity the MySQL transaction provides; rollback of a failed fn is not
// simulated.
type MemoryStore struct {
	mu sync.RWMutex

	ticketTypes   map[string]*models.TicketType
	sessions      map[string]*models.Session
	ticketLinks   map[string][]string
	orders        map[string]*models.Order
	payments      map[string]*models.Payment
	registrations map[string]*models.Registration
	regSessions   []*models.RegistrationSession
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		ticketTypes:   make(map[string]*models.TicketType),
		sessions:      make(map[string]*models.Session),
		ticketLinks:   make(map[string][]string),
		orders:        make(map[string]*models.Order),
		payments:      make(map[string]*models.Payment),
		registrations: make(map[string]*models.Registration),
	}
}

// Seed helpers for tests.

func (s *MemoryStore) SeedTicketType(tt *models.TicketType) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ticketTypes[tt.TicketTypeID] = tt
}

func (s *MemoryStore) SeedSession(sess *models.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.SessionID] = sess
}

func (s *MemoryStore) SeedTicketSessionLink(ticketTypeID, sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ticketLinks[ticketTypeID] = append(s.ticketLinks[ticketTypeID], sessionID)
}

// memTx operates on the store maps while the store mutex is already held.
type memTx struct {
	s *MemoryStore
}

func (s *MemoryStore) RunInTx(ctx context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(&memTx{s: s})
}

func (s *MemoryStore) HealthCheck(ctx context.Context) error { return nil }
func (s *MemoryStore) Close() error                          { return nil }

// Read operations (locked wrappers around the unlocked helpers).

func (s *MemoryStore) GetTicketTypeByCode(ctx context.Context, code, currency string) (*models.TicketType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, tt := range s.ticketTypes {
		if tt.Code == code && tt.Currency == currency && tt.Active {
			cp := *tt
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) GetTicketType(ctx context.Context, ticketTypeID string) (*models.TicketType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tt, ok := s.ticketTypes[ticketTypeID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *tt
	return &cp, nil
}

func (s *MemoryStore) GetSession(ctx context.Context, sessionID string) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *sess
	return &cp, nil
}

func (s *MemoryStore) ListTicketSessionLinks(ctx context.Context, ticketTypeID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.ticketLinks[ticketTypeID]...), nil
}

func (s *MemoryStore) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return (&memTx{s: s}).GetOrder(ctx, orderID)
}

func (s *MemoryStore) GetPaymentByOrderID(ctx context.Context, orderID string) (*models.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.payments {
		if p.OrderID == orderID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) GetPaymentByIntentID(ctx context.Context, intentID string) (*models.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.payments {
		if p.IntentID == intentID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) SavePayment(ctx context.Context, payment *models.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *payment
	s.payments[payment.PaymentID] = &cp
	return nil
}

func (s *MemoryStore) GetConfirmedRegistrationByUser(ctx context.Context, userID string) (*models.Registration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return (&memTx{s: s}).GetConfirmedRegistrationByUser(ctx, userID)
}

func (s *MemoryStore) GetRegistrationByOrderID(ctx context.Context, orderID string) (*models.Registration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return (&memTx{s: s}).GetRegistrationByOrderID(ctx, orderID)
}

func (s *MemoryStore) UserOwnsTicketType(ctx context.Context, userID, ticketTypeID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, o := range s.orders {
		if o.UserID != userID || o.Status != models.OrderPaid {
			continue
		}
		for _, item := range o.Items {
			if item.TicketTypeID == ticketTypeID {
				return true, nil
			}
		}
	}
	return false, nil
}

// Tx operations. The store mutex is held by RunInTx (or by the read wrappers
// above), so these touch the maps directly.

func (t *memTx) CreateOrder(ctx context.Context, order *models.Order) error {
	cp := *order
	cp.Items = nil
	t.s.orders[order.OrderID] = &cp
	return nil
}

func (t *memTx) CreateOrderItem(ctx context.Context, item *models.OrderItem) error {
	order, ok := t.s.orders[item.OrderID]
	if !ok {
		return ErrNotFound
	}
	cp := *item
	order.Items = append(order.Items, &cp)
	return nil
}

func (t *memTx) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	order, ok := t.s.orders[orderID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *order
	cp.Items = append([]*models.OrderItem(nil), order.Items...)
	return &cp, nil
}

func (t *memTx) UpdateOrderStatus(ctx context.Context, orderID string, status models.OrderStatus) error {
	order, ok := t.s.orders[orderID]
	if !ok {
		return ErrNotFound
	}
	order.Status = status
	return nil
}

func (t *memTx) UpdatePayment(ctx context.Context, payment *models.Payment) error {
	existing, ok := t.s.payments[payment.PaymentID]
	if !ok {
		return ErrNotFound
	}
	*existing = *payment
	return nil
}

func (t *memTx) GetRegistrationByOrderID(ctx context.Context, orderID string) (*models.Registration, error) {
	for _, reg := range t.s.registrations {
		if reg.OrderID == orderID {
			cp := *reg
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (t *memTx) GetConfirmedRegistrationByUser(ctx context.Context, userID string) (*models.Registration, error) {
	for _, reg := range t.s.registrations {
		if reg.UserID == userID && reg.Status == models.RegistrationConfirmed {
			cp := *reg
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (t *memTx) CreateRegistration(ctx context.Context, reg *models.Registration) error {
	cp := *reg
	t.s.registrations[reg.RegistrationID] = &cp
	return nil
}

func (t *memTx) CreateRegistrationSession(ctx context.Context, link *models.RegistrationSession) error {
	for _, l := range t.s.regSessions {
		if l.RegistrationID == link.RegistrationID && l.SessionID == link.SessionID && l.OrderItemID == link.OrderItemID {
			return nil
		}
	}
	cp := *link
	t.s.regSessions = append(t.s.regSessions, &cp)
	return nil
}

func (t *memTx) ListTicketSessionLinks(ctx context.Context, ticketTypeID string) ([]string, error) {
	return append([]string(nil), t.s.ticketLinks[ticketTypeID]...), nil
}

func (t *memTx) SaveTicketSessionLink(ctx context.Context, ticketTypeID, sessionID string) error {
	for _, id := range t.s.ticketLinks[ticketTypeID] {
		if id == sessionID {
			return nil
		}
	}
	t.s.ticketLinks[ticketTypeID] = append(t.s.ticketLinks[ticketTypeID], sessionID)
	return nil
}

func (t *memTx) FindMainSessionID(ctx context.Context) (string, error) {
	var best string
	for id, sess := range t.s.sessions {
		if sess.Track != models.TrackMain || !sess.Active {
			continue
		}
		if best == "" || id < best {
			best = id
		}
	}
	if best == "" {
		return "", ErrNotFound
	}
	return best, nil
}

func (t *memTx) IncrementSold(ctx context.Context, ticketTypeID string, n int) error {
	tt, ok := t.s.ticketTypes[ticketTypeID]
	if !ok {
		return ErrNotFound
	}
	tt.Sold += n
	return nil
}

func (t *memTx) IncrementSessionLinked(ctx context.Context, sessionID string, n int) error {
	sess, ok := t.s.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	sess.Linked += n
	return nil
}

// RegistrationSessions returns a copy of the link table for assertions.
func (s *MemoryStore) RegistrationSessions() []*models.RegistrationSession {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.RegistrationSession, len(s.regSessions))
	for i, l := range s.regSessions {
		cp := *l
		out[i] = &cp
	}
	return out
}
