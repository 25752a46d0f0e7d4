package services

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"price-pulse/models"
)

// memStore è uno Store in memoria per i test
type memStore struct {
	mu       sync.Mutex
	bookings map[uint]*models.Booking
	alerts   map[uint]*models.PriceAlert
	rules    map[uint]*models.AlertRule
	nextID   uint
	failWith error
	txDelay  time.Duration
}

func newMemStore() *memStore {
	return &memStore{
		bookings: make(map[uint]*models.Booking),
		alerts:   make(map[uint]*models.PriceAlert),
		rules:    make(map[uint]*models.AlertRule),
	}
}

func (s *memStore) addBooking(b models.Booking) *models.Booking {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := b
	s.bookings[b.ID] = &cp
	out := cp
	return &out
}

func (s *memStore) booking(id uint) models.Booking {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.bookings[id]
}

func (s *memStore) alertsFor(bookingID uint) []models.PriceAlert {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.PriceAlert
	for _, a := range s.alerts {
		if a.BookingID == bookingID {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *memStore) addAlert(a models.PriceAlert) models.PriceAlert {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	a.ID = s.nextID
	cp := a
	s.alerts[a.ID] = &cp
	return a
}

func (s *memStore) alert(id uint) models.PriceAlert {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.alerts[id]
}

func (s *memStore) setRule(r models.AlertRule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules[r.UserID] = &r
}

func (s *memStore) setAlertStatus(id uint, status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts[id].Status = status
}

func (s *memStore) WithBookingLock(ctx context.Context, bookingID uint, fn func(tx StoreTx, booking *models.Booking) error) error {
	if s.failWith != nil {
		return s.failWith
	}
	s.mu.Lock()
	b, ok := s.bookings[bookingID]
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	cp := *b
	s.mu.Unlock()

	// Nessun lock sullo store durante fn: la serializzazione per prenotazione
	// deve venire dal valutatore
	tx := &memTx{store: s, alerts: map[uint]*models.PriceAlert{}}
	if s.txDelay > 0 {
		time.Sleep(s.txDelay)
	}
	if err := fn(tx, &cp); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, a := range tx.alerts {
		s.alerts[id] = a
	}
	if tx.recorded != nil {
		s.bookings[bookingID] = tx.recorded
	}
	return nil
}

func (s *memStore) ActiveBookings(ctx context.Context) ([]models.Booking, error) {
	if s.failWith != nil {
		return nil, s.failWith
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Booking
	for _, b := range s.bookings {
		if b.Status == models.BookingActive && b.PriceAlertActive {
			out = append(out, *b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memStore) FindBooking(ctx context.Context, id uint) (*models.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (s *memStore) FindAlert(ctx context.Context, id uint) (*models.PriceAlert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.alerts[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *memStore) RuleForUser(ctx context.Context, userID uint) (*models.AlertRule, error) {
	if s.failWith != nil {
		return nil, s.failWith
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rules[userID]
	if !ok {
		def := models.DefaultAlertRule(userID)
		r = &def
		s.rules[userID] = r
	}
	cp := *r
	return &cp, nil
}

func (s *memStore) DueAlerts(ctx context.Context, now time.Time, limit int) ([]models.PriceAlert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.PriceAlert
	for _, a := range s.alerts {
		if a.Status != models.AlertNew || a.DispatchStatus != models.DispatchPending {
			continue
		}
		if a.DispatchAfter != nil && a.DispatchAfter.After(now) {
			continue
		}
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memStore) MarkDispatched(ctx context.Context, alert *models.PriceAlert, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.alerts[alert.ID]
	if !ok {
		return false, ErrNotFound
	}
	if a.DispatchStatus != models.DispatchPending ||
		!a.TriggeredAt.Equal(alert.TriggeredAt) || !a.ObservedPrice.Equal(alert.ObservedPrice) {
		return false, nil
	}
	a.DispatchStatus = models.DispatchDispatched
	a.DispatchedAt = &at
	return true, nil
}

// memTx accumula le scritture e le applica solo se fn non fallisce
type memTx struct {
	store    *memStore
	alerts   map[uint]*models.PriceAlert
	recorded *models.Booking
}

func (t *memTx) OpenAlert(bookingID uint) (*models.PriceAlert, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	var open *models.PriceAlert
	for _, a := range t.store.alerts {
		if a.BookingID == bookingID && a.Status == models.AlertNew {
			if open == nil || a.ID > open.ID {
				open = a
			}
		}
	}
	if open == nil {
		return nil, nil
	}
	cp := *open
	return &cp, nil
}

func (t *memTx) SaveAlert(alert *models.PriceAlert) error {
	if alert.ID == 0 {
		t.store.mu.Lock()
		t.store.nextID++
		alert.ID = t.store.nextID
		t.store.mu.Unlock()
	}
	cp := *alert
	t.alerts[alert.ID] = &cp
	return nil
}

func (t *memTx) RecordPrice(booking *models.Booking) error {
	cp := *booking
	t.recorded = &cp
	return nil
}

var errStoreDown = errors.New("connection refused")
