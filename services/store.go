package services

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"price-pulse/models"
)

// ErrNotFound viene restituito quando il record cercato non esiste
var ErrNotFound = errors.New("record non trovato")

// StoreTx è la vista dello store dentro la sezione critica di una prenotazione
type StoreTx interface {
	OpenAlert(bookingID uint) (*models.PriceAlert, error)
	SaveAlert(alert *models.PriceAlert) error
	RecordPrice(booking *models.Booking) error
}

// Store raccoglie le operazioni di persistenza usate da valutatore, monitor e dispatcher
type Store interface {
	WithBookingLock(ctx context.Context, bookingID uint, fn func(tx StoreTx, booking *models.Booking) error) error
	ActiveBookings(ctx context.Context) ([]models.Booking, error)
	FindBooking(ctx context.Context, id uint) (*models.Booking, error)
	FindAlert(ctx context.Context, id uint) (*models.PriceAlert, error)
	RuleForUser(ctx context.Context, userID uint) (*models.AlertRule, error)
	DueAlerts(ctx context.Context, now time.Time, limit int) ([]models.PriceAlert, error)
	MarkDispatched(ctx context.Context, alert *models.PriceAlert, at time.Time) (bool, error)
}

// GormStore implementa Store su PostgreSQL tramite gorm
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// WithBookingLock esegue fn in una transazione che tiene la riga della prenotazione
// bloccata con SELECT ... FOR UPDATE
func (s *GormStore) WithBookingLock(ctx context.Context, bookingID uint, fn func(tx StoreTx, booking *models.Booking) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var booking models.Booking
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", bookingID).
			Take(&booking).Error
		if err != nil {
			return notFound(err)
		}
		return fn(gormTx{db: tx}, &booking)
	})
}

// ActiveBookings restituisce le prenotazioni attive con l'alert di prezzo abilitato
func (s *GormStore) ActiveBookings(ctx context.Context) ([]models.Booking, error) {
	var bookings []models.Booking
	err := s.db.WithContext(ctx).
		Where("status = ? AND price_alert_active = ?", models.BookingActive, true).
		Order("id").
		Find(&bookings).Error
	return bookings, err
}

func (s *GormStore) FindBooking(ctx context.Context, id uint) (*models.Booking, error) {
	var booking models.Booking
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&booking).Error; err != nil {
		return nil, notFound(err)
	}
	return &booking, nil
}

func (s *GormStore) FindAlert(ctx context.Context, id uint) (*models.PriceAlert, error) {
	var alert models.PriceAlert
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&alert).Error; err != nil {
		return nil, notFound(err)
	}
	return &alert, nil
}

// RuleForUser restituisce le impostazioni dell'utente, creandole con i valori di default al primo accesso
func (s *GormStore) RuleForUser(ctx context.Context, userID uint) (*models.AlertRule, error) {
	var rule models.AlertRule
	err := s.db.WithContext(ctx).
		Where(models.AlertRule{UserID: userID}).
		Attrs(models.DefaultAlertRule(userID)).
		FirstOrCreate(&rule).Error
	if err != nil {
		return nil, err
	}
	return &rule, nil
}

// DueAlerts restituisce gli alert ancora aperti la cui notifica è in attesa e scaduta
func (s *GormStore) DueAlerts(ctx context.Context, now time.Time, limit int) ([]models.PriceAlert, error) {
	var alerts []models.PriceAlert
	err := s.db.WithContext(ctx).
		Where("status = ? AND dispatch_status = ?", models.AlertNew, models.DispatchPending).
		Where("dispatch_after IS NULL OR dispatch_after <= ?", now).
		Order("id").
		Limit(limit).
		Find(&alerts).Error
	return alerts, err
}

// MarkDispatched segna come inviata la versione dell'alert che è stata consegnata.
// Restituisce false se nel frattempo il valutatore ha aggiornato l'alert: in quel caso
// resta in attesa e viene consegnato con i nuovi valori.
func (s *GormStore) MarkDispatched(ctx context.Context, alert *models.PriceAlert, at time.Time) (bool, error) {
	res := s.db.WithContext(ctx).
		Model(&models.PriceAlert{}).
		Where("id = ? AND dispatch_status = ?", alert.ID, models.DispatchPending).
		Where("triggered_at = ? AND observed_price = ?", alert.TriggeredAt, alert.ObservedPrice).
		Updates(map[string]any{
			"dispatch_status": models.DispatchDispatched,
			"dispatched_at":   at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

type gormTx struct {
	db *gorm.DB
}

func (t gormTx) OpenAlert(bookingID uint) (*models.PriceAlert, error) {
	var alert models.PriceAlert
	err := t.db.Where("booking_id = ? AND status = ?", bookingID, models.AlertNew).
		Order("id DESC").
		Take(&alert).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &alert, nil
}

func (t gormTx) SaveAlert(alert *models.PriceAlert) error {
	return t.db.Save(alert).Error
}

func (t gormTx) RecordPrice(booking *models.Booking) error {
	return t.db.Model(booking).Updates(map[string]any{
		"current_price":   booking.CurrentPrice,
		"last_checked_at": booking.LastCheckedAt,
	}).Error
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
