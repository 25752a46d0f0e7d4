package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Stati di una prenotazione
const (
	BookingActive    = "active"
	BookingCompleted = "completed"
	BookingPaused    = "paused"
)

// Booking rappresenta un soggiorno prenotato di cui seguiamo il prezzo
type Booking struct {
	ID               uint            `gorm:"primaryKey" json:"id"`
	UserID           uint            `gorm:"not null;index" json:"user_id"`
	HotelName        string          `gorm:"type:varchar(255);not null" json:"hotel_name"`
	Location         string          `gorm:"type:varchar(255)" json:"location"`
	Provider         string          `gorm:"type:varchar(100)" json:"provider"`
	CheckIn          time.Time       `gorm:"type:date;not null" json:"check_in"`
	CheckOut         time.Time       `gorm:"type:date;not null" json:"check_out"`
	Currency         string          `gorm:"type:char(3);not null" json:"currency"`
	OriginalPrice    decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"original_price"` // Prezzo al momento della prenotazione, non cambia più
	CurrentPrice     decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"current_price"`  // Ultimo prezzo osservato
	PriceAlertActive bool            `gorm:"default:true;not null" json:"price_alert_active"`
	Status           string          `gorm:"type:varchar(20);not null;default:active;index" json:"status"`
	LastCheckedAt    *time.Time      `gorm:"type:timestamp" json:"last_checked_at"`
	CreatedAt        time.Time       `gorm:"type:timestamp;not null" json:"created_at"`
	UpdatedAt        time.Time       `gorm:"type:timestamp;not null" json:"updated_at"`
}

// IsTrackable indica se la prenotazione può essere valutata per un alert
func (b *Booking) IsTrackable() bool {
	return b.Status == BookingActive && b.PriceAlertActive && b.OriginalPrice.IsPositive()
}

// ValidBookingStatus verifica che lo stato sia uno di quelli previsti
func ValidBookingStatus(s string) bool {
	switch s {
	case BookingActive, BookingCompleted, BookingPaused:
		return true
	}
	return false
}
