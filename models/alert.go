package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Stati di un alert di prezzo
const (
	AlertNew       = "new"
	AlertActioned  = "actioned"
	AlertDismissed = "dismissed"
)

// Livelli di severità
const (
	SeverityLow    = "low"
	SeverityMedium = "medium"
	SeverityHigh   = "high"
)

// Stati di invio della notifica
const (
	DispatchPending    = "pending"
	DispatchDispatched = "dispatched"
)

// ErrInvalidTransition viene restituito per un cambio di stato non consentito
var ErrInvalidTransition = errors.New("transizione di stato non consentita")

// PriceAlert rappresenta un calo di prezzo rilevato su una prenotazione
type PriceAlert struct {
	ID             uint            `gorm:"primaryKey" json:"id"`
	BookingID      uint            `gorm:"not null;index" json:"booking_id"`
	UserID         uint            `gorm:"not null;index" json:"user_id"`
	PreviousPrice  decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"previous_price"` // Prezzo di riferimento prima del calo
	ObservedPrice  decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"observed_price"`
	Currency       string          `gorm:"type:char(3);not null" json:"currency"`
	DeltaAmount    decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"delta_amount"`
	DeltaPercent   decimal.Decimal `gorm:"type:numeric(9,4);not null" json:"delta_percent"`
	Severity       string          `gorm:"type:varchar(10);not null" json:"severity"`
	Status         string          `gorm:"type:varchar(20);not null;default:new;index" json:"status"`
	TriggeredAt    time.Time       `gorm:"type:timestamp;not null" json:"triggered_at"`
	RuleThreshold  string          `gorm:"type:varchar(255)" json:"rule_threshold"`
	DispatchStatus string          `gorm:"type:varchar(20);not null;default:pending;index" json:"dispatch_status"`
	DispatchAfter  *time.Time      `gorm:"type:timestamp" json:"dispatch_after"`
	DispatchedAt   *time.Time      `gorm:"type:timestamp" json:"dispatched_at"`
	ReadAt         *time.Time      `gorm:"type:timestamp" json:"read_at"`
	CreatedAt      time.Time       `gorm:"type:timestamp;not null" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"type:timestamp;not null" json:"updated_at"`
}

// IsOpen indica se l'alert è ancora da gestire
func (a *PriceAlert) IsOpen() bool {
	return a.Status == AlertNew
}

// Transition applica un'azione dell'utente. actioned e dismissed sono stati finali.
func (a *PriceAlert) Transition(to string) error {
	if a.Status != AlertNew || (to != AlertActioned && to != AlertDismissed) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, a.Status, to)
	}
	a.Status = to
	return nil
}

// ClassifySeverity assegna la severità in base alla percentuale di calo.
// Ogni fascia include il proprio limite inferiore.
func ClassifySeverity(percent decimal.Decimal) string {
	switch {
	case percent.GreaterThanOrEqual(decimal.NewFromInt(25)):
		return SeverityHigh
	case percent.GreaterThanOrEqual(decimal.NewFromInt(10)):
		return SeverityMedium
	default:
		return SeverityLow
	}
}
