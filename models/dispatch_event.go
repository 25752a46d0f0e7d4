package models

import (
	"time"

	"github.com/google/uuid"
)

// DispatchEvent è il messaggio passato al dispatcher delle notifiche
type DispatchEvent struct {
	EventID       string     `json:"event_id"`
	AlertID       uint       `json:"alert_id"`
	BookingID     uint       `json:"booking_id"`
	UserID        uint       `json:"user_id"`
	Severity      string     `json:"severity"`
	DispatchAfter *time.Time `json:"dispatch_after"` // nil = subito
}

// NewDispatchEvent costruisce l'evento di invio per un alert
func NewDispatchEvent(alert *PriceAlert) DispatchEvent {
	return DispatchEvent{
		EventID:       uuid.NewString(),
		AlertID:       alert.ID,
		BookingID:     alert.BookingID,
		UserID:        alert.UserID,
		Severity:      alert.Severity,
		DispatchAfter: alert.DispatchAfter,
	}
}

// Immediate indica se la notifica va inviata subito
func (e DispatchEvent) Immediate() bool {
	return e.DispatchAfter == nil
}
