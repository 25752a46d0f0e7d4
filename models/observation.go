package models

import "time"

// PriceObservation è un prezzo rilevato per una prenotazione. Non viene salvato.
type PriceObservation struct {
	BookingID  uint
	Price      float64
	Currency   string
	ObservedAt time.Time
}
