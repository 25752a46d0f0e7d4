package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"

	"price-pulse/models"
)

const (
	dispatchTimeout  = 30 * time.Second
	drainBatchSize   = 500
	defaultQueueSize = 100
)

// Message è la notifica di calo prezzo consegnata ai canali
type Message struct {
	AlertID       uint            `json:"alert_id"`
	BookingID     uint            `json:"booking_id"`
	UserID        uint            `json:"user_id"`
	HotelName     string          `json:"hotel_name"`
	Location      string          `json:"location"`
	Currency      string          `json:"currency"`
	PreviousPrice decimal.Decimal `json:"previous_price"`
	ObservedPrice decimal.Decimal `json:"observed_price"`
	DeltaAmount   decimal.Decimal `json:"delta_amount"`
	DeltaPercent  decimal.Decimal `json:"delta_percent"`
	Severity      string          `json:"severity"`
	TriggeredAt   time.Time       `json:"triggered_at"`
	Text          string          `json:"text"`
}

// Channel è un mezzo di consegna delle notifiche (Telegram, broker, webhook, console)
type Channel interface {
	Name() string
	Enabled(rule *models.AlertRule) bool
	Send(ctx context.Context, rule *models.AlertRule, msg Message) error
}

// NewMessage costruisce il messaggio di notifica per un alert
func NewMessage(alert *models.PriceAlert, booking *models.Booking) Message {
	text := fmt.Sprintf("📉 Prezzo in calo per %s (%s)\n\nPrima: %s %s\nOra: %s %s\nRisparmio: %s %s (%s%%)\nSeverità: %s",
		booking.HotelName, booking.Location,
		alert.PreviousPrice.StringFixed(2), alert.Currency,
		alert.ObservedPrice.StringFixed(2), alert.Currency,
		alert.DeltaAmount.StringFixed(2), alert.Currency, alert.DeltaPercent.StringFixed(2),
		alert.Severity)

	return Message{
		AlertID:       alert.ID,
		BookingID:     alert.BookingID,
		UserID:        alert.UserID,
		HotelName:     booking.HotelName,
		Location:      booking.Location,
		Currency:      alert.Currency,
		PreviousPrice: alert.PreviousPrice,
		ObservedPrice: alert.ObservedPrice,
		DeltaAmount:   alert.DeltaAmount,
		DeltaPercent:  alert.DeltaPercent,
		Severity:      alert.Severity,
		TriggeredAt:   alert.TriggeredAt,
		Text:          text,
	}
}

// Dispatcher consegna le notifiche degli alert sui canali abilitati dall'utente
type Dispatcher struct {
	store    Store
	channels []Channel
	locks    *KeyedMutex
	queue    chan models.DispatchEvent
	stopChan chan struct{}
	done     chan struct{}
	now      func() time.Time
}

// NewDispatcher crea il dispatcher con una coda di dimensione buffer
func NewDispatcher(store Store, buffer int, channels ...Channel) *Dispatcher {
	if buffer <= 0 {
		buffer = defaultQueueSize
	}
	return &Dispatcher{
		store:    store,
		channels: channels,
		locks:    NewKeyedMutex(),
		queue:    make(chan models.DispatchEvent, buffer),
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Queue restituisce il canale su cui il valutatore deposita gli eventi immediati
func (d *Dispatcher) Queue() chan<- models.DispatchEvent {
	return d.queue
}

// Start avvia la goroutine che consuma la coda
func (d *Dispatcher) Start() {
	log.Printf("[Dispatcher] Avvio con %d canali", len(d.channels))

	go func() {
		defer close(d.done)
		for {
			select {
			case ev := <-d.queue:
				ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
				if err := d.Dispatch(ctx, ev); err != nil {
					log.Printf("[Dispatcher] Alert %d non consegnato, resta in attesa: %v", ev.AlertID, err)
				}
				cancel()
			case <-d.stopChan:
				log.Println("[Dispatcher] Terminato")
				return
			}
		}
	}()
}

// Stop ferma il consumo della coda. Gli eventi rimasti sono recuperati da DrainPending.
func (d *Dispatcher) Stop() {
	log.Println("[Dispatcher] Arresto in corso...")
	close(d.stopChan)
	<-d.done
}

// Dispatch consegna la notifica di un alert. L'alert è segnato come inviato se almeno
// un canale ha avuto successo o se l'utente non ha canali abilitati.
func (d *Dispatcher) Dispatch(ctx context.Context, ev models.DispatchEvent) error {
	_, err := d.deliver(ctx, ev.AlertID, d.now())
	return err
}

// deliver restituisce true se l'alert è stato segnato come inviato
func (d *Dispatcher) deliver(ctx context.Context, alertID uint, now time.Time) (bool, error) {
	unlock := d.locks.Lock(alertID)
	defer unlock()

	alert, err := d.store.FindAlert(ctx, alertID)
	if err != nil {
		return false, fmt.Errorf("caricamento alert %d: %w", alertID, err)
	}
	switch {
	case !alert.IsOpen():
		log.Printf("[Dispatcher] Alert %d in stato %s, notifica annullata", alert.ID, alert.Status)
		return false, nil
	case alert.DispatchStatus == models.DispatchDispatched:
		return false, nil
	case alert.DispatchAfter != nil && alert.DispatchAfter.After(now):
		return false, nil
	}

	booking, err := d.store.FindBooking(ctx, alert.BookingID)
	if err != nil {
		return false, fmt.Errorf("caricamento prenotazione %d: %w", alert.BookingID, err)
	}
	rule, err := d.store.RuleForUser(ctx, alert.UserID)
	if err != nil {
		return false, fmt.Errorf("caricamento impostazioni utente %d: %w", alert.UserID, err)
	}

	msg := NewMessage(alert, booking)
	enabled, sent := 0, 0
	var failures []error
	for _, ch := range d.channels {
		if !ch.Enabled(rule) {
			continue
		}
		enabled++
		if err := ch.Send(ctx, rule, msg); err != nil {
			log.Printf("[Dispatcher] Canale %s fallito per alert %d: %v", ch.Name(), alert.ID, err)
			failures = append(failures, fmt.Errorf("%s: %w", ch.Name(), err))
			continue
		}
		sent++
	}

	if enabled > 0 && sent == 0 {
		return false, errors.Join(failures...)
	}
	marked, err := d.store.MarkDispatched(ctx, alert, now)
	if err != nil {
		return false, fmt.Errorf("aggiornamento alert %d: %w", alert.ID, err)
	}
	if !marked {
		log.Printf("[Dispatcher] Alert %d aggiornato durante l'invio, resta in attesa", alert.ID)
		return false, nil
	}
	log.Printf("[Dispatcher] Alert %d consegnato su %d/%d canali", alert.ID, sent, enabled)
	return true, nil
}

// DrainPending consegna gli alert in attesa la cui notifica è scaduta.
// Restituisce quanti sono stati consegnati.
func (d *Dispatcher) DrainPending(ctx context.Context, now time.Time) (int, error) {
	due, err := d.store.DueAlerts(ctx, now, drainBatchSize)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	if len(due) == 0 {
		return 0, nil
	}

	delivered := 0
	for _, alert := range due {
		if ctx.Err() != nil {
			break
		}
		ok, err := d.deliver(ctx, alert.ID, now)
		if err != nil {
			log.Printf("[Dispatcher] Alert %d ancora in attesa: %v", alert.ID, err)
			continue
		}
		if ok {
			delivered++
		}
	}

	log.Printf("[Dispatcher] Recuperati %d/%d alert in attesa", delivered, len(due))
	return delivered, nil
}
