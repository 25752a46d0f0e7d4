package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"price-pulse/models"
)

// Errori della valutazione. I primi due producono un risultato "skipped",
// ErrArithmeticDegenerate un risultato senza alert, ErrStoreUnavailable viene propagato.
var (
	ErrInvalidBookingState  = errors.New("stato della prenotazione non valido")
	ErrInvalidObservation   = errors.New("prezzo osservato non valido")
	ErrArithmeticDegenerate = errors.New("prezzo corrente pari a zero")
	ErrExcluded             = errors.New("prenotazione esclusa dalle impostazioni")
	ErrStoreUnavailable     = errors.New("store non disponibile")
)

// Outcome è l'esito di una valutazione
type Outcome string

const (
	OutcomeSkipped Outcome = "skipped"
	OutcomeNoAlert Outcome = "no_alert"
	OutcomeAlerted Outcome = "alerted"
)

var hundred = decimal.NewFromInt(100)

// EvaluationResult descrive cosa ha deciso il valutatore per un'osservazione
type EvaluationResult struct {
	Outcome      Outcome
	Reason       error // motivo per skipped o per un mancato alert, nil se la soglia non è stata superata
	Alert        *models.PriceAlert
	Created      bool // true se l'alert è nuovo, false se è stato aggiornato quello aperto
	DeltaAmount  decimal.Decimal
	DeltaPercent decimal.Decimal
	Dispatch     *models.DispatchEvent
}

// Alerted indica se la valutazione ha prodotto o aggiornato un alert
func (r EvaluationResult) Alerted() bool {
	return r.Outcome == OutcomeAlerted
}

// Evaluator decide, per ogni nuovo prezzo osservato, se generare un alert di calo prezzo
type Evaluator struct {
	store      Store
	locks      *KeyedMutex
	dispatchCh chan<- models.DispatchEvent
	now        func() time.Time
}

// NewEvaluator crea un valutatore sullo store indicato
func NewEvaluator(store Store) *Evaluator {
	return &Evaluator{
		store: store,
		locks: NewKeyedMutex(),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// SetDispatchChannel imposta il canale verso il dispatcher delle notifiche
func (e *Evaluator) SetDispatchChannel(ch chan<- models.DispatchEvent) {
	e.dispatchCh = ch
}

// Evaluate valuta un'osservazione di prezzo per la prenotazione secondo la regola dell'utente.
// Restituisce un errore solo se lo store non è raggiungibile.
func (e *Evaluator) Evaluate(ctx context.Context, booking *models.Booking, obs models.PriceObservation, rule *models.AlertRule) (EvaluationResult, error) {
	if !booking.IsTrackable() {
		log.Printf("[Evaluator] Prenotazione %d saltata: stato=%s alert_attivo=%v prezzo_originale=%s",
			booking.ID, booking.Status, booking.PriceAlertActive, booking.OriginalPrice)
		return EvaluationResult{Outcome: OutcomeSkipped, Reason: ErrInvalidBookingState}, nil
	}

	price, err := observedPrice(booking, obs)
	if err != nil {
		log.Printf("[Evaluator] Prenotazione %d saltata: %v", booking.ID, err)
		return EvaluationResult{Outcome: OutcomeSkipped, Reason: err}, nil
	}

	observedAt := obs.ObservedAt
	if observedAt.IsZero() {
		observedAt = e.now()
	}

	unlock := e.locks.Lock(booking.ID)
	defer unlock()

	var res EvaluationResult
	err = e.store.WithBookingLock(ctx, booking.ID, func(tx StoreTx, current *models.Booking) error {
		// La riga appena bloccata può essere cambiata dopo la lettura del chiamante
		if !current.IsTrackable() {
			res = EvaluationResult{Outcome: OutcomeSkipped, Reason: ErrInvalidBookingState}
			return nil
		}

		var err error
		res, err = evaluateLocked(tx, current, price, observedAt, rule)
		if err != nil {
			return err
		}
		*booking = *current
		return nil
	})
	if err != nil {
		return EvaluationResult{}, fmt.Errorf("%w: prenotazione %d: %w", ErrStoreUnavailable, booking.ID, err)
	}

	if res.Alerted() {
		verb := "aggiornato"
		if res.Created {
			verb = "creato"
		}
		log.Printf("[Evaluator] Alert %d %s per prenotazione %d: calo %s %s (%s%%), severità %s",
			res.Alert.ID, verb, booking.ID, res.DeltaAmount.StringFixed(2), booking.Currency,
			res.DeltaPercent.StringFixed(2), res.Alert.Severity)
		e.handOff(res.Dispatch)
	}
	return res, nil
}

// evaluateLocked applica le regole sulla riga bloccata e salva prezzo e alert
func evaluateLocked(tx StoreTx, booking *models.Booking, price decimal.Decimal, at time.Time, rule *models.AlertRule) (EvaluationResult, error) {
	previous := booking.CurrentPrice
	res := EvaluationResult{Outcome: OutcomeNoAlert, DeltaAmount: previous.Sub(price)}

	// Il riferimento per il prossimo confronto è sempre l'ultima osservazione
	booking.CurrentPrice = price
	booking.LastCheckedAt = &at

	switch {
	case !previous.IsPositive():
		res.Reason = ErrArithmeticDegenerate
	default:
		res.DeltaPercent = res.DeltaAmount.Mul(hundred).DivRound(previous, 4)
		if qualifies(res.DeltaAmount, res.DeltaPercent, rule) {
			if rule.Excludes(booking) {
				res.Reason = ErrExcluded
				break
			}
			alert, created, err := upsertOpenAlert(tx, booking, previous, price, res, at, rule)
			if err != nil {
				return EvaluationResult{}, err
			}
			res.Outcome = OutcomeAlerted
			res.Alert = alert
			res.Created = created
			event := models.NewDispatchEvent(alert)
			res.Dispatch = &event
		}
	}

	if err := tx.RecordPrice(booking); err != nil {
		return EvaluationResult{}, err
	}
	return res, nil
}

// upsertOpenAlert aggiorna l'alert aperto della prenotazione o ne crea uno nuovo
func upsertOpenAlert(tx StoreTx, booking *models.Booking, previous, price decimal.Decimal, res EvaluationResult, at time.Time, rule *models.AlertRule) (*models.PriceAlert, bool, error) {
	alert, err := tx.OpenAlert(booking.ID)
	if err != nil {
		return nil, false, err
	}
	created := alert == nil
	if created {
		alert = &models.PriceAlert{
			BookingID: booking.ID,
			UserID:    booking.UserID,
			Currency:  booking.Currency,
			Status:    models.AlertNew,
		}
	}

	alert.PreviousPrice = previous
	alert.ObservedPrice = price
	alert.DeltaAmount = res.DeltaAmount
	alert.DeltaPercent = res.DeltaPercent
	alert.Severity = models.ClassifySeverity(res.DeltaPercent)
	alert.TriggeredAt = at
	alert.RuleThreshold = rule.ThresholdDescription(booking.Currency)
	alert.DispatchStatus = models.DispatchPending
	alert.DispatchAfter = DispatchAfter(rule, at)
	alert.DispatchedAt = nil

	if err := tx.SaveAlert(alert); err != nil {
		return nil, false, err
	}
	return alert, created, nil
}

// qualifies richiede che entrambe le soglie siano superate
func qualifies(amount, percent decimal.Decimal, rule *models.AlertRule) bool {
	return amount.IsPositive() &&
		amount.GreaterThanOrEqual(rule.MinPriceDropAmount) &&
		percent.GreaterThanOrEqual(rule.MinPriceDropPercent)
}

// observedPrice valida l'osservazione e la converte in importo a due decimali
func observedPrice(booking *models.Booking, obs models.PriceObservation) (decimal.Decimal, error) {
	if math.IsNaN(obs.Price) || math.IsInf(obs.Price, 0) || obs.Price <= 0 {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrInvalidObservation, obs.Price)
	}
	if obs.Currency != "" && !strings.EqualFold(obs.Currency, booking.Currency) {
		return decimal.Zero, fmt.Errorf("%w: valuta %s diversa da %s", ErrInvalidObservation, obs.Currency, booking.Currency)
	}
	price := decimal.NewFromFloat(obs.Price).Round(2)
	if !price.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrInvalidObservation, obs.Price)
	}
	return price, nil
}

// handOff passa al dispatcher le notifiche da inviare subito. Quelle differite
// restano in attesa e vengono prese da DrainPending.
func (e *Evaluator) handOff(event *models.DispatchEvent) {
	if event == nil {
		return
	}
	if !event.Immediate() {
		log.Printf("[Evaluator] Notifica per alert %d rinviata a %s", event.AlertID, event.DispatchAfter.Format(time.RFC3339))
		return
	}
	if e.dispatchCh == nil {
		log.Printf("[Evaluator] Canale dispatcher non configurato, alert %d resta in attesa", event.AlertID)
		return
	}

	select {
	case e.dispatchCh <- *event:
	default:
		log.Printf("[Evaluator] Buffer del dispatcher pieno, alert %d resta in attesa", event.AlertID)
	}
}
