package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"price-pulse/models"
)

// ErrRunInProgress viene restituito quando un controllo prezzi è già in esecuzione
var ErrRunInProgress = errors.New("controllo prezzi già in corso")

// outcomeFailed conta nel report le prenotazioni il cui controllo non è riuscito
const outcomeFailed Outcome = "failed"

// PriceSource fornisce il prezzo attuale di una prenotazione (implementato da PriceClient)
type PriceSource interface {
	CurrentPrice(ctx context.Context, booking *models.Booking) (models.PriceObservation, error)
}

// Drainer consegna le notifiche differite ormai scadute (implementato da Dispatcher)
type Drainer interface {
	DrainPending(ctx context.Context, now time.Time) (int, error)
}

// BatchReport riassume un giro di controllo prezzi
type BatchReport struct {
	Checked  int
	Alerted  int
	Skipped  int
	Failed   int
	Drained  int
	Duration time.Duration
}

// PriceMonitor esegue periodicamente il controllo prezzi di tutte le prenotazioni attive
type PriceMonitor struct {
	store        Store
	source       PriceSource
	evaluator    *Evaluator
	drainer      Drainer
	interval     time.Duration
	workers      int
	batchTimeout time.Duration
	running      atomic.Bool
	stopChan     chan struct{}
	now          func() time.Time
}

// NewPriceMonitor crea una nuova istanza del monitor dei prezzi
func NewPriceMonitor(store Store, source PriceSource, evaluator *Evaluator, interval time.Duration) *PriceMonitor {
	if interval < time.Second {
		interval = time.Minute
	}

	return &PriceMonitor{
		store:        store,
		source:       source,
		evaluator:    evaluator,
		interval:     interval,
		workers:      4,
		batchTimeout: 10 * time.Minute,
		stopChan:     make(chan struct{}),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// SetWorkers imposta quante prenotazioni vengono controllate in parallelo
func (pm *PriceMonitor) SetWorkers(n int) {
	if n < 1 {
		n = 1
	}
	pm.workers = n
}

// SetBatchTimeout imposta la durata massima di un giro di controllo
func (pm *PriceMonitor) SetBatchTimeout(d time.Duration) {
	if d > 0 {
		pm.batchTimeout = d
	}
}

// SetDrainer collega il dispatcher che recupera le notifiche in attesa a fine giro
func (pm *PriceMonitor) SetDrainer(d Drainer) {
	pm.drainer = d
}

// Start avvia il controllo periodico in background
func (pm *PriceMonitor) Start() {
	log.Printf("[PriceMonitor] Avvio del monitoraggio (intervallo: %v, worker: %d)", pm.interval, pm.workers)

	go func() {
		pm.tick()

		ticker := time.NewTicker(pm.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				pm.tick()
			case <-pm.stopChan:
				log.Println("[PriceMonitor] Monitoraggio terminato")
				return
			}
		}
	}()
}

// Stop interrompe il controllo periodico
func (pm *PriceMonitor) Stop() {
	log.Println("[PriceMonitor] Arresto del monitoraggio...")
	close(pm.stopChan)
}

func (pm *PriceMonitor) tick() {
	if _, err := pm.RunOnce(context.Background()); err != nil {
		log.Printf("[PriceMonitor] Giro di controllo non eseguito: %v", err)
	}
}

// RunOnce esegue un giro completo di controllo. Se un giro è già in corso
// restituisce ErrRunInProgress senza fare nulla.
func (pm *PriceMonitor) RunOnce(ctx context.Context) (BatchReport, error) {
	if !pm.running.CompareAndSwap(false, true) {
		return BatchReport{}, ErrRunInProgress
	}
	defer pm.running.Store(false)

	ctx, cancel := context.WithTimeout(ctx, pm.batchTimeout)
	defer cancel()

	start := time.Now()
	log.Println("[PriceMonitor] Controllo dei prezzi delle prenotazioni attive...")

	bookings, err := pm.store.ActiveBookings(ctx)
	if err != nil {
		return BatchReport{}, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	log.Printf("[PriceMonitor] Trovate %d prenotazioni da controllare", len(bookings))

	rules := pm.loadRules(ctx, bookings)

	var (
		mu     sync.Mutex
		report BatchReport
		g      errgroup.Group
	)
	g.SetLimit(pm.workers)

	for i := range bookings {
		booking := &bookings[i]
		g.Go(func() error {
			outcome := pm.checkIsolated(ctx, booking, rules[booking.UserID])

			mu.Lock()
			defer mu.Unlock()
			report.Checked++
			switch outcome {
			case OutcomeAlerted:
				report.Alerted++
			case OutcomeSkipped:
				report.Skipped++
			case outcomeFailed:
				report.Failed++
			}
			return nil
		})
	}
	_ = g.Wait()

	if pm.drainer != nil {
		n, err := pm.drainer.DrainPending(ctx, pm.now())
		if err != nil {
			log.Printf("[PriceMonitor] Errore nel recupero delle notifiche in attesa: %v", err)
		}
		report.Drained = n
	}

	report.Duration = time.Since(start)
	log.Printf("[PriceMonitor] Controllo completato in %v: controllate=%d alert=%d saltate=%d fallite=%d notifiche_recuperate=%d",
		report.Duration.Round(time.Millisecond), report.Checked, report.Alerted, report.Skipped, report.Failed, report.Drained)
	return report, nil
}

// loadRules carica una volta sola le impostazioni di ogni utente del giro.
// Gli utenti senza impostazioni leggibili restano fuori dalla mappa.
func (pm *PriceMonitor) loadRules(ctx context.Context, bookings []models.Booking) map[uint]*models.AlertRule {
	rules := make(map[uint]*models.AlertRule)
	for _, b := range bookings {
		if _, done := rules[b.UserID]; done {
			continue
		}
		rule, err := pm.store.RuleForUser(ctx, b.UserID)
		if err != nil {
			log.Printf("[PriceMonitor] Impostazioni dell'utente %d non disponibili: %v", b.UserID, err)
			rules[b.UserID] = nil
			continue
		}
		rules[b.UserID] = rule
	}
	return rules
}

// checkIsolated controlla una prenotazione senza che un suo errore (o panic) fermi il giro
func (pm *PriceMonitor) checkIsolated(ctx context.Context, booking *models.Booking, rule *models.AlertRule) (outcome Outcome) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[PriceMonitor] Panic sulla prenotazione %d: %v", booking.ID, r)
			outcome = outcomeFailed
		}
	}()

	if rule == nil {
		log.Printf("[PriceMonitor] Prenotazione %d saltata: impostazioni utente mancanti", booking.ID)
		return outcomeFailed
	}
	res, err := pm.check(ctx, booking, rule)
	if err != nil {
		log.Printf("[PriceMonitor] Errore per prenotazione %d: %v", booking.ID, err)
		return outcomeFailed
	}
	return res.Outcome
}

// CheckBooking controlla subito una singola prenotazione (controllo manuale)
func (pm *PriceMonitor) CheckBooking(ctx context.Context, booking *models.Booking) (EvaluationResult, error) {
	rule, err := pm.store.RuleForUser(ctx, booking.UserID)
	if err != nil {
		return EvaluationResult{}, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return pm.check(ctx, booking, rule)
}

func (pm *PriceMonitor) check(ctx context.Context, booking *models.Booking, rule *models.AlertRule) (EvaluationResult, error) {
	if !booking.IsTrackable() {
		return EvaluationResult{Outcome: OutcomeSkipped, Reason: ErrInvalidBookingState}, nil
	}
	obs, err := pm.source.CurrentPrice(ctx, booking)
	if err != nil {
		return EvaluationResult{}, err
	}
	return pm.evaluator.Evaluate(ctx, booking, obs, rule)
}
