package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"price-pulse/models"
)

// ErrPriceUnavailable indica che l'API non ha restituito un prezzo utilizzabile
var ErrPriceUnavailable = errors.New("prezzo non disponibile")

// priceResponse è la risposta di GET /v1/prices
type priceResponse struct {
	Price      float64   `json:"price"`
	Currency   string    `json:"currency"`
	ObservedAt time.Time `json:"observed_at"`
}

// PriceClient interroga l'API esterna dei prezzi hotel
type PriceClient struct {
	client *resty.Client
	apiKey string
}

// NewPriceClient crea il client per l'API dei prezzi con il timeout indicato per ogni chiamata
func NewPriceClient(baseURL, apiKey string, timeout time.Duration) *PriceClient {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if apiKey == "" {
		log.Println("[PriceAPI] AVVISO: PRICE_API_KEY non impostata. L'API potrebbe rifiutare le richieste.")
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")

	return &PriceClient{client: client, apiKey: apiKey}
}

// CurrentPrice restituisce il prezzo attuale del soggiorno prenotato
func (p *PriceClient) CurrentPrice(ctx context.Context, booking *models.Booking) (models.PriceObservation, error) {
	startTime := time.Now()

	request := p.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"hotel":     booking.HotelName,
			"location":  booking.Location,
			"provider":  booking.Provider,
			"check_in":  booking.CheckIn.Format(time.DateOnly),
			"check_out": booking.CheckOut.Format(time.DateOnly),
			"currency":  booking.Currency,
		}).
		SetResult(&priceResponse{})

	if p.apiKey != "" {
		request.SetHeader("X-API-Key", p.apiKey)
	}

	resp, err := request.Get("/v1/prices")
	if err != nil {
		return models.PriceObservation{}, fmt.Errorf("richiesta prezzo per prenotazione %d: %w", booking.ID, err)
	}
	log.Printf("[PriceAPI] Prenotazione %d: %s in %v", booking.ID, resp.Status(), time.Since(startTime))

	if resp.IsError() {
		return models.PriceObservation{}, fmt.Errorf("%w: prenotazione %d: risposta %s", ErrPriceUnavailable, booking.ID, resp.Status())
	}

	result := resp.Result().(*priceResponse)
	if result.Price == 0 {
		return models.PriceObservation{}, fmt.Errorf("%w: prenotazione %d: prezzo mancante", ErrPriceUnavailable, booking.ID)
	}

	observedAt := result.ObservedAt
	if observedAt.IsZero() {
		observedAt = time.Now()
	}
	return models.PriceObservation{
		BookingID:  booking.ID,
		Price:      result.Price,
		Currency:   strings.ToUpper(result.Currency),
		ObservedAt: observedAt.UTC(),
	}, nil
}
