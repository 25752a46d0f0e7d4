package controllers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"price-pulse/middleware"
	"price-pulse/models"
	"price-pulse/services"
)

// PriceChecker esegue il controllo manuale di una prenotazione (implementato da PriceMonitor)
type PriceChecker interface {
	CheckBooking(ctx context.Context, booking *models.Booking) (services.EvaluationResult, error)
}

func ListBookings(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		bookings := []models.Booking{}
		query := db.WithContext(c.Request.Context()).Where("user_id = ?", middleware.UserID(c))
		if status := c.Query("status"); status != "" {
			query = query.Where("status = ?", status)
		}
		if err := query.Order("check_in").Find(&bookings).Error; err != nil {
			respondError(c, err, "Prenotazione")
			return
		}
		c.JSON(http.StatusOK, bookings)
	}
}

func CreateBooking(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Struttura per il binding dell'input
		var input struct {
			HotelName string          `json:"hotel_name" binding:"required"`
			Location  string          `json:"location"`
			Provider  string          `json:"provider"`
			CheckIn   string          `json:"check_in" binding:"required"`
			CheckOut  string          `json:"check_out" binding:"required"`
			Currency  string          `json:"currency" binding:"required,len=3"`
			Price     decimal.Decimal `json:"price"`
		}

		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		checkIn, err1 := time.Parse(time.DateOnly, input.CheckIn)
		checkOut, err2 := time.Parse(time.DateOnly, input.CheckOut)
		if err1 != nil || err2 != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Date non valide, formato atteso YYYY-MM-DD"})
			return
		}
		if !checkOut.After(checkIn) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "check_out deve essere successivo a check_in"})
			return
		}
		if !input.Price.IsPositive() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Il prezzo deve essere maggiore di zero"})
			return
		}

		price := input.Price.Round(2)
		booking := models.Booking{
			UserID:           middleware.UserID(c),
			HotelName:        strings.TrimSpace(input.HotelName),
			Location:         strings.TrimSpace(input.Location),
			Provider:         strings.TrimSpace(input.Provider),
			CheckIn:          checkIn,
			CheckOut:         checkOut,
			Currency:         strings.ToUpper(input.Currency),
			OriginalPrice:    price,
			CurrentPrice:     price,
			PriceAlertActive: true,
			Status:           models.BookingActive,
		}

		if err := db.WithContext(c.Request.Context()).Create(&booking).Error; err != nil {
			respondError(c, err, "Prenotazione")
			return
		}
		c.JSON(http.StatusCreated, booking)
	}
}

func GetBooking(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		booking, ok := userBooking(c, db)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, booking)
	}
}

// SetPriceAlert attiva o disattiva il monitoraggio del prezzo di una prenotazione
func SetPriceAlert(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			Active *bool `json:"active" binding:"required"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		booking, ok := userBooking(c, db)
		if !ok {
			return
		}

		booking.PriceAlertActive = *input.Active
		if err := db.WithContext(c.Request.Context()).Model(booking).Update("price_alert_active", booking.PriceAlertActive).Error; err != nil {
			respondError(c, err, "Prenotazione")
			return
		}
		c.JSON(http.StatusOK, booking)
	}
}

// SetBookingStatus cambia lo stato della prenotazione (active, paused, completed)
func SetBookingStatus(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			Status string `json:"status" binding:"required"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if !models.ValidBookingStatus(input.Status) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Stato non valido"})
			return
		}
		booking, ok := userBooking(c, db)
		if !ok {
			return
		}

		booking.Status = input.Status
		if err := db.WithContext(c.Request.Context()).Model(booking).Update("status", booking.Status).Error; err != nil {
			respondError(c, err, "Prenotazione")
			return
		}
		c.JSON(http.StatusOK, booking)
	}
}

// CheckBookingPrice controlla subito il prezzo di una prenotazione
func CheckBookingPrice(db *gorm.DB, checker PriceChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		booking, ok := userBooking(c, db)
		if !ok {
			return
		}

		res, err := checker.CheckBooking(c.Request.Context(), booking)
		if err != nil {
			respondError(c, err, "Prenotazione")
			return
		}

		body := gin.H{
			"outcome":       res.Outcome,
			"delta_amount":  res.DeltaAmount,
			"delta_percent": res.DeltaPercent,
			"current_price": booking.CurrentPrice,
		}
		if res.Reason != nil {
			body["reason"] = res.Reason.Error()
		}
		if res.Alert != nil {
			body["alert"] = res.Alert
		}
		c.JSON(http.StatusOK, body)
	}
}

// userBooking carica la prenotazione del path se appartiene all'utente, altrimenti risponde 404
func userBooking(c *gin.Context, db *gorm.DB) (*models.Booking, bool) {
	id, ok := paramID(c)
	if !ok {
		return nil, false
	}
	var booking models.Booking
	err := db.WithContext(c.Request.Context()).
		Where("id = ? AND user_id = ?", id, middleware.UserID(c)).
		Take(&booking).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Prenotazione non trovata"})
		return nil, false
	}
	if err != nil {
		respondError(c, err, "Prenotazione")
		return nil, false
	}
	return &booking, true
}
