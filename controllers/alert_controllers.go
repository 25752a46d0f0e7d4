package controllers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"price-pulse/middleware"
	"price-pulse/models"
	"price-pulse/services"
)

// GetAlerts restituisce gli alert dell'utente, filtrabili per stato
func GetAlerts(db *gorm.DB) gin.HandlerFunc {
	store := services.NewGormStore(db)
	return func(c *gin.Context) {
		status := c.Query("status")
		switch status {
		case "", models.AlertNew, models.AlertActioned, models.AlertDismissed:
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "Stato non valido"})
			return
		}

		alerts, err := store.ListAlerts(c.Request.Context(), middleware.UserID(c), status)
		if err != nil {
			respondError(c, err, "Alert")
			return
		}
		if alerts == nil {
			alerts = []models.PriceAlert{}
		}
		c.JSON(http.StatusOK, alerts)
	}
}

func GetAlert(db *gorm.DB) gin.HandlerFunc {
	store := services.NewGormStore(db)
	return func(c *gin.Context) {
		id, ok := paramID(c)
		if !ok {
			return
		}
		alert, err := store.UserAlert(c.Request.Context(), middleware.UserID(c), id)
		if err != nil {
			respondError(c, err, "Alert")
			return
		}
		c.JSON(http.StatusOK, alert)
	}
}

// ActionAlert segna l'alert come gestito (l'utente ha agito sul calo di prezzo)
func ActionAlert(db *gorm.DB) gin.HandlerFunc {
	return transitionAlert(db, models.AlertActioned)
}

// DismissAlert segna l'alert come ignorato
func DismissAlert(db *gorm.DB) gin.HandlerFunc {
	return transitionAlert(db, models.AlertDismissed)
}

func transitionAlert(db *gorm.DB, to string) gin.HandlerFunc {
	store := services.NewGormStore(db)
	return func(c *gin.Context) {
		id, ok := paramID(c)
		if !ok {
			return
		}
		alert, err := store.TransitionAlert(c.Request.Context(), middleware.UserID(c), id, to)
		if err != nil {
			respondError(c, err, "Alert")
			return
		}
		c.JSON(http.StatusOK, alert)
	}
}

// MarkAllRead segna come letti tutti gli alert dell'utente senza cambiarne lo stato
func MarkAllRead(db *gorm.DB) gin.HandlerFunc {
	store := services.NewGormStore(db)
	return func(c *gin.Context) {
		n, err := store.MarkAllRead(c.Request.Context(), middleware.UserID(c), time.Now().UTC())
		if err != nil {
			respondError(c, err, "Alert")
			return
		}
		c.JSON(http.StatusOK, gin.H{"updated": n})
	}
}
