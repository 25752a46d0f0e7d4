package controllers

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"price-pulse/models"
	"price-pulse/services"
)

// paramID legge l'id dal path. In caso di errore risponde 400 e restituisce false.
func paramID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ID non valido"})
		return 0, false
	}
	return uint(id), true
}

// respondError traduce gli errori di dominio nel codice HTTP corrispondente
func respondError(c *gin.Context, err error, what string) {
	switch {
	case errors.Is(err, services.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": what + " non trovato"})
	case errors.Is(err, models.ErrInvalidTransition), errors.Is(err, services.ErrChatAlreadyLinked):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrPriceUnavailable):
		c.JSON(http.StatusBadGateway, gin.H{"error": "Prezzo non disponibile, riprova più tardi"})
	default:
		log.Printf("[HTTP] %s %s: %v", c.Request.Method, c.FullPath(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Errore interno"})
	}
}
