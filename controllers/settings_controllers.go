package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"price-pulse/middleware"
	"price-pulse/services"
)

// GetAlertSettings restituisce le impostazioni di alert, creando quelle di default al primo accesso
func GetAlertSettings(db *gorm.DB) gin.HandlerFunc {
	store := services.NewGormStore(db)
	return func(c *gin.Context) {
		rule, err := store.RuleForUser(c.Request.Context(), middleware.UserID(c))
		if err != nil {
			respondError(c, err, "Impostazioni")
			return
		}
		c.JSON(http.StatusOK, rule)
	}
}

// UpdateAlertSettings aggiorna i soli campi presenti nel corpo della richiesta
func UpdateAlertSettings(db *gorm.DB) gin.HandlerFunc {
	store := services.NewGormStore(db)
	return func(c *gin.Context) {
		userID := middleware.UserID(c)
		rule, err := store.RuleForUser(c.Request.Context(), userID)
		if err != nil {
			respondError(c, err, "Impostazioni")
			return
		}

		id := rule.ID
		if err := c.ShouldBindJSON(rule); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		rule.ID, rule.UserID = id, userID
		if err := rule.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := store.EnsureChatAvailable(c.Request.Context(), rule.TelegramChatID, userID); err != nil {
			respondError(c, err, "Impostazioni")
			return
		}

		if err := db.WithContext(c.Request.Context()).Save(rule).Error; err != nil {
			respondError(c, err, "Impostazioni")
			return
		}
		c.JSON(http.StatusOK, rule)
	}
}
