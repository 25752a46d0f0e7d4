package routes

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"price-pulse/controllers"
)

// SetupAlertRoutes configura le routes per gli alert e le relative impostazioni
func SetupAlertRoutes(api *gin.RouterGroup, db *gorm.DB) {
	alertRoutes := api.Group("/alerts")
	{
		alertRoutes.GET("", controllers.GetAlerts(db))
		alertRoutes.POST("/mark-all-read", controllers.MarkAllRead(db))
		alertRoutes.GET("/:id", controllers.GetAlert(db))
		alertRoutes.POST("/:id/action", controllers.ActionAlert(db))
		alertRoutes.POST("/:id/dismiss", controllers.DismissAlert(db))
	}

	settingsRoutes := api.Group("/settings")
	{
		settingsRoutes.GET("/alerts", controllers.GetAlertSettings(db))
		settingsRoutes.PUT("/alerts", controllers.UpdateAlertSettings(db))
	}
}
