package routes

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"price-pulse/controllers"
	"price-pulse/middleware"
)

// Setup registra tutte le routes: /health è pubblica, /api richiede un JWT
func Setup(router *gin.Engine, db *gorm.DB, jwtSecret string, checker controllers.PriceChecker) {
	router.GET("/health", controllers.HealthCheck(db))

	api := router.Group("/api", middleware.JWTAuth(jwtSecret))
	SetupBookingRoutes(api, db, checker)
	SetupAlertRoutes(api, db)
}
