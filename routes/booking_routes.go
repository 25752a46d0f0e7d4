package routes

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"price-pulse/controllers"
)

// SetupBookingRoutes configura le routes per le prenotazioni
func SetupBookingRoutes(api *gin.RouterGroup, db *gorm.DB, checker controllers.PriceChecker) {
	bookingRoutes := api.Group("/bookings")
	{
		bookingRoutes.GET("", controllers.ListBookings(db))
		bookingRoutes.POST("", controllers.CreateBooking(db))
		bookingRoutes.GET("/:id", controllers.GetBooking(db))
		bookingRoutes.PUT("/:id/price-alert", controllers.SetPriceAlert(db))
		bookingRoutes.PUT("/:id/status", controllers.SetBookingStatus(db))
		bookingRoutes.POST("/:id/check", controllers.CheckBookingPrice(db, checker))
	}
}
