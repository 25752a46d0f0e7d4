package database

import (
	"fmt"
	"log"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"price-pulse/models"
)

// Inizializza la connessione al database
func InitDB(dsn string) (*gorm.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("DATABASE_URL non è impostata nell'ambiente")
	}

	// Connessione a PostgreSQL
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("connessione al database: %w", err)
	}

	// Verifica la connessione
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("accesso al pool di connessioni: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("ping del database: %w", err)
	}

	log.Println("[DB] Connessione al database avvenuta con successo")
	return db, nil
}

// openAlertIndex garantisce al massimo un alert aperto per prenotazione
const openAlertIndex = `CREATE UNIQUE INDEX IF NOT EXISTS idx_price_alerts_open_booking
	ON price_alerts (booking_id) WHERE status = 'new'`

// linkedChatIndex impedisce che due utenti colleghino la stessa chat Telegram
const linkedChatIndex = `CREATE UNIQUE INDEX IF NOT EXISTS idx_alert_rules_linked_chat
	ON alert_rules (telegram_chat_id) WHERE telegram_chat_id <> 0`

// Migrate crea o aggiorna le tabelle
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.Booking{}, &models.AlertRule{}, &models.PriceAlert{}); err != nil {
		return fmt.Errorf("migrazione: %w", err)
	}
	if err := db.Exec(openAlertIndex).Error; err != nil {
		return fmt.Errorf("indice alert aperti: %w", err)
	}
	if err := db.Exec(linkedChatIndex).Error; err != nil {
		return fmt.Errorf("indice chat Telegram: %w", err)
	}
	return nil
}
