package models

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Frequenze di notifica
const (
	FrequencyImmediate = "immediate"
	FrequencyDaily     = "daily"
	FrequencyWeekly    = "weekly"
)

// AlertRule contiene le impostazioni di alert di un utente (una per utente)
type AlertRule struct {
	ID                    uint                        `gorm:"primaryKey" json:"id"`
	UserID                uint                        `gorm:"not null;uniqueIndex" json:"user_id"`
	MinPriceDropAmount    decimal.Decimal             `gorm:"type:numeric(12,2);not null" json:"min_price_drop_amount"`
	MinPriceDropPercent   decimal.Decimal             `gorm:"type:numeric(6,2);not null" json:"min_price_drop_percent"`
	NotifyEmail           bool                        `gorm:"default:true;not null" json:"notify_email"`
	NotifyPush            bool                        `gorm:"default:false;not null" json:"notify_push"`
	NotifySMS             bool                        `gorm:"default:false;not null" json:"notify_sms"`
	NotifyTelegram        bool                        `gorm:"default:false;not null" json:"notify_telegram"`
	TelegramChatID        int64                       `gorm:"index" json:"telegram_chat_id"`
	WebhookURL            string                      `gorm:"type:varchar(500)" json:"webhook_url"`
	NotificationFrequency string                      `gorm:"type:varchar(20);not null;default:immediate" json:"notification_frequency"`
	QuietHoursStart       string                      `gorm:"type:varchar(5)" json:"quiet_hours_start"` // "HH:MM", vuoto = nessuna fascia
	QuietHoursEnd         string                      `gorm:"type:varchar(5)" json:"quiet_hours_end"`
	Timezone              string                      `gorm:"type:varchar(64);not null;default:UTC" json:"timezone"`
	DigestHour            int                         `gorm:"not null;default:9" json:"digest_hour"`
	ExcludedProviders     datatypes.JSONSlice[string] `gorm:"type:jsonb;not null;default:'[]'" json:"excluded_providers"`
	ExcludedLocations     datatypes.JSONSlice[string] `gorm:"type:jsonb;not null;default:'[]'" json:"excluded_locations"`
	CreatedAt             time.Time                   `gorm:"type:timestamp;not null" json:"created_at"`
	UpdatedAt             time.Time                   `gorm:"type:timestamp;not null" json:"updated_at"`
}

// DefaultAlertRule restituisce le impostazioni create al primo accesso
func DefaultAlertRule(userID uint) AlertRule {
	return AlertRule{
		UserID:                userID,
		MinPriceDropAmount:    decimal.NewFromInt(10),
		MinPriceDropPercent:   decimal.NewFromInt(5),
		NotifyEmail:           true,
		NotificationFrequency: FrequencyImmediate,
		Timezone:              "UTC",
		DigestHour:            9,
	}
}

// Validate controlla la coerenza delle impostazioni prima del salvataggio
func (r *AlertRule) Validate() error {
	if r.MinPriceDropAmount.IsNegative() {
		return errors.New("min_price_drop_amount non può essere negativo")
	}
	if r.MinPriceDropPercent.IsNegative() || r.MinPriceDropPercent.GreaterThan(decimal.NewFromInt(100)) {
		return errors.New("min_price_drop_percent deve essere tra 0 e 100")
	}
	switch r.NotificationFrequency {
	case FrequencyImmediate, FrequencyDaily, FrequencyWeekly:
	default:
		return fmt.Errorf("notification_frequency non valida: %q", r.NotificationFrequency)
	}
	if (r.QuietHoursStart == "") != (r.QuietHoursEnd == "") {
		return errors.New("quiet_hours_start e quiet_hours_end vanno impostati insieme")
	}
	if r.QuietHoursStart != "" {
		if _, err := ParseClock(r.QuietHoursStart); err != nil {
			return fmt.Errorf("quiet_hours_start: %w", err)
		}
		if _, err := ParseClock(r.QuietHoursEnd); err != nil {
			return fmt.Errorf("quiet_hours_end: %w", err)
		}
	}
	if _, err := time.LoadLocation(r.Timezone); err != nil {
		return fmt.Errorf("timezone non valida: %q", r.Timezone)
	}
	if r.DigestHour < 0 || r.DigestHour > 23 {
		return errors.New("digest_hour deve essere tra 0 e 23")
	}
	return nil
}

// Loc restituisce il fuso orario dell'utente, UTC se non valido
func (r *AlertRule) Loc() *time.Location {
	if r.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(r.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Excludes indica se la prenotazione è esclusa per fornitore o località
func (r *AlertRule) Excludes(b *Booking) bool {
	return containsFold(r.ExcludedProviders, b.Provider) || containsFold(r.ExcludedLocations, b.Location)
}

// ThresholdDescription descrive in forma leggibile la regola che ha generato l'alert
func (r *AlertRule) ThresholdDescription(currency string) string {
	return fmt.Sprintf("calo >= %s %s e >= %s%%",
		r.MinPriceDropAmount.StringFixed(2), currency, r.MinPriceDropPercent.String())
}

// ParseClock converte "HH:MM" in minuti dalla mezzanotte
func ParseClock(s string) (int, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("orario non valido %q, formato atteso HH:MM", s)
	}
	return t.Hour()*60 + t.Minute(), nil
}

func containsFold(list []string, v string) bool {
	if v == "" {
		return false
	}
	for _, item := range list {
		if strings.EqualFold(strings.TrimSpace(item), v) {
			return true
		}
	}
	return false
}
