package services

import (
	"time"

	"price-pulse/models"
)

// InQuietHours indica se l'istante cade nella fascia di silenzio dell'utente.
// La fascia è [inizio, fine) nel fuso dell'utente e può scavalcare la mezzanotte.
func InQuietHours(rule *models.AlertRule, at time.Time) bool {
	start, end, ok := quietWindow(rule)
	if !ok {
		return false
	}
	local := at.In(rule.Loc())
	m := local.Hour()*60 + local.Minute()
	if start < end {
		return m >= start && m < end
	}
	return m >= start || m < end
}

// quietWindowEnd restituisce la prossima fine della fascia di silenzio dopo at
func quietWindowEnd(rule *models.AlertRule, at time.Time) time.Time {
	_, end, _ := quietWindow(rule)
	local := at.In(rule.Loc())
	next := time.Date(local.Year(), local.Month(), local.Day(), end/60, end%60, 0, 0, local.Location())
	if !next.After(local) {
		next = time.Date(local.Year(), local.Month(), local.Day()+1, end/60, end%60, 0, 0, local.Location())
	}
	return next.UTC()
}

func quietWindow(rule *models.AlertRule) (start, end int, ok bool) {
	if rule.QuietHoursStart == "" || rule.QuietHoursEnd == "" {
		return 0, 0, false
	}
	start, err := models.ParseClock(rule.QuietHoursStart)
	if err != nil {
		return 0, 0, false
	}
	end, err = models.ParseClock(rule.QuietHoursEnd)
	if err != nil || start == end {
		return 0, 0, false
	}
	return start, end, true
}

// nextDigest calcola il prossimo invio riepilogativo (giornaliero o settimanale)
func nextDigest(rule *models.AlertRule, at time.Time) time.Time {
	local := at.In(rule.Loc())
	hour := rule.DigestHour
	if hour < 0 || hour > 23 {
		hour = 9
	}

	switch rule.NotificationFrequency {
	case models.FrequencyWeekly:
		days := (int(time.Monday) - int(local.Weekday()) + 7) % 7
		next := time.Date(local.Year(), local.Month(), local.Day()+days, hour, 0, 0, 0, local.Location())
		if !next.After(local) {
			next = time.Date(local.Year(), local.Month(), local.Day()+days+7, hour, 0, 0, 0, local.Location())
		}
		return next.UTC()
	default:
		next := time.Date(local.Year(), local.Month(), local.Day(), hour, 0, 0, 0, local.Location())
		if !next.After(local) {
			next = time.Date(local.Year(), local.Month(), local.Day()+1, hour, 0, 0, 0, local.Location())
		}
		return next.UTC()
	}
}

// DispatchAfter decide quando inviare la notifica di un alert rilevato in at.
// nil significa invio immediato. La frequenza cambia solo il momento dell'invio.
func DispatchAfter(rule *models.AlertRule, at time.Time) *time.Time {
	var when time.Time
	switch rule.NotificationFrequency {
	case models.FrequencyDaily, models.FrequencyWeekly:
		when = nextDigest(rule, at)
		if InQuietHours(rule, when) {
			when = quietWindowEnd(rule, when)
		}
	default:
		if !InQuietHours(rule, at) {
			return nil
		}
		when = quietWindowEnd(rule, at)
	}
	return &when
}
