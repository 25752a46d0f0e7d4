package telegram

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"price-pulse/models"
)

func TestParseAlertID(t *testing.T) {
	cases := map[string]uint{"12": 12, " #7 extra": 7}
	for in, want := range cases {
		got, err := parseAlertID(in)
		if err != nil || got != want {
			t.Fatalf("%q: got %d, %v", in, got, err)
		}
	}
	for _, in := range []string{"", "abc", "0", "-3"} {
		if _, err := parseAlertID(in); err == nil {
			t.Fatalf("%q: expected error", in)
		}
	}
}

func TestFormatAlerts(t *testing.T) {
	if got := formatAlerts(nil); got != "Non hai alert aperti." {
		t.Fatalf("empty list: got %q", got)
	}

	out := formatAlerts([]models.PriceAlert{{
		ID:            3,
		BookingID:     9,
		Severity:      models.SeverityMedium,
		Currency:      "EUR",
		PreviousPrice: decimal.NewFromInt(200),
		ObservedPrice: decimal.NewFromInt(180),
		DeltaAmount:   decimal.NewFromInt(20),
		DeltaPercent:  decimal.NewFromInt(10),
		TriggeredAt:   time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC),
	}})
	for _, want := range []string{"#3 | medium", "200.00 → 180.00 EUR", "20.00 EUR (10.00%)", "04/03/2026 12:00"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestEnabledRequiresChatID(t *testing.T) {
	var bot TelegramBot
	rule := models.DefaultAlertRule(1)
	rule.NotifyTelegram = true
	if bot.Enabled(&rule) {
		t.Fatal("telegram without chat id should be disabled")
	}
	rule.TelegramChatID = 42
	if !bot.Enabled(&rule) {
		t.Fatal("telegram with chat id should be enabled")
	}
}
