package services

import (
	"testing"
	"time"
	_ "time/tzdata"

	"price-pulse/models"
)

func ruleWithQuiet(start, end string) *models.AlertRule {
	r := models.DefaultAlertRule(1)
	r.QuietHoursStart = start
	r.QuietHoursEnd = end
	return &r
}

func at(hour, min int) time.Time {
	// 2026-03-04 è un mercoledì
	return time.Date(2026, 3, 4, hour, min, 0, 0, time.UTC)
}

func TestInQuietHoursSameDayWindow(t *testing.T) {
	r := ruleWithQuiet("13:00", "15:00")
	cases := map[time.Time]bool{
		at(12, 59): false,
		at(13, 0):  true,
		at(14, 30): true,
		at(15, 0):  false,
	}
	for when, want := range cases {
		if got := InQuietHours(r, when); got != want {
			t.Errorf("InQuietHours(%s) = %v, want %v", when.Format("15:04"), got, want)
		}
	}
}

func TestInQuietHoursWrapsMidnight(t *testing.T) {
	r := ruleWithQuiet("22:00", "07:00")
	cases := map[time.Time]bool{
		at(21, 59): false,
		at(22, 0):  true,
		at(23, 59): true,
		at(0, 0):   true,
		at(6, 59):  true,
		at(7, 0):   false,
		at(12, 0):  false,
	}
	for when, want := range cases {
		if got := InQuietHours(r, when); got != want {
			t.Errorf("InQuietHours(%s) = %v, want %v", when.Format("15:04"), got, want)
		}
	}
}

func TestInQuietHoursDisabled(t *testing.T) {
	for _, r := range []*models.AlertRule{ruleWithQuiet("", ""), ruleWithQuiet("08:00", "08:00"), ruleWithQuiet("bad", "07:00")} {
		if InQuietHours(r, at(8, 0)) {
			t.Errorf("window %q-%q should be disabled", r.QuietHoursStart, r.QuietHoursEnd)
		}
	}
}

func TestInQuietHoursUsesUserTimezone(t *testing.T) {
	r := ruleWithQuiet("22:00", "07:00")
	r.Timezone = "Europe/Rome"
	// 21:30 UTC = 22:30 a Roma in inverno
	if !InQuietHours(r, at(21, 30)) {
		t.Fatal("21:30 UTC should be quiet in Europe/Rome")
	}
	if InQuietHours(r, at(6, 30)) {
		t.Fatal("06:30 UTC is 07:30 in Rome, should not be quiet")
	}
}

func TestDispatchAfterImmediate(t *testing.T) {
	r := ruleWithQuiet("22:00", "07:00")
	if got := DispatchAfter(r, at(12, 0)); got != nil {
		t.Fatalf("expected immediate dispatch, got %v", got)
	}
}

func TestDispatchAfterDefersToQuietEnd(t *testing.T) {
	r := ruleWithQuiet("22:00", "07:00")

	got := DispatchAfter(r, at(23, 15))
	want := time.Date(2026, 3, 5, 7, 0, 0, 0, time.UTC)
	if got == nil || !got.Equal(want) {
		t.Fatalf("before midnight: got %v want %v", got, want)
	}

	got = DispatchAfter(r, at(3, 0))
	want = time.Date(2026, 3, 4, 7, 0, 0, 0, time.UTC)
	if got == nil || !got.Equal(want) {
		t.Fatalf("after midnight: got %v want %v", got, want)
	}
}

func TestDispatchAfterDailyDigest(t *testing.T) {
	r := models.DefaultAlertRule(1)
	r.NotificationFrequency = models.FrequencyDaily

	got := DispatchAfter(&r, at(8, 0))
	want := time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC)
	if got == nil || !got.Equal(want) {
		t.Fatalf("before digest hour: got %v want %v", got, want)
	}

	got = DispatchAfter(&r, at(9, 0))
	want = time.Date(2026, 3, 5, 9, 0, 0, 0, time.UTC)
	if got == nil || !got.Equal(want) {
		t.Fatalf("at digest hour: got %v want %v", got, want)
	}
}

func TestDispatchAfterWeeklyDigest(t *testing.T) {
	r := models.DefaultAlertRule(1)
	r.NotificationFrequency = models.FrequencyWeekly

	got := DispatchAfter(&r, at(12, 0))
	want := time.Date(2026, 3, 9, 9, 0, 0, 0, time.UTC) // lunedì successivo
	if got == nil || !got.Equal(want) {
		t.Fatalf("got %v want %v", got, want)
	}

	monday := time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC)
	got = DispatchAfter(&r, monday)
	want = time.Date(2026, 3, 16, 9, 0, 0, 0, time.UTC)
	if got == nil || !got.Equal(want) {
		t.Fatalf("monday after digest: got %v want %v", got, want)
	}
}

func TestDispatchAfterDigestInsideQuietHours(t *testing.T) {
	r := ruleWithQuiet("06:00", "10:00")
	r.NotificationFrequency = models.FrequencyDaily

	got := DispatchAfter(r, at(12, 0))
	want := time.Date(2026, 3, 5, 10, 0, 0, 0, time.UTC)
	if got == nil || !got.Equal(want) {
		t.Fatalf("got %v want %v", got, want)
	}
}
