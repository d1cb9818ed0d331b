package scheduler

import (
	"errors"
	"testing"
	"time"
)

// --- NextRun Tests ---

func TestNextRun_CronStrictlyAfter(t *testing.T) {
	// now ровно на границе срабатывания — ожидаем следующее, а не текущее
	now := time.Date(2026, 3, 10, 12, 5, 0, 0, time.UTC)

	next, err := NextRun("*/5 * * * *", "UTC", now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := time.Date(2026, 3, 10, 12, 10, 0, 0, time.UTC)
	if next == nil || !next.Equal(want) {
		t.Fatalf("expected %v, got %v", want, next)
	}
}

func TestNextRun_CronProperty(t *testing.T) {
	exprs := []string{"*/5 * * * *", "0 * * * *", "30 2 * * 1-5", "0 0 1 * *"}
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for _, expr := range exprs {
		for i := 0; i < 200; i++ {
			now := start.Add(time.Duration(i*37) * time.Minute)
			next, err := NextRun(expr, "UTC", now)
			if err != nil {
				t.Fatalf("%s: %v", expr, err)
			}
			if next == nil || !next.After(now) {
				t.Fatalf("%s: next %v not after %v", expr, next, now)
			}
		}
	}
}

func TestNextRun_CronSundayAsSeven(t *testing.T) {
	// 2026-03-14 — суббота
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	sunday := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)

	for _, expr := range []string{"0 0 * * 7", "0 0 * * 0", "0 0 * * 6-7", "0 0 * * 1,7"} {
		next, err := NextRun(expr, "UTC", now)
		if err != nil {
			t.Fatalf("%s: %v", expr, err)
		}
		if next == nil || !next.Equal(sunday) {
			t.Errorf("%s: expected %v, got %v", expr, sunday, next)
		}
	}
}

func TestNormalizeDOW(t *testing.T) {
	tests := []struct {
		expr string
		want string
	}{
		{"0 0 * * 7", "0 0 * * 0"},
		{"0 0 * * 5-7", "0 0 * * 5,6,0"},
		{"0 0 * * 1-7/2", "0 0 * * 1,3,5,0"},
		{"0 0 * * 1-5", "0 0 * * 1-5"},
		{"0 0 * * */2", "0 0 * * */2"},
		{"0 0 * * MON", "0 0 * * MON"},
		{"1h", "1h"},
	}
	for _, tt := range tests {
		if got := normalizeDOW(tt.expr); got != tt.want {
			t.Errorf("normalizeDOW(%q) = %q, want %q", tt.expr, got, tt.want)
		}
	}
}

func TestNextRun_CronTimezone(t *testing.T) {
	// 09:00 в Москве (UTC+3) — это 06:00 UTC
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	next, err := NextRun("0 9 * * *", "Europe/Moscow", now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := time.Date(2026, 6, 1, 6, 0, 0, 0, time.UTC)
	if next == nil || !next.Equal(want) {
		t.Fatalf("expected %v, got %v", want, next)
	}
	if next.Location() != time.UTC {
		t.Errorf("expected UTC result, got %v", next.Location())
	}
}

func TestNextRun_InstantFuture(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	next, err := NextRun("2030-01-01T12:00:00Z", "UTC", now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := time.Date(2030, 1, 1, 12, 0, 0, 0, time.UTC)
	if next == nil || !next.Equal(want) {
		t.Fatalf("expected %v, got %v", want, next)
	}
}

func TestNextRun_InstantPast(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for _, expr := range []string{"2020-01-01T00:00:00Z", "2026-01-01T00:00:00Z", "2020-05-05"} {
		next, err := NextRun(expr, "UTC", now)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", expr, err)
		}
		if next != nil {
			t.Errorf("%s: expected nil for past instant, got %v", expr, next)
		}
	}
}

func TestNextRun_InstantLocalLayout(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	// Без смещения момент интерпретируется в часовом поясе job
	next, err := NextRun("2030-01-01 12:00:00", "Asia/Tokyo", now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := time.Date(2030, 1, 1, 3, 0, 0, 0, time.UTC)
	if next == nil || !next.Equal(want) {
		t.Fatalf("expected %v, got %v", want, next)
	}
}

func TestNextRun_Interval(t *testing.T) {
	now := time.Date(2026, 1, 1, 10, 0, 0, 123, time.UTC)

	tests := map[string]time.Duration{
		"30s": 30 * time.Second,
		"5m":  5 * time.Minute,
		"1h":  time.Hour,
		"2d":  48 * time.Hour,
		"10M": 10 * time.Minute,
	}

	for expr, d := range tests {
		next, err := NextRun(expr, "UTC", now)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", expr, err)
		}
		if next == nil || !next.Equal(now.Add(d)) {
			t.Errorf("%s: expected %v, got %v", expr, now.Add(d), next)
		}
	}
}

func TestNextRun_Invalid(t *testing.T) {
	now := time.Now()

	for _, expr := range []string{"", "every day", "* * * *", "61 * * * *", "0s", "5w", "-5m"} {
		next, err := NextRun(expr, "UTC", now)
		if !errors.Is(err, ErrInvalidSchedule) {
			t.Errorf("%q: expected ErrInvalidSchedule, got %v", expr, err)
		}
		if next != nil {
			t.Errorf("%q: expected nil next, got %v", expr, next)
		}
	}
}

func TestNextRun_UnknownTimezone(t *testing.T) {
	_, err := NextRun("*/5 * * * *", "Mars/Olympus", time.Now())
	if !errors.Is(err, ErrInvalidSchedule) {
		t.Fatalf("expected ErrInvalidSchedule, got %v", err)
	}
}

func TestNextRun_EmptyTimezoneIsUTC(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	next, err := NextRun("0 9 * * *", "", now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if next.Hour() != 9 {
		t.Errorf("expected 09:00 UTC, got %v", next)
	}
}

// --- Classify / Validate Tests ---

func TestClassify(t *testing.T) {
	tests := map[string]Kind{
		"*/5 * * * *":          KindCron,
		"0 0 * * 0":            KindCron,
		"0 0 * * 7":            KindCron,
		"2030-01-01T12:00:00Z": KindInstant,
		"2030-01-01":           KindInstant,
		"2030-01-01T12:00":     KindInstant,
		"15m":                  KindInterval,
		"* * * * * *":          KindUnknown,
		"soon":                 KindUnknown,
	}

	for expr, want := range tests {
		if got := Classify(expr); got != want {
			t.Errorf("Classify(%q) = %v, want %v", expr, got, want)
		}
	}
}

func TestValidate(t *testing.T) {
	if err := Validate("*/5 * * * *", "Europe/Berlin"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := Validate("nope", "UTC"); !errors.Is(err, ErrInvalidSchedule) {
		t.Errorf("expected ErrInvalidSchedule, got %v", err)
	}
	if err := Validate("1h", "Nowhere/City"); !errors.Is(err, ErrInvalidSchedule) {
		t.Errorf("expected ErrInvalidSchedule for timezone, got %v", err)
	}
	// Прошедший момент валиден: он просто не даёт будущих срабатываний
	if err := Validate("2000-01-01T00:00:00Z", "UTC"); err != nil {
		t.Errorf("past instant should be valid, got %v", err)
	}
}
