package engine

import (
	"testing"
	"time"
)

func TestTradingWindow_IsOpen(t *testing.T) {
	w := DefaultTradingWindow()
	syd := w.Location

	tests := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"monday open", time.Date(2026, 3, 2, 10, 0, 0, 0, syd), true},
		{"monday midday", time.Date(2026, 3, 2, 13, 30, 0, 0, syd), true},
		{"before open", time.Date(2026, 3, 2, 9, 59, 59, 0, syd), false},
		{"at close", time.Date(2026, 3, 2, 16, 0, 0, 0, syd), false},
		{"saturday", time.Date(2026, 3, 7, 12, 0, 0, 0, syd), false},
		{"sunday", time.Date(2026, 3, 8, 12, 0, 0, 0, syd), false},
		// 01:00 UTC Tuesday is 12:00 Sydney (AEDT, UTC+11)
		{"utc input", time.Date(2026, 3, 3, 1, 0, 0, 0, time.UTC), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := w.IsOpen(tt.at); got != tt.want {
				t.Errorf("Expected IsOpen(%s) = %v, got %v", tt.at, tt.want, got)
			}
		})
	}
}

func TestNewTradingWindow_Invalid(t *testing.T) {
	if _, err := NewTradingWindow("Mars/Olympus", nil, 10, 16); err == nil {
		t.Error("Expected error for unknown timezone")
	}
	if _, err := NewTradingWindow("UTC", nil, 16, 10); err == nil {
		t.Error("Expected error for inverted hours")
	}
	if _, err := NewTradingWindow("UTC", nil, 0, 25); err == nil {
		t.Error("Expected error for close hour past midnight")
	}
}

func TestNewTradingWindow_CustomDays(t *testing.T) {
	w, err := NewTradingWindow("UTC", []time.Weekday{time.Saturday}, 0, 24)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !w.IsOpen(time.Date(2026, 3, 7, 23, 59, 0, 0, time.UTC)) {
		t.Error("Expected saturday to be open")
	}
	if w.IsOpen(time.Date(2026, 3, 6, 12, 0, 0, 0, time.UTC)) {
		t.Error("Expected friday to be closed")
	}
}
