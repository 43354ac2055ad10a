package engine

import (
	"fmt"
	"time"
	_ "time/tzdata"
)

// TradingWindow is the set of local weekdays and hours in which sweeps run.
type TradingWindow struct {
	Location  *time.Location
	Days      map[time.Weekday]bool
	OpenHour  int // inclusive
	CloseHour int // exclusive
}

// NewTradingWindow builds a window in the IANA timezone tz.
func NewTradingWindow(tz string, days []time.Weekday, openHour, closeHour int) (*TradingWindow, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("trading window: %w", err)
	}
	if openHour < 0 || closeHour > 24 || openHour >= closeHour {
		return nil, fmt.Errorf("trading window: invalid hours %d-%d", openHour, closeHour)
	}
	w := &TradingWindow{
		Location:  loc,
		Days:      make(map[time.Weekday]bool, len(days)),
		OpenHour:  openHour,
		CloseHour: closeHour,
	}
	for _, d := range days {
		w.Days[d] = true
	}
	return w, nil
}

// DefaultTradingWindow is Sydney time, Monday to Friday, 10:00 to 16:00.
func DefaultTradingWindow() *TradingWindow {
	w, err := NewTradingWindow("Australia/Sydney",
		[]time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday}, 10, 16)
	if err != nil {
		panic(err)
	}
	return w
}

// IsOpen reports whether t falls inside the window.
func (w *TradingWindow) IsOpen(t time.Time) bool {
	local := t.In(w.Location)
	if !w.Days[local.Weekday()] {
		return false
	}
	h := local.Hour()
	return h >= w.OpenHour && h < w.CloseHour
}
