package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ClockTime is a time-of-day with minute resolution, always interpreted in UTC.
type ClockTime struct {
	Hour   int
	Minute int
}

// ParseClockTime parses "HH:MM" (24h). Values outside 00:00-23:59 are rejected.
func ParseClockTime(s string) (ClockTime, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return ClockTime{}, fmt.Errorf("cannot parse time %q: want HH:MM", s)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil {
		return ClockTime{}, fmt.Errorf("cannot parse time %q: %w", s, err)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil {
		return ClockTime{}, fmt.Errorf("cannot parse time %q: %w", s, err)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return ClockTime{}, fmt.Errorf("time %q out of range", s)
	}
	return ClockTime{Hour: hour, Minute: minute}, nil
}

// TotalMinutes returns minutes since midnight.
func (t ClockTime) TotalMinutes() int {
	return t.Hour*60 + t.Minute
}

func (t ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// SessionWindow is a named trading window with its assigned symbols.
// Windows may wrap past midnight (Start > End, e.g. 22:00-08:00).
// Start == End denotes a full-day window.
type SessionWindow struct {
	Name     string         `json:"name"`
	Category MarketCategory `json:"category"`
	Start    ClockTime      `json:"-"`
	End      ClockTime      `json:"-"`
	Symbols  []string       `json:"symbols"`
}

// Contains reports whether the wall-clock time (UTC) falls inside the window.
func (w SessionWindow) Contains(t time.Time) bool {
	m := t.UTC().Hour()*60 + t.UTC().Minute()
	start, end := w.Start.TotalMinutes(), w.End.TotalMinutes()
	switch {
	case start == end:
		return true
	case start > end:
		return m >= start || m < end
	default:
		return m >= start && m < end
	}
}

// HasSymbol reports whether the symbol is assigned to this window.
func (w SessionWindow) HasSymbol(symbol string) bool {
	for _, s := range w.Symbols {
		if s == symbol {
			return true
		}
	}
	return false
}
