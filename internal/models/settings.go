package models

import (
	"fmt"
	"time"
)

// ClockTime is a time of day at minute resolution.
type ClockTime struct {
	Hour   int
	Minute int
}

// Minutes returns the number of minutes since midnight.
func (c ClockTime) Minutes() int {
	return c.Hour*60 + c.Minute
}

// String formats the time as HH:MM.
func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// ClockTimeFromMinutes converts minutes since midnight into a ClockTime.
func ClockTimeFromMinutes(m int) ClockTime {
	return ClockTime{Hour: m / 60, Minute: m % 60}
}

// ParseClockTime parses an "HH:MM" string.
func ParseClockTime(s string) (ClockTime, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return ClockTime{}, fmt.Errorf("invalid time of day %q: want HH:MM", s)
	}
	return ClockTime{Hour: t.Hour(), Minute: t.Minute()}, nil
}

// ReminderWindow controls when and how often capture reminders fire.
type ReminderWindow struct {
	DayStart  ClockTime
	DayEnd    ClockTime
	Frequency int
	Enabled   bool
}

// DefaultReminderWindow returns the settings a fresh install starts with.
func DefaultReminderWindow() ReminderWindow {
	return ReminderWindow{
		DayStart:  ClockTime{Hour: 9},
		DayEnd:    ClockTime{Hour: 21},
		Frequency: 3,
		Enabled:   true,
	}
}

// Validate rejects values that cannot be stored. An end before the start
// is allowed; such a window simply produces no reminders.
func (w ReminderWindow) Validate() error {
	for _, c := range []ClockTime{w.DayStart, w.DayEnd} {
		if c.Hour < 0 || c.Hour > 23 || c.Minute < 0 || c.Minute > 59 {
			return fmt.Errorf("invalid time of day %02d:%02d", c.Hour, c.Minute)
		}
	}
	if w.Frequency < 1 {
		return fmt.Errorf("frequency must be at least 1, got %d", w.Frequency)
	}
	return nil
}

// Settings is the single per-install settings record.
type Settings struct {
	ID        UUID
	Reminders ReminderWindow
	UpdatedAt time.Time
}

// TableName returns the table name for Settings.
func (Settings) TableName() string {
	return "settings"
}
