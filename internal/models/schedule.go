package models

import (
	"strconv"
	"strings"
	"time"
)

// ScheduleWindow restricts when the engine claims new jobs. With no enabled
// windows the engine runs around the clock; otherwise claiming is allowed
// only while the local time falls inside at least one enabled window.
type ScheduleWindow struct {
	ID        int64     `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Enabled bool `json:"enabled"`

	// StartTime and EndTime are local wall-clock "HH:MM". An EndTime
	// before StartTime wraps past midnight (22:00-06:00).
	StartTime string `gorm:"not null;size:5" json:"start_time"`
	EndTime   string `gorm:"not null;size:5" json:"end_time"`

	// DaysOfWeek is a csv of weekday numbers, Sunday=0. Empty means every
	// day. For overnight windows the day refers to the evening the window
	// starts, so "5" with 22:00-06:00 covers Friday night into Saturday.
	DaysOfWeek string `gorm:"size:32" json:"days_of_week"`
}

// TableName overrides the GORM table name.
func (ScheduleWindow) TableName() string {
	return "schedule_windows"
}

// Validate checks times and day numbers.
func (w *ScheduleWindow) Validate() error {
	if _, err := parseClock(w.StartTime); err != nil {
		return ErrValidation{Field: "start_time", Message: "must be HH:MM"}
	}
	if _, err := parseClock(w.EndTime); err != nil {
		return ErrValidation{Field: "end_time", Message: "must be HH:MM"}
	}
	for _, part := range splitDays(w.DaysOfWeek) {
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 || n > 6 {
			return ErrValidation{Field: "days_of_week", Message: "must be a csv of weekday numbers 0-6"}
		}
	}
	return nil
}

// Matches reports whether t falls inside the window. Minute granularity;
// the interval is half-open [start, end). Equal start and end never match.
func (w *ScheduleWindow) Matches(t time.Time) bool {
	start, err := parseClock(w.StartTime)
	if err != nil {
		return false
	}
	end, err := parseClock(w.EndTime)
	if err != nil {
		return false
	}
	minute := t.Hour()*60 + t.Minute()

	if start <= end {
		return minute >= start && minute < end && w.matchesDay(t.Weekday())
	}

	// Overnight wrap. Before midnight the window belongs to today; after
	// midnight it belongs to the evening it started.
	if minute >= start {
		return w.matchesDay(t.Weekday())
	}
	if minute < end {
		return w.matchesDay(t.AddDate(0, 0, -1).Weekday())
	}
	return false
}

func (w *ScheduleWindow) matchesDay(day time.Weekday) bool {
	parts := splitDays(w.DaysOfWeek)
	if len(parts) == 0 {
		return true
	}
	for _, part := range parts {
		if n, err := strconv.Atoi(part); err == nil && time.Weekday(n) == day {
			return true
		}
	}
	return false
}

func splitDays(csv string) []string {
	var parts []string
	for _, part := range strings.Split(csv, ",") {
		if part = strings.TrimSpace(part); part != "" {
			parts = append(parts, part)
		}
	}
	return parts
}

// parseClock converts "HH:MM" to minutes since midnight.
func parseClock(s string) (int, error) {
	tm, err := time.Parse("15:04", s)
	if err != nil {
		return 0, err
	}
	return tm.Hour()*60 + tm.Minute(), nil
}
