package engine

import (
	"time"

	"github.com/alchemist-av/alchemist/internal/models"
)

// windowsOpen evaluates the schedule gate: claiming is allowed when no
// enabled window exists, or when t falls inside at least one.
func windowsOpen(windows []*models.ScheduleWindow, t time.Time) bool {
	enabled := 0
	for _, w := range windows {
		if !w.Enabled {
			continue
		}
		enabled++
		if w.Matches(t) {
			return true
		}
	}
	return enabled == 0
}
