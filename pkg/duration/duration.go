// Package duration parses human-readable durations.
// It extends time.ParseDuration with day and week units and accepts
// spelled-out unit names with optional whitespace ("90 minutes", "2 weeks",
// "1w2d12h").
package duration

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	// Day is 24 hours.
	Day = 24 * time.Hour
	// Week is 7 days.
	Week = 7 * Day
)

// extendedUnits maps day/week spellings to their hour multiplier. Hours are
// the conversion base because time.ParseDuration tops out at hours.
var extendedUnits = map[string]int64{
	"w": 7 * 24, "wk": 7 * 24, "wks": 7 * 24, "week": 7 * 24, "weeks": 7 * 24,
	"d": 24, "day": 24, "days": 24,
}

// wordUnits maps spelled-out standard units to time.ParseDuration suffixes.
var wordUnits = map[string]string{
	"hour": "h", "hours": "h", "hr": "h", "hrs": "h",
	"minute": "m", "minutes": "m", "min": "m", "mins": "m",
	"second": "s", "seconds": "s", "sec": "s", "secs": "s",
	"millisecond": "ms", "milliseconds": "ms",
}

var extendedRe = regexp.MustCompile(`(?i)(\d+)\s*(weeks?|wks?|w|days?|d)`)
var wordRe = regexp.MustCompile(`(?i)(\d+)\s*(hours?|hrs?|minutes?|mins?|seconds?|secs?|milliseconds?)`)

// Parse converts strings such as "15s", "2 days", "1w12h" or "-30m" into a
// time.Duration. Plain time.ParseDuration syntax passes through unchanged.
func Parse(s string) (time.Duration, error) {
	if s == "" {
		return 0, fmt.Errorf("duration: empty string")
	}

	s = strings.TrimSpace(s)

	negative := strings.HasPrefix(s, "-")
	if negative {
		s = strings.TrimSpace(strings.TrimPrefix(s, "-"))
	}

	var hours int64
	remaining := extendedRe.ReplaceAllStringFunc(s, func(match string) string {
		m := extendedRe.FindStringSubmatch(match)
		if len(m) == 3 {
			n, _ := strconv.ParseInt(m[1], 10, 64)
			if mult, ok := extendedUnits[strings.ToLower(m[2])]; ok {
				hours += n * mult
			}
		}
		return ""
	})

	remaining = wordRe.ReplaceAllStringFunc(remaining, func(match string) string {
		m := wordRe.FindStringSubmatch(match)
		if len(m) == 3 {
			if suffix, ok := wordUnits[strings.ToLower(m[2])]; ok {
				return m[1] + suffix
			}
		}
		return match
	})

	// time.ParseDuration rejects spaces between components.
	remaining = strings.Join(strings.Fields(remaining), "")

	var expr string
	if hours > 0 {
		expr = fmt.Sprintf("%dh", hours)
	}
	expr += remaining
	if expr == "" {
		expr = "0s"
	}

	d, err := time.ParseDuration(expr)
	if err != nil {
		return 0, fmt.Errorf("duration: %w", err)
	}
	if negative {
		d = -d
	}
	return d, nil
}

// MustParse is Parse that panics on error, for constants and defaults.
func MustParse(s string) time.Duration {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Format renders a duration with week/day components and zero parts omitted:
// 36*time.Hour becomes "1d12h", 90*time.Second becomes "1m30s".
func Format(d time.Duration) string {
	if d == 0 {
		return "0s"
	}

	negative := d < 0
	if negative {
		d = -d
	}

	var b strings.Builder

	weeks := d / Week
	d -= weeks * Week
	days := d / Day
	d -= days * Day
	hours := d / time.Hour
	d -= hours * time.Hour
	minutes := d / time.Minute
	d -= minutes * time.Minute
	seconds := d / time.Second
	d -= seconds * time.Second

	if weeks > 0 {
		fmt.Fprintf(&b, "%dw", weeks)
	}
	if days > 0 {
		fmt.Fprintf(&b, "%dd", days)
	}
	if hours > 0 {
		fmt.Fprintf(&b, "%dh", hours)
	}
	if minutes > 0 {
		fmt.Fprintf(&b, "%dm", minutes)
	}
	if seconds > 0 {
		fmt.Fprintf(&b, "%ds", seconds)
	}
	if d >= time.Millisecond && b.Len() == 0 {
		fmt.Fprintf(&b, "%dms", d/time.Millisecond)
	}

	if b.Len() == 0 {
		return "0s"
	}
	if negative {
		return "-" + b.String()
	}
	return b.String()
}
