// Package format provides human-readable formatting helpers for sizes,
// counts and encode statistics.
package format

import (
	"fmt"
	"strconv"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Bytes formats a byte count using binary units.
// Bytes(1536) => "1.5 KB".
func Bytes(n int64) string {
	if n == 0 {
		return "0 B"
	}

	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}

	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}

	sizes := []string{"KB", "MB", "GB", "TB", "PB", "EB"}
	return fmt.Sprintf("%.1f %s", float64(n)/float64(div), sizes[exp])
}

var printer = message.NewPrinter(language.English)

// Number formats an integer with thousand separators.
// Number(1234567) => "1,234,567".
func Number(n int64) string {
	return printer.Sprintf("%d", n)
}

// NumberCompact shortens large counts: NumberCompact(1234567) => "1.2M".
func NumberCompact(n int64) string {
	switch {
	case n >= 1_000_000_000:
		return fmt.Sprintf("%.1fB", float64(n)/1_000_000_000)
	case n >= 1_000_000:
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	case n >= 1_000:
		return fmt.Sprintf("%.1fK", float64(n)/1_000)
	default:
		return strconv.FormatInt(n, 10)
	}
}

// Percentage formats a percentage value with the given decimal places.
func Percentage(value float64, decimals int) string {
	return fmt.Sprintf("%.*f%%", decimals, value)
}

// Seconds formats a wall-clock duration in seconds, switching to
// minute/hour units when long: 42.3 => "42.3s", 5400 => "1h30m".
func Seconds(secs float64) string {
	if secs < 90 {
		return fmt.Sprintf("%.1fs", secs)
	}
	d := time.Duration(secs * float64(time.Second)).Round(time.Second)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	if h > 0 {
		if m == 0 {
			return fmt.Sprintf("%dh", h)
		}
		return fmt.Sprintf("%dh%dm", h, m)
	}
	if s == 0 {
		return fmt.Sprintf("%dm", m)
	}
	return fmt.Sprintf("%dm%ds", m, s)
}

// Speed formats an encode speed multiplier: 2.37 => "2.4x".
func Speed(x float64) string {
	return fmt.Sprintf("%.1fx", x)
}

// SavingsLine builds the one-line encode summary used by notifications and
// the scan report: "1.2 GB -> 800.0 MB (33.3% reduction) in 42.0s".
func SavingsLine(inBytes, outBytes int64, encodeSeconds float64) string {
	reduction := 0.0
	if inBytes > 0 {
		reduction = (1 - float64(outBytes)/float64(inBytes)) * 100
	}
	return fmt.Sprintf("%s -> %s (%s reduction) in %s",
		Bytes(inBytes), Bytes(outBytes), Percentage(reduction, 1), Seconds(encodeSeconds))
}
