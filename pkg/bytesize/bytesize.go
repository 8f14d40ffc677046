// Package bytesize parses and formats human-readable byte sizes.
// Units use the binary (1024) base; bare numbers are bytes.
//
// Accepted unit spellings are case-insensitive: B, K/KB/KiB, M/MB/MiB,
// G/GB/GiB, T/TB/TiB.
package bytesize

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Size is a byte count.
type Size int64

const (
	B  Size = 1
	KB Size = 1024
	MB Size = 1024 * KB
	GB Size = 1024 * MB
	TB Size = 1024 * GB
)

var units = map[string]Size{
	"b": B, "byte": B, "bytes": B,
	"k": KB, "kb": KB, "kib": KB,
	"m": MB, "mb": MB, "mib": MB,
	"g": GB, "gb": GB, "gib": GB,
	"t": TB, "tb": TB, "tib": TB,
}

var sizeRe = regexp.MustCompile(`(?i)^\s*([0-9]+(?:\.[0-9]+)?)\s*([a-z]*)\s*$`)

// Parse converts a string such as "500MB", "1.5 GiB" or "2048" to a Size.
func Parse(s string) (Size, error) {
	if s == "" {
		return 0, fmt.Errorf("bytesize: empty string")
	}

	m := sizeRe.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("bytesize: invalid format %q", s)
	}

	value, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, fmt.Errorf("bytesize: invalid number %q: %w", m[1], err)
	}

	mult := B
	if unit := strings.ToLower(m[2]); unit != "" {
		var ok bool
		if mult, ok = units[unit]; !ok {
			return 0, fmt.Errorf("bytesize: unknown unit %q", m[2])
		}
	}

	return Size(value * float64(mult)), nil
}

// MustParse is Parse that panics on error, for constants and defaults.
func MustParse(s string) Size {
	size, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return size
}

// Format renders a size using the largest unit with a value >= 1,
// trimming trailing zeros ("1.5GB", "512MB", "42B").
func Format(s Size) string {
	if s == 0 {
		return "0B"
	}

	neg := s < 0
	if neg {
		s = -s
	}

	var out string
	switch {
	case s >= TB:
		out = trimmed(float64(s)/float64(TB), "TB")
	case s >= GB:
		out = trimmed(float64(s)/float64(GB), "GB")
	case s >= MB:
		out = trimmed(float64(s)/float64(MB), "MB")
	case s >= KB:
		out = trimmed(float64(s)/float64(KB), "KB")
	default:
		out = fmt.Sprintf("%dB", s)
	}

	if neg {
		return "-" + out
	}
	return out
}

func trimmed(v float64, unit string) string {
	if v == float64(int64(v)) {
		return fmt.Sprintf("%d%s", int64(v), unit)
	}
	s := strings.TrimRight(fmt.Sprintf("%.2f", v), "0")
	return strings.TrimRight(s, ".") + unit
}

// Bytes returns the size as a plain int64.
func (s Size) Bytes() int64 { return int64(s) }

// Megabytes returns the size in whole binary megabytes, rounded down.
func (s Size) Megabytes() int64 { return int64(s / MB) }

func (s Size) String() string { return Format(s) }
