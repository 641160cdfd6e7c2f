// Package timemodel converts between (hour, minute, second) triples and
// absolute seconds.
package timemodel

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ToSeconds returns h*3600 + m*60 + s. Ranges are not validated here.
func ToSeconds(h, m int, s float64) float64 {
	return float64(h)*3600 + float64(m)*60 + s
}

// ToHMS decomposes seconds by floor division. Fractional seconds are dropped.
func ToHMS(seconds float64) (h, m, s int) {
	if seconds <= 0 {
		return 0, 0, 0
	}
	total := int64(math.Floor(seconds))
	h = int(total / 3600)
	m = int(total % 3600 / 60)
	s = int(total % 60)
	return h, m, s
}

// FormatHMS renders seconds as HH:MM:SS.
func FormatHMS(seconds float64) string {
	h, m, s := ToHMS(seconds)
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// ParseClock accepts "HH:MM:SS", "MM:SS" or a plain number of seconds.
// The last component may carry a fraction.
func ParseClock(value string) (float64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, fmt.Errorf("empty time value")
	}

	parts := strings.Split(value, ":")
	if len(parts) > 3 {
		return 0, fmt.Errorf("invalid time value %q", value)
	}

	var h, m int
	var err error
	switch len(parts) {
	case 3:
		if h, err = parseClockInt(parts[0], -1); err != nil {
			return 0, fmt.Errorf("invalid hours in %q: %w", value, err)
		}
		if m, err = parseClockInt(parts[1], 59); err != nil {
			return 0, fmt.Errorf("invalid minutes in %q: %w", value, err)
		}
	case 2:
		if m, err = parseClockInt(parts[0], -1); err != nil {
			return 0, fmt.Errorf("invalid minutes in %q: %w", value, err)
		}
	}

	s, err := strconv.ParseFloat(parts[len(parts)-1], 64)
	if err != nil || s < 0 || math.IsInf(s, 0) || math.IsNaN(s) {
		return 0, fmt.Errorf("invalid seconds in %q", value)
	}
	if len(parts) > 1 && s >= 60 {
		return 0, fmt.Errorf("invalid seconds in %q: must be below 60", value)
	}

	return ToSeconds(h, m, s), nil
}

func parseClockInt(s string, max int) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if n < 0 || (max >= 0 && n > max) {
		return 0, fmt.Errorf("%d out of range", n)
	}
	return n, nil
}
