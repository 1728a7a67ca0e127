package cache

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

const (
	// DefaultTTLSeconds is the default entry lifetime (24 hours).
	DefaultTTLSeconds = 24 * 60 * 60

	// DefaultTTL is DefaultTTLSeconds as a time.Duration.
	DefaultTTL = DefaultTTLSeconds * time.Second

	minutesPerHour = 60
	hoursPerDay    = 24
)

// ErrInvalidTTL is returned by ParseTTL for non-positive or malformed values.
var ErrInvalidTTL = errors.New("TTL must be a positive number of seconds or a duration")

// ParseTTL parses a TTL given either as integer seconds ("86400") or as a
// Go duration ("24h", "90m").
func ParseTTL(s string) (time.Duration, error) {
	if seconds, err := strconv.Atoi(s); err == nil {
		if seconds <= 0 {
			return 0, fmt.Errorf("%w: got %d", ErrInvalidTTL, seconds)
		}
		return time.Duration(seconds) * time.Second, nil
	}

	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidTTL, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%w: got %s", ErrInvalidTTL, s)
	}
	return d, nil
}

// FormatDuration formats a duration for humans: "30s", "5m", "2h30m", "3d2h".
func FormatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.0fs", d.Seconds())
	}
	if d < time.Hour {
		return fmt.Sprintf("%.0fm", d.Minutes())
	}
	if d < hoursPerDay*time.Hour {
		hours := int(d.Hours())
		minutes := int(d.Minutes()) % minutesPerHour
		if minutes == 0 {
			return fmt.Sprintf("%dh", hours)
		}
		return fmt.Sprintf("%dh%dm", hours, minutes)
	}
	days := int(d.Hours()) / hoursPerDay
	hours := int(d.Hours()) % hoursPerDay
	if hours == 0 {
		return fmt.Sprintf("%dd", days)
	}
	return fmt.Sprintf("%dd%dh", days, hours)
}
