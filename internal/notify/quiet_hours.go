package notify

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// parseClock parses "HH:MM" into minutes since midnight.
func parseClock(s string) (int, error) {
	h, m, ok := strings.Cut(s, ":")
	if !ok {
		return 0, fmt.Errorf("malformed clock time %q", s)
	}
	hours, err := strconv.Atoi(h)
	if err != nil || hours < 0 || hours > 23 {
		return 0, fmt.Errorf("malformed clock time %q", s)
	}
	minutes, err := strconv.Atoi(m)
	if err != nil || minutes < 0 || minutes > 59 {
		return 0, fmt.Errorf("malformed clock time %q", s)
	}
	return hours*60 + minutes, nil
}

// InQuietHours reports whether at falls inside the [start, end) window.
// An end before the start means the window crosses midnight, e.g.
// 22:00 to 07:00. Empty bounds disable quiet hours, as does a window that
// fails to parse.
func InQuietHours(start, end string, at time.Time) bool {
	if start == "" || end == "" {
		return false
	}
	s, err := parseClock(start)
	if err != nil {
		return false
	}
	e, err := parseClock(end)
	if err != nil {
		return false
	}
	if s == e {
		return false
	}

	now := at.Hour()*60 + at.Minute()
	if s < e {
		return now >= s && now < e
	}
	// Cross-midnight window.
	return now >= s || now < e
}
