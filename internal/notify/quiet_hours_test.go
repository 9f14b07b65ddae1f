package notify

import (
	"testing"
	"time"
)

func at(hour, min int) time.Time {
	return time.Date(2026, 3, 10, hour, min, 0, 0, time.UTC)
}

func TestInQuietHours(t *testing.T) {
	cases := []struct {
		name       string
		start, end string
		at         time.Time
		want       bool
	}{
		{"disabled when empty", "", "", at(3, 0), false},
		{"disabled when start empty", "", "07:00", at(3, 0), false},
		{"disabled when end empty", "22:00", "", at(23, 0), false},
		{"same-day inside", "13:00", "15:00", at(14, 0), true},
		{"same-day at start", "13:00", "15:00", at(13, 0), true},
		{"same-day at end", "13:00", "15:00", at(15, 0), false},
		{"same-day before", "13:00", "15:00", at(12, 59), false},
		{"cross-midnight late evening", "22:00", "07:00", at(23, 30), true},
		{"cross-midnight early morning", "22:00", "07:00", at(3, 0), true},
		{"cross-midnight at end", "22:00", "07:00", at(7, 0), false},
		{"cross-midnight daytime", "22:00", "07:00", at(12, 0), false},
		{"cross-midnight at start", "22:00", "07:00", at(22, 0), true},
		{"zero-length window", "08:00", "08:00", at(8, 0), false},
		{"malformed start", "25:00", "07:00", at(3, 0), false},
		{"malformed end", "22:00", "7pm", at(23, 0), false},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := InQuietHours(c.start, c.end, c.at); got != c.want {
				t.Errorf("InQuietHours(%q, %q, %s) = %v, want %v", c.start, c.end, c.at.Format("15:04"), got, c.want)
			}
		})
	}
}

func TestParseClock(t *testing.T) {
	if m, err := parseClock("09:30"); err != nil || m != 9*60+30 {
		t.Errorf("parseClock(09:30) = %d, %v", m, err)
	}
	for _, bad := range []string{"930", "09:60", "24:00", "-1:00", "aa:bb", ""} {
		if _, err := parseClock(bad); err == nil {
			t.Errorf("parseClock(%q) succeeded, want error", bad)
		}
	}
}
