package scheduling

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the calendar date format used for scheduling dates.
const DateLayout = "2006-01-02"

// Clock is a venue-local time of day.
type Clock struct {
	Hours   int
	Minutes int
}

// ParseTime parses a strict "HH:MM" string (two digits each side, hours
// 00-23, minutes 00-59).
func ParseTime(s string) (Clock, error) {
	if len(s) != 5 || s[2] != ':' {
		return Clock{}, fmt.Errorf("%w: time %q is not HH:MM", ErrInvalidFormat, s)
	}
	h, okH := twoDigits(s[0], s[1])
	m, okM := twoDigits(s[3], s[4])
	if !okH || !okM {
		return Clock{}, fmt.Errorf("%w: time %q is not HH:MM", ErrInvalidFormat, s)
	}
	if h > 23 || m > 59 {
		return Clock{}, fmt.Errorf("%w: time %q out of range", ErrInvalidFormat, s)
	}
	return Clock{Hours: h, Minutes: m}, nil
}

func twoDigits(a, b byte) (int, bool) {
	if a < '0' || a > '9' || b < '0' || b > '9' {
		return 0, false
	}
	return int(a-'0')*10 + int(b-'0'), true
}

// ToMinutes returns the offset of the clock from midnight.
func (c Clock) ToMinutes() int {
	return c.Hours*60 + c.Minutes
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hours, c.Minutes)
}

// ParseMinutes is ParseTime followed by ToMinutes.
func ParseMinutes(s string) (int, error) {
	c, err := ParseTime(s)
	if err != nil {
		return 0, err
	}
	return c.ToMinutes(), nil
}

// FormatMinutes renders a minute offset as "HH:MM". Offsets past midnight wrap.
func FormatMinutes(m int) string {
	m = ((m % (24 * 60)) + 24*60) % (24 * 60)
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}

// Overlaps reports whether [slotStart, slotStart+duration) intersects
// [rangeStart, rangeEnd). All values are minute offsets. Touching edges do
// not overlap.
func Overlaps(slotStart, durationMinutes, rangeStart, rangeEnd int) bool {
	slotEnd := slotStart + durationMinutes
	return slotStart < rangeEnd && rangeStart < slotEnd
}

// ParseDate parses a "YYYY-MM-DD" calendar date. A trailing time component
// ("2026-10-19T00:00:00Z"), as produced by document stores, is ignored.
func ParseDate(s string) (time.Time, error) {
	d := normalizeDate(s)
	t, err := time.Parse(DateLayout, d)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q is not YYYY-MM-DD", ErrInvalidFormat, s)
	}
	return t, nil
}

func normalizeDate(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 10 && s[10] == 'T' {
		return s[:10]
	}
	return s
}
