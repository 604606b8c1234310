package scheduling

import (
	"fmt"
	"time"
)

// Booking is an existing appointment occupying capacity on the date.
type Booking struct {
	Time string
	// DurationMinutes is the booked service length; zero means the context's
	// service duration.
	DurationMinutes int
	Cancelled       bool
}

// BreakWindow is a half-open [Start, End) interval during which no slot may run.
type BreakWindow struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type window struct {
	start, end int
}

// GenerateAvailableSlots returns the bookable slot starts for the context's
// date in their configured order.
//
// A candidate is dropped when its service window touches a break, or when
// the non-cancelled bookings overlapping it already use every staff member.
func GenerateAvailableSlots(sc SchedulingContext, existing []Booking, breaks []BreakWindow) ([]string, error) {
	if sc.IsOff {
		return []string{}, nil
	}
	duration := sc.ServiceDurationMinutes
	if duration < MinServiceDurationMinutes {
		return nil, fmt.Errorf("%w: serviceDurationMinutes %d", ErrInvalidRule, duration)
	}
	capacity := sc.NumberOfStaff
	if capacity < 1 {
		return nil, fmt.Errorf("%w: numberOfStaff %d", ErrInvalidRule, capacity)
	}

	breakWindows, err := parseBreaks(breaks)
	if err != nil {
		return nil, err
	}
	booked, err := bookedWindows(existing, duration)
	if err != nil {
		return nil, err
	}

	out := make([]string, 0, len(sc.WorkingHours))
	for _, slot := range sc.WorkingHours {
		start, err := ParseMinutes(slot)
		if err != nil {
			return nil, err
		}
		if overlapsAny(start, duration, breakWindows) {
			continue
		}
		if countOverlapping(start, duration, booked) >= capacity {
			continue
		}
		out = append(out, slot)
	}
	return out, nil
}

// SlotUsage reports how many staff are already taken at a slot start.
type SlotUsage struct {
	Time     string `json:"time"`
	Booked   int    `json:"booked"`
	Capacity int    `json:"capacity"`
}

// DescribeSlots pairs each available slot with its current occupancy, for
// staff views that show partially booked slots.
func DescribeSlots(sc SchedulingContext, slots []string, existing []Booking) ([]SlotUsage, error) {
	booked, err := bookedWindows(existing, sc.ServiceDurationMinutes)
	if err != nil {
		return nil, err
	}
	out := make([]SlotUsage, 0, len(slots))
	for _, slot := range slots {
		start, err := ParseMinutes(slot)
		if err != nil {
			return nil, err
		}
		out = append(out, SlotUsage{
			Time:     slot,
			Booked:   countOverlapping(start, sc.ServiceDurationMinutes, booked),
			Capacity: sc.NumberOfStaff,
		})
	}
	return out, nil
}

// IsSlotAvailable reports whether slot is among the generated slots.
func IsSlotAvailable(slots []string, slot string) bool {
	for _, s := range slots {
		if s == slot {
			return true
		}
	}
	return false
}

// FilterPastSlots drops slots that can no longer be booked as of now: every
// slot on a past date, and on today's date every slot starting before
// now+minNotice. Dates and slots are read in loc.
func FilterPastSlots(slots []string, date string, now time.Time, loc *time.Location, minNotice time.Duration) ([]string, error) {
	if loc == nil {
		loc = time.UTC
	}
	day, err := ParseDate(date)
	if err != nil {
		return nil, err
	}
	localNow := now.In(loc)
	today := time.Date(localNow.Year(), localNow.Month(), localNow.Day(), 0, 0, 0, 0, time.UTC)
	switch {
	case day.Before(today):
		return []string{}, nil
	case day.After(today):
		return slots, nil
	}

	cutoff := localNow.Add(minNotice)
	out := make([]string, 0, len(slots))
	for _, slot := range slots {
		c, err := ParseTime(slot)
		if err != nil {
			return nil, err
		}
		start := time.Date(localNow.Year(), localNow.Month(), localNow.Day(), c.Hours, c.Minutes, 0, 0, loc)
		if !start.Before(cutoff) {
			out = append(out, slot)
		}
	}
	return out, nil
}

func parseBreaks(breaks []BreakWindow) ([]window, error) {
	out := make([]window, 0, len(breaks))
	for _, b := range breaks {
		start, err := ParseMinutes(b.Start)
		if err != nil {
			return nil, fmt.Errorf("break start: %w", err)
		}
		end, err := ParseMinutes(b.End)
		if err != nil {
			return nil, fmt.Errorf("break end: %w", err)
		}
		if end <= start {
			return nil, fmt.Errorf("%w: break %s-%s ends before it starts", ErrInvalidRule, b.Start, b.End)
		}
		out = append(out, window{start: start, end: end})
	}
	return out, nil
}

func bookedWindows(existing []Booking, defaultDuration int) ([]window, error) {
	out := make([]window, 0, len(existing))
	for _, b := range existing {
		if b.Cancelled {
			continue
		}
		start, err := ParseMinutes(b.Time)
		if err != nil {
			return nil, fmt.Errorf("booking time: %w", err)
		}
		d := b.DurationMinutes
		if d <= 0 {
			d = defaultDuration
		}
		out = append(out, window{start: start, end: start + d})
	}
	return out, nil
}

func overlapsAny(start, duration int, windows []window) bool {
	for _, w := range windows {
		if Overlaps(start, duration, w.start, w.end) {
			return true
		}
	}
	return false
}

func countOverlapping(start, duration int, windows []window) int {
	n := 0
	for _, w := range windows {
		if Overlaps(start, duration, w.start, w.end) {
			n++
		}
	}
	return n
}

// ValidateBreakWindows rejects malformed or inverted break windows.
func ValidateBreakWindows(breaks []BreakWindow) error {
	_, err := parseBreaks(breaks)
	return err
}
