// Package scheduling resolves the effective booking rules for a calendar date
// and turns them into bookable time slots.
//
// Everything in this package is a pure function over data the caller has
// already loaded; nothing here reads the clock, touches storage, or logs.
package scheduling

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidFormat is returned for malformed "HH:MM" times or
	// "YYYY-MM-DD" dates. Inputs are rejected, never coerced.
	ErrInvalidFormat = errors.New("scheduling: invalid format")

	// ErrInvalidRule is returned when a scope defines a value outside its
	// allowed range (staff < 1, duration < 5 minutes, inverted break window).
	ErrInvalidRule = errors.New("scheduling: invalid rule")
)

// AmbiguousRule flags more than one specific-day rule for the same date within
// a single scope. The last rule in stored order wins; callers should log it.
type AmbiguousRule struct {
	Scope   Scope
	Date    string
	Matches int
}

func (a AmbiguousRule) String() string {
	return fmt.Sprintf("%s scope has %d specific-day rules for %s; using the last one", a.Scope, a.Matches, a.Date)
}
