package scheduling

import (
	"fmt"
	"sort"
	"time"
)

// System defaults applied when no scope defines a field.
const (
	DefaultNumberOfStaff          = 1
	DefaultServiceDurationMinutes = 60
	MinServiceDurationMinutes     = 5
)

// DefaultWorkingHours are hourly slot starts for a 09:00-17:00 day.
var DefaultWorkingHours = []string{"09:00", "10:00", "11:00", "12:00", "13:00", "14:00", "15:00", "16:00"}

// DefaultWeeklyOffDays closes Saturday and Sunday.
var DefaultWeeklyOffDays = []int{int(time.Sunday), int(time.Saturday)}

// Scope identifies where a scheduling value came from.
type Scope int

const (
	ScopeDefault Scope = iota
	ScopeGlobal
	ScopeBranch
	ScopeProduct
)

func (s Scope) String() string {
	switch s {
	case ScopeGlobal:
		return "global"
	case ScopeBranch:
		return "branch"
	case ScopeProduct:
		return "product"
	default:
		return "default"
	}
}

// MarshalText lets Scope appear as a readable string in JSON responses.
func (s Scope) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// SpecificDayRule overrides a scope's general rules on one calendar date.
// Nil fields are undefined; an empty, non-nil WorkingHours means no slots.
type SpecificDayRule struct {
	Date                   string   `json:"date"`
	IsOff                  *bool    `json:"isOff,omitempty"`
	WorkingHours           []string `json:"workingHours"`
	NumberOfStaff          *int     `json:"numberOfStaff,omitempty"`
	ServiceDurationMinutes *int     `json:"serviceDurationMinutes,omitempty"`
}

// ScopeRules is the scheduling slice of one scope: venue settings, a branch,
// or a product's scheduling rules. Nil fields fall through to the next lower
// scope. WorkingHours has no omitempty so an explicit [] survives a JSON
// round trip.
type ScopeRules struct {
	WeeklyOffDays          []int             `json:"weeklyOffDays"`
	OneTimeOffDates        []string          `json:"oneTimeOffDates"`
	SpecificDayRules       []SpecificDayRule `json:"specificDayRules"`
	WorkingHours           []string          `json:"workingHours"`
	NumberOfStaff          *int              `json:"numberOfStaff,omitempty"`
	ServiceDurationMinutes *int              `json:"serviceDurationMinutes,omitempty"`
}

// Sources records which scope supplied each resolved field.
type Sources struct {
	WorkingHours           Scope `json:"workingHours"`
	NumberOfStaff          Scope `json:"numberOfStaff"`
	ServiceDurationMinutes Scope `json:"serviceDurationMinutes"`
	WeeklyOffDays          Scope `json:"weeklyOffDays"`
	IsOff                  Scope `json:"isOff"`
}

// SchedulingContext is the fully populated rule set for one date.
// WeeklyOffDays is the union of every scope's weekly off days, since any of
// them closes the date; Sources.WeeklyOffDays names the highest scope that
// defined a list.
type SchedulingContext struct {
	Date                   string            `json:"date"`
	IsOff                  bool              `json:"isOff"`
	WeeklyOffDays          []int             `json:"weeklyOffDays"`
	OneTimeOffDates        []string          `json:"oneTimeOffDates"`
	SpecificDayRules       []SpecificDayRule `json:"specificDayRules"`
	WorkingHours           []string          `json:"workingHours"`
	NumberOfStaff          int               `json:"numberOfStaff"`
	ServiceDurationMinutes int               `json:"serviceDurationMinutes"`
	Sources                Sources           `json:"sources"`
	Ambiguities            []AmbiguousRule   `json:"-"`
}

// partial is one scope's view of the date after its specific-day overlay.
type partial struct {
	scope        Scope
	workingHours []string
	staff        *int
	duration     *int
	isOff        *bool
	weeklyOff    []int
	oneTimeOff   []string
	dayRule      *SpecificDayRule
}

// ResolveSchedulingContext merges global, branch and product rules for date.
//
// Precedence is product > branch > global > system defaults, field by field.
// Within a scope a specific-day rule for the exact date overrides that scope's
// general rules. Offness is decided by the highest scope whose specific-day
// rule sets isOff; without one, the date is off when any scope lists its
// weekday or the date itself as off.
func ResolveSchedulingContext(date string, global ScopeRules, branch, product *ScopeRules) (SchedulingContext, error) {
	day, err := ParseDate(date)
	if err != nil {
		return SchedulingContext{}, err
	}
	dateKey := day.Format(DateLayout)

	var ambiguities []AmbiguousRule
	scopes := []partial{overlay(ScopeGlobal, &global, dateKey, &ambiguities)}
	if branch != nil {
		scopes = append(scopes, overlay(ScopeBranch, branch, dateKey, &ambiguities))
	}
	if product != nil {
		scopes = append(scopes, overlay(ScopeProduct, product, dateKey, &ambiguities))
	}

	sc := SchedulingContext{
		Date:                   dateKey,
		WorkingHours:           DefaultWorkingHours,
		NumberOfStaff:          DefaultNumberOfStaff,
		ServiceDurationMinutes: DefaultServiceDurationMinutes,
		WeeklyOffDays:          DefaultWeeklyOffDays,
		Ambiguities:            ambiguities,
	}

	// Lowest precedence first so higher scopes overwrite.
	weeklyDefined := false
	for _, p := range scopes {
		if p.workingHours != nil {
			sc.WorkingHours = p.workingHours
			sc.Sources.WorkingHours = p.scope
		}
		if p.staff != nil {
			sc.NumberOfStaff = *p.staff
			sc.Sources.NumberOfStaff = p.scope
		}
		if p.duration != nil {
			sc.ServiceDurationMinutes = *p.duration
			sc.Sources.ServiceDurationMinutes = p.scope
		}
		if p.weeklyOff != nil {
			if !weeklyDefined {
				sc.WeeklyOffDays = []int{}
			}
			sc.WeeklyOffDays = appendUniqueInt(sc.WeeklyOffDays, p.weeklyOff...)
			sc.Sources.WeeklyOffDays = p.scope
			weeklyDefined = true
		}
		sc.OneTimeOffDates = appendUnique(sc.OneTimeOffDates, p.oneTimeOff...)
		if p.dayRule != nil {
			sc.SpecificDayRules = append(sc.SpecificDayRules, *p.dayRule)
		}
	}

	sc.IsOff, sc.Sources.IsOff = resolveOff(scopes, day, dateKey, weeklyDefined)

	if err := validateContext(sc); err != nil {
		return SchedulingContext{}, err
	}
	sc.WorkingHours = append([]string{}, sc.WorkingHours...)
	sc.WeeklyOffDays = sortedCopy(sc.WeeklyOffDays)
	if sc.OneTimeOffDates == nil {
		sc.OneTimeOffDates = []string{}
	}
	if sc.SpecificDayRules == nil {
		sc.SpecificDayRules = []SpecificDayRule{}
	}
	return sc, nil
}

func overlay(scope Scope, rules *ScopeRules, dateKey string, ambiguities *[]AmbiguousRule) partial {
	p := partial{
		scope:        scope,
		workingHours: rules.WorkingHours,
		staff:        rules.NumberOfStaff,
		duration:     rules.ServiceDurationMinutes,
		weeklyOff:    rules.WeeklyOffDays,
		oneTimeOff:   rules.OneTimeOffDates,
	}

	matches := 0
	for i := range rules.SpecificDayRules {
		if normalizeDate(rules.SpecificDayRules[i].Date) == dateKey {
			matches++
			p.dayRule = &rules.SpecificDayRules[i]
		}
	}
	if matches > 1 {
		*ambiguities = append(*ambiguities, AmbiguousRule{Scope: scope, Date: dateKey, Matches: matches})
	}
	if p.dayRule == nil {
		return p
	}

	rule := p.dayRule
	if rule.WorkingHours != nil {
		p.workingHours = rule.WorkingHours
	}
	if rule.NumberOfStaff != nil {
		p.staff = rule.NumberOfStaff
	}
	if rule.ServiceDurationMinutes != nil {
		p.duration = rule.ServiceDurationMinutes
	}
	p.isOff = rule.IsOff
	return p
}

func resolveOff(scopes []partial, day time.Time, dateKey string, weeklyDefined bool) (bool, Scope) {
	for i := len(scopes) - 1; i >= 0; i-- {
		if scopes[i].isOff != nil {
			return *scopes[i].isOff, scopes[i].scope
		}
	}

	weekday := int(day.Weekday())
	for i := len(scopes) - 1; i >= 0; i-- {
		p := scopes[i]
		if containsInt(p.weeklyOff, weekday) {
			return true, p.scope
		}
		for _, d := range p.oneTimeOff {
			if normalizeDate(d) == dateKey {
				return true, p.scope
			}
		}
	}
	if !weeklyDefined && containsInt(DefaultWeeklyOffDays, weekday) {
		return true, ScopeDefault
	}
	return false, ScopeDefault
}

func validateContext(sc SchedulingContext) error {
	for _, h := range sc.WorkingHours {
		if _, err := ParseTime(h); err != nil {
			return fmt.Errorf("%s working hours: %w", sc.Sources.WorkingHours, err)
		}
	}
	if sc.NumberOfStaff < 1 {
		return fmt.Errorf("%w: %s numberOfStaff must be positive, got %d", ErrInvalidRule, sc.Sources.NumberOfStaff, sc.NumberOfStaff)
	}
	if sc.ServiceDurationMinutes < MinServiceDurationMinutes {
		return fmt.Errorf("%w: %s serviceDurationMinutes must be at least %d, got %d",
			ErrInvalidRule, sc.Sources.ServiceDurationMinutes, MinServiceDurationMinutes, sc.ServiceDurationMinutes)
	}
	for _, d := range sc.WeeklyOffDays {
		if d < 0 || d > 6 {
			return fmt.Errorf("%w: weekday %d out of range", ErrInvalidRule, d)
		}
	}
	return nil
}

// ValidateScopeRules checks the values a scope stores before it is saved, so
// malformed documents are rejected at the write boundary.
func ValidateScopeRules(r ScopeRules) error {
	if err := validateHours(r.WorkingHours); err != nil {
		return err
	}
	if r.NumberOfStaff != nil && *r.NumberOfStaff < 1 {
		return fmt.Errorf("%w: numberOfStaff must be positive", ErrInvalidRule)
	}
	if r.ServiceDurationMinutes != nil && *r.ServiceDurationMinutes < MinServiceDurationMinutes {
		return fmt.Errorf("%w: serviceDurationMinutes must be at least %d", ErrInvalidRule, MinServiceDurationMinutes)
	}
	for _, d := range r.WeeklyOffDays {
		if d < 0 || d > 6 {
			return fmt.Errorf("%w: weekday %d out of range", ErrInvalidRule, d)
		}
	}
	for _, d := range r.OneTimeOffDates {
		if _, err := ParseDate(d); err != nil {
			return err
		}
	}
	for _, rule := range r.SpecificDayRules {
		if _, err := ParseDate(rule.Date); err != nil {
			return err
		}
		if err := validateHours(rule.WorkingHours); err != nil {
			return err
		}
		if rule.NumberOfStaff != nil && *rule.NumberOfStaff < 1 {
			return fmt.Errorf("%w: numberOfStaff on %s must be positive", ErrInvalidRule, rule.Date)
		}
		if rule.ServiceDurationMinutes != nil && *rule.ServiceDurationMinutes < MinServiceDurationMinutes {
			return fmt.Errorf("%w: serviceDurationMinutes on %s must be at least %d", ErrInvalidRule, rule.Date, MinServiceDurationMinutes)
		}
	}
	return nil
}

func validateHours(hours []string) error {
	for _, h := range hours {
		if _, err := ParseTime(h); err != nil {
			return err
		}
	}
	return nil
}

func containsInt(values []int, v int) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}

func appendUnique(dst []string, values ...string) []string {
	for _, v := range values {
		v = normalizeDate(v)
		dup := false
		for _, existing := range dst {
			if existing == v {
				dup = true
				break
			}
		}
		if !dup {
			dst = append(dst, v)
		}
	}
	return dst
}

func appendUniqueInt(dst []int, values ...int) []int {
	for _, v := range values {
		if !containsInt(dst, v) {
			dst = append(dst, v)
		}
	}
	return dst
}

func sortedCopy(values []int) []int {
	out := append([]int{}, values...)
	sort.Ints(out)
	return out
}
