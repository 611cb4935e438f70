package announcement

import (
	"strconv"
	"strings"
	"time"
)

// DefaultTime is the time of day the picker starts with.
const DefaultTime = "12:00"

const dateLayout = "2006-01-02"

// ParseClock splits an "HH:MM" string into hour and minute.
// Anything other than exactly two numeric, in-range components is rejected.
func ParseClock(s string) (hour, minute int, ok bool) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, 0, false
	}
	h, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil || h < 0 || h > 23 {
		return 0, 0, false
	}
	m, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil || m < 0 || m > 59 {
		return 0, 0, false
	}
	return h, m, true
}

// ComposeDeadline joins a calendar day and a clock string in loc.
// Returns nil when either part is missing or the clock is incomplete.
func ComposeDeadline(date, clock string, loc *time.Location) *time.Time {
	if loc == nil {
		loc = time.Local
	}
	day, err := time.ParseInLocation(dateLayout, strings.TrimSpace(date), loc)
	if err != nil {
		return nil
	}
	h, m, ok := ParseClock(clock)
	if !ok {
		return nil
	}
	t := time.Date(day.Year(), day.Month(), day.Day(), h, m, 0, 0, loc)
	return &t
}

// DeadlinePicker combines a day selection with a separate time-of-day field.
// Every change recomputes the committed value.
type DeadlinePicker struct {
	loc       *time.Location
	date      string
	clock     string
	committed *time.Time
}

// NewDeadlinePicker starts a picker, seeded from value when non-nil.
// PRE: loc may be nil (local time)
// POST: Clock is DefaultTime unless value provides one
func NewDeadlinePicker(loc *time.Location, value *time.Time) *DeadlinePicker {
	if loc == nil {
		loc = time.Local
	}
	p := &DeadlinePicker{loc: loc, clock: DefaultTime}
	if value != nil {
		v := value.In(loc)
		p.date = v.Format(dateLayout)
		p.clock = v.Format("15:04")
		p.committed = &v
	}
	return p
}

// SelectDate records a calendar day and commits.
func (p *DeadlinePicker) SelectDate(date string) {
	p.date = date
	p.commit()
}

// SetTime records a time-of-day string and commits.
func (p *DeadlinePicker) SetTime(clock string) {
	p.clock = clock
	p.commit()
}

func (p *DeadlinePicker) commit() {
	p.committed = ComposeDeadline(p.date, p.clock, p.loc)
}

// Value returns the committed date-time or nil.
func (p *DeadlinePicker) Value() *time.Time {
	return p.committed
}

// Date returns the selected day as YYYY-MM-DD.
func (p *DeadlinePicker) Date() string { return p.date }

// Clock returns the time-of-day field as typed.
func (p *DeadlinePicker) Clock() string { return p.clock }

// Label renders the committed value for display, or placeholder when empty.
func (p *DeadlinePicker) Label(placeholder string) string {
	if p.committed == nil {
		return placeholder
	}
	return p.committed.In(p.loc).Format("2006/01/02 15:04")
}
