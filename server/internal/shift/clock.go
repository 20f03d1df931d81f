package shift

import (
	"time"

	"github.com/kalfix/kalfix/pkg/types"
)

// Shift window boundaries, in hours of the local day.
const (
	shiftAStart = 6
	shiftAEnd   = 16
	shiftBStart = 22
	shiftBEnd   = 6
)

// Resolve returns the shift identity now falls into, evaluated in now's
// location. The boolean is false inside the [16:00,22:00) gap.
func Resolve(now time.Time) (types.Identity, bool) {
	h := now.Hour()
	today := types.DateOf(now)
	switch {
	case h >= shiftAStart && h < shiftAEnd:
		return types.Identity{Name: types.ShiftA, Date: today}, true
	case h >= shiftBStart:
		return types.Identity{Name: types.ShiftB, Date: today}, true
	case h < shiftBEnd:
		return types.Identity{Name: types.ShiftB, Date: today.AddDays(-1)}, true
	default:
		return types.Identity{}, false
	}
}

// Clock resolves shifts in a fixed location regardless of the location
// carried by the timestamps it is given.
type Clock struct {
	loc *time.Location
}

// NewClock returns a Clock for loc. A nil loc means time.Local.
func NewClock(loc *time.Location) Clock {
	if loc == nil {
		loc = time.Local
	}
	return Clock{loc: loc}
}

// Location returns the clock's location.
func (c Clock) Location() *time.Location {
	if c.loc == nil {
		return time.Local
	}
	return c.loc
}

// Resolve converts now to the clock's location and resolves it.
func (c Clock) Resolve(now time.Time) (types.Identity, bool) {
	return Resolve(now.In(c.Location()))
}

// Today returns the calendar day of now in the clock's location.
func (c Clock) Today(now time.Time) types.Date {
	return types.DateOf(now.In(c.Location()))
}

// Window returns the start and end instants of the shift occurrence id in
// the clock's location. ok is false for an unknown shift name.
func (c Clock) Window(id types.Identity) (start, end time.Time, ok bool) {
	loc := c.Location()
	d := id.Date
	switch id.Name {
	case types.ShiftA:
		start = time.Date(d.Year, d.Month, d.Day, shiftAStart, 0, 0, 0, loc)
		end = time.Date(d.Year, d.Month, d.Day, shiftAEnd, 0, 0, 0, loc)
	case types.ShiftB:
		start = time.Date(d.Year, d.Month, d.Day, shiftBStart, 0, 0, 0, loc)
		end = time.Date(d.Year, d.Month, d.Day+1, shiftBEnd, 0, 0, 0, loc)
	default:
		return time.Time{}, time.Time{}, false
	}
	return start, end, true
}
