package metrics

import (
	"time"

	"github.com/kalfix/kalfix/pkg/types"
)

// Period is a calendar aggregation window.
type Period string

// Supported periods.
const (
	Day   Period = "day"
	Week  Period = "week"
	Month Period = "month"
	Year  Period = "year"
)

// ParsePeriod parses s. An empty string means Day.
func ParsePeriod(s string) (Period, error) {
	switch p := Period(s); p {
	case "":
		return Day, nil
	case Day, Week, Month, Year:
		return p, nil
	}
	return "", types.Invalid("period", "unknown period %q (want day, week, month or year)", s)
}

// Start returns the first day of the period containing ref. Weeks start on
// Monday.
func (p Period) Start(ref types.Date) types.Date {
	switch p {
	case Week:
		offset := (int(ref.Weekday()) + 6) % 7 // days since Monday
		return ref.AddDays(-offset)
	case Month:
		return types.Date{Year: ref.Year, Month: ref.Month, Day: 1}
	case Year:
		return types.Date{Year: ref.Year, Month: time.January, Day: 1}
	default:
		return ref
	}
}

// Window returns the inclusive [from, to] day range of the period
// containing ref.
func (p Period) Window(ref types.Date) (from, to types.Date) {
	from = p.Start(ref)
	switch p {
	case Week:
		to = from.AddDays(6)
	case Month:
		to = types.DateOf(time.Date(ref.Year, ref.Month+1, 0, 0, 0, 0, 0, time.UTC))
	case Year:
		to = types.Date{Year: ref.Year, Month: time.December, Day: 31}
	default:
		to = from
	}
	return from, to
}
