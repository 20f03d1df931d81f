package types

import "time"

// Shift names as they are persisted and shown on the dashboard.
const (
	ShiftA = "Turno 1 (06:00 - 16:00 h)"
	ShiftB = "Turno 2 (22:00 - 06:00 h)"
)

// ShiftNames returns the known shift names in display order.
func ShiftNames() []string {
	return []string{ShiftA, ShiftB}
}

// KnownShift reports whether name is one of the configured shift names.
func KnownShift(name string) bool {
	return name == ShiftA || name == ShiftB
}

// Identity names one shift occurrence: a shift name on a shift date.
// Shift B's date is the day its 22:00 boundary occurred.
type Identity struct {
	Name string `json:"shift_name"`
	Date Date   `json:"shift_date"`
}

// Key returns the "name - date" form used in logs and status output.
func (id Identity) Key() string {
	return id.Name + " - " + id.Date.String()
}

// Shift is the persisted running total for one Identity.
type Shift struct {
	ID         int64      `json:"id"`
	Name       string     `json:"shift_name"`
	Date       Date       `json:"shift_date"`
	Gross      int64      `json:"gross"`
	Loss       int64      `json:"loss"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	// Goal is nil when no goal has been registered for the shift.
	Goal *Goal `json:"goal,omitempty"`
}

// Identity returns the shift's identity.
func (s Shift) Identity() Identity {
	return Identity{Name: s.Name, Date: s.Date}
}

// Goal is the production target registered for one shift.
type Goal struct {
	ShiftID   int64  `json:"shift_id"`
	ShiftGoal int64  `json:"shift_goal"`
	DayGoal   *int64 `json:"day_goal,omitempty"`
}

// LossEvent is one append-only loss record attributed to a shift.
type LossEvent struct {
	ID         int64     `json:"id"`
	ShiftID    int64     `json:"shift_id"`
	Shift      Identity  `json:"shift"`
	Quantity   int64     `json:"quantity"`
	Reason     string    `json:"reason"`
	OccurredAt time.Time `json:"occurred_at"`
}

// ReasonTotal is the summed loss quantity for one reason.
type ReasonTotal struct {
	Reason string `json:"reason"`
	Total  int64  `json:"total"`
}

// DailyTotal is the gross and loss sum of one shift date. Name is empty
// when the row aggregates every shift of the date.
type DailyTotal struct {
	Date  Date   `json:"date"`
	Name  string `json:"shift_name,omitempty"`
	Gross int64  `json:"gross"`
	Loss  int64  `json:"loss"`
}

// PerformanceMode selects which shifts a performance view aggregates.
type PerformanceMode string

// Performance modes.
const (
	ModeTotal  PerformanceMode = "total"   // every shift summed per date
	ModeShiftA PerformanceMode = "shift_a" // ShiftA only
	ModeShiftB PerformanceMode = "shift_b" // ShiftB only
	ModeBoth   PerformanceMode = "both"    // one row per date and shift
)

// ParsePerformanceMode parses s; empty means ModeTotal.
func ParsePerformanceMode(s string) (PerformanceMode, error) {
	switch m := PerformanceMode(s); m {
	case "":
		return ModeTotal, nil
	case ModeTotal, ModeShiftA, ModeShiftB, ModeBoth:
		return m, nil
	}
	return "", Invalid("mode", "unknown mode %q (want total, shift_a, shift_b or both)", s)
}
