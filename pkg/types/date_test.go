package types

import (
	"encoding/json"
	"testing"
	"time"
)

func TestDate_AddDaysCrossesMonthAndYear(t *testing.T) {
	d := Date{Year: 2025, Month: time.December, Day: 31}
	if got := d.AddDays(1); got != (Date{Year: 2026, Month: time.January, Day: 1}) {
		t.Errorf("AddDays(1): got %v, want 2026-01-01", got)
	}
	if got := d.AddDays(-31); got != (Date{Year: 2025, Month: time.November, Day: 30}) {
		t.Errorf("AddDays(-31): got %v, want 2025-11-30", got)
	}
}

func TestDate_ParseAndString(t *testing.T) {
	d, err := ParseDate("2026-03-09")
	if err != nil {
		t.Fatalf("ParseDate: %v", err)
	}
	if d.String() != "2026-03-09" {
		t.Errorf("String: got %q, want 2026-03-09", d.String())
	}
	if d.Weekday() != time.Monday {
		t.Errorf("Weekday: got %v, want Monday", d.Weekday())
	}
	if _, err := ParseDate("09/03/2026"); err == nil {
		t.Error("ParseDate: expected error for DD/MM/YYYY input")
	}
}

func TestDate_JSONRoundTripAsString(t *testing.T) {
	in := Identity{Name: ShiftA, Date: Date{Year: 2026, Month: time.May, Day: 4}}
	b, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	want := `{"shift_name":"Turno 1 (06:00 - 16:00 h)","shift_date":"2026-05-04"}`
	if string(b) != want {
		t.Errorf("Marshal: got %s, want %s", b, want)
	}
	var out Identity
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if out != in {
		t.Errorf("Unmarshal: got %+v, want %+v", out, in)
	}
}

func TestDate_Ordering(t *testing.T) {
	a := Date{Year: 2026, Month: time.January, Day: 1}
	b := a.AddDays(1)
	if !a.Before(b) || a.After(b) || !b.After(a) {
		t.Errorf("ordering broken for %v / %v", a, b)
	}
}
