package shift

import (
	"testing"
	"time"

	"github.com/kalfix/kalfix/pkg/types"
)

var day = types.Date{Year: 2026, Month: time.March, Day: 10}

func at(d types.Date, h, m int) time.Time {
	return time.Date(d.Year, d.Month, d.Day, h, m, 0, 0, time.UTC)
}

func TestResolve_Windows(t *testing.T) {
	tests := []struct {
		name   string
		now    time.Time
		want   types.Identity
		wantOK bool
	}{
		{"shift A opens", at(day, 6, 0), types.Identity{Name: types.ShiftA, Date: day}, true},
		{"shift A last minute", at(day, 15, 59), types.Identity{Name: types.ShiftA, Date: day}, true},
		{"gap opens", at(day, 16, 0), types.Identity{}, false},
		{"gap last minute", at(day, 21, 59), types.Identity{}, false},
		{"shift B opens", at(day, 22, 0), types.Identity{Name: types.ShiftB, Date: day}, true},
		{"shift B before midnight", at(day, 23, 59), types.Identity{Name: types.ShiftB, Date: day}, true},
		{"shift B after midnight", at(day, 0, 0), types.Identity{Name: types.ShiftB, Date: day.AddDays(-1)}, true},
		{"shift B last minute", at(day, 5, 59), types.Identity{Name: types.ShiftB, Date: day.AddDays(-1)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Resolve(tt.now)
			if ok != tt.wantOK {
				t.Fatalf("ok: got %v, want %v", ok, tt.wantOK)
			}
			if got != tt.want {
				t.Errorf("identity: got %+v, want %+v", got, tt.want)
			}
		})
	}
}

// Every minute of the day resolves to A, B or nothing, and nothing only
// inside [16:00,22:00).
func TestResolve_PartitionsDay(t *testing.T) {
	counts := map[string]int{}
	start := at(day, 0, 0)
	for i := 0; i < 24*60; i++ {
		now := start.Add(time.Duration(i) * time.Minute)
		id, ok := Resolve(now)
		gap := now.Hour() >= 16 && now.Hour() < 22
		if ok == gap {
			t.Fatalf("%s: resolved=%v, in gap=%v", now.Format("15:04"), ok, gap)
		}
		if !ok {
			counts["none"]++
			continue
		}
		if !types.KnownShift(id.Name) {
			t.Fatalf("%s: unknown shift %q", now.Format("15:04"), id.Name)
		}
		counts[id.Name]++
	}
	if counts[types.ShiftA] != 10*60 || counts[types.ShiftB] != 8*60 || counts["none"] != 6*60 {
		t.Errorf("minute counts: got %v, want A=600 B=480 none=360", counts)
	}
}

func TestClock_ResolvesInConfiguredLocation(t *testing.T) {
	loc := time.FixedZone("BRT", -3*60*60)
	c := NewClock(loc)

	// 08:30 UTC is 05:30 in BRT: still shift B of the previous day.
	now := time.Date(2026, time.March, 10, 8, 30, 0, 0, time.UTC)
	id, ok := c.Resolve(now)
	if !ok {
		t.Fatal("Resolve: expected a shift")
	}
	want := types.Identity{Name: types.ShiftB, Date: day.AddDays(-1)}
	if id != want {
		t.Errorf("identity: got %+v, want %+v", id, want)
	}
	if got := c.Today(time.Date(2026, time.March, 11, 1, 0, 0, 0, time.UTC)); got != day {
		t.Errorf("Today: got %v, want %v", got, day)
	}
}

func TestClock_Window(t *testing.T) {
	c := NewClock(time.UTC)

	start, end, ok := c.Window(types.Identity{Name: types.ShiftA, Date: day})
	if !ok || !start.Equal(at(day, 6, 0)) || !end.Equal(at(day, 16, 0)) {
		t.Errorf("shift A window: got %v-%v ok=%v", start, end, ok)
	}

	start, end, ok = c.Window(types.Identity{Name: types.ShiftB, Date: day})
	if !ok || !start.Equal(at(day, 22, 0)) || !end.Equal(at(day.AddDays(1), 6, 0)) {
		t.Errorf("shift B window: got %v-%v ok=%v", start, end, ok)
	}

	if _, _, ok := c.Window(types.Identity{Name: "Turno 3", Date: day}); ok {
		t.Error("unknown shift: expected ok=false")
	}
}
