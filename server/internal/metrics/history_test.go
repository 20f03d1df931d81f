package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/kalfix/kalfix/pkg/types"
)

func TestHistory_ZeroFilledNewestFirst(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	r := &memReader{shifts: []types.Shift{
		{Name: types.ShiftB, Date: date("2024-03-10"), Gross: 30, Loss: 40},
		{Name: types.ShiftA, Date: date("2024-03-09"), Gross: 100, Loss: 10},
	}}
	e := newTestEngine(r, now)

	got, err := e.History(context.Background(), 2)
	if err != nil {
		t.Fatal(err)
	}
	want := []HistoryEntry{
		{Date: date("2024-03-10"), Name: types.ShiftA},
		{Date: date("2024-03-10"), Name: types.ShiftB, Gross: 30, Loss: 40, Net: 0},
		{Date: date("2024-03-09"), Name: types.ShiftA, Gross: 100, Loss: 10, Net: 90},
		{Date: date("2024-03-09"), Name: types.ShiftB},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("History mismatch (-want +got):\n%s", diff)
	}
}

func TestHistory_NonPositiveDays(t *testing.T) {
	e := newTestEngine(&memReader{}, time.Now())
	got, err := e.History(context.Background(), 0)
	if err != nil || len(got) != 0 {
		t.Errorf("History(0): got %v, %v", got, err)
	}
}
