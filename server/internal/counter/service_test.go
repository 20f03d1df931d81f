package counter

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/kalfix/kalfix/pkg/types"
	"github.com/kalfix/kalfix/server/internal/shift"
)

func newTestService(ms *memStore, now *time.Time) *Service {
	s := NewService(ms, shift.NewClock(time.UTC))
	s.now = func() time.Time { return *now }
	return s
}

func TestService_MorningBoundaryScenario(t *testing.T) {
	ms := newMemStore()
	now := time.Date(2026, time.March, 10, 5, 30, 0, 0, time.UTC)
	svc := newTestService(ms, &now)
	ctx := context.Background()

	b := types.Identity{Name: types.ShiftB, Date: types.Date{Year: 2026, Month: time.March, Day: 9}}
	a := types.Identity{Name: types.ShiftA, Date: types.Date{Year: 2026, Month: time.March, Day: 10}}

	rep, err := svc.Report(ctx, 100)
	if err != nil {
		t.Fatalf("Report: %v", err)
	}
	if rep.Shift == nil || *rep.Shift != b || rep.Outcome != Applied {
		t.Fatalf("05:30 report: got %+v, want applied to %v", rep, b)
	}

	now = time.Date(2026, time.March, 10, 6, 0, 0, 0, time.UTC)
	tr, err := svc.Tick(ctx)
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if tr.Kind != shift.Entered || *tr.Previous != b || *tr.Current != a {
		t.Errorf("transition: got %+v", tr)
	}
	if ms.gross(b) != 100 || ms.finalized[b] != 1 {
		t.Errorf("shift B: gross=%d finalized=%d, want 100/1", ms.gross(b), ms.finalized[b])
	}
	st := svc.Status()
	if st.Shift == nil || *st.Shift != a || st.Count != 0 {
		t.Errorf("status: got %+v, want A at 0", st)
	}
}

func TestService_IgnoreShiftCheckSkipsTracker(t *testing.T) {
	ms := newMemStore()
	now := time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC)
	svc := newTestService(ms, &now)
	svc.SetIgnoreShiftCheck(true)

	rep, err := svc.Report(context.Background(), 7)
	if err != nil {
		t.Fatalf("Report: %v", err)
	}
	if rep.Outcome != MemoryOnly || rep.Shift != nil {
		t.Errorf("got %+v, want memory-only without shift", rep)
	}
	if len(ms.shifts) != 0 {
		t.Errorf("tracker ran despite ignore_shift_check: %v", ms.shifts)
	}
}

func TestService_ConcurrentReportsNeverLoseProgress(t *testing.T) {
	ms := newMemStore()
	now := time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC)
	svc := newTestService(ms, &now)

	var wg sync.WaitGroup
	for i := 1; i <= 200; i++ {
		wg.Add(1)
		go func(v int64) {
			defer wg.Done()
			if _, err := svc.Report(context.Background(), v); err != nil {
				t.Errorf("Report(%d): %v", v, err)
			}
		}(int64(i))
	}
	wg.Wait()

	if got := ms.gross(shiftA); got != 200 {
		t.Errorf("persisted gross: got %d, want 200", got)
	}
	var sum int64
	for _, d := range ms.increments {
		sum += d
	}
	if sum != 200 {
		t.Errorf("sum of deltas: got %d, want 200", sum)
	}
}
