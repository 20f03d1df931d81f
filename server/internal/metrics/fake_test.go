package metrics

import (
	"context"
	"sort"
	"time"

	"github.com/kalfix/kalfix/pkg/types"
	"github.com/kalfix/kalfix/server/internal/shift"
)

// memReader is an in-memory Reader.
type memReader struct {
	shifts []types.Shift
	losses []types.LossEvent
	err    error
}

func (m *memReader) GetShift(_ context.Context, id types.Identity) (types.Shift, bool, error) {
	if m.err != nil {
		return types.Shift{}, false, m.err
	}
	for _, sh := range m.shifts {
		if sh.Identity() == id {
			return sh, true, nil
		}
	}
	return types.Shift{}, false, nil
}

func (m *memReader) ListShifts(_ context.Context, from, to types.Date) ([]types.Shift, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []types.Shift
	for _, sh := range m.shifts {
		if !sh.Date.Before(from) && !sh.Date.After(to) {
			out = append(out, sh)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (m *memReader) LossTotalsByReason(_ context.Context, from, to time.Time) ([]types.ReasonTotal, error) {
	if m.err != nil {
		return nil, m.err
	}
	sums := map[string]int64{}
	for _, ev := range m.losses {
		if !ev.OccurredAt.Before(from) && ev.OccurredAt.Before(to) {
			sums[ev.Reason] += ev.Quantity
		}
	}
	var out []types.ReasonTotal
	for r, t := range sums {
		out = append(out, types.ReasonTotal{Reason: r, Total: t})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Reason < out[j].Reason })
	return out, nil
}

func (m *memReader) RecentLosses(_ context.Context, since time.Time, limit int) ([]types.LossEvent, error) {
	var out []types.LossEvent
	for _, ev := range m.losses {
		if !ev.OccurredAt.Before(since) {
			out = append(out, ev)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OccurredAt.After(out[j].OccurredAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memReader) OpenShifts(_ context.Context) ([]types.Shift, error) {
	var out []types.Shift
	for _, sh := range m.shifts {
		if sh.FinishedAt == nil {
			out = append(out, sh)
		}
	}
	return out, nil
}

func (m *memReader) PerformanceRows(_ context.Context, mode types.PerformanceMode, since types.Date) ([]types.DailyTotal, error) {
	type key struct {
		d    types.Date
		name string
	}
	sums := map[key]*types.DailyTotal{}
	var keys []key
	for _, sh := range m.shifts {
		if sh.Date.Before(since) {
			continue
		}
		k := key{d: sh.Date}
		switch mode {
		case types.ModeShiftA:
			if sh.Name != types.ShiftA {
				continue
			}
			k.name = sh.Name
		case types.ModeShiftB:
			if sh.Name != types.ShiftB {
				continue
			}
			k.name = sh.Name
		case types.ModeBoth:
			k.name = sh.Name
		}
		if sums[k] == nil {
			sums[k] = &types.DailyTotal{Date: k.d, Name: k.name}
			keys = append(keys, k)
		}
		sums[k].Gross += sh.Gross
		sums[k].Loss += sh.Loss
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].d != keys[j].d {
			return keys[i].d.Before(keys[j].d)
		}
		return keys[i].name < keys[j].name
	})
	out := make([]types.DailyTotal, 0, len(keys))
	for _, k := range keys {
		out = append(out, *sums[k])
	}
	return out, nil
}

func date(s string) types.Date {
	d, err := types.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func goal(shiftGoal int64, dayGoal ...int64) *types.Goal {
	g := &types.Goal{ShiftGoal: shiftGoal}
	if len(dayGoal) > 0 {
		g.DayGoal = &dayGoal[0]
	}
	return g
}

func newTestEngine(r Reader, now time.Time) *Engine {
	e := NewEngine(r, shift.NewClock(time.UTC))
	e.now = func() time.Time { return now }
	return e
}

func ptr(v float64) *float64 { return &v }
