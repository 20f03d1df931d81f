package metrics

import (
	"context"
	"fmt"
	"sort"

	"github.com/kalfix/kalfix/pkg/types"
)

// performanceLookback is how far back the performance view reaches.
const performanceLookback = 1 // years

// Mode selects which shifts the performance view aggregates.
type Mode = types.PerformanceMode

// PerformanceRow is one bucket of the performance view. Name is set only
// in types.ModeBoth.
type PerformanceRow struct {
	PeriodStart types.Date `json:"period_start"`
	Name        string     `json:"shift_name,omitempty"`
	Gross       int64      `json:"gross"`
	Loss        int64      `json:"loss"`
}

// Performance buckets the last year of daily totals by period, ascending
// by bucket start and then shift name.
func (e *Engine) Performance(ctx context.Context, p Period, mode Mode) ([]PerformanceRow, error) {
	today := e.Today()
	since := types.Date{Year: today.Year - performanceLookback, Month: today.Month, Day: today.Day}
	rows, err := e.store.PerformanceRows(ctx, mode, since)
	if err != nil {
		return nil, fmt.Errorf("performance %s/%s: %w", p, mode, err)
	}

	type key struct {
		start types.Date
		name  string
	}
	idx := make(map[key]int)
	out := []PerformanceRow{}
	for _, r := range rows {
		k := key{start: p.Start(r.Date), name: r.Name}
		i, ok := idx[k]
		if !ok {
			i = len(out)
			idx[k] = i
			out = append(out, PerformanceRow{PeriodStart: k.start, Name: k.name})
		}
		out[i].Gross += r.Gross
		out[i].Loss += r.Loss
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].PeriodStart != out[j].PeriodStart {
			return out[i].PeriodStart.Before(out[j].PeriodStart)
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}
