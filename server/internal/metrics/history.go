package metrics

import (
	"context"
	"fmt"

	"github.com/kalfix/kalfix/pkg/types"
)

// HistoryEntry is one cell of the dashboard history grid.
type HistoryEntry struct {
	Date  types.Date `json:"date"`
	Name  string     `json:"shift_name"`
	Gross int64      `json:"gross"`
	Loss  int64      `json:"loss"`
	Net   int64      `json:"net"`
}

// History returns the last days × every shift name, newest date first and
// shift names ascending within a date. Shifts with no row are zero.
func (e *Engine) History(ctx context.Context, days int) ([]HistoryEntry, error) {
	if days <= 0 {
		return []HistoryEntry{}, nil
	}
	today := e.Today()
	from := today.AddDays(-(days - 1))
	shifts, err := e.store.ListShifts(ctx, from, today)
	if err != nil {
		return nil, fmt.Errorf("history %d days: %w", days, err)
	}
	byID := make(map[types.Identity]types.Shift, len(shifts))
	for _, sh := range shifts {
		byID[sh.Identity()] = sh
	}

	names := types.ShiftNames() // already ascending
	out := make([]HistoryEntry, 0, days*len(names))
	for d := today; !d.Before(from); d = d.AddDays(-1) {
		for _, name := range names {
			h := HistoryEntry{Date: d, Name: name}
			if sh, ok := byID[types.Identity{Name: name, Date: d}]; ok {
				h.Gross, h.Loss, h.Net = sh.Gross, sh.Loss, net(sh)
			}
			out = append(out, h)
		}
	}
	return out, nil
}
