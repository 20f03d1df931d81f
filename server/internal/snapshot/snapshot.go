// Package snapshot assembles the status payload pushed to dashboards: the
// live count, the active shift and the recent history grid.
package snapshot

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kalfix/kalfix/pkg/types"
	"github.com/kalfix/kalfix/server/internal/counter"
	"github.com/kalfix/kalfix/server/internal/metrics"
	"github.com/kalfix/kalfix/server/internal/shift"
)

// Payload is the body of a "status" event and of GET /api/v1/snapshot.
type Payload struct {
	Count        int64                  `json:"count"`
	CurrentShift *string                `json:"current_shift"`
	ShiftDate    *types.Date            `json:"shift_date,omitempty"`
	History      []metrics.HistoryEntry `json:"history"`
	Timestamp    time.Time              `json:"timestamp"`
}

// Builder produces Payloads from the counter service and metrics engine.
type Builder struct {
	svc         *counter.Service
	engine      *metrics.Engine
	historyDays int
}

// NewBuilder returns a Builder whose history spans historyDays days.
func NewBuilder(svc *counter.Service, engine *metrics.Engine, historyDays int) *Builder {
	return &Builder{svc: svc, engine: engine, historyDays: historyDays}
}

// Build ticks the shift tracker so boundaries are honoured without pulses,
// then reads the runtime cache and the history grid. A failed tick is
// logged and the payload is still built from the current cache; a failed
// history read is returned.
func (b *Builder) Build(ctx context.Context) (Payload, error) {
	if tr, err := b.svc.Tick(ctx); err != nil {
		slog.Warn("snapshot: tick failed", "err", err)
	} else if tr.Kind != shift.Unchanged {
		slog.Info("snapshot: shift transition", "kind", tr.Kind.String(), "shift", keyOf(tr.Current), "previous", keyOf(tr.Previous))
	}
	return b.Current(ctx)
}

// Current builds a payload without ticking the tracker.
func (b *Builder) Current(ctx context.Context) (Payload, error) {
	st := b.svc.Status()
	hist, err := b.engine.History(ctx, b.historyDays)
	if err != nil {
		return Payload{}, fmt.Errorf("snapshot: %w", err)
	}
	p := Payload{
		Count:     st.Count,
		History:   hist,
		Timestamp: b.svc.Now().In(b.svc.Clock().Location()),
	}
	if st.Shift != nil {
		name, date := st.Shift.Name, st.Shift.Date
		p.CurrentShift = &name
		p.ShiftDate = &date
	}
	return p, nil
}

func keyOf(id *types.Identity) string {
	if id == nil {
		return ""
	}
	return id.Key()
}
