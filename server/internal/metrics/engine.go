package metrics

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/kalfix/kalfix/pkg/types"
	"github.com/kalfix/kalfix/server/internal/shift"
)

// minElapsedHours keeps throughput finite for a shift that just started.
const minElapsedHours = 0.0001

// RecentLossLimit caps RecentLosses.
const RecentLossLimit = 50

// Upper bounds on query windows.
const (
	MaxSeriesDays   = 366
	MaxRecentWindow = MaxSeriesDays * 24 * time.Hour
)

// Reader is the read-only storage the Engine queries.
type Reader interface {
	GetShift(ctx context.Context, id types.Identity) (types.Shift, bool, error)
	ListShifts(ctx context.Context, from, to types.Date) ([]types.Shift, error)
	LossTotalsByReason(ctx context.Context, from, to time.Time) ([]types.ReasonTotal, error)
	RecentLosses(ctx context.Context, since time.Time, limit int) ([]types.LossEvent, error)
	OpenShifts(ctx context.Context) ([]types.Shift, error)
	PerformanceRows(ctx context.Context, mode types.PerformanceMode, since types.Date) ([]types.DailyTotal, error)
}

// Engine computes derived views over a Reader.
type Engine struct {
	store Reader
	clock shift.Clock
	now   func() time.Time // injectable for deterministic tests
}

// Option configures an Engine.
type Option func(*Engine)

// WithNow sets the engine's time source.
func WithNow(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine returns an Engine reading from st. Calendar days are taken in
// clock's location.
func NewEngine(st Reader, clock shift.Clock, opts ...Option) *Engine {
	e := &Engine{store: st, clock: clock, now: time.Now}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Today returns the current calendar day in the engine's location.
func (e *Engine) Today() types.Date {
	return e.clock.Today(e.now())
}

// ShiftMetrics are the derived figures of one shift.
type ShiftMetrics struct {
	Shift             types.Identity `json:"shift"`
	Gross             int64          `json:"gross"`
	Loss              int64          `json:"loss"`
	Net               int64          `json:"net"`
	LossRate          float64        `json:"loss_rate"`
	Efficiency        *float64       `json:"efficiency"`
	ThroughputPerHour float64        `json:"throughput_per_hour"`
	ShiftGoal         *int64         `json:"shift_goal,omitempty"`
	DayGoal           *int64         `json:"day_goal,omitempty"`
	StartedAt         time.Time      `json:"started_at"`
	FinishedAt        *time.Time     `json:"finished_at,omitempty"`
}

// ShiftMetrics returns the metrics of the shift id. The boolean is false
// when the shift does not exist.
func (e *Engine) ShiftMetrics(ctx context.Context, id types.Identity) (ShiftMetrics, bool, error) {
	sh, ok, err := e.store.GetShift(ctx, id)
	if err != nil {
		return ShiftMetrics{}, false, fmt.Errorf("shift metrics %s: %w", id.Key(), err)
	}
	if !ok {
		return ShiftMetrics{}, false, nil
	}
	return e.compute(sh), true, nil
}

func (e *Engine) compute(sh types.Shift) ShiftMetrics {
	m := ShiftMetrics{
		Shift:      sh.Identity(),
		Gross:      sh.Gross,
		Loss:       sh.Loss,
		Net:        net(sh),
		LossRate:   lossRate(sh.Gross, sh.Loss),
		Efficiency: efficiency(sh),
		StartedAt:  sh.StartedAt,
		FinishedAt: sh.FinishedAt,
	}
	end := e.now()
	if sh.FinishedAt != nil {
		end = *sh.FinishedAt
	}
	hours := end.Sub(sh.StartedAt).Hours()
	if hours < minElapsedHours {
		hours = minElapsedHours
	}
	m.ThroughputPerHour = float64(sh.Gross) / hours
	if sh.Goal != nil {
		g := sh.Goal.ShiftGoal
		m.ShiftGoal = &g
		if sh.Goal.DayGoal != nil {
			d := *sh.Goal.DayGoal
			m.DayGoal = &d
		}
	}
	return m
}

// DayRow is one active date of a period aggregate.
type DayRow struct {
	Date  types.Date `json:"date"`
	Gross int64      `json:"gross"`
	Loss  int64      `json:"loss"`
	Net   int64      `json:"net"`
}

// Aggregate sums production over a calendar period.
type Aggregate struct {
	Period Period     `json:"period"`
	From   types.Date `json:"from"`
	To     types.Date `json:"to"`
	Days   []DayRow   `json:"days"`
	Gross  int64      `json:"gross"`
	Loss   int64      `json:"loss"`
	Net    int64      `json:"net"`
}

// PeriodAggregate sums every shift dated within the period containing ref,
// one row per date that has at least one shift, ascending. Net is the sum
// of each shift's floored net.
func (e *Engine) PeriodAggregate(ctx context.Context, p Period, ref types.Date) (Aggregate, error) {
	from, to := p.Window(ref)
	shifts, err := e.store.ListShifts(ctx, from, to)
	if err != nil {
		return Aggregate{}, fmt.Errorf("period aggregate %s %s: %w", p, ref, err)
	}
	agg := Aggregate{Period: p, From: from, To: to, Days: []DayRow{}}
	idx := make(map[types.Date]int)
	for _, sh := range shifts {
		i, ok := idx[sh.Date]
		if !ok {
			i = len(agg.Days)
			idx[sh.Date] = i
			agg.Days = append(agg.Days, DayRow{Date: sh.Date})
		}
		n := net(sh)
		agg.Days[i].Gross += sh.Gross
		agg.Days[i].Loss += sh.Loss
		agg.Days[i].Net += n
		agg.Gross += sh.Gross
		agg.Loss += sh.Loss
		agg.Net += n
	}
	sort.Slice(agg.Days, func(i, j int) bool { return agg.Days[i].Date.Before(agg.Days[j].Date) })
	return agg, nil
}

// LossDistribution sums loss quantities by reason for events that occurred
// within the period containing ref, largest first, ties by reason.
func (e *Engine) LossDistribution(ctx context.Context, p Period, ref types.Date) ([]types.ReasonTotal, error) {
	from, to := p.Window(ref)
	loc := e.clock.Location()
	start := from.Midnight(loc).UTC()
	end := to.AddDays(1).Midnight(loc).UTC()

	totals, err := e.store.LossTotalsByReason(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("loss distribution %s %s: %w", p, ref, err)
	}
	out := append([]types.ReasonTotal{}, totals...)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Total != out[j].Total {
			return out[i].Total > out[j].Total
		}
		return out[i].Reason < out[j].Reason
	})
	return out, nil
}

// RankEntry is one shift's position in the efficiency ranking.
type RankEntry struct {
	Shift      types.Identity `json:"shift"`
	Gross      int64          `json:"gross"`
	Net        int64          `json:"net"`
	Efficiency *float64       `json:"efficiency"`
}

// EfficiencyRanking orders the shifts dated ref by efficiency, highest
// first. Shifts without a goal sort last; ties keep shift name order.
func (e *Engine) EfficiencyRanking(ctx context.Context, ref types.Date) ([]RankEntry, error) {
	shifts, err := e.store.ListShifts(ctx, ref, ref)
	if err != nil {
		return nil, fmt.Errorf("efficiency ranking %s: %w", ref, err)
	}
	sort.SliceStable(shifts, func(i, j int) bool { return shifts[i].Name < shifts[j].Name })

	out := make([]RankEntry, 0, len(shifts))
	for _, sh := range shifts {
		out = append(out, RankEntry{
			Shift:      sh.Identity(),
			Gross:      sh.Gross,
			Net:        net(sh),
			Efficiency: efficiency(sh),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].Efficiency, out[j].Efficiency
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return *a > *b
		}
	})
	return out, nil
}

// SeriesPoint is one day of the efficiency series.
type SeriesPoint struct {
	Date       types.Date `json:"date"`
	Net        int64      `json:"net"`
	Goal       int64      `json:"goal"`
	Efficiency *float64   `json:"efficiency"`
}

// DailyEfficiencySeries returns one point for each of the last n days,
// oldest first, including days without production. A day's goal is the
// largest day goal registered on any of its shifts, or the sum of its
// shift goals when no day goal exists.
func (e *Engine) DailyEfficiencySeries(ctx context.Context, n int) ([]SeriesPoint, error) {
	if n <= 0 || n > MaxSeriesDays {
		return nil, types.Invalid("days", "must be in [1, %d], got %d", MaxSeriesDays, n)
	}
	today := e.Today()
	from := today.AddDays(-(n - 1))
	shifts, err := e.store.ListShifts(ctx, from, today)
	if err != nil {
		return nil, fmt.Errorf("efficiency series %d days: %w", n, err)
	}

	type acc struct {
		net, dayGoal, shiftGoals int64
	}
	byDate := make(map[types.Date]*acc, n)
	for _, sh := range shifts {
		a := byDate[sh.Date]
		if a == nil {
			a = &acc{}
			byDate[sh.Date] = a
		}
		a.net += sh.Gross - sh.Loss
		if sh.Goal == nil {
			continue
		}
		a.shiftGoals += sh.Goal.ShiftGoal
		if d := sh.Goal.DayGoal; d != nil && *d > a.dayGoal {
			a.dayGoal = *d
		}
	}

	out := make([]SeriesPoint, 0, n)
	for d := from; !d.After(today); d = d.AddDays(1) {
		pt := SeriesPoint{Date: d}
		if a := byDate[d]; a != nil {
			pt.Net = a.net
			pt.Goal = a.shiftGoals
			if a.dayGoal > 0 {
				pt.Goal = a.dayGoal
			}
			if pt.Goal > 0 {
				v := float64(pt.Net) / float64(pt.Goal) * 100
				pt.Efficiency = &v
			}
		}
		out = append(out, pt)
	}
	return out, nil
}

// RecentLosses returns the loss events of the last window, newest first,
// capped at RecentLossLimit.
func (e *Engine) RecentLosses(ctx context.Context, window time.Duration) ([]types.LossEvent, error) {
	if window <= 0 || window > MaxRecentWindow {
		return nil, types.Invalid("hours", "must be in [1, %d]", int(MaxRecentWindow/time.Hour))
	}
	events, err := e.store.RecentLosses(ctx, e.now().Add(-window), RecentLossLimit)
	if err != nil {
		return nil, fmt.Errorf("recent losses: %w", err)
	}
	if events == nil {
		events = []types.LossEvent{}
	}
	return events, nil
}

// OpenShifts returns the metrics of every unfinished shift, newest first.
func (e *Engine) OpenShifts(ctx context.Context) ([]ShiftMetrics, error) {
	shifts, err := e.store.OpenShifts(ctx)
	if err != nil {
		return nil, fmt.Errorf("open shifts: %w", err)
	}
	out := make([]ShiftMetrics, 0, len(shifts))
	for _, sh := range shifts {
		out = append(out, e.compute(sh))
	}
	return out, nil
}

func net(sh types.Shift) int64 {
	if n := sh.Gross - sh.Loss; n > 0 {
		return n
	}
	return 0
}

func lossRate(gross, loss int64) float64 {
	if gross <= 0 {
		return 0
	}
	return float64(loss) / float64(gross) * 100
}

func efficiency(sh types.Shift) *float64 {
	if sh.Goal == nil || sh.Goal.ShiftGoal <= 0 {
		return nil
	}
	v := float64(sh.Gross) / float64(sh.Goal.ShiftGoal) * 100
	return &v
}
