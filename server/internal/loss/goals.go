package loss

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kalfix/kalfix/pkg/types"
	"github.com/kalfix/kalfix/server/internal/shift"
)

// GoalStore is the persistence the Setter needs.
type GoalStore interface {
	UpsertGoal(ctx context.Context, id types.Identity, shiftGoal int64, dayGoal *int64) (types.Goal, error)
}

// GoalRequest is a goal submission for a shift by name.
type GoalRequest struct {
	ShiftName string `json:"shift_name"`
	ShiftGoal int64  `json:"shift_goal"`
	DayGoal   *int64 `json:"day_goal,omitempty"`
}

// SetResult reports which shift occurrence a goal was attached to.
type SetResult struct {
	Shift types.Identity `json:"shift"`
	Goal  types.Goal     `json:"goal"`
}

// Setter registers goals against the shift occurrence the request names.
type Setter struct {
	store GoalStore
	clock shift.Clock
	now   func() time.Time // injectable for deterministic tests
}

// Option configures a Setter.
type Option func(*Setter)

// WithNow sets the time source used to pick the target occurrence.
func WithNow(now func() time.Time) Option {
	return func(s *Setter) { s.now = now }
}

// NewSetter returns a Setter backed by st, resolving dates with clock.
func NewSetter(st GoalStore, clock shift.Clock, opts ...Option) *Setter {
	s := &Setter{store: st, clock: clock, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Set upserts the goal. The goal attaches to the current occurrence of the
// named shift when that shift is running, otherwise to today's occurrence.
func (s *Setter) Set(ctx context.Context, req GoalRequest) (SetResult, error) {
	if !types.KnownShift(req.ShiftName) {
		return SetResult{}, types.Invalid("shift_name", "unknown shift %q", req.ShiftName)
	}
	if req.ShiftGoal <= 0 {
		return SetResult{}, types.Invalid("shift_goal", "must be > 0, got %d", req.ShiftGoal)
	}
	if req.DayGoal != nil && *req.DayGoal <= 0 {
		return SetResult{}, types.Invalid("day_goal", "must be > 0 when set, got %d", *req.DayGoal)
	}

	id := s.target(req.ShiftName)
	g, err := s.store.UpsertGoal(ctx, id, req.ShiftGoal, req.DayGoal)
	if err != nil {
		return SetResult{}, fmt.Errorf("set goal for %s: %w", id.Key(), err)
	}
	slog.Info("loss: goal set", "shift", id.Key(), "shift_goal", g.ShiftGoal, "has_day_goal", g.DayGoal != nil)
	return SetResult{Shift: id, Goal: g}, nil
}

func (s *Setter) target(name string) types.Identity {
	now := s.now()
	if cur, ok := s.clock.Resolve(now); ok && cur.Name == name {
		return cur
	}
	return types.Identity{Name: name, Date: s.clock.Today(now)}
}
