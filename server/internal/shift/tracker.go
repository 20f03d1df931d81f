package shift

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kalfix/kalfix/pkg/types"
)

// Store is the persistence the tracker needs.
type Store interface {
	// GetOrCreateShift returns the persisted shift, creating it at zero when absent.
	GetOrCreateShift(ctx context.Context, id types.Identity) (types.Shift, error)
	// FinalizeShift stamps finishedAt. Calling it twice only rewrites the stamp.
	FinalizeShift(ctx context.Context, id types.Identity) error
}

// State is the runtime cache of the active shift. Gross mirrors the
// persisted gross count of Active and is only a delta baseline; when no
// shift is active it holds the last memory-only reading.
type State struct {
	Active *types.Identity
	Gross  int64
}

// Key returns the active shift key, or "" when no shift is active.
func (s *State) Key() string {
	if s.Active == nil {
		return ""
	}
	return s.Active.Key()
}

// TransitionKind classifies the outcome of one tick.
type TransitionKind int

const (
	Unchanged TransitionKind = iota
	Entered
	LeftShifts
)

func (k TransitionKind) String() string {
	switch k {
	case Entered:
		return "entered"
	case LeftShifts:
		return "left_shifts"
	default:
		return "unchanged"
	}
}

// Transition reports what a tick did. Previous is set when a shift was
// finalized; Current is set when a shift is active after the tick.
type Transition struct {
	Kind     TransitionKind
	Previous *types.Identity
	Current  *types.Identity
}

// Tracker detects shift changes and finalizes the shift being left.
type Tracker struct {
	store Store
	clock Clock
}

// NewTracker returns a Tracker resolving shifts with clock.
func NewTracker(st Store, clock Clock) *Tracker {
	return &Tracker{store: st, clock: clock}
}

// Clock returns the tracker's clock.
func (t *Tracker) Clock() Clock { return t.clock }

// OnTick resolves now and brings st up to date. On a storage error st is
// left untouched so the next tick retries the same transition.
func (t *Tracker) OnTick(ctx context.Context, st *State, now time.Time) (Transition, error) {
	id, ok := t.clock.Resolve(now)
	if !ok {
		if st.Active == nil {
			return Transition{Kind: Unchanged}, nil
		}
		prev := *st.Active
		if err := t.store.FinalizeShift(ctx, prev); err != nil {
			return Transition{}, fmt.Errorf("finalize %s: %w", prev.Key(), err)
		}
		slog.Info("shift: outside shift hours, finalized", "shift", prev.Key())
		st.Active = nil
		st.Gross = 0
		return Transition{Kind: LeftShifts, Previous: &prev}, nil
	}

	if st.Active != nil && *st.Active == id {
		return Transition{Kind: Unchanged, Current: &id}, nil
	}

	var prev *types.Identity
	if st.Active != nil {
		p := *st.Active
		if err := t.store.FinalizeShift(ctx, p); err != nil {
			return Transition{}, fmt.Errorf("finalize %s: %w", p.Key(), err)
		}
		slog.Info("shift: changed, previous finalized", "previous", p.Key(), "next", id.Key())
		prev = &p
	}

	sh, err := t.store.GetOrCreateShift(ctx, id)
	if err != nil {
		return Transition{}, fmt.Errorf("load %s: %w", id.Key(), err)
	}
	st.Active = &id
	st.Gross = sh.Gross
	slog.Info("shift: active", "shift", id.Key(), "gross", sh.Gross)

	return Transition{Kind: Entered, Previous: prev, Current: &id}, nil
}
