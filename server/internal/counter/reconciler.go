package counter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kalfix/kalfix/pkg/types"
	"github.com/kalfix/kalfix/server/internal/shift"
)

// Outcome classifies what a reconciliation did with a reading.
type Outcome string

const (
	Applied              Outcome = "applied"
	MemoryOnly           Outcome = "memory_only"
	RejectedInvalid      Outcome = "rejected_invalid"
	RejectedNotAdvancing Outcome = "rejected_not_advancing"
	Conflict             Outcome = "conflict"
	Failed               Outcome = "failed"
)

// Result is the outcome of one reconciliation. Count is the baseline after
// the call; Delta is the amount added to the persisted gross count.
type Result struct {
	Outcome Outcome `json:"outcome"`
	Count   int64   `json:"count"`
	Delta   int64   `json:"delta"`
}

// IncrementStore applies a delta to a shift's persisted gross count.
type IncrementStore interface {
	// IncrementShiftBy adds delta to the gross count of id if and only if the
	// persisted value still equals base, creating the row from zero when it
	// does not exist. It returns the new persisted value. On a baseline
	// mismatch it returns the current persisted value and an error matching
	// types.ErrConflict.
	IncrementShiftBy(ctx context.Context, id types.Identity, base, delta int64) (int64, error)
}

// Reconciler applies cumulative readings to a shift.State.
type Reconciler struct {
	store IncrementStore
}

// NewReconciler returns a Reconciler writing through st.
func NewReconciler(st IncrementStore) *Reconciler {
	return &Reconciler{store: st}
}

// Reconcile applies reading to st. Rejections are reported through the
// Result and leave st untouched; storage failures are returned as errors
// and also leave st untouched, except for a conflict, which resets the
// baseline to the persisted value.
func (r *Reconciler) Reconcile(ctx context.Context, st *shift.State, reading int64) (Result, error) {
	switch {
	case reading <= 0:
		return Result{Outcome: RejectedInvalid, Count: st.Gross}, nil
	case reading <= st.Gross:
		return Result{Outcome: RejectedNotAdvancing, Count: st.Gross}, nil
	case st.Active == nil:
		st.Gross = reading
		return Result{Outcome: MemoryOnly, Count: st.Gross}, nil
	}

	id := *st.Active
	base := st.Gross
	delta := reading - base

	persisted, err := r.store.IncrementShiftBy(ctx, id, base, delta)
	if errors.Is(err, types.ErrConflict) {
		slog.Warn("counter: baseline conflict, re-read from store",
			"shift", id.Key(), "baseline", base, "persisted", persisted)
		st.Gross = persisted
		return Result{Outcome: Conflict, Count: st.Gross}, err
	}
	if err != nil {
		return Result{Outcome: Failed, Count: st.Gross}, fmt.Errorf("increment %s by %d: %w", id.Key(), delta, err)
	}
	if persisted != base+delta {
		slog.Warn("counter: increment returned unexpected total",
			"shift", id.Key(), "expected", base+delta, "persisted", persisted)
		st.Gross = persisted
		return Result{Outcome: Conflict, Count: st.Gross},
			fmt.Errorf("increment %s: expected %d, store holds %d: %w", id.Key(), base+delta, persisted, types.ErrConflict)
	}

	st.Gross = persisted
	return Result{Outcome: Applied, Count: persisted, Delta: delta}, nil
}
