package loss

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kalfix/kalfix/pkg/types"
)

// DefaultReason is recorded when a loss is submitted without a reason.
const DefaultReason = "manual loss entry"

// Store is the persistence the Recorder needs.
type Store interface {
	InsertLossAndIncrementTotal(ctx context.Context, id types.Identity, quantity int64, reason string, occurredAt time.Time) (types.LossEvent, error)
}

// Entry is one loss submission as received from an operator.
type Entry struct {
	ShiftName  string     `json:"shift_name"`
	ShiftDate  string     `json:"shift_date"`
	Quantity   int64      `json:"quantity"`
	Reason     string     `json:"reason,omitempty"`
	OccurredAt *time.Time `json:"occurred_at,omitempty"`
}

// Recorder validates and persists loss entries.
type Recorder struct {
	store Store
}

// NewRecorder returns a Recorder backed by st.
func NewRecorder(st Store) *Recorder {
	return &Recorder{store: st}
}

// Record validates e and appends it to its shift, adding the quantity to
// the shift's loss total in the same transaction.
func (r *Recorder) Record(ctx context.Context, e Entry) (types.LossEvent, error) {
	id, err := identityOf(e.ShiftName, e.ShiftDate)
	if err != nil {
		return types.LossEvent{}, err
	}
	if e.Quantity < 0 {
		return types.LossEvent{}, types.Invalid("quantity", "must be >= 0, got %d", e.Quantity)
	}
	reason := strings.TrimSpace(e.Reason)
	if reason == "" {
		reason = DefaultReason
	}
	var at time.Time
	if e.OccurredAt != nil {
		at = *e.OccurredAt
	}

	ev, err := r.store.InsertLossAndIncrementTotal(ctx, id, e.Quantity, reason, at)
	if err != nil {
		return types.LossEvent{}, fmt.Errorf("record loss for %s: %w", id.Key(), err)
	}
	slog.Info("loss: recorded",
		"shift", id.Key(), "quantity", ev.Quantity, "reason", ev.Reason, "id", ev.ID)
	return ev, nil
}

func identityOf(name, date string) (types.Identity, error) {
	if !types.KnownShift(name) {
		return types.Identity{}, types.Invalid("shift_name", "unknown shift %q", name)
	}
	d, err := types.ParseDate(date)
	if err != nil {
		return types.Identity{}, types.Invalid("shift_date", "want YYYY-MM-DD, got %q", date)
	}
	return types.Identity{Name: name, Date: d}, nil
}
