// Package counter turns device-reported cumulative readings into forward
// progress on the active shift's persisted gross count.
//
// The sensor reports a running total since its last reset, not a delta, so
// duplicate and stale resends are common. Reconcile compares the reading
// against the in-memory baseline (shift.State.Gross) and only ever applies
// the positive difference, through a conditional increment that fails with
// types.ErrConflict instead of overwriting when the baseline is stale.
//
// Service owns the shift.State and runs every tracker tick and every
// reconciliation under one mutex, so a shift change can never interleave
// with a reconciliation against the shift being left.
package counter
