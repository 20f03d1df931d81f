// Package metrics derives read-only production views from persisted shifts
// and loss events: per-shift metrics, calendar period aggregates, loss
// distribution by reason, cross-shift efficiency ranking, a daily efficiency
// series, the dashboard history grid and the performance view.
//
// Nothing here writes. Every view is computed from a single pass over rows
// returned by the Reader, so results are consistent with whatever the store
// held at query time.
package metrics
