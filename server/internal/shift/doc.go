// Package shift maps wall-clock time to shift identities and tracks the
// currently active shift.
//
// Resolve is the pure clock: Shift A covers [06:00,16:00) of the calendar
// day, Shift B covers [22:00,24:00) and [00:00,06:00) and is dated on the
// day its 22:00 boundary occurred. [16:00,22:00) belongs to no shift.
//
// Tracker.OnTick detects identity changes against a caller-owned *State,
// finalizing the previous shift and loading (or creating) the new one. The
// State is not safe for concurrent use; the counter service serializes
// every call under one mutex.
package shift
