// Package receiver implements the device endpoint, GET /update?counter=N,
// called by the counting sensor's firmware with its cumulative pulse count.
//
// Each request is reported to the counter service, which resolves the
// active shift (finalizing a previous one when the clock crossed a boundary)
// and reconciles the reading against the persisted total. The response
// carries the resulting count and shift so the firmware can display them:
//
//	{"ok": true, "count": 80, "received": 80, "shift": "Turno 1 (06:00 - 16:00 h)",
//	 "shift_date": "2024-03-10", "outcome": "applied", "ignore_shift_check": false}
//
// A missing or non-integer counter is 400. A baseline conflict is 409 and a
// storage failure 503; both are safe to resend. Every report, accepted or
// not, notifies the WebSocket hub.
//
// The endpoint is unauthenticated: the firmware cannot carry an API key.
package receiver
