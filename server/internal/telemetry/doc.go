// Package telemetry exposes the server's own Prometheus metrics.
//
// Collectors live in a private registry (not the global default), so tests
// can build independent instances. Handler serves the registry in whichever
// exposition format the scraper negotiates.
//
// Exposed series:
//
//	kalfix_pulses_total{outcome}              pulse reports by reconcile outcome
//	kalfix_shift_transitions_total{kind}      entered / left_shifts transitions
//	kalfix_losses_recorded_total              loss events recorded
//	kalfix_loss_units_total                   summed loss quantity
//	kalfix_storage_errors_total{op}           failed storage operations
//	kalfix_http_request_duration_seconds{route,code}
//	kalfix_current_gross                      gross count of the active shift
//	kalfix_ws_clients                         connected dashboard clients
package telemetry
