// Package api implements the HTTP REST API for kalfix-server.
//
// New(deps) returns an http.Handler that serves:
//
//	GET  /api/v1/health                    database reachability, 503 when down
//	GET  /api/v1/status                    runtime count, active shift metrics, diagnostics
//	GET  /api/v1/shifts/open               shifts never finalized
//	GET  /api/v1/snapshot                  the dashboard status payload
//	GET  /api/v1/alerts                    firing and recently resolved alerts
//	GET  /api/v1/losses/recent?hours=24    latest loss events, newest first
//	GET  /api/v1/metrics/shift             one shift's metrics; 404 if unknown
//	GET  /api/v1/metrics/aggregate         period totals (?period=&date=)
//	GET  /api/v1/metrics/loss-distribution loss by reason (?period=&date=)
//	GET  /api/v1/metrics/ranking           shifts of a date by efficiency
//	GET  /api/v1/metrics/efficiency-series daily efficiency (?days=7)
//	GET  /api/v1/metrics/performance       bucketed totals (?period=&mode=)
//	POST /api/v1/goals                     register a shift goal
//	POST /api/v1/losses                    record a loss
//	POST /api/v1/sync                      push a fresh status to dashboards
//	POST /api/v1/commands/{click,release}  broadcast a device command
//
// POST routes go through Deps.Auth. Every response is JSON; errors are
// {"error": "...", "request_id": "..."} with 400 for invalid input, 404,
// 409, 503 for storage failures and 500 otherwise.
package api
