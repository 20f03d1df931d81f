package api

import (
	"time"

	"github.com/kalfix/kalfix/pkg/types"
	"github.com/kalfix/kalfix/server/internal/metrics"
)

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	Status     string `json:"status"` // "ok" | "degraded"
	Database   string `json:"database"`
	ShiftOpen  bool   `json:"shift_open"`
	WSClients  int    `json:"ws_clients"`
	AlertCount int    `json:"alert_count"`
}

// StatusResponse is the payload for GET /api/v1/status.
type StatusResponse struct {
	Count            int64                 `json:"count"`
	Shift            *types.Identity       `json:"shift"`
	IgnoreShiftCheck bool                  `json:"ignore_shift_check"`
	Timezone         string                `json:"timezone"`
	Now              time.Time             `json:"now"`
	Metrics          *metrics.ShiftMetrics `json:"metrics,omitempty"`
	Diagnostics      []DiagnosticHint      `json:"diagnostics"`
	WSClients        int                   `json:"ws_clients"`
}

// BroadcastResponse is the payload for POST /api/v1/sync and the
// /api/v1/commands/* routes.
type BroadcastResponse struct {
	OK      bool   `json:"ok"`
	Action  string `json:"action,omitempty"`
	Clients int    `json:"clients"`
}

// errorResponse is a generic JSON error body.
type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}
