package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/kalfix/kalfix/pkg/types"
	"github.com/kalfix/kalfix/server/internal/alerts"
	"github.com/kalfix/kalfix/server/internal/counter"
	"github.com/kalfix/kalfix/server/internal/loss"
	"github.com/kalfix/kalfix/server/internal/metrics"
	"github.com/kalfix/kalfix/server/internal/snapshot"
	"github.com/kalfix/kalfix/server/internal/telemetry"
)

const (
	defaultRecentHours = 24
	defaultSeriesDays  = 7
	maxBodyBytes       = 64 << 10
	healthCheckTimeout = 2 * time.Second
)

// Broadcaster pushes events to connected dashboards.
type Broadcaster interface {
	Notify()
	Command(action string) error
	Count() int
}

// Pinger checks storage reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the components the API serves. Alerts, Telemetry and Auth are
// optional.
type Deps struct {
	Counter   *counter.Service
	Metrics   *metrics.Engine
	Losses    *loss.Recorder
	Goals     *loss.Setter
	Snapshot  *snapshot.Builder
	Hub       Broadcaster
	DB        Pinger
	Alerts    *alerts.Engine
	Telemetry *telemetry.Telemetry

	// Auth wraps every mutating route.
	Auth func(http.Handler) http.Handler
}

// Handler is the HTTP handler for all /api/v1/* endpoints.
type Handler struct {
	svc      *counter.Service
	engine   *metrics.Engine
	recorder *loss.Recorder
	goals    *loss.Setter
	snap     *snapshot.Builder
	hub      Broadcaster
	db       Pinger
	alerts   *alerts.Engine
	tel      *telemetry.Telemetry

	mux     *http.ServeMux
	handler http.Handler
}

// New creates a Handler wired to d and registers all routes.
func New(d Deps) http.Handler {
	h := &Handler{
		svc:      d.Counter,
		engine:   d.Metrics,
		recorder: d.Losses,
		goals:    d.Goals,
		snap:     d.Snapshot,
		hub:      d.Hub,
		db:       d.DB,
		alerts:   d.Alerts,
		tel:      d.Telemetry,
		mux:      http.NewServeMux(),
	}
	guard := d.Auth
	if guard == nil {
		guard = func(next http.Handler) http.Handler { return next }
	}
	write := func(fn http.HandlerFunc) http.Handler { return guard(fn) }

	h.mux.HandleFunc("/api/v1/health", h.health)
	h.mux.HandleFunc("/api/v1/status", h.status)
	h.mux.HandleFunc("/api/v1/shifts/open", h.openShifts)
	h.mux.HandleFunc("/api/v1/snapshot", h.snapshot)
	h.mux.HandleFunc("/api/v1/alerts", h.listAlerts)
	h.mux.HandleFunc("/api/v1/losses/recent", h.recentLosses)
	h.mux.HandleFunc("/api/v1/metrics/shift", h.shiftMetrics)
	h.mux.HandleFunc("/api/v1/metrics/aggregate", h.aggregate)
	h.mux.HandleFunc("/api/v1/metrics/loss-distribution", h.lossDistribution)
	h.mux.HandleFunc("/api/v1/metrics/ranking", h.ranking)
	h.mux.HandleFunc("/api/v1/metrics/efficiency-series", h.efficiencySeries)
	h.mux.HandleFunc("/api/v1/metrics/performance", h.performance)

	h.mux.Handle("/api/v1/goals", write(h.setGoal))
	h.mux.Handle("/api/v1/losses", write(h.recordLoss))
	h.mux.Handle("/api/v1/sync", write(h.sync))
	h.mux.Handle("/api/v1/commands/click", write(h.command("click")))
	h.mux.Handle("/api/v1/commands/release", write(h.command("release")))

	h.handler = h.instrument(h.mux)
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.handler.ServeHTTP(w, r)
}

// --- status routes ----------------------------------------------------------

// health returns GET /api/v1/health. 503 when the database is unreachable.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	resp := HealthResponse{
		Status:    "ok",
		Database:  "ok",
		ShiftOpen: h.svc.Status().Shift != nil,
		WSClients: h.hub.Count(),
	}
	if h.alerts != nil {
		resp.AlertCount = len(h.alerts.Active())
	}

	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()
	if err := h.db.Ping(ctx); err != nil {
		slog.Warn("api: health check failed", "request_id", RequestID(r.Context()), "err", err)
		resp.Status = "degraded"
		resp.Database = "unavailable"
		jsonResp(w, http.StatusServiceUnavailable, resp)
		return
	}
	jsonResp(w, http.StatusOK, resp)
}

// status returns GET /api/v1/status: runtime cache, active shift metrics
// and diagnostics.
func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	st := h.svc.Status()
	clock := h.svc.Clock()
	now := h.svc.Now()

	resp := StatusResponse{
		Count:            st.Count,
		Shift:            st.Shift,
		IgnoreShiftCheck: h.svc.IgnoreShiftCheck(),
		Timezone:         clock.Location().String(),
		Now:              now.In(clock.Location()),
		WSClients:        h.hub.Count(),
	}
	if st.Shift != nil {
		m, ok, err := h.engine.ShiftMetrics(r.Context(), *st.Shift)
		if err != nil {
			writeErr(w, r, err)
			return
		}
		if ok {
			resp.Metrics = &m
		}
	}
	resp.Diagnostics = computeDiagnostics(diagInput{
		active:           st.Shift != nil,
		ignoreShiftCheck: resp.IgnoreShiftCheck,
		metrics:          resp.Metrics,
		clock:            clock,
		now:              now,
	})
	jsonResp(w, http.StatusOK, resp)
}

// openShifts returns GET /api/v1/shifts/open: shifts never finalized.
func (h *Handler) openShifts(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	out, err := h.engine.OpenShifts(r.Context())
	if err != nil {
		writeErr(w, r, err)
		return
	}
	jsonResp(w, http.StatusOK, out)
}

// snapshot returns GET /api/v1/snapshot: the payload dashboards receive.
func (h *Handler) snapshot(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	p, err := h.snap.Current(r.Context())
	if err != nil {
		writeErr(w, r, err)
		return
	}
	jsonResp(w, http.StatusOK, p)
}

// listAlerts returns GET /api/v1/alerts: firing and recently resolved alerts.
func (h *Handler) listAlerts(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	if h.alerts == nil {
		jsonResp(w, http.StatusOK, []*alerts.Alert{})
		return
	}
	jsonResp(w, http.StatusOK, h.alerts.Active())
}

// --- mutating routes --------------------------------------------------------

// setGoal handles POST /api/v1/goals.
func (h *Handler) setGoal(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	var req loss.GoalRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeErr(w, r, err)
		return
	}
	res, err := h.goals.Set(r.Context(), req)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	h.hub.Notify()
	jsonResp(w, http.StatusOK, res)
}

// recordLoss handles POST /api/v1/losses.
func (h *Handler) recordLoss(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	var e loss.Entry
	if err := decodeBody(w, r, &e); err != nil {
		writeErr(w, r, err)
		return
	}
	ev, err := h.recorder.Record(r.Context(), e)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	if h.tel != nil {
		h.tel.ObserveLoss(ev.Quantity)
	}
	h.hub.Notify()
	jsonResp(w, http.StatusCreated, ev)
}

// sync handles POST /api/v1/sync: pushes a fresh status to every dashboard.
func (h *Handler) sync(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	h.hub.Notify()
	jsonResp(w, http.StatusOK, BroadcastResponse{OK: true, Clients: h.hub.Count()})
}

// command returns the handler for POST /api/v1/commands/{action}.
func (h *Handler) command(action string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !allow(w, r, http.MethodPost) {
			return
		}
		if err := h.hub.Command(action); err != nil {
			writeErr(w, r, err)
			return
		}
		slog.Info("api: command broadcast", "action", action, "request_id", RequestID(r.Context()))
		jsonResp(w, http.StatusOK, BroadcastResponse{OK: true, Action: action, Clients: h.hub.Count()})
	}
}

// --- query routes -----------------------------------------------------------

// recentLosses returns GET /api/v1/losses/recent?hours=24.
func (h *Handler) recentLosses(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	hours, err := queryInt(r, "hours", defaultRecentHours)
	if maxHours := int(metrics.MaxRecentWindow / time.Hour); err == nil && (hours <= 0 || hours > maxHours) {
		err = types.Invalid("hours", "must be in [1, %d], got %d", maxHours, hours)
	}
	if err != nil {
		writeErr(w, r, err)
		return
	}
	out, err := h.engine.RecentLosses(r.Context(), time.Duration(hours)*time.Hour)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	jsonResp(w, http.StatusOK, out)
}

// shiftMetrics returns GET /api/v1/metrics/shift?shift_name=&shift_date=.
func (h *Handler) shiftMetrics(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	q := r.URL.Query()
	name := q.Get("shift_name")
	if !types.KnownShift(name) {
		writeErr(w, r, types.Invalid("shift_name", "unknown shift %q", name))
		return
	}
	date, err := types.ParseDate(q.Get("shift_date"))
	if err != nil {
		writeErr(w, r, types.Invalid("shift_date", "%v", err))
		return
	}
	id := types.Identity{Name: name, Date: date}
	m, ok, err := h.engine.ShiftMetrics(r.Context(), id)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	if !ok {
		writeErr(w, r, fmt.Errorf("shift %s: %w", id.Key(), types.ErrNotFound))
		return
	}
	jsonResp(w, http.StatusOK, m)
}

// aggregate returns GET /api/v1/metrics/aggregate?period=&date=.
func (h *Handler) aggregate(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	p, ref, err := h.periodQuery(r)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	agg, err := h.engine.PeriodAggregate(r.Context(), p, ref)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	jsonResp(w, http.StatusOK, agg)
}

// lossDistribution returns GET /api/v1/metrics/loss-distribution?period=&date=.
func (h *Handler) lossDistribution(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	p, ref, err := h.periodQuery(r)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	out, err := h.engine.LossDistribution(r.Context(), p, ref)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	jsonResp(w, http.StatusOK, out)
}

// ranking returns GET /api/v1/metrics/ranking?date=.
func (h *Handler) ranking(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	ref, err := h.dateQuery(r)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	out, err := h.engine.EfficiencyRanking(r.Context(), ref)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	jsonResp(w, http.StatusOK, out)
}

// efficiencySeries returns GET /api/v1/metrics/efficiency-series?days=7.
func (h *Handler) efficiencySeries(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	days, err := queryInt(r, "days", defaultSeriesDays)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	out, err := h.engine.DailyEfficiencySeries(r.Context(), days)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	jsonResp(w, http.StatusOK, out)
}

// performance returns GET /api/v1/metrics/performance?period=&mode=.
func (h *Handler) performance(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	q := r.URL.Query()
	p, err := metrics.ParsePeriod(q.Get("period"))
	if err != nil {
		writeErr(w, r, err)
		return
	}
	mode, err := types.ParsePerformanceMode(q.Get("mode"))
	if err != nil {
		writeErr(w, r, err)
		return
	}
	out, err := h.engine.Performance(r.Context(), p, mode)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	jsonResp(w, http.StatusOK, out)
}

// --- helpers ----------------------------------------------------------------

// periodQuery reads ?period= and ?date=.
func (h *Handler) periodQuery(r *http.Request) (metrics.Period, types.Date, error) {
	p, err := metrics.ParsePeriod(r.URL.Query().Get("period"))
	if err != nil {
		return "", types.Date{}, err
	}
	ref, err := h.dateQuery(r)
	return p, ref, err
}

// dateQuery reads ?date=, defaulting to today.
func (h *Handler) dateQuery(r *http.Request) (types.Date, error) {
	raw := r.URL.Query().Get("date")
	if raw == "" {
		return h.engine.Today(), nil
	}
	d, err := types.ParseDate(raw)
	if err != nil {
		return types.Date{}, types.Invalid("date", "%v", err)
	}
	return d, nil
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, types.Invalid(key, "must be an integer, got %q", raw)
	}
	return n, nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return types.Invalid("body", "%v", err)
	}
	return nil
}

// allow writes 405 and returns false unless r uses method.
func allow(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		w.Header().Set("Allow", method)
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return false
	}
	return true
}

// writeErr maps err to a status code and writes a JSON error body.
func writeErr(w http.ResponseWriter, r *http.Request, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, types.ErrValidation):
		code = http.StatusBadRequest
	case errors.Is(err, types.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, types.ErrConflict):
		code = http.StatusConflict
	case errors.Is(err, types.ErrUnavailable):
		code = http.StatusServiceUnavailable
	}
	id := RequestID(r.Context())
	if code >= 500 {
		slog.Error("api: request failed", "request_id", id, "path", r.URL.Path, "err", err)
	}
	jsonResp(w, code, errorResponse{Error: err.Error(), RequestID: id})
}

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}
