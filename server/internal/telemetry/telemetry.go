package telemetry

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/common/expfmt"
)

const namespace = "kalfix"

// Telemetry holds the server's collectors.
type Telemetry struct {
	reg *prometheus.Registry

	pulses          *prometheus.CounterVec
	transitions     *prometheus.CounterVec
	lossesRecorded  prometheus.Counter
	lossUnits       prometheus.Counter
	storageErrors   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// New registers every collector in a fresh registry.
func New() *Telemetry {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Telemetry{
		reg: reg,
		pulses: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pulses_total",
			Help:      "Pulse reports received, by reconcile outcome",
		}, []string{"outcome"}),
		transitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "shift_transitions_total",
			Help:      "Shift transitions detected by the tracker",
		}, []string{"kind"}),
		lossesRecorded: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "losses_recorded_total",
			Help:      "Loss events recorded",
		}),
		lossUnits: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "loss_units_total",
			Help:      "Summed quantity of recorded losses",
		}),
		storageErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_errors_total",
			Help:      "Storage operations that failed after retries",
		}, []string{"op"}),
		requestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route and status code",
			Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 5},
		}, []string{"route", "code"}),
	}
}

// ObservePulse counts one pulse report.
func (t *Telemetry) ObservePulse(outcome string) {
	t.pulses.WithLabelValues(outcome).Inc()
}

// ObserveTransition counts a shift transition. Unchanged ticks are ignored.
func (t *Telemetry) ObserveTransition(kind string) {
	if kind == "" || kind == "unchanged" {
		return
	}
	t.transitions.WithLabelValues(kind).Inc()
}

// ObserveLoss counts one recorded loss of quantity units.
func (t *Telemetry) ObserveLoss(quantity int64) {
	t.lossesRecorded.Inc()
	if quantity > 0 {
		t.lossUnits.Add(float64(quantity))
	}
}

// ObserveStorageError counts a failed storage operation.
func (t *Telemetry) ObserveStorageError(op string) {
	t.storageErrors.WithLabelValues(op).Inc()
}

// ObserveRequest records one HTTP request's latency.
func (t *Telemetry) ObserveRequest(route string, code int, d time.Duration) {
	t.requestDuration.WithLabelValues(route, strconv.Itoa(code)).Observe(d.Seconds())
}

// GaugeFunc registers a gauge whose value is read from fn at scrape time.
// name is prefixed with the namespace.
func (t *Telemetry) GaugeFunc(name, help string, fn func() float64) {
	t.reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, fn))
}

// Handler serves the registry in the format negotiated from Accept.
func (t *Telemetry) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		families, err := t.reg.Gather()
		if err != nil {
			slog.Warn("telemetry: gather", "err", err)
		}
		format := expfmt.Negotiate(r.Header)
		w.Header().Set("Content-Type", string(format))
		enc := expfmt.NewEncoder(w, format)
		for _, mf := range families {
			if err := enc.Encode(mf); err != nil {
				slog.Warn("telemetry: encode", "family", mf.GetName(), "err", err)
				return
			}
		}
		if c, ok := enc.(expfmt.Closer); ok {
			_ = c.Close()
		}
	})
}
