package receiver

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/kalfix/kalfix/pkg/types"
	"github.com/kalfix/kalfix/server/internal/counter"
	"github.com/kalfix/kalfix/server/internal/telemetry"
)

// Notifier is told after every report so dashboards refresh.
type Notifier interface {
	Notify()
}

// Response is the JSON body returned to the device.
type Response struct {
	OK               bool        `json:"ok"`
	Count            int64       `json:"count"`
	Received         *int64      `json:"received"`
	Shift            *string     `json:"shift"`
	ShiftDate        *types.Date `json:"shift_date,omitempty"`
	Outcome          string      `json:"outcome,omitempty"`
	IgnoreShiftCheck bool        `json:"ignore_shift_check"`
	Error            string      `json:"error,omitempty"`
}

// Receiver handles GET /update?counter=N from the counting device.
type Receiver struct {
	svc    *counter.Service
	notify Notifier
	tel    *telemetry.Telemetry
}

// New creates a Receiver that reports readings to svc.
func New(svc *counter.Service, n Notifier, tel *telemetry.Telemetry) *Receiver {
	return &Receiver{svc: svc, notify: n, tel: tel}
}

// ServeHTTP parses the reading, reports it and answers with the resulting
// count. Readings that are not positive or do not advance the count are
// acknowledged with ok=true; the device simply resends later.
func (rc *Receiver) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respond(w, http.StatusMethodNotAllowed, Response{Error: "method not allowed"})
		return
	}

	resp := Response{IgnoreShiftCheck: rc.svc.IgnoreShiftCheck()}
	raw := r.URL.Query().Get("counter")
	reading, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		slog.Warn("receiver: invalid counter parameter", "counter", raw)
		st := rc.svc.Status()
		resp.Count = st.Count
		fillShift(&resp, st.Shift)
		resp.Error = "counter must be an integer"
		respond(w, http.StatusBadRequest, resp)
		return
	}
	resp.Received = &reading

	rep, err := rc.svc.Report(r.Context(), reading)
	rc.tel.ObservePulse(string(rep.Outcome))
	rc.tel.ObserveTransition(rep.Transition.Kind.String())
	rc.notify.Notify()

	resp.Count = rep.Count
	resp.Outcome = string(rep.Outcome)
	fillShift(&resp, rep.Shift)

	if err != nil {
		code := http.StatusInternalServerError
		switch {
		case errors.Is(err, types.ErrConflict):
			code = http.StatusConflict
		case errors.Is(err, types.ErrUnavailable):
			code = http.StatusServiceUnavailable
		}
		var se *types.StorageError
		if errors.As(err, &se) {
			rc.tel.ObserveStorageError(se.Op)
		}
		slog.Warn("receiver: report failed", "counter", reading, "outcome", rep.Outcome, "err", err)
		resp.Error = err.Error()
		respond(w, code, resp)
		return
	}

	slog.Debug("receiver: report",
		"counter", reading,
		"outcome", rep.Outcome,
		"count", rep.Count,
		"delta", rep.Delta,
		"shift", resp.Shift,
	)
	resp.OK = true
	respond(w, http.StatusOK, resp)
}

func fillShift(resp *Response, id *types.Identity) {
	if id == nil {
		return
	}
	name, date := id.Name, id.Date
	resp.Shift = &name
	resp.ShiftDate = &date
}

func respond(w http.ResponseWriter, code int, v Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}
