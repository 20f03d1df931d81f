package receiver_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kalfix/kalfix/pkg/types"
	"github.com/kalfix/kalfix/server/internal/counter"
	"github.com/kalfix/kalfix/server/internal/receiver"
	"github.com/kalfix/kalfix/server/internal/shift"
	"github.com/kalfix/kalfix/server/internal/store"
	"github.com/kalfix/kalfix/server/internal/telemetry"
)

type countingNotifier struct{ n atomic.Int64 }

func (c *countingNotifier) Notify() { c.n.Add(1) }

type fixture struct {
	st     *store.Store
	svc    *counter.Service
	notify *countingNotifier
	srv    *httptest.Server
}

func newFixture(t *testing.T, now time.Time) *fixture {
	t.Helper()
	clockFn := func() time.Time { return now }
	st, err := store.Open(filepath.Join(t.TempDir(), "kalfix.db"), store.WithClock(clockFn))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	svc := counter.NewService(st, shift.NewClock(time.UTC), counter.WithNow(clockFn))
	n := &countingNotifier{}
	srv := httptest.NewServer(receiver.New(svc, n, telemetry.New()))
	t.Cleanup(srv.Close)
	return &fixture{st: st, svc: svc, notify: n, srv: srv}
}

func (f *fixture) get(t *testing.T, query string) (int, receiver.Response) {
	t.Helper()
	resp, err := f.srv.Client().Get(f.srv.URL + "/update" + query)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	var body receiver.Response
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return resp.StatusCode, body
}

var morning = time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)

func TestUpdate_AppliesReadings(t *testing.T) {
	f := newFixture(t, morning)

	for _, tc := range []struct {
		counter string
		count   int64
		outcome string
	}{
		{"50", 50, string(counter.Applied)},
		{"30", 50, string(counter.RejectedNotAdvancing)},
		{"80", 80, string(counter.Applied)},
		{"80", 80, string(counter.RejectedNotAdvancing)},
		{"0", 80, string(counter.RejectedInvalid)},
	} {
		code, body := f.get(t, "?counter="+tc.counter)
		if code != http.StatusOK || !body.OK {
			t.Fatalf("counter=%s: status %d ok=%v err=%q", tc.counter, code, body.OK, body.Error)
		}
		if body.Count != tc.count || body.Outcome != tc.outcome {
			t.Errorf("counter=%s: got count %d outcome %s, want %d %s", tc.counter, body.Count, body.Outcome, tc.count, tc.outcome)
		}
		if body.Shift == nil || *body.Shift != types.ShiftA {
			t.Errorf("counter=%s: shift got %v, want %q", tc.counter, body.Shift, types.ShiftA)
		}
	}

	sh, _, err := f.st.GetShift(context.Background(), types.Identity{Name: types.ShiftA, Date: types.DateOf(morning)})
	if err != nil {
		t.Fatal(err)
	}
	if sh.Gross != 80 {
		t.Errorf("persisted gross: got %d, want 80", sh.Gross)
	}
	if got := f.notify.n.Load(); got != 5 {
		t.Errorf("notifications: got %d, want 5", got)
	}
}

func TestUpdate_InvalidParameter(t *testing.T) {
	f := newFixture(t, morning)
	for _, q := range []string{"", "?counter=abc", "?counter=1.5"} {
		code, body := f.get(t, q)
		if code != http.StatusBadRequest {
			t.Errorf("%q: status got %d, want 400", q, code)
		}
		if body.OK || body.Error == "" {
			t.Errorf("%q: got ok=%v error=%q", q, body.OK, body.Error)
		}
	}
	if got := f.notify.n.Load(); got != 0 {
		t.Errorf("notifications: got %d, want 0", got)
	}
}

func TestUpdate_ConflictThenResend(t *testing.T) {
	f := newFixture(t, morning)
	ctx := context.Background()

	if code, _ := f.get(t, "?counter=10"); code != http.StatusOK {
		t.Fatalf("first report: status %d", code)
	}
	// Another writer moves the persisted total.
	id := types.Identity{Name: types.ShiftA, Date: types.DateOf(morning)}
	if _, err := f.st.IncrementShiftBy(ctx, id, 10, 5); err != nil {
		t.Fatalf("external increment: %v", err)
	}

	code, body := f.get(t, "?counter=12")
	if code != http.StatusConflict {
		t.Fatalf("status: got %d, want 409", code)
	}
	if body.Count != 15 || body.Outcome != string(counter.Conflict) {
		t.Errorf("conflict: got count %d outcome %s, want 15 conflict", body.Count, body.Outcome)
	}

	code, body = f.get(t, "?counter=20")
	if code != http.StatusOK || body.Count != 20 {
		t.Errorf("resend: got status %d count %d, want 200 20", code, body.Count)
	}
}

func TestUpdate_OffShiftIsMemoryOnly(t *testing.T) {
	f := newFixture(t, time.Date(2024, 3, 10, 18, 0, 0, 0, time.UTC))

	code, body := f.get(t, "?counter=7")
	if code != http.StatusOK {
		t.Fatalf("status: got %d", code)
	}
	if body.Shift != nil {
		t.Errorf("shift: got %q, want null", *body.Shift)
	}
	if body.Count != 7 || body.Outcome != string(counter.MemoryOnly) {
		t.Errorf("got count %d outcome %s, want 7 memory_only", body.Count, body.Outcome)
	}
	open, err := f.st.OpenShifts(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(open) != 0 {
		t.Errorf("open shifts: got %d, want none persisted", len(open))
	}
}

func TestUpdate_IgnoreShiftCheckIsReported(t *testing.T) {
	f := newFixture(t, morning)
	f.svc.SetIgnoreShiftCheck(true)

	_, body := f.get(t, "?counter=3")
	if !body.IgnoreShiftCheck {
		t.Error("ignore_shift_check: got false, want true")
	}
	// No tick ran, so no shift is active.
	if body.Outcome != string(counter.MemoryOnly) {
		t.Errorf("outcome: got %s, want memory_only", body.Outcome)
	}
}

func TestUpdate_MethodNotAllowed(t *testing.T) {
	f := newFixture(t, morning)
	resp, err := f.srv.Client().Post(f.srv.URL+"/update?counter=1", "text/plain", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("status: got %d, want 405", resp.StatusCode)
	}
}
