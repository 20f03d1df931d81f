package counter

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kalfix/kalfix/pkg/types"
	"github.com/kalfix/kalfix/server/internal/shift"
)

// Store is everything the counter service persists through.
type Store interface {
	shift.Store
	IncrementStore
}

// Report is the result of one pulse report.
type Report struct {
	Result
	Received   int64
	Shift      *types.Identity
	Transition shift.Transition
}

// Status is a point-in-time copy of the runtime cache.
type Status struct {
	Count int64
	Shift *types.Identity
}

// Service owns the active-shift state. All methods are safe for concurrent
// use; ticks and reconciliations are serialized.
type Service struct {
	mu      sync.Mutex
	state   shift.State
	tracker *shift.Tracker
	rec     *Reconciler
	now     func() time.Time // injectable for deterministic tests

	ignoreShiftCheck atomic.Bool
}

// Option configures a Service.
type Option func(*Service)

// WithNow sets the time source used for shift resolution.
func WithNow(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService returns a Service with no active shift. Call Tick once at
// startup to load the current shift from st.
func NewService(st Store, clock shift.Clock, opts ...Option) *Service {
	s := &Service{
		tracker: shift.NewTracker(st, clock),
		rec:     NewReconciler(st),
		now:     time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// SetIgnoreShiftCheck toggles skipping the tracker on pulse reports.
func (s *Service) SetIgnoreShiftCheck(v bool) { s.ignoreShiftCheck.Store(v) }

// IgnoreShiftCheck reports whether pulse reports skip the tracker.
func (s *Service) IgnoreShiftCheck() bool { return s.ignoreShiftCheck.Load() }

// Clock returns the clock shifts are resolved with.
func (s *Service) Clock() shift.Clock { return s.tracker.Clock() }

// Now returns the service's current time.
func (s *Service) Now() time.Time { return s.now() }

// Tick brings the active shift up to date with the clock.
func (s *Service) Tick(ctx context.Context) (shift.Transition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracker.OnTick(ctx, &s.state, s.now())
}

// Report ticks the tracker (unless the shift check is disabled) and then
// reconciles reading against the active shift, as one critical section.
func (s *Service) Report(ctx context.Context, reading int64) (Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := Report{Received: reading}
	if !s.IgnoreShiftCheck() {
		tr, err := s.tracker.OnTick(ctx, &s.state, s.now())
		if err != nil {
			out.Result = Result{Outcome: Failed, Count: s.state.Gross}
			out.Shift = copyIdentity(s.state.Active)
			return out, err
		}
		out.Transition = tr
	}

	res, err := s.rec.Reconcile(ctx, &s.state, reading)
	out.Result = res
	out.Shift = copyIdentity(s.state.Active)
	return out, err
}

// Status returns a copy of the runtime cache.
func (s *Service) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{Count: s.state.Gross, Shift: copyIdentity(s.state.Active)}
}

func copyIdentity(id *types.Identity) *types.Identity {
	if id == nil {
		return nil
	}
	c := *id
	return &c
}
