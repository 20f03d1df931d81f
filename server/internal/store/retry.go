package store

import (
	"context"
	"database/sql/driver"
	"errors"
	"log/slog"
	"math/rand"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/kalfix/kalfix/pkg/types"
)

// RetryPolicy bounds how transient storage failures are retried.
type RetryPolicy struct {
	MaxAttempts int
	Initial     time.Duration
	Max         time.Duration
}

// DefaultRetryPolicy returns the policy used when none is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 4, Initial: 50 * time.Millisecond, Max: time.Second}
}

// do runs fn, retrying transient failures. Domain errors (conflict,
// validation, not found) pass through untouched; everything else is wrapped
// in a *types.StorageError once retries are exhausted.
func (s *Store) do(ctx context.Context, op string, fn func(context.Context) error) error {
	bo := newBackoff(s.retry)
	attempts := s.retry.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if isDomainError(err) {
			return err
		}
		if !isTransient(err) || attempt >= attempts {
			return &types.StorageError{Op: op, Err: err}
		}
		wait := bo.next()
		slog.Warn("store: transient error, retrying",
			"op", op, "attempt", attempt, "retry_in", wait, "err", err)
		select {
		case <-ctx.Done():
			return &types.StorageError{Op: op, Err: ctx.Err()}
		case <-time.After(wait):
		}
	}
}

func isDomainError(err error) bool {
	return errors.Is(err, types.ErrConflict) ||
		errors.Is(err, types.ErrValidation) ||
		errors.Is(err, types.ErrNotFound)
}

// isTransient reports whether err is worth retrying.
func isTransient(err error) bool {
	if errors.Is(err, driver.ErrBadConn) {
		return true
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() & 0xff { // primary result code
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return true
		}
	}
	return false
}

// backoff is an exponential backoff with ±25 % jitter.
type backoff struct {
	current time.Duration
	max     time.Duration
}

func newBackoff(p RetryPolicy) *backoff {
	initial, ceiling := p.Initial, p.Max
	if initial <= 0 {
		initial = DefaultRetryPolicy().Initial
	}
	if ceiling < initial {
		ceiling = initial
	}
	return &backoff{current: initial, max: ceiling}
}

// next returns the current backoff duration and advances the internal state.
func (b *backoff) next() time.Duration {
	d := b.current
	jitter := time.Duration(float64(b.current) * 0.25 * (rand.Float64()*2 - 1)) //nolint:gosec // not crypto
	d += jitter
	if d < 0 {
		d = 0
	}
	b.current *= 2
	if b.current > b.max {
		b.current = b.max
	}
	return d
}
