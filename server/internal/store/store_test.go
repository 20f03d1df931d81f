package store

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalfix/kalfix/pkg/types"
)

// fixedClock returns a func() time.Time that always returns t.
func fixedClock(t time.Time) func() time.Time { return func() time.Time { return t } }

var base = time.Date(2024, 3, 10, 7, 0, 0, 0, time.UTC)

func openTest(t *testing.T, opts ...Option) *Store {
	t.Helper()
	opts = append([]Option{WithClock(fixedClock(base))}, opts...)
	st, err := Open(filepath.Join(t.TempDir(), "data", "kalfix.db"), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func ident(name, date string) types.Identity {
	d, err := types.ParseDate(date)
	if err != nil {
		panic(err)
	}
	return types.Identity{Name: name, Date: d}
}

func TestOpen_CreatesSchemaIdempotently(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kalfix.db")
	st, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, st.Ping(context.Background()))
	require.NoError(t, st.Close())

	st, err = Open(path)
	require.NoError(t, err)
	defer st.Close()
	require.NoError(t, st.Ping(context.Background()))
}

func TestGetOrCreateShift_CreatesAtZero(t *testing.T) {
	st := openTest(t)
	ctx := context.Background()
	id := ident(types.ShiftA, "2024-03-10")

	sh, err := st.GetOrCreateShift(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, sh.Identity())
	assert.Zero(t, sh.Gross)
	assert.Zero(t, sh.Loss)
	assert.Nil(t, sh.FinishedAt)
	assert.Nil(t, sh.Goal)
	assert.True(t, sh.StartedAt.Equal(base))

	again, err := st.GetOrCreateShift(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, sh.ID, again.ID)
}

func TestIncrementShiftBy_Sequence(t *testing.T) {
	st := openTest(t)
	ctx := context.Background()
	id := ident(types.ShiftA, "2024-03-10")

	// Missing row is created from zero.
	got, err := st.IncrementShiftBy(ctx, id, 0, 50)
	require.NoError(t, err)
	assert.EqualValues(t, 50, got)

	got, err = st.IncrementShiftBy(ctx, id, 50, 30)
	require.NoError(t, err)
	assert.EqualValues(t, 80, got)

	sh, ok, err := st.GetShift(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.EqualValues(t, 80, sh.Gross)
}

func TestIncrementShiftBy_BaselineMismatch(t *testing.T) {
	st := openTest(t)
	ctx := context.Background()
	id := ident(types.ShiftA, "2024-03-10")

	_, err := st.IncrementShiftBy(ctx, id, 0, 40)
	require.NoError(t, err)

	got, err := st.IncrementShiftBy(ctx, id, 10, 5)
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrConflict), "want ErrConflict, got %v", err)
	assert.False(t, errors.Is(err, types.ErrUnavailable))
	assert.EqualValues(t, 40, got, "conflict returns the persisted count")

	sh, _, err := st.GetShift(ctx, id)
	require.NoError(t, err)
	assert.EqualValues(t, 40, sh.Gross, "nothing written on conflict")
}

func TestIncrementShiftBy_RejectsNonPositiveDelta(t *testing.T) {
	st := openTest(t)
	_, err := st.IncrementShiftBy(context.Background(), ident(types.ShiftA, "2024-03-10"), 0, 0)
	assert.ErrorIs(t, err, types.ErrValidation)
}

func TestIncrementShiftBy_ConcurrentWritersNeverLoseUpdates(t *testing.T) {
	st := openTest(t)
	ctx := context.Background()
	id := ident(types.ShiftB, "2024-03-09")

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		current int64
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				mu.Lock()
				b := current
				mu.Unlock()
				got, err := st.IncrementShiftBy(ctx, id, b, 1)
				mu.Lock()
				if got > current {
					current = got
				}
				mu.Unlock()
				if err == nil {
					return
				}
				if !errors.Is(err, types.ErrConflict) {
					t.Errorf("IncrementShiftBy: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	sh, _, err := st.GetShift(ctx, id)
	require.NoError(t, err)
	assert.EqualValues(t, 20, sh.Gross)
}

func TestFinalizeShift(t *testing.T) {
	st := openTest(t)
	ctx := context.Background()
	id := ident(types.ShiftA, "2024-03-10")

	_, err := st.GetOrCreateShift(ctx, id)
	require.NoError(t, err)
	require.NoError(t, st.FinalizeShift(ctx, id))
	require.NoError(t, st.FinalizeShift(ctx, id), "finalize is idempotent")

	sh, _, err := st.GetShift(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, sh.FinishedAt)
	assert.True(t, sh.FinishedAt.Equal(base))

	// Missing shift: no-op.
	require.NoError(t, st.FinalizeShift(ctx, ident(types.ShiftB, "2020-01-01")))
	_, ok, err := st.GetShift(ctx, ident(types.ShiftB, "2020-01-01"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestOpenShifts_ExcludesFinalized(t *testing.T) {
	st := openTest(t)
	ctx := context.Background()
	a := ident(types.ShiftA, "2024-03-10")
	b := ident(types.ShiftB, "2024-03-09")

	for _, id := range []types.Identity{a, b} {
		_, err := st.GetOrCreateShift(ctx, id)
		require.NoError(t, err)
	}
	require.NoError(t, st.FinalizeShift(ctx, b))

	open, err := st.OpenShifts(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, a, open[0].Identity())
}

func TestInsertLoss_AccumulatesTotal(t *testing.T) {
	st := openTest(t)
	ctx := context.Background()
	id := ident(types.ShiftA, "2024-03-10")

	ev1, err := st.InsertLossAndIncrementTotal(ctx, id, 5, "jam", time.Time{})
	require.NoError(t, err)
	assert.NotZero(t, ev1.ID)
	assert.True(t, ev1.OccurredAt.Equal(base), "zero time defaults to now")

	_, err = st.InsertLossAndIncrementTotal(ctx, id, 5, "jam", base.Add(time.Minute))
	require.NoError(t, err)

	sh, ok, err := st.GetShift(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.EqualValues(t, 10, sh.Loss)
	assert.Zero(t, sh.Gross, "loss never touches gross")

	events, err := st.RecentLosses(ctx, base.Add(-time.Hour), 50)
	require.NoError(t, err)
	require.Len(t, events, 2)
	var sum int64
	for _, ev := range events {
		sum += ev.Quantity
		assert.Equal(t, id, ev.Shift)
	}
	assert.Equal(t, sh.Loss, sum)
	assert.True(t, events[0].OccurredAt.After(events[1].OccurredAt), "newest first")
}

func TestInsertLoss_ZeroQuantityAllowedNegativeRejected(t *testing.T) {
	st := openTest(t)
	ctx := context.Background()
	id := ident(types.ShiftA, "2024-03-10")

	_, err := st.InsertLossAndIncrementTotal(ctx, id, 0, "check", time.Time{})
	require.NoError(t, err)

	_, err = st.InsertLossAndIncrementTotal(ctx, id, -1, "bad", time.Time{})
	assert.ErrorIs(t, err, types.ErrValidation)

	sh, _, err := st.GetShift(ctx, id)
	require.NoError(t, err)
	assert.Zero(t, sh.Loss)
}

func TestRecentLosses_WindowAndLimit(t *testing.T) {
	st := openTest(t)
	ctx := context.Background()
	id := ident(types.ShiftA, "2024-03-10")

	for i := 0; i < 5; i++ {
		_, err := st.InsertLossAndIncrementTotal(ctx, id, 1, "jam", base.Add(-time.Duration(i)*10*time.Hour))
		require.NoError(t, err)
	}

	events, err := st.RecentLosses(ctx, base.Add(-24*time.Hour), 50)
	require.NoError(t, err)
	assert.Len(t, events, 3) // 0h, -10h, -20h

	events, err = st.RecentLosses(ctx, base.Add(-100*time.Hour), 2)
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestLossTotalsByReason(t *testing.T) {
	st := openTest(t)
	ctx := context.Background()
	id := ident(types.ShiftA, "2024-03-10")

	for _, l := range []struct {
		qty    int64
		reason string
		at     time.Time
	}{
		{5, "jam", base},
		{3, "jam", base.Add(time.Hour)},
		{2, "misfeed", base.Add(2 * time.Hour)},
		{7, "misfeed", base.Add(48 * time.Hour)}, // outside window
	} {
		_, err := st.InsertLossAndIncrementTotal(ctx, id, l.qty, l.reason, l.at)
		require.NoError(t, err)
	}

	got, err := st.LossTotalsByReason(ctx, base.Add(-time.Hour), base.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []types.ReasonTotal{
		{Reason: "jam", Total: 8},
		{Reason: "misfeed", Total: 2},
	}, got)
}

func TestUpsertGoal(t *testing.T) {
	st := openTest(t)
	ctx := context.Background()
	id := ident(types.ShiftA, "2024-03-10")

	day := int64(2000)
	g, err := st.UpsertGoal(ctx, id, 1000, &day)
	require.NoError(t, err)
	assert.NotZero(t, g.ShiftID)

	sh, _, err := st.GetShift(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, sh.Goal)
	assert.EqualValues(t, 1000, sh.Goal.ShiftGoal)
	require.NotNil(t, sh.Goal.DayGoal)
	assert.EqualValues(t, 2000, *sh.Goal.DayGoal)

	// Replacing clears the day goal.
	_, err = st.UpsertGoal(ctx, id, 1200, nil)
	require.NoError(t, err)
	sh, _, err = st.GetShift(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, sh.Goal)
	assert.EqualValues(t, 1200, sh.Goal.ShiftGoal)
	assert.Nil(t, sh.Goal.DayGoal)

	_, err = st.UpsertGoal(ctx, id, 0, nil)
	assert.ErrorIs(t, err, types.ErrValidation)
}

func TestListShiftsAndDailyTotals(t *testing.T) {
	st := openTest(t)
	ctx := context.Background()

	seed := []struct {
		id    types.Identity
		gross int64
		loss  int64
	}{
		{ident(types.ShiftA, "2024-03-08"), 100, 10},
		{ident(types.ShiftB, "2024-03-08"), 50, 0},
		{ident(types.ShiftA, "2024-03-09"), 200, 20},
		{ident(types.ShiftB, "2024-03-10"), 30, 3},
	}
	for _, s := range seed {
		_, err := st.IncrementShiftBy(ctx, s.id, 0, s.gross)
		require.NoError(t, err)
		if s.loss > 0 {
			_, err = st.InsertLossAndIncrementTotal(ctx, s.id, s.loss, "jam", time.Time{})
			require.NoError(t, err)
		}
	}

	from, _ := types.ParseDate("2024-03-08")
	to, _ := types.ParseDate("2024-03-09")
	shifts, err := st.ListShifts(ctx, from, to)
	require.NoError(t, err)
	require.Len(t, shifts, 3)
	assert.Equal(t, seed[0].id, shifts[0].Identity())
	assert.Equal(t, seed[1].id, shifts[1].Identity())
	assert.Equal(t, seed[2].id, shifts[2].Identity())

	totals, err := st.DailyTotals(ctx, from)
	require.NoError(t, err)
	require.Len(t, totals, 3)
	assert.Equal(t, types.DailyTotal{Date: from, Gross: 150, Loss: 10}, totals[0])

	onlyA, err := st.DailyTotalsForShift(ctx, types.ShiftA, from)
	require.NoError(t, err)
	require.Len(t, onlyA, 2)
	assert.EqualValues(t, 200, onlyA[1].Gross)
	assert.Equal(t, types.ShiftA, onlyA[1].Name)

	both, err := st.DailyTotalsByShift(ctx, from)
	require.NoError(t, err)
	assert.Len(t, both, 4)
}

func TestDo_WrapsUnexpectedErrors(t *testing.T) {
	st := openTest(t)
	calls := 0
	err := st.do(context.Background(), "boom", func(context.Context) error {
		calls++
		return errors.New("disk on fire")
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrUnavailable)
	var se *types.StorageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "boom", se.Op)
	assert.Equal(t, 1, calls, "non-transient errors are not retried")
}

func TestDo_PassesDomainErrorsThrough(t *testing.T) {
	st := openTest(t)
	err := st.do(context.Background(), "x", func(context.Context) error {
		return types.ErrConflict
	})
	assert.Equal(t, types.ErrConflict, err)
}

func TestBackoff_CapsAtMax(t *testing.T) {
	b := newBackoff(RetryPolicy{Initial: 10 * time.Millisecond, Max: 40 * time.Millisecond})
	var last time.Duration
	for i := 0; i < 6; i++ {
		last = b.next()
	}
	// 40ms ± 25%.
	assert.LessOrEqual(t, last, 50*time.Millisecond)
	assert.GreaterOrEqual(t, last, 30*time.Millisecond)
}

func TestPerformanceRows_DispatchesByMode(t *testing.T) {
	st := openTest(t)
	ctx := context.Background()
	_, err := st.IncrementShiftBy(ctx, ident(types.ShiftA, "2024-03-10"), 0, 10)
	require.NoError(t, err)
	_, err = st.IncrementShiftBy(ctx, ident(types.ShiftB, "2024-03-10"), 0, 4)
	require.NoError(t, err)
	since, _ := types.ParseDate("2024-03-01")

	for _, tc := range []struct {
		mode  types.PerformanceMode
		rows  int
		gross int64
	}{
		{types.ModeTotal, 1, 14},
		{types.ModeShiftA, 1, 10},
		{types.ModeShiftB, 1, 4},
		{types.ModeBoth, 2, 10},
	} {
		rows, err := st.PerformanceRows(ctx, tc.mode, since)
		require.NoError(t, err, tc.mode)
		require.Len(t, rows, tc.rows, tc.mode)
		assert.Equal(t, tc.gross, rows[0].Gross, tc.mode)
	}

	_, err = st.PerformanceRows(ctx, "weekly", since)
	assert.ErrorIs(t, err, types.ErrValidation)
}
