package store

import (
	"context"

	"github.com/kalfix/kalfix/pkg/types"
)

// Each performance variant has its own fixed query.
const (
	dailyTotalsQuery = `SELECT data_turno, '', SUM(contador), SUM(perdas)
		FROM shifts
		WHERE data_turno >= ?
		GROUP BY data_turno
		ORDER BY data_turno ASC`

	dailyTotalsForShiftQuery = `SELECT data_turno, turno_nome, SUM(contador), SUM(perdas)
		FROM shifts
		WHERE data_turno >= ? AND turno_nome = ?
		GROUP BY data_turno, turno_nome
		ORDER BY data_turno ASC`

	dailyTotalsByShiftQuery = `SELECT data_turno, turno_nome, SUM(contador), SUM(perdas)
		FROM shifts
		WHERE data_turno >= ?
		GROUP BY data_turno, turno_nome
		ORDER BY data_turno ASC, turno_nome ASC`
)

// DailyTotals sums every shift per date, for dates on or after since.
func (s *Store) DailyTotals(ctx context.Context, since types.Date) ([]types.DailyTotal, error) {
	return s.dailyTotals(ctx, "daily totals", dailyTotalsQuery, since.String())
}

// DailyTotalsForShift sums one named shift per date.
func (s *Store) DailyTotalsForShift(ctx context.Context, name string, since types.Date) ([]types.DailyTotal, error) {
	return s.dailyTotals(ctx, "daily totals for shift", dailyTotalsForShiftQuery, since.String(), name)
}

// DailyTotalsByShift returns one row per date and shift name.
func (s *Store) DailyTotalsByShift(ctx context.Context, since types.Date) ([]types.DailyTotal, error) {
	return s.dailyTotals(ctx, "daily totals by shift", dailyTotalsByShiftQuery, since.String())
}

func (s *Store) dailyTotals(ctx context.Context, op, query string, args ...any) ([]types.DailyTotal, error) {
	var out []types.DailyTotal
	err := s.do(ctx, op, func(ctx context.Context) error {
		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		out = out[:0]
		for rows.Next() {
			var (
				dt   types.DailyTotal
				date string
			)
			if err := rows.Scan(&date, &dt.Name, &dt.Gross, &dt.Loss); err != nil {
				return err
			}
			if dt.Date, err = types.ParseDate(date); err != nil {
				return err
			}
			out = append(out, dt)
		}
		return rows.Err()
	})
	return out, err
}

// PerformanceRows returns the daily rows for mode, for dates on or after
// since.
func (s *Store) PerformanceRows(ctx context.Context, mode types.PerformanceMode, since types.Date) ([]types.DailyTotal, error) {
	switch mode {
	case types.ModeTotal:
		return s.DailyTotals(ctx, since)
	case types.ModeShiftA:
		return s.DailyTotalsForShift(ctx, types.ShiftA, since)
	case types.ModeShiftB:
		return s.DailyTotalsForShift(ctx, types.ShiftB, since)
	case types.ModeBoth:
		return s.DailyTotalsByShift(ctx, since)
	}
	return nil, types.Invalid("mode", "unknown mode %q", mode)
}
