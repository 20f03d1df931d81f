package store

import (
	"context"
	"database/sql"

	"github.com/kalfix/kalfix/pkg/types"
)

// UpsertGoal registers (or replaces) the goal of the shift identified by id,
// creating the shift at zero when absent.
func (s *Store) UpsertGoal(ctx context.Context, id types.Identity, shiftGoal int64, dayGoal *int64) (types.Goal, error) {
	if shiftGoal <= 0 {
		return types.Goal{}, types.Invalid("shift_goal", "must be > 0, got %d", shiftGoal)
	}
	if dayGoal != nil && *dayGoal <= 0 {
		return types.Goal{}, types.Invalid("day_goal", "must be > 0 when set, got %d", *dayGoal)
	}
	g := types.Goal{ShiftGoal: shiftGoal, DayGoal: dayGoal}
	err := s.do(ctx, "upsert goal", func(ctx context.Context) error {
		return s.withTx(ctx, func(tx *sql.Tx) error {
			if err := s.ensureShift(ctx, tx, id); err != nil {
				return err
			}
			if err := tx.QueryRowContext(ctx,
				`SELECT id FROM shifts WHERE turno_nome = ? AND data_turno = ?`,
				id.Name, id.Date.String()).Scan(&g.ShiftID); err != nil {
				return err
			}
			var day sql.NullInt64
			if dayGoal != nil {
				day = sql.NullInt64{Int64: *dayGoal, Valid: true}
			}
			_, err := tx.ExecContext(ctx,
				`INSERT INTO metas (shift_id, meta_turno, meta_dia, created_at)
				 VALUES (?, ?, ?, ?)
				 ON CONFLICT(shift_id) DO UPDATE
				 SET meta_turno = excluded.meta_turno, meta_dia = excluded.meta_dia`,
				g.ShiftID, shiftGoal, day, formatTime(s.now()))
			return err
		})
	})
	if err != nil {
		return types.Goal{}, err
	}
	return g, nil
}
