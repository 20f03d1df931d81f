package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kalfix/kalfix/pkg/types"
)

// shiftColumns is the select list scanned by scanShift.
const shiftColumns = `s.id, s.turno_nome, s.data_turno, s.contador, s.perdas, s.inicio_turno, s.fim_turno,
	m.shift_id, m.meta_turno, m.meta_dia`

const selectShift = `SELECT ` + shiftColumns + `
	FROM shifts s LEFT JOIN metas m ON m.shift_id = s.id
	WHERE s.turno_nome = ? AND s.data_turno = ?`

// ensureShift inserts id with zero totals when it does not exist yet.
func (s *Store) ensureShift(ctx context.Context, tx *sql.Tx, id types.Identity) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO shifts (turno_nome, data_turno, contador, perdas, inicio_turno)
		 VALUES (?, ?, 0, 0, ?)
		 ON CONFLICT(turno_nome, data_turno) DO NOTHING`,
		id.Name, id.Date.String(), formatTime(s.now()))
	return err
}

// GetOrCreateShift returns the shift for id, creating it at zero if absent.
func (s *Store) GetOrCreateShift(ctx context.Context, id types.Identity) (types.Shift, error) {
	var out types.Shift
	err := s.do(ctx, "get or create shift", func(ctx context.Context) error {
		return s.withTx(ctx, func(tx *sql.Tx) error {
			if err := s.ensureShift(ctx, tx, id); err != nil {
				return err
			}
			sh, err := scanShift(tx.QueryRowContext(ctx, selectShift, id.Name, id.Date.String()))
			if err != nil {
				return err
			}
			out = sh
			return nil
		})
	})
	return out, err
}

// IncrementShiftBy adds delta to the gross count of id, conditional on the
// persisted count still equalling base. The row is created from zero when
// missing. On a baseline mismatch nothing is written and the current
// persisted count is returned with an error matching types.ErrConflict.
func (s *Store) IncrementShiftBy(ctx context.Context, id types.Identity, base, delta int64) (int64, error) {
	if delta <= 0 {
		return 0, types.Invalid("delta", "must be > 0, got %d", delta)
	}
	var gross int64
	err := s.do(ctx, "increment shift", func(ctx context.Context) error {
		var persisted int64
		err := s.withTx(ctx, func(tx *sql.Tx) error {
			if err := s.ensureShift(ctx, tx, id); err != nil {
				return err
			}
			err := tx.QueryRowContext(ctx,
				`UPDATE shifts SET contador = contador + ?
				 WHERE turno_nome = ? AND data_turno = ? AND contador = ?
				 RETURNING contador`,
				delta, id.Name, id.Date.String(), base).Scan(&persisted)
			if errors.Is(err, sql.ErrNoRows) {
				if err := tx.QueryRowContext(ctx,
					`SELECT contador FROM shifts WHERE turno_nome = ? AND data_turno = ?`,
					id.Name, id.Date.String()).Scan(&persisted); err != nil {
					return err
				}
				return fmt.Errorf("increment %s: baseline %d, persisted %d: %w",
					id.Key(), base, persisted, types.ErrConflict)
			}
			return err
		})
		gross = persisted
		return err
	})
	return gross, err
}

// FinalizeShift stamps the shift's finish time. Finalizing again only
// rewrites the stamp; finalizing a missing shift is a no-op.
func (s *Store) FinalizeShift(ctx context.Context, id types.Identity) error {
	return s.do(ctx, "finalize shift", func(ctx context.Context) error {
		return s.withTx(ctx, func(tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx,
				`UPDATE shifts SET fim_turno = ? WHERE turno_nome = ? AND data_turno = ?`,
				formatTime(s.now()), id.Name, id.Date.String())
			return err
		})
	})
}

// GetShift returns the shift for id. The boolean is false when it does not
// exist; that is not an error.
func (s *Store) GetShift(ctx context.Context, id types.Identity) (types.Shift, bool, error) {
	var (
		out   types.Shift
		found bool
	)
	err := s.do(ctx, "get shift", func(ctx context.Context) error {
		sh, err := scanShift(s.db.QueryRowContext(ctx, selectShift, id.Name, id.Date.String()))
		if errors.Is(err, sql.ErrNoRows) {
			found = false
			return nil
		}
		if err != nil {
			return err
		}
		out, found = sh, true
		return nil
	})
	return out, found, err
}

// ListShifts returns every shift dated within [from, to], ordered by date
// then name.
func (s *Store) ListShifts(ctx context.Context, from, to types.Date) ([]types.Shift, error) {
	var out []types.Shift
	err := s.do(ctx, "list shifts", func(ctx context.Context) error {
		var err error
		out, err = s.queryShifts(ctx,
			`SELECT `+shiftColumns+`
			 FROM shifts s LEFT JOIN metas m ON m.shift_id = s.id
			 WHERE s.data_turno BETWEEN ? AND ?
			 ORDER BY s.data_turno ASC, s.turno_nome ASC`,
			from.String(), to.String())
		return err
	})
	return out, err
}

// OpenShifts returns shifts that have not been finalized, newest first.
func (s *Store) OpenShifts(ctx context.Context) ([]types.Shift, error) {
	var out []types.Shift
	err := s.do(ctx, "open shifts", func(ctx context.Context) error {
		var err error
		out, err = s.queryShifts(ctx,
			`SELECT `+shiftColumns+`
			 FROM shifts s LEFT JOIN metas m ON m.shift_id = s.id
			 WHERE s.fim_turno IS NULL
			 ORDER BY s.data_turno DESC, s.inicio_turno DESC`)
		return err
	})
	return out, err
}

func (s *Store) queryShifts(ctx context.Context, query string, args ...any) ([]types.Shift, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.Shift
	for rows.Next() {
		sh, err := scanShift(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sh)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanShift(row scanner) (types.Shift, error) {
	var (
		sh        types.Shift
		date      string
		started   string
		finished  sql.NullString
		goalShift sql.NullInt64
		shiftGoal sql.NullInt64
		dayGoal   sql.NullInt64
	)
	if err := row.Scan(&sh.ID, &sh.Name, &date, &sh.Gross, &sh.Loss, &started, &finished,
		&goalShift, &shiftGoal, &dayGoal); err != nil {
		return types.Shift{}, err
	}
	d, err := types.ParseDate(date)
	if err != nil {
		return types.Shift{}, err
	}
	sh.Date = d
	if sh.StartedAt, err = parseTime(started); err != nil {
		return types.Shift{}, fmt.Errorf("inicio_turno: %w", err)
	}
	if finished.Valid {
		f, err := parseTime(finished.String)
		if err != nil {
			return types.Shift{}, fmt.Errorf("fim_turno: %w", err)
		}
		sh.FinishedAt = &f
	}
	if goalShift.Valid {
		g := &types.Goal{ShiftID: goalShift.Int64, ShiftGoal: shiftGoal.Int64}
		if dayGoal.Valid {
			v := dayGoal.Int64
			g.DayGoal = &v
		}
		sh.Goal = g
	}
	return sh, nil
}
