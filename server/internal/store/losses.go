package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/kalfix/kalfix/pkg/types"
)

// InsertLossAndIncrementTotal appends a loss event to the shift identified
// by id (creating the shift at zero gross when absent) and adds quantity to
// its loss total, in one transaction. A zero occurredAt means now.
func (s *Store) InsertLossAndIncrementTotal(ctx context.Context, id types.Identity, quantity int64, reason string, occurredAt time.Time) (types.LossEvent, error) {
	if quantity < 0 {
		return types.LossEvent{}, types.Invalid("quantity", "must be >= 0, got %d", quantity)
	}
	if occurredAt.IsZero() {
		occurredAt = s.now()
	}
	ev := types.LossEvent{
		Shift:      id,
		Quantity:   quantity,
		Reason:     reason,
		OccurredAt: occurredAt.UTC(),
	}
	err := s.do(ctx, "insert loss", func(ctx context.Context) error {
		return s.withTx(ctx, func(tx *sql.Tx) error {
			if err := s.ensureShift(ctx, tx, id); err != nil {
				return err
			}
			if err := tx.QueryRowContext(ctx,
				`SELECT id FROM shifts WHERE turno_nome = ? AND data_turno = ?`,
				id.Name, id.Date.String()).Scan(&ev.ShiftID); err != nil {
				return err
			}
			res, err := tx.ExecContext(ctx,
				`INSERT INTO perdas (shift_id, quantidade, motivo, data_evento) VALUES (?, ?, ?, ?)`,
				ev.ShiftID, quantity, reason, formatTime(ev.OccurredAt))
			if err != nil {
				return err
			}
			if ev.ID, err = res.LastInsertId(); err != nil {
				return err
			}
			_, err = tx.ExecContext(ctx,
				`UPDATE shifts SET perdas = perdas + ? WHERE id = ?`, quantity, ev.ShiftID)
			return err
		})
	})
	if err != nil {
		return types.LossEvent{}, err
	}
	return ev, nil
}

// LossTotalsByReason sums loss quantities per reason for events that
// occurred in [from, to). Rows come back in reason order; callers sort.
func (s *Store) LossTotalsByReason(ctx context.Context, from, to time.Time) ([]types.ReasonTotal, error) {
	var out []types.ReasonTotal
	err := s.do(ctx, "loss totals by reason", func(ctx context.Context) error {
		rows, err := s.db.QueryContext(ctx,
			`SELECT motivo, COALESCE(SUM(quantidade), 0)
			 FROM perdas
			 WHERE data_evento >= ? AND data_evento < ?
			 GROUP BY motivo
			 ORDER BY motivo ASC`,
			formatTime(from), formatTime(to))
		if err != nil {
			return err
		}
		defer rows.Close()

		out = out[:0]
		for rows.Next() {
			var rt types.ReasonTotal
			if err := rows.Scan(&rt.Reason, &rt.Total); err != nil {
				return err
			}
			out = append(out, rt)
		}
		return rows.Err()
	})
	return out, err
}

// RecentLosses returns up to limit loss events that occurred at or after
// since, newest first.
func (s *Store) RecentLosses(ctx context.Context, since time.Time, limit int) ([]types.LossEvent, error) {
	if limit <= 0 {
		return nil, nil
	}
	var out []types.LossEvent
	err := s.do(ctx, "recent losses", func(ctx context.Context) error {
		rows, err := s.db.QueryContext(ctx,
			`SELECT p.id, p.shift_id, p.quantidade, p.motivo, p.data_evento, s.turno_nome, s.data_turno
			 FROM perdas p
			 JOIN shifts s ON p.shift_id = s.id
			 WHERE p.data_evento >= ?
			 ORDER BY p.data_evento DESC, p.id DESC
			 LIMIT ?`,
			formatTime(since), limit)
		if err != nil {
			return err
		}
		defer rows.Close()

		out = out[:0]
		for rows.Next() {
			var (
				ev       types.LossEvent
				occurred string
				date     string
			)
			if err := rows.Scan(&ev.ID, &ev.ShiftID, &ev.Quantity, &ev.Reason, &occurred, &ev.Shift.Name, &date); err != nil {
				return err
			}
			if ev.OccurredAt, err = parseTime(occurred); err != nil {
				return fmt.Errorf("data_evento: %w", err)
			}
			if ev.Shift.Date, err = types.ParseDate(date); err != nil {
				return err
			}
			out = append(out, ev)
		}
		return rows.Err()
	})
	return out, err
}
