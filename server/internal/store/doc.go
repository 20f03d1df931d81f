// Package store persists shifts, goals and loss events in SQLite.
//
// Schema:
//
//	shifts(id, turno_nome, data_turno, contador, perdas, inicio_turno, fim_turno)
//	  unique(turno_nome, data_turno)
//	metas(id, shift_id → shifts.id, meta_turno, meta_dia, created_at) unique(shift_id)
//	perdas(id, shift_id → shifts.id, quantidade ≥ 0, motivo, data_evento)
//
// Dates are stored as YYYY-MM-DD text and timestamps as fixed-width UTC
// text, so lexical order equals chronological order.
//
// Every mutation runs in one transaction and either commits fully or rolls
// back. Transient SQLite failures (BUSY, LOCKED, bad connection) are retried
// with exponential backoff; anything still failing is returned as a
// *types.StorageError, which matches types.ErrUnavailable. The gross count is
// only ever changed through IncrementShiftBy, a conditional UPDATE … RETURNING
// keyed on the caller's baseline.
package store
