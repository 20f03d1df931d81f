// Package types defines the shared domain types used across the server:
// calendar dates, shift identities, the persisted Shift/Goal/LossEvent
// records and the typed errors the storage and core layers return.
//
// These are the canonical in-memory representations, separate from the
// SQLite row layout and the JSON wire format served by the API.
package types
