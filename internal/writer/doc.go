// Package writer persists merged points to PostgreSQL.
//
// The PointWriter is registered with the poller as a merge handler. Merges
// are queued without blocking the poll loop and written in batches with
// append-only semantics: a point is keyed by (run_id, series, idx) and a
// repeated key is counted as a conflict, never updated.
package writer
