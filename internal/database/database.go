// Package database defines the append-only persistence contract a
// WatchGroup writes through, plus two reference backends (Postgres and
// SQLite). The wire format and schema are implementation details of
// each backend; the contract only guarantees per-path write ordering
// as observed from a single caller goroutine.
package database

import (
	"context"
	"time"

	"github.com/ilovepumpkin/dsa-historian/internal/value"
)

// Row is one persisted observation, returned in ascending time order
// by Query.
type Row struct {
	Value value.Value
	Time  time.Time
}

// RowHandler receives one Row at a time from Query, in ascending time
// order. Returning an error aborts the stream.
type RowHandler func(Row) error

// Database is the append-only store a WatchGroup writes through. A
// single goroutine's successive Write calls for the same path must
// land in the order issued; concurrent callers on different paths
// have no ordering requirement between them. Implementations may
// batch internally as long as that per-path order is preserved.
type Database interface {
	// Write appends one observation. timeMillis is the row's
	// timestamp as chosen by the caller's timestamp policy, not
	// necessarily value.Timestamp().
	Write(ctx context.Context, path string, v value.Value, timeMillis int64) error

	// Query streams every row for path with a timestamp in
	// [fromMillis, toMillis) to handler, ordered by time ascending.
	Query(ctx context.Context, path string, fromMillis, toMillis int64, handler RowHandler) error

	// Close releases the backend's resources. Safe to call once, at
	// shutdown.
	Close() error
}
