// Package cache implements the CacheBackend abstraction: a namespaced
// (method, key) -> bytes contract, with an in-memory implementation and a
// pooled PostgreSQL-backed implementation keyed by chain identity.
package cache

import "context"

// ReadResult is returned by Handle.Read. Key is echoed back (possibly
// namespaced) so callers can log it without re-deriving the namespace.
type ReadResult struct {
	Key   string
	Value []byte
	Hit   bool
}

// Handle is a borrowed connection/lock obtained from Backend.Instance. It
// is scoped to one phase of the batch dispatcher (classification, or the
// write-back pass) and released via Close when that phase ends.
type Handle interface {
	Read(ctx context.Context, method, key string) (ReadResult, error)
	Write(ctx context.Context, method, key string, value []byte) error
	Close()
}

// Backend is the capability-typed contract every cache implementation
// satisfies: a borrowing Instance operation that may allocate (or fail to
// allocate, under pool exhaustion or network trouble) a Handle.
type Backend interface {
	Instance(ctx context.Context) (Handle, error)
}
