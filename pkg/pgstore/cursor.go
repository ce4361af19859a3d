package pgstore

import (
	"sync"
	"sync/atomic"

	"github.com/pgstore/pgstore/internal/kv"
)

// decodeFunc turns a raw (key, value) pair from a Scanner into a
// caller-facing T, performing whatever secondary-keyspace join the
// query requires (e.g. extracting an id from an index key and fetching
// the primary row). Returning errSkipItem causes the cursor to silently
// move on to the next underlying entry instead of yielding one, used
// by role-filtered adjacency queries (iter_outgoing / iter_incoming).
type decodeFunc[T any] func(key, value []byte) (T, error)

// errSkipItem is a sentinel decodeFunc error meaning "this underlying
// entry does not produce a result; advance without yielding."
var errSkipItem = errSkip{}

type errSkip struct{}

func (errSkip) Error() string { return "pgstore: skip item" }

// Cursor is a scoped handle over a lazy, single-pass sequence of query
// results. Release the underlying Badger iterator and transaction by
// calling Close exactly once you are done — typically via defer
// immediately after acquiring the cursor. Close is idempotent; a
// drained cursor (Next returned ok=false) may still be Closed safely,
// and calling Next again after Close simply yields no more results.
type Cursor[T any] struct {
	db      *DB
	scanner *kv.Scanner
	decode  decodeFunc[T]
	once    sync.Once
	drained bool
}

func newCursor[T any](db *DB, scanner *kv.Scanner, decode decodeFunc[T]) *Cursor[T] {
	atomic.AddInt64(&db.cursors, 1)
	return &Cursor[T]{db: db, scanner: scanner, decode: decode}
}

// Next advances the cursor and decodes one item. ok is false once the
// underlying range is exhausted; callers should stop calling Next at
// that point (further calls are safe but keep returning ok=false).
func (c *Cursor[T]) Next() (item T, ok bool, err error) {
	for {
		if c.drained {
			return item, false, nil
		}
		key, value, has, err := c.scanner.Next()
		if err != nil {
			var zero T
			return zero, false, newErr(KindStorageIO, "cursor advance", err)
		}
		if !has {
			c.drained = true
			return item, false, nil
		}
		item, err = c.decode(key, value)
		if err == errSkipItem {
			continue
		}
		if err != nil {
			var zero T
			return zero, false, err
		}
		return item, true, nil
	}
}

// Close releases the cursor's underlying iterator and transaction.
// Safe to call multiple times.
func (c *Cursor[T]) Close() error {
	var err error
	c.once.Do(func() {
		err = c.scanner.Close()
		atomic.AddInt64(&c.db.cursors, -1)
	})
	return err
}

// CollectAll drains cur into a slice and guarantees its release,
// addressing the common case where a caller wants eager results
// without hand-writing a Next loop and a defer.
func CollectAll[T any](cur *Cursor[T]) ([]T, error) {
	defer cur.Close()
	var out []T
	for {
		item, ok, err := cur.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, item)
	}
}
