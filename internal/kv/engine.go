// Package kv is a thin capability wrapper around BadgerDB: open/close,
// atomic multi-keyspace write batches, point get, and scoped prefix
// iteration. It knows nothing about graphs — callers choose the
// keyspace byte and the key/value bytes.
package kv

import (
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/dgraph-io/badger/v4"
)

// ErrClosed is returned by any Engine operation performed after Close.
var ErrClosed = errors.New("kv: engine is closed")

// Options configures Engine construction.
type Options struct {
	// DataDir is the directory holding the Badger files. Required
	// unless InMemory is set.
	DataDir string

	// InMemory runs Badger in memory-only mode, for tests.
	InMemory bool

	// SyncWrites forces fsync after each write batch. Slower, more durable.
	SyncWrites bool

	// Logger receives Badger's internal log lines. Defaults to a quiet
	// logger (Badger's warnings/info are suppressed) when nil.
	Logger badger.Logger
}

// Engine wraps a Badger instance for use as the physical layer of the
// graph store. All keyspace separation happens above this type by
// prefixing keys with a Keyspace byte before they reach Engine.
type Engine struct {
	db     *badger.DB
	closed bool
}

// Open creates the data directory if absent and opens Badger, creating
// any missing files. Returns a wrapped error the caller can map to
// StorageOpen.
func Open(opts Options) (*Engine, error) {
	bo := badger.DefaultOptions(opts.DataDir)
	if opts.InMemory {
		bo = bo.WithInMemory(true)
	}
	if opts.SyncWrites {
		bo = bo.WithSyncWrites(true)
	}
	if opts.Logger != nil {
		bo = bo.WithLogger(opts.Logger)
	} else {
		bo = bo.WithLogger(nil)
	}

	if !opts.InMemory && opts.DataDir != "" {
		if err := os.MkdirAll(opts.DataDir, 0o755); err != nil {
			return nil, fmt.Errorf("kv: create data dir: %w", err)
		}
	}

	db, err := badger.Open(bo)
	if err != nil {
		return nil, fmt.Errorf("kv: open badger: %w", err)
	}
	return &Engine{db: db}, nil
}

// Close releases the underlying Badger instance. Idempotent.
func (e *Engine) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true
	return e.db.Close()
}

// Op is one put or delete against a single keyspace, composed with
// others into an atomic WriteBatch.
type Op struct {
	Keyspace byte
	Delete   bool
	Key      []byte
	Value    []byte
}

// Put builds a put Op.
func Put(keyspace byte, key, value []byte) Op {
	return Op{Keyspace: keyspace, Key: key, Value: value}
}

// Del builds a delete Op.
func Del(keyspace byte, key []byte) Op {
	return Op{Keyspace: keyspace, Delete: true, Key: key}
}

func prefixed(keyspace byte, key []byte) []byte {
	out := make([]byte, 0, 1+len(key))
	out = append(out, keyspace)
	out = append(out, key...)
	return out
}

// WriteBatch applies every op atomically: either all become visible to
// subsequent readers, or none do.
func (e *Engine) WriteBatch(ops []Op) error {
	if e.closed {
		return ErrClosed
	}
	return e.db.Update(func(txn *badger.Txn) error {
		for _, op := range ops {
			pk := prefixed(op.Keyspace, op.Key)
			if op.Delete {
				if err := txn.Delete(pk); err != nil {
					return err
				}
				continue
			}
			if err := txn.Set(pk, op.Value); err != nil {
				return err
			}
		}
		return nil
	})
}

// ErrCheckKeyExists is returned by WriteBatchIfAbsent when checkKey
// already exists in checkKeyspace; the batch's ops are not applied.
var ErrCheckKeyExists = errors.New("kv: check key already exists")

// WriteBatchIfAbsent atomically checks whether checkKey exists in
// checkKeyspace and, only if it does not, applies ops — all within one
// Badger transaction, so the check and the write are never split by a
// concurrent writer. Returns ErrCheckKeyExists (and applies nothing)
// if the key is already present.
func (e *Engine) WriteBatchIfAbsent(checkKeyspace byte, checkKey []byte, ops []Op) error {
	if e.closed {
		return ErrClosed
	}
	return e.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(prefixed(checkKeyspace, checkKey))
		if err == nil {
			return ErrCheckKeyExists
		}
		if err != badger.ErrKeyNotFound {
			return err
		}
		for _, op := range ops {
			pk := prefixed(op.Keyspace, op.Key)
			if op.Delete {
				if err := txn.Delete(pk); err != nil {
					return err
				}
				continue
			}
			if err := txn.Set(pk, op.Value); err != nil {
				return err
			}
		}
		return nil
	})
}

// CheckedBatch is one record's duplicate-id check plus the ops it
// contributes to a grouped write, used by WriteGroupedIfAbsent.
type CheckedBatch struct {
	CheckKeyspace byte
	CheckKey      []byte
	Ops           []Op
}

// WriteGroupedIfAbsent applies several records' batches within a
// single Badger transaction for throughput, while keeping the
// duplicate-id check per record: a batch whose CheckKey already exists
// contributes no ops and is reported as a duplicate in the returned
// slice, but does not prevent the other batches in the group from
// being applied. The whole group still commits atomically — either
// every non-duplicate batch's ops become visible, or (on an I/O
// failure) none do.
func (e *Engine) WriteGroupedIfAbsent(batches []CheckedBatch) (duplicates []bool, err error) {
	if e.closed {
		return nil, ErrClosed
	}
	duplicates = make([]bool, len(batches))
	err = e.db.Update(func(txn *badger.Txn) error {
		for i, b := range batches {
			_, getErr := txn.Get(prefixed(b.CheckKeyspace, b.CheckKey))
			if getErr == nil {
				duplicates[i] = true
				continue
			}
			if getErr != badger.ErrKeyNotFound {
				return getErr
			}
			for _, op := range b.Ops {
				pk := prefixed(op.Keyspace, op.Key)
				if op.Delete {
					if err := txn.Delete(pk); err != nil {
						return err
					}
					continue
				}
				if err := txn.Set(pk, op.Value); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return duplicates, nil
}

// Has reports whether key exists in keyspace without fetching its value.
func (e *Engine) Has(keyspace byte, key []byte) (bool, error) {
	if e.closed {
		return false, ErrClosed
	}
	err := e.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(prefixed(keyspace, key))
		return err
	})
	if err == badger.ErrKeyNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Get fetches key's value from keyspace. The bool result reports
// presence; a missing key is not an error.
func (e *Engine) Get(keyspace byte, key []byte) ([]byte, bool, error) {
	if e.closed {
		return nil, false, ErrClosed
	}
	var value []byte
	found := false
	err := e.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(prefixed(keyspace, key))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			value = append([]byte(nil), val...)
			return nil
		})
	})
	if err != nil {
		return nil, false, err
	}
	return value, found, nil
}

// Scanner is a long-lived, read-only Badger transaction plus a forward
// iterator over one keyspace's prefix range. It is the building block
// the cursor layer wraps with guaranteed release semantics; Scanner
// itself must be explicitly closed exactly once its caller is done
// with it (or, redundantly, any number of times — Close is idempotent).
type Scanner struct {
	txn    *badger.Txn
	it     *badger.Iterator
	prefix []byte
	kspace byte
	closed bool
	seeked bool
}

// NewScanner opens a read-only transaction and positions an iterator
// at the start of keyspace, optionally restricted to a prefix (the
// entire keyspace is scanned if prefix is nil).
func (e *Engine) NewScanner(keyspace byte, prefix []byte) (*Scanner, error) {
	if e.closed {
		return nil, ErrClosed
	}
	txn := e.db.NewTransaction(false)
	opts := badger.DefaultIteratorOptions
	it := txn.NewIterator(opts)
	full := prefixed(keyspace, prefix)
	return &Scanner{txn: txn, it: it, prefix: full, kspace: keyspace}, nil
}

// Next advances to the next (key, value) pair within the scanner's
// prefix, stripped of the keyspace byte. ok is false once the prefix
// range is exhausted; the scanner is still safe (but pointless) to
// call Next on again.
func (s *Scanner) Next() (key, value []byte, ok bool, err error) {
	if s.closed {
		return nil, nil, false, nil
	}
	if !s.seeked {
		s.it.Seek(s.prefix)
		s.seeked = true
	} else {
		s.it.Next()
	}
	if !s.it.ValidForPrefix(s.prefix) {
		return nil, nil, false, nil
	}
	item := s.it.Item()
	k := item.KeyCopy(nil)[1:] // strip keyspace byte
	var v []byte
	verr := item.Value(func(val []byte) error {
		v = append([]byte(nil), val...)
		return nil
	})
	if verr != nil {
		return nil, nil, false, verr
	}
	return k, v, true, nil
}

// Close releases the iterator and discards the transaction. Idempotent.
func (s *Scanner) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.it.Close()
	s.txn.Discard()
	return nil
}

// Sync forces Badger to fsync its value log and LSM files.
func (e *Engine) Sync() error {
	if e.closed {
		return ErrClosed
	}
	return e.db.Sync()
}

// DefaultLogger returns a Badger logger adapter that writes through a
// standard library *log.Logger, matching the style of injecting a host
// logger rather than letting Badger print to stderr directly.
func DefaultLogger(l *log.Logger) badger.Logger {
	return &stdLogger{l: l}
}

type stdLogger struct{ l *log.Logger }

func (s *stdLogger) Errorf(f string, args ...interface{})   { s.l.Printf("ERROR "+f, args...) }
func (s *stdLogger) Warningf(f string, args ...interface{}) { s.l.Printf("WARN "+f, args...) }
func (s *stdLogger) Infof(f string, args ...interface{})    { s.l.Printf("INFO "+f, args...) }
func (s *stdLogger) Debugf(f string, args ...interface{})   {}
