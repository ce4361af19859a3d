package pgstore

import (
	"log"
	"sync/atomic"

	"github.com/pgstore/pgstore/internal/kv"
)

// Options configures Open.
type Options struct {
	// InMemory runs the store in memory only, for tests. DataDir is
	// ignored when set.
	InMemory bool

	// SyncWrites forces fsync after every write batch.
	SyncWrites bool

	// Logger receives lifecycle and ingestion-skip log lines. Defaults
	// to log.Default() when nil.
	Logger *log.Logger

	// Strict, when true, makes Ingest stop at the first BadRecord
	// instead of skipping it and continuing with the next record.
	Strict bool

	// BatchSize groups up to this many consecutive .pgdf records into
	// one underlying write batch during IngestFile, for throughput.
	// Values <= 1 submit one batch per record. Per-record validation
	// still applies: a bad record within a batch is skipped (or halts
	// ingestion in Strict mode) without discarding its batch-mates.
	BatchSize int
}

// DB is an open property-graph store. The zero value is not usable;
// construct with Open.
type DB struct {
	engine  *kv.Engine
	logger  *log.Logger
	strict  bool
	batch   int
	cursors int64 // outstanding cursor count, atomic
	closed  int32
}

// Open creates the data directory if absent and opens the store,
// creating any missing keyspaces. Returns a *Error of KindStorageOpen
// on failure.
func Open(dataDir string, opts Options) (*DB, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	engine, err := kv.Open(kv.Options{
		DataDir:    dataDir,
		InMemory:   opts.InMemory,
		SyncWrites: opts.SyncWrites,
		Logger:     kv.DefaultLogger(logger),
	})
	if err != nil {
		return nil, newErr(KindStorageOpen, "open store at "+dataDir, err)
	}

	batch := opts.BatchSize
	if batch < 1 {
		batch = 1
	}

	db := &DB{engine: engine, logger: logger, strict: opts.Strict, batch: batch}
	logger.Printf("pgstore: opened database at %q", dataDir)
	return db, nil
}

// OpenInMemory is a convenience wrapper around Open for tests and
// short-lived tooling.
func OpenInMemory(opts Options) (*DB, error) {
	opts.InMemory = true
	return Open("", opts)
}

// Close releases the database. It is a usage error to Close while
// cursors are still outstanding — callers must Close every cursor
// first. Close on an already-closed DB is a no-op.
func (db *DB) Close() error {
	if !atomic.CompareAndSwapInt32(&db.closed, 0, 1) {
		return nil
	}
	if n := atomic.LoadInt64(&db.cursors); n > 0 {
		atomic.StoreInt32(&db.closed, 0) // allow a retry after cursors are released
		return newErr(KindUsageError, "close called with outstanding cursors", nil)
	}
	db.logger.Printf("pgstore: closing database")
	if err := db.engine.Close(); err != nil {
		return newErr(KindStorageIO, "close store", err)
	}
	return nil
}

func (db *DB) checkOpen() error {
	if atomic.LoadInt32(&db.closed) != 0 {
		return newErr(KindUsageError, "operation on closed database", nil)
	}
	return nil
}
