package database

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/ValentinKolb/docdb/lib/db"
	"github.com/ValentinKolb/docdb/lib/db/cache"
	"github.com/ValentinKolb/docdb/lib/db/engines/bolt"
	"github.com/ValentinKolb/docdb/lib/db/engines/flat"
	"github.com/ValentinKolb/docdb/lib/db/pathkey"
	"github.com/ValentinKolb/docdb/lib/db/util"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("db")

// --------------------------------------------------------------------------
// Database Structure
// --------------------------------------------------------------------------

// Database is the entry point for working with documents. It dispatches to
// one backend chosen when the database is opened and keeps recently written
// documents in an LRU cache.
//
// Thread-safety: All methods are safe for concurrent use. A Ref is owned by
// the goroutine that locked it until it is passed to Unlock.
type Database struct {
	name    string
	backend db.Backend

	// mu guards the cache and orders cache updates with the backend writes
	// they mirror. Backend calls that may block are made without it.
	mu    sync.Mutex
	cache *cache.Index

	sizes   *util.SizeHistogram
	metrics *dbMetrics
	closed  atomic.Bool
}

// Open opens the flat file database rooted at dir. cacheBytes bounds the
// estimated size of the cached documents, 0 disables the cache.
func Open(dir string, cacheBytes int64) (*Database, error) {
	backend, err := flat.NewFlatDB(dir, nil)
	if err != nil {
		return nil, err
	}
	return New(dir, backend, cacheBytes)
}

// OpenEmbedded opens the embedded (bbolt) database stored in dir. maxBytes
// bounds the size of the database file, 0 means unlimited. It is rounded
// down to a size bbolt can map (see package bolt). The cache is
// disabled, enable it with SetMaxCache.
func OpenEmbedded(dir string, maxBytes int64) (*Database, error) {
	backend, err := bolt.NewBoltDB(dir, &bolt.Options{MaxBytes: maxBytes})
	if err != nil {
		return nil, err
	}
	return New(dir, backend, 0)
}

// New creates a database on top of an opened backend. name labels the
// database in metrics and logs. The database takes ownership of the backend.
func New(name string, backend db.Backend, cacheBytes int64) (*Database, error) {
	if backend == nil {
		return nil, fmt.Errorf("%w: no backend", db.ErrInvalidArgument)
	}
	if cacheBytes < 0 {
		_ = backend.Close()
		return nil, fmt.Errorf("%w: negative cache size %d", db.ErrInvalidArgument, cacheBytes)
	}

	d := &Database{
		name:    name,
		backend: backend,
		cache:   cache.New(cacheBytes),
		sizes:   util.NewSizeHistogram(),
	}
	d.metrics = newDBMetrics(name, d)

	Logger.Infof("opened database %s (backend %s, cache %d bytes)", name, backend.GetInfo().DbType, cacheBytes)
	return d, nil
}

// Name returns the name the database was created with.
func (d *Database) Name() string {
	return d.name
}

// Close closes the backend and empties the cache. All references must have
// been unlocked before. Further calls fail with db.ErrClosed.
func (d *Database) Close() error {
	if !d.closed.CompareAndSwap(false, true) {
		return db.ErrClosed
	}
	err := d.backend.Close()

	d.mu.Lock()
	d.cache.SetMaxSize(0)
	d.mu.Unlock()

	Logger.Infof("closed database %s", d.name)
	return err
}

// SetMaxCache changes the cache budget and evicts documents until the cache
// complies. 0 empties and disables the cache.
func (d *Database) SetMaxCache(bytes int64) error {
	if d.closed.Load() {
		return db.ErrClosed
	}
	if bytes < 0 {
		return fmt.Errorf("%w: negative cache size %d", db.ErrInvalidArgument, bytes)
	}

	d.mu.Lock()
	evicted := d.cache.SetMaxSize(bytes)
	d.mu.Unlock()

	d.metrics.cacheEvictions.Add(evicted)
	Logger.Debugf("database %s: cache limit set to %d bytes, %d documents evicted", d.name, bytes, evicted)
	return nil
}

// CacheStats returns a snapshot of the cache state.
func (d *Database) CacheStats() cache.Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cache.Stats()
}

// SupportsFeature reports whether the backend supports the feature.
func (d *Database) SupportsFeature(feature db.Feature) bool {
	return d.backend.SupportsFeature(feature)
}

// GetInfo returns the backend information extended by cache and document
// statistics.
func (d *Database) GetInfo() db.DatabaseInfo {
	info := d.backend.GetInfo()
	sizes := d.sizes.Summary()
	info.Metadata = map[string]interface{}{
		"name":    d.name,
		"backend": info.Metadata,
		"cache":   d.CacheStats(),
		"documents": map[string]interface{}{
			"written":       sizes.Count,
			"average_bytes": sizes.Average,
			"min_bytes":     sizes.Min,
			"max_bytes":     sizes.Max,
			"median_bytes":  sizes.Median,
			"p95_bytes":     sizes.P95,
		},
		"cache_hits":   d.metrics.cacheHits.Get(),
		"cache_misses": d.metrics.cacheMisses.Get(),
	}
	return info
}

// --------------------------------------------------------------------------
// Object Operations
// --------------------------------------------------------------------------

// Create creates a new object holding an empty document and returns it
// locked for writing. Fails with db.ErrAlreadyExists if the object exists.
func (d *Database) Create(key ...string) (*Ref, error) {
	id, err := d.prepare(key)
	if err != nil {
		return nil, err
	}
	key = append([]string(nil), key...)

	h, err := d.backend.Create(key)
	if err != nil {
		return nil, d.countBusy(err)
	}
	doc, err := h.Load()
	if err != nil {
		_ = h.Release()
		return nil, err
	}

	d.mu.Lock()
	d.cache.Remove(id)
	d.mu.Unlock()

	d.metrics.writeLocks.Inc()
	return &Ref{key: key, id: id, hint: db.HintWrite, doc: doc, modified: h.Modified(), handle: h}, nil
}

// Lock locks an existing object for writing.
func (d *Database) Lock(key ...string) (*Ref, error) {
	return d.LockIntent(db.HintWrite, key...)
}

// LockIntent locks an existing object with the given intent. Fails with
// db.ErrNotFound if the object does not exist and with db.ErrBusy if the
// backend cannot grant the lock right away. Backends with serialized
// writers block instead.
//
// A read-only reference gives a private copy of the document. Changes to it
// are never persisted.
func (d *Database) LockIntent(hint db.Hint, key ...string) (*Ref, error) {
	id, err := d.prepare(key)
	if err != nil {
		return nil, err
	}
	key = append([]string(nil), key...)

	switch hint {
	case db.HintReadOnly:
		return d.lockReadOnly(key, id)
	case db.HintWrite:
		return d.lockWrite(key, id)
	default:
		return nil, fmt.Errorf("%w: unknown intent %d", db.ErrInvalidArgument, hint)
	}
}

// Unlock releases a reference. For write references the document is
// persisted first and then becomes the cached version of the object. The
// reference is consumed even if persisting fails, a second Unlock fails with
// db.ErrInvalidArgument.
func (d *Database) Unlock(ref *Ref) error {
	if ref == nil {
		return fmt.Errorf("%w: nil reference", db.ErrInvalidArgument)
	}
	if !ref.consumed.CompareAndSwap(false, true) {
		return fmt.Errorf("%w: reference to %s was already unlocked", db.ErrInvalidArgument, strings.Join(ref.key, "/"))
	}
	doc := ref.doc
	ref.doc = nil

	if ref.hint == db.HintReadOnly {
		return nil
	}

	if d.closed.Load() {
		_ = ref.handle.Release()
		return db.ErrClosed
	}

	// the cache keeps its own canonical copy, the caller may still hold doc
	doc, err := db.Normalize(doc)
	if err != nil {
		_ = ref.handle.Release()
		d.metrics.unlockErrors.Inc()
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	storeErr := ref.handle.Store(doc)
	releaseErr := ref.handle.Release()
	if err := errors.Join(storeErr, releaseErr); err != nil {
		d.cache.Remove(ref.id)
		d.metrics.unlockErrors.Inc()
		Logger.Warningf("database %s: failed to persist %s: %v", d.name, strings.Join(ref.key, "/"), err)
		return err
	}

	size := doc.Size()
	d.sizes.AddSample(int(size))
	d.metrics.documentSize.Update(float64(size))
	if evicted := d.cache.Insert(ref.id, doc, size, ref.handle.Modified()); evicted > 0 {
		d.metrics.cacheEvictions.Add(evicted)
	}
	return nil
}

// Delete removes an object. The object must not be locked. Fails with
// db.ErrNotFound if it does not exist.
func (d *Database) Delete(key ...string) error {
	id, err := d.prepare(key)
	if err != nil {
		return err
	}

	d.mu.Lock()
	d.cache.Remove(id)
	d.mu.Unlock()

	if err := d.backend.Delete(key); err != nil {
		return d.countBusy(err)
	}

	// a writer may have put the object back into the cache meanwhile
	d.mu.Lock()
	d.cache.Remove(id)
	d.mu.Unlock()
	return nil
}

// Exists reports whether an object exists. The cache is not consulted.
func (d *Database) Exists(key ...string) (bool, error) {
	if d.closed.Load() {
		return false, db.ErrClosed
	}
	return d.backend.Exists(key)
}

// List returns the sorted names of the objects and namespaces one level
// below prefix. An empty prefix lists the root.
func (d *Database) List(prefix ...string) ([]string, error) {
	if d.closed.Load() {
		return nil, db.ErrClosed
	}
	return d.backend.List(prefix)
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// prepare checks the database state and returns the cache id of key
func (d *Database) prepare(key []string) (string, error) {
	if d.closed.Load() {
		return "", db.ErrClosed
	}
	id, err := pathkey.BinaryKey(key)
	if err != nil {
		return "", err
	}
	return string(id), nil
}

func (d *Database) lockWrite(key []string, id string) (*Ref, error) {
	// may block on serialized writers, so the mutex is not held
	h, err := d.backend.Acquire(key, db.HintWrite)
	if err != nil {
		return nil, d.countBusy(err)
	}

	// the cached document is checked out, Unlock puts it back
	d.mu.Lock()
	doc, modified, cached := d.cache.Lookup(id)
	if cached {
		d.cache.Remove(id)
	}
	d.mu.Unlock()

	if cached {
		d.metrics.cacheHits.Inc()
	} else {
		d.metrics.cacheMisses.Inc()
		if doc, err = h.Load(); err != nil {
			_ = h.Release()
			return nil, err
		}
		modified = h.Modified()
	}

	d.metrics.writeLocks.Inc()
	return &Ref{key: key, id: id, hint: db.HintWrite, doc: doc, modified: modified, handle: h}, nil
}

func (d *Database) lockReadOnly(key []string, id string) (*Ref, error) {
	d.mu.Lock()
	doc, modified, cached := d.cache.Lookup(id)
	if cached {
		doc = doc.Clone()
	}
	d.mu.Unlock()

	d.metrics.readLocks.Inc()
	if cached {
		d.metrics.cacheHits.Inc()
		return &Ref{key: key, id: id, hint: db.HintReadOnly, doc: doc, modified: modified}, nil
	}

	// read-only documents are not cached, only written documents are
	d.metrics.cacheMisses.Inc()
	h, err := d.backend.Acquire(key, db.HintReadOnly)
	if err != nil {
		return nil, d.countBusy(err)
	}
	doc, err = h.Load()
	_ = h.Release()
	if err != nil {
		return nil, err
	}
	return &Ref{key: key, id: id, hint: db.HintReadOnly, doc: doc, modified: h.Modified()}, nil
}

// countBusy records busy errors in the metrics and returns err unchanged
func (d *Database) countBusy(err error) error {
	if errors.Is(err, db.ErrBusy) {
		d.metrics.busy.Inc()
	}
	return err
}
