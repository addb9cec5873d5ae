// Package database provides the document database façade: a Database
// dispatches to one storage backend (flat files or bbolt), keeps recently
// written documents in an LRU cache and hands out exclusive references to
// locked objects.
//
// Objects are addressed by keys made of path segments, every object holds
// one JSON object document (db.Document).
//
// Locking:
//
//	Lock (or LockIntent with db.HintWrite) returns a Ref that is exclusive
//	for the whole database until it is passed to Unlock, which persists the
//	document. How exclusivity is enforced depends on the backend: the flat
//	backend fails with db.ErrBusy when the object is already locked, the
//	bolt backend waits for the current writer.
//
//	LockIntent with db.HintReadOnly returns a private copy of the document.
//	Backend locks are given up right away and Unlock never persists anything.
//
// Caching:
//
//	Documents enter the cache when a write reference is unlocked. A write
//	lock checks the cached document out, a read-only lock copies it. The
//	cache is bounded by the estimated in-memory size of the documents
//	(db.Document.Size) and evicts least recently written documents first.
//	The cache assumes that no other process writes the same storage.
//
// Usage Example:
//
//	docs, err := database.Open("/var/lib/docdb", 16<<20)
//	if err != nil {
//	    // Handle error
//	}
//	defer docs.Close()
//
//	ref, err := docs.Create("users", "alice")
//	if err != nil {
//	    // db.ErrAlreadyExists, ...
//	}
//	ref.Document().Set("age", 30)
//	if err := docs.Unlock(ref); err != nil {
//	    // Handle error
//	}
//
//	names, _ := docs.List("users") // ["alice"]
//
// Metrics of every database (cache hits and misses, evictions, busy locks,
// document sizes) are exposed in Prometheus format by WriteMetrics.
package database
