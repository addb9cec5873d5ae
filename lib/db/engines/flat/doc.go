// Package flat implements a document backend (db.Backend) that keeps every
// object in its own JSON file below a root directory.
//
// The package focuses on:
//   - A file layout that can be inspected and edited with ordinary tools
//   - Exclusivity between goroutines through an in-process lock table
//     (lib/lockmgr) and between processes through fcntl record locks
//   - Non-blocking locking, a contended object is reported as db.ErrBusy
//
// Key Components:
//
//   - flatImpl: The backend itself. Every key segment becomes one path
//     component, the last one carries the ".json" suffix. Segments are
//     percent escaped (see pathkey.Sanitize), so distinct keys never share a
//     file. Namespaces are plain directories that are created on demand and
//     removed again once their last object was deleted.
//
//   - fileHandle: A write handle. It keeps the object file open and record
//     locked until Release, Store rewrites the file in place.
//
//   - snapshotHandle: A read-only handle. The file is read under a shared
//     record lock which is given up before the handle is returned.
//
// Record locks are owned by the process and are dropped as soon as any file
// descriptor of the file is closed. The lock table therefore never lets two
// goroutines open the same object file at once, except for concurrent
// readers, and a root can only be opened by one backend per process.
//
// Usage Example:
//
//	backend, err := flat.NewFlatDB("/var/lib/docdb", nil)
//	if err != nil {
//	    // Handle error
//	}
//	defer backend.Close()
//
//	handle, err := backend.Acquire([]string{"users", "alice"}, db.HintWrite)
//	if err != nil {
//	    // db.ErrNotFound, db.ErrBusy, ...
//	}
//	doc, _ := handle.Load()
//	doc.Set("age", 31)
//	_ = handle.Store(doc)
//	_ = handle.Release()
package flat
