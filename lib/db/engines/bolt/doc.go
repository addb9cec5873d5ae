// Package bolt implements a document backend (db.Backend) on top of the
// embedded bbolt key/value store.
//
// All objects of a database live in a single file (data.db) inside the
// database directory. Keys are the binary form of the object key (see
// pathkey.BinaryKey), values carry the modification time followed by the
// JSON document, compressed with the codec the database was created with.
//
// Key Components:
//
//   - boltImpl: The backend. A meta bucket records the codec, the objects
//     bucket holds the documents. Because binary keys sort by segment count
//     first, List scans one cursor range per depth below the prefix and
//     skips depths that hold no keys.
//
//   - txHandle: A write handle owning a writable bbolt transaction. bbolt
//     allows a single writer, so write handles are serialized and Acquire
//     with db.HintWrite waits instead of failing with db.ErrBusy. Release
//     commits the stored document or rolls back.
//
//   - snapshotHandle: A read-only handle holding a copy of the value read in
//     a short read transaction. Readers never wait for writers.
//
// A size limit (Options.MaxBytes) bounds the database file. It is rounded
// down to a size bbolt can map (a power of two up to 1GB, a multiple of 1GB
// above). Stores that could grow the file beyond it fail with db.ErrIO. The
// check is conservative, it does not count pages bbolt could reuse.
package bolt
