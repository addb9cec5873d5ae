// Package db provides the standardized interface for storage backends of a
// document database. Objects are addressed by hierarchical keys (a list of
// path segments) and hold exactly one JSON object document each.
//
// The package focuses on:
//   - A unified Backend interface for object operations
//   - Explicit lock intents (Hint) and per-object handles (Handle)
//   - Feature discovery through capability flags
//   - A sentinel error taxonomy shared by all layers
//
// Key Components:
//
//   - Backend Interface: The core interface that all storage backends must
//     satisfy. It provides Create, Acquire, Delete, Exists and List as well as
//     metadata retrieval (GetInfo).
//
//   - Handle Interface: The backend's state for one locked object. A handle
//     loads and stores the object's document and releases the backend's
//     exclusivity. Handles returned for HintReadOnly never store.
//
//   - Document: A JSON object tree with helpers for decoding, encoding,
//     cloning and size estimation.
//
//   - Errors: ErrNotFound, ErrAlreadyExists, ErrBusy, ErrDecode, ErrIO,
//     ErrInvalidArgument and ErrClosed. Backends wrap them with context, so
//     callers compare with errors.Is.
//
//   - Feature Flags: The Feature type defines capability flags that backends
//     advertise through SupportsFeature. FeatureSerializedWriters marks
//     backends whose Acquire may block for write intents instead of failing
//     with ErrBusy.
//
// Related Packages:
//
// The pathkey package (github.com/ValentinKolb/docdb/lib/db/pathkey) maps keys
// to file system paths and binary keys.
//
// The engines/flat package (github.com/ValentinKolb/docdb/lib/db/engines/flat)
// stores one JSON file per object and locks with fcntl record locks.
//
// The engines/bolt package (github.com/ValentinKolb/docdb/lib/db/engines/bolt)
// stores all objects in one embedded bbolt file, ordered by binary key.
//
// The cache package (github.com/ValentinKolb/docdb/lib/db/cache) implements the
// LRU index the database façade keeps documents in.
//
// The testing package (github.com/ValentinKolb/docdb/lib/db/testing) provides
// standardized tests and benchmarks for Backend implementations.
//   - RunBackendTests: Runs a standardized test suite to validate implementations
//   - RunBackendBenchmarks: Provides performance benchmarks for comparing implementations
package db
