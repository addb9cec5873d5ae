// Package store provides a high-level interface for document storage
// operations with unified error handling. It serves as an abstraction layer
// over the database façade (lib/database) and hides locking and references
// behind plain create, put and get calls.
//
// The package focuses on:
//   - A unified interface (IStore) for document operations, implemented
//     locally and over the network
//   - Structured errors that survive serialization
//
// Key Components:
//
//   - IStore Interface: The core abstraction defining operations for interacting with
//     a document store. All implementations share this common interface, allowing
//     applications to switch between a local database and a remote server without
//     code changes.
//
//   - Error System: A structured error reporting mechanism using typed error codes
//     and descriptive messages. Every code of the db error set has its own RetCode
//     and Error.Is maps it back, so errors.Is(err, db.ErrNotFound) works no matter
//     whether the error came from a local database or from a server.
//
// Implementations:
//
//	- Local Store (lstore): Works directly on a *database.Database. Besides the
//	  IStore methods it offers Update for atomic read-modify-write cycles.
//	  Available in the "github.com/ValentinKolb/docdb/lib/store/lstore" package.
//
//	- RPC Client (rpc/client): Talks to a docdb server. Available in the
//	  "github.com/ValentinKolb/docdb/rpc/client" package.
package store
