// Package rpc makes docdb databases available over the network. A server
// serves one or more named databases, clients implement store.IStore on top
// of a connection to that server.
//
// The package is organized into several subpackages:
//
//   - common: Core data structures and utilities used across the RPC system,
//     including the Message protocol, configuration structures, and logging.
//
//   - transport: Network communication abstractions with pluggable implementations
//     (TCP, Unix sockets, HTTP).
//
//   - serializer: Message serialization with multiple format options (Binary, JSON, GOB)
//     for converting between Message objects and byte arrays.
//
//   - client: RPC client implementing store.IStore, allowing applications to
//     work with remote databases transparently.
//
//   - server: RPC server that opens the configured databases and dispatches
//     incoming requests to them.
package rpc
