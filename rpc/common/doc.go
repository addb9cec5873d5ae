// Package common provides the data structures shared by the RPC client and
// server: the message protocol, the configuration structures and the
// logging setup.
//
// Key Components:
//
//   - Message: Core data structure for all RPC communication. Requests carry
//     the document path and the JSON encoded document, responses carry the
//     result plus an error code (a store.RetCode) and message, so that typed
//     errors survive the trip over the network.
//
//   - MessageType: Enumeration of all supported operations (create, get, put,
//     delete, exists, list, info) plus control messages.
//
//   - ServerConfig: Configuration of the server, most importantly the served
//     databases (ServerShard). Databases are addressed by name, ShardID maps
//     a name to the numeric id used on the wire.
//
//   - ClientConfig: Configuration for client components, controlling connection
//     parameters, timeouts, and retry behavior.
//
//   - Logger: Custom logger factory for the dragonboat logger package, giving
//     all docdb packages a consistent "LEVEL | package | message" format.
package common
