// Package server implements the RPC server of docdb. It serves one or more
// databases ("shards") over a transport and translates the RPC messages into
// calls of a store.IStore working on each database.
//
// The package focuses on:
//   - Opening the configured databases (flat file or bolt backend)
//   - Routing requests to the database addressed by the shard id
//   - Adapter pattern to decouple the store logic from the RPC mechanisms
//   - Request timing (rcrowley/go-metrics) and database metrics export
//
// Key Components:
//
//   - IRPCServerAdapter: Interface defining the contract for all server adapters,
//     with the Handle method that processes incoming requests against a store.IStore.
//
//   - NewIStoreServerAdapter: Factory function creating an adapter for document
//     operations, translating RPC requests to store.IStore method calls.
//
//   - NewRPCServer: Factory function creating a configured server with the specified
//     transport and serializer mechanisms.
//
// Usage Example:
//
//	// Create server configuration
//	config := common.ServerConfig{
//	  Shards: []common.ServerShard{
//	    {Name: "users", Engine: db.ImplFlat, Dir: "/data/users", CacheBytes: 64 << 20},
//	    {Name: "events", Engine: db.ImplBolt, Dir: "/data/events", Codec: "zstd"},
//	  },
//	  Transport:     common.ServerTransportConfig{Endpoint: "0.0.0.0:8080"},
//	  TimeoutSecond: 5,
//	  LogLevel:      "info",
//	}
//
//	// Create and start the server
//	s := server.NewRPCServer(
//	  config,
//	  tcp.NewTCPServerTransport(),
//	  serializer.NewBinarySerializer(),
//	)
//	defer s.Close()
//
//	if err := s.Serve(); err != nil {
//	  log.Fatalf("Server error: %v", err)
//	}
//
// A shard without an explicit ShardID is served under common.ShardID(Name),
// which is the id clients derive from the database name. Requests for an
// unknown shard are answered with store.RetCInvalidOperation.
//
// If the transport implements transport.IMetricsExporter (the HTTP transport
// does), the Prometheus metrics of all databases are exported through it.
// With MetricsIntervalSecond > 0 the request timers are logged periodically.
//
// Thread Safety:
//
//	The server implementation is thread-safe and can handle concurrent requests
//	across multiple connections. Each request is processed independently.
//	Serve must be called only once, Close may be called from any goroutine.
package server
