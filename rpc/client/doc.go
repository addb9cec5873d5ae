// Package client implements the RPC client of docdb. RPCStore implements the
// store.IStore interface and forwards every call to a docdb server.
//
// The package focuses on:
//   - Transparent RPC access to remote databases
//   - Integration with the transport and serialization layers
//   - Error handling and conversion between RPC and domain errors
//
// Key Components:
//
//   - NewRPCStore: Factory function that creates a client for one database,
//     addressed by its name. The client forwards all operations to remote
//     servers via the configured transport layer.
//
// Usage Example:
//
//	// Configure the client
//	config := common.ClientConfig{
//	  TimeoutSecond: 5,
//	  Transport: common.ClientTransportConfig{
//	    Endpoints:              []string{"localhost:8080"},
//	    RetryCount:             3,
//	    ConnectionsPerEndpoint: 1,
//	  },
//	}
//
//	// Create store client
//	users, _ := client.NewRPCStore("users", config, tcp.NewTCPClientTransport(), serializer.NewBinarySerializer())
//	defer users.Close()
//
//	// Use the store
//	users.Put([]string{"team", "alice"}, db.Document{"age": 30})
//	doc, exists, _ := users.Get([]string{"team", "alice"})
//
// Errors:
//
//	All errors are *store.Error values. The code sent by the server is kept,
//	so errors.Is(err, db.ErrNotFound) and friends work as for a local store.
//	Transport failures are reported as store.RetCIOError.
//
// Performance Considerations:
//
//   - For applications that frequently send large payloads, increasing ConnectionsPerEndpoint
//     can improve throughput by allowing parallel requests.
//
//   - The choice of serializer significantly affects performance. The binary serializer
//     provides the best performance and smallest payload size.
//
// Thread Safety:
//
//	All client implementations are thread-safe and can be used concurrently from
//	multiple goroutines without additional synchronization.
package client
