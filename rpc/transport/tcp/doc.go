// Package tcp serves and dials docdb databases over TCP. It only supplies
// the connectors for the base transport, which owns framing, connection
// pooling and request routing.
//
//   - tcpConnector dials host:port endpoints with the client timeout
//   - serverConnector listens on the configured endpoint
//
// Both apply TCP_NODELAY, keep-alive, linger and the socket buffer sizes of
// their configuration to every connection.
package tcp
