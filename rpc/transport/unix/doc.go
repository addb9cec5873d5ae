// Package unix serves and dials docdb databases over Unix domain sockets,
// for clients on the same host as the server (e.g. the docdb CLI next to a
// local server).
//
// The server replaces a stale socket file on Listen and removes it on
// Close. Everything else comes from the base transport.
package unix
