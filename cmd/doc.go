// Package cmd implements the command-line interface of docdb. It provides a
// hierarchical command structure with operations for running the server,
// working with a server as a client and working on a database directory
// directly.
//
// The package is organized into several subpackages:
//
//   - serve: Commands for starting and configuring the docdb server
//   - doc: Document operations against a server (create, get, put, del, exists, ls, info, perf)
//   - local: The same operations directly on a database directory, plus set
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// Every flag can also be set as environment variable DOCDB_<FLAG> (dashes
// become underscores), in a .env or .env.local file or in the file given
// with --config.
//
// See docdb -help for a list of all commands.
package cmd
