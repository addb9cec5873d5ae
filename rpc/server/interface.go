package server

import (
	"github.com/ValentinKolb/docdb/lib/store"
	"github.com/ValentinKolb/docdb/rpc/common"
)

// IRPCServerAdapter is the interface for all RPC server adapters
// It is responsible for handling requests and responses
type IRPCServerAdapter interface {
	// Handle handles a request against store and returns a response.
	// Errors are reported in the response (Code and Err), never returned.
	Handle(req *common.Message, store store.IStore) (resp *common.Message)
}
