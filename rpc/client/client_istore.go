package client

import (
	"encoding/json"

	"github.com/ValentinKolb/docdb/lib/db"
	"github.com/ValentinKolb/docdb/lib/store"
	"github.com/ValentinKolb/docdb/rpc/common"
	"github.com/ValentinKolb/docdb/rpc/serializer"
	"github.com/ValentinKolb/docdb/rpc/transport"
)

// NewRPCStore creates a new RPC store for the database called name
// The function takes the database name, a config, a transport and a serializer as parameters
// The transport is connected here and closed by RPCStore.Close
func NewRPCStore(
	name string,
	config common.ClientConfig,
	transport transport.IRPCClientTransport,
	serializer serializer.IRPCSerializer,
) (*RPCStore, error) {

	// Connect the transport
	err := transport.Connect(config)
	if err != nil {
		return nil, err
	}

	// Create a new RPC store
	s := RPCStore{
		rpcClientAdapter{
			shardId:    common.ShardID(name),
			config:     config,
			transport:  transport,
			serializer: serializer,
		},
	}

	Logger.Debugf("created rpc store for database %s (shard %d)", name, s.shardId)

	// Return the RPC store
	return &s, nil
}

// RPCStore implements store.IStore by forwarding every call to a docdb server.
//
// Thread-safety: RPCStore is safe for concurrent use.
type RPCStore struct {
	rpcClientAdapter
}

var _ store.IStore = (*RPCStore)(nil)

// Close closes the underlying transport
func (i *RPCStore) Close() error {
	return i.transport.Close()
}

// --------------------------------------------------------------------------
// Interface Methods (docu see the store package in interface.go)
// --------------------------------------------------------------------------

func (i *RPCStore) Create(key []string, doc db.Document) (err error) {
	data, err := encodeDoc(doc)
	if err != nil {
		return err
	}
	req := common.NewCreateRequest(key, data)
	_, err = invokeRPCRequest(i.shardId, req, i.transport, i.serializer)
	return err
}

func (i *RPCStore) Put(key []string, doc db.Document) (err error) {
	data, err := encodeDoc(doc)
	if err != nil {
		return err
	}
	req := common.NewPutRequest(key, data)
	_, err = invokeRPCRequest(i.shardId, req, i.transport, i.serializer)
	return err
}

func (i *RPCStore) Get(key []string) (doc db.Document, loaded bool, err error) {
	req := common.NewGetRequest(key)
	resp, err := invokeRPCRequest(i.shardId, req, i.transport, i.serializer)
	if err != nil {
		return nil, false, err
	}
	if !resp.Ok {
		return nil, false, nil
	}
	doc, err = db.Decode(resp.Value)
	if err != nil {
		return nil, false, store.FromError(err)
	}
	return doc, true, nil
}

func (i *RPCStore) Delete(key []string) (err error) {
	req := common.NewDeleteRequest(key)
	_, err = invokeRPCRequest(i.shardId, req, i.transport, i.serializer)
	return err
}

func (i *RPCStore) Exists(key []string) (exists bool, err error) {
	req := common.NewExistsRequest(key)
	resp, err := invokeRPCRequest(i.shardId, req, i.transport, i.serializer)
	if err != nil {
		return false, err
	}
	return resp.Ok, nil
}

func (i *RPCStore) List(prefix []string) (names []string, err error) {
	req := common.NewListRequest(prefix)
	resp, err := invokeRPCRequest(i.shardId, req, i.transport, i.serializer)
	if err != nil {
		return nil, err
	}
	if resp.Names == nil {
		return []string{}, nil
	}
	return resp.Names, nil
}

func (i *RPCStore) GetDBInfo() (info db.DatabaseInfo, err error) {
	req := common.NewInfoRequest()
	resp, err := invokeRPCRequest(i.shardId, req, i.transport, i.serializer)
	if err != nil {
		return db.DatabaseInfo{}, err
	}
	if err := json.Unmarshal(resp.Value, &info); err != nil {
		return db.DatabaseInfo{}, store.NewError(store.RetCDecodeError, err.Error())
	}
	return info, nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

func encodeDoc(doc db.Document) ([]byte, error) {
	data, err := db.Encode(doc)
	if err != nil {
		return nil, store.NewError(store.RetCInvalidArgument, err.Error())
	}
	return data, nil
}
