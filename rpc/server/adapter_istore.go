package server

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ValentinKolb/docdb/lib/db"
	"github.com/ValentinKolb/docdb/lib/store"
	"github.com/ValentinKolb/docdb/rpc/common"
)

// NewIStoreServerAdapter creates the adapter translating document requests
// into store.IStore calls
func NewIStoreServerAdapter() IRPCServerAdapter {
	return &iStoreServerAdapterImpl{}
}

type iStoreServerAdapterImpl struct{}

func (adapter *iStoreServerAdapterImpl) Handle(req *common.Message, s store.IStore) *common.Message {
	// Check for nil store
	if s == nil {
		return common.NewErrorResponse(uint64(store.RetCInternalError), "handler: store is nil")
	}

	// Handle different message types
	switch req.MsgType {
	case common.MsgTDocCreate:
		doc, err := decodeRequestDoc(req.Value)
		if err == nil {
			err = s.Create(req.Path, doc)
		}
		return errorResponse(req.MsgType, err)

	case common.MsgTDocPut:
		doc, err := decodeRequestDoc(req.Value)
		if err == nil {
			err = s.Put(req.Path, doc)
		}
		return errorResponse(req.MsgType, err)

	case common.MsgTDocGet:
		doc, ok, err := s.Get(req.Path)
		if err != nil {
			return errorResponse(req.MsgType, err)
		}
		if !ok {
			return common.NewGetResponse(nil, false)
		}
		data, err := db.Encode(doc)
		if err != nil {
			return errorResponse(req.MsgType, err)
		}
		return common.NewGetResponse(data, true)

	case common.MsgTDocDelete:
		return errorResponse(req.MsgType, s.Delete(req.Path))

	case common.MsgTDocExists:
		ok, err := s.Exists(req.Path)
		if err != nil {
			return errorResponse(req.MsgType, err)
		}
		return common.NewExistsResponse(ok)

	case common.MsgTDocList:
		names, err := s.List(req.Path)
		if err != nil {
			return errorResponse(req.MsgType, err)
		}
		if names == nil {
			names = []string{}
		}
		return common.NewListResponse(names)

	case common.MsgTDocInfo:
		info, err := s.GetDBInfo()
		if err != nil {
			return errorResponse(req.MsgType, err)
		}
		data, err := json.Marshal(info)
		if err != nil {
			return errorResponse(req.MsgType, err)
		}
		return common.NewInfoResponse(data)

	default:
		return common.NewErrorResponse(
			uint64(store.RetCUnsupportedOperation),
			fmt.Sprintf("RPC IStoreAdapter - Unsupported message type: %s", req.MsgType),
		)
	}
}

// decodeRequestDoc decodes the document sent with a request, no document
// means an empty one
func decodeRequestDoc(data []byte) (db.Document, error) {
	if len(data) == 0 {
		return db.Document{}, nil
	}
	doc, err := db.Decode(data)
	if err != nil {
		return nil, store.NewError(store.RetCInvalidArgument, err.Error())
	}
	return doc, nil
}

// errorResponse creates a response of type t carrying the store code of err
func errorResponse(t common.MessageType, err error) *common.Message {
	return common.NewResponse(t, errorCode(err), err)
}

func errorCode(err error) uint64 {
	var storeErr *store.Error
	if errors.As(store.FromError(err), &storeErr) {
		return uint64(storeErr.Code)
	}
	return uint64(store.RetCSuccess)
}
