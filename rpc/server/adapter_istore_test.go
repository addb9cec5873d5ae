package server

import (
	"testing"

	"github.com/ValentinKolb/docdb/lib/database"
	"github.com/ValentinKolb/docdb/lib/db"
	"github.com/ValentinKolb/docdb/lib/store"
	"github.com/ValentinKolb/docdb/lib/store/lstore"
	"github.com/ValentinKolb/docdb/rpc/common"
	"github.com/google/go-cmp/cmp"
)

func newTestStore(t *testing.T) store.IStore {
	t.Helper()
	d, err := database.Open(t.TempDir(), 1<<20)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	return lstore.NewLocalStore(d)
}

func TestIStoreAdapter(t *testing.T) {
	adapter := NewIStoreServerAdapter()
	s := newTestStore(t)
	key := []string{"users", "alice"}

	t.Run("Create", func(t *testing.T) {
		resp := adapter.Handle(common.NewCreateRequest(key, []byte(`{"age":30}`)), s)
		if resp.Err != "" {
			t.Fatalf("create failed: %s", resp.Err)
		}
		if resp.MsgType != common.MsgTDocCreate {
			t.Errorf("expected response type %s, got %s", common.MsgTDocCreate, resp.MsgType)
		}

		resp = adapter.Handle(common.NewCreateRequest(key, []byte(`{}`)), s)
		if store.RetCode(resp.Code) != store.RetCAlreadyExists {
			t.Errorf("expected code %s, got %s (%s)", store.RetCAlreadyExists, store.RetCode(resp.Code), resp.Err)
		}
	})

	t.Run("Get", func(t *testing.T) {
		resp := adapter.Handle(common.NewGetRequest(key), s)
		if !resp.Ok {
			t.Fatalf("expected document to be found (%s)", resp.Err)
		}
		doc, err := db.Decode(resp.Value)
		if err != nil {
			t.Fatalf("failed to decode document: %v", err)
		}
		if diff := cmp.Diff(db.Document{"age": int64(30)}, doc); diff != "" {
			t.Errorf("document mismatch (-want +got):\n%s", diff)
		}

		resp = adapter.Handle(common.NewGetRequest([]string{"users", "bob"}), s)
		if resp.Ok || resp.Err != "" {
			t.Errorf("expected a miss without error, got ok=%v err=%q", resp.Ok, resp.Err)
		}
	})

	t.Run("PutInvalidDocument", func(t *testing.T) {
		resp := adapter.Handle(common.NewPutRequest(key, []byte(`[1,2]`)), s)
		if store.RetCode(resp.Code) != store.RetCInvalidArgument {
			t.Errorf("expected code %s, got %s", store.RetCInvalidArgument, store.RetCode(resp.Code))
		}
	})

	t.Run("ListExistsDelete", func(t *testing.T) {
		resp := adapter.Handle(common.NewListRequest([]string{"users"}), s)
		if diff := cmp.Diff([]string{"alice"}, resp.Names); diff != "" {
			t.Errorf("list mismatch (-want +got):\n%s", diff)
		}

		resp = adapter.Handle(common.NewDeleteRequest(key), s)
		if resp.Err != "" {
			t.Fatalf("delete failed: %s", resp.Err)
		}
		resp = adapter.Handle(common.NewExistsRequest(key), s)
		if resp.Ok {
			t.Errorf("expected document to be gone")
		}
		resp = adapter.Handle(common.NewDeleteRequest(key), s)
		if store.RetCode(resp.Code) != store.RetCNotFound {
			t.Errorf("expected code %s, got %s", store.RetCNotFound, store.RetCode(resp.Code))
		}
	})

	t.Run("InvalidKey", func(t *testing.T) {
		resp := adapter.Handle(common.NewGetRequest(nil), s)
		if store.RetCode(resp.Code) != store.RetCInvalidArgument {
			t.Errorf("expected code %s, got %s", store.RetCInvalidArgument, store.RetCode(resp.Code))
		}
	})

	t.Run("UnsupportedType", func(t *testing.T) {
		resp := adapter.Handle(&common.Message{MsgType: common.MsgTCustom}, s)
		if resp.MsgType != common.MsgTError {
			t.Errorf("expected error response, got %s", resp.MsgType)
		}
		if store.RetCode(resp.Code) != store.RetCUnsupportedOperation {
			t.Errorf("expected code %s, got %s", store.RetCUnsupportedOperation, store.RetCode(resp.Code))
		}
	})

	t.Run("NilStore", func(t *testing.T) {
		resp := adapter.Handle(common.NewInfoRequest(), nil)
		if resp.MsgType != common.MsgTError {
			t.Errorf("expected error response, got %s", resp.MsgType)
		}
	})
}
