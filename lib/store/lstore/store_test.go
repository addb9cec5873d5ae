package lstore

import (
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/ValentinKolb/docdb/lib/database"
	"github.com/ValentinKolb/docdb/lib/db"
	"github.com/ValentinKolb/docdb/lib/store"
	"github.com/google/go-cmp/cmp"
)

func newStores(t *testing.T) map[string]*LocalStore {
	t.Helper()

	flatDB, err := database.Open(t.TempDir(), 1<<20)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	boltDB, err := database.OpenEmbedded(t.TempDir(), 0)
	if err != nil {
		t.Fatalf("OpenEmbedded failed: %v", err)
	}
	t.Cleanup(func() {
		flatDB.Close()
		boltDB.Close()
	})
	return map[string]*LocalStore{
		"flat": NewLocalStore(flatDB),
		"bolt": NewLocalStore(boltDB),
	}
}

func TestPutGet(t *testing.T) {
	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			key := []string{"users", "alice"}

			if _, ok, err := s.Get(key); ok || err != nil {
				t.Errorf("expected missing document, got ok=%v err=%v", ok, err)
			}

			if err := s.Put(key, db.Document{"age": 30}); err != nil {
				t.Fatalf("Put failed: %v", err)
			}
			if err := s.Put(key, db.Document{"age": 31, "name": "alice"}); err != nil {
				t.Fatalf("second Put failed: %v", err)
			}

			doc, ok, err := s.Get(key)
			if err != nil || !ok {
				t.Fatalf("Get failed: ok=%v err=%v", ok, err)
			}
			want := db.Document{"age": int64(31), "name": "alice"}
			if diff := cmp.Diff(want, doc); diff != "" {
				t.Errorf("document mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCreateAndErrors(t *testing.T) {
	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			key := []string{"once"}
			if err := s.Create(key, db.Document{"v": true}); err != nil {
				t.Fatalf("Create failed: %v", err)
			}

			err := s.Create(key, db.Document{})
			var storeErr *store.Error
			if !errors.As(err, &storeErr) || storeErr.Code != store.RetCAlreadyExists {
				t.Errorf("expected RetCAlreadyExists, got %v", err)
			}
			if !errors.Is(err, db.ErrAlreadyExists) {
				t.Errorf("store errors must match the db sentinels")
			}

			if err := s.Delete([]string{"missing"}); !errors.Is(err, db.ErrNotFound) {
				t.Errorf("expected not found error, got %v", err)
			}
			if err := s.Put([]string{""}, db.Document{}); !errors.Is(err, db.ErrInvalidArgument) {
				t.Errorf("expected invalid argument error, got %v", err)
			}
			if err := s.Put([]string{"bad"}, db.Document{"f": func() {}}); !errors.Is(err, db.ErrInvalidArgument) {
				t.Errorf("expected invalid argument error for an unencodable document, got %v", err)
			}
		})
	}
}

func TestDeleteExistsList(t *testing.T) {
	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			for _, key := range [][]string{{"a", "x"}, {"a", "y"}, {"a", "z", "q"}} {
				if err := s.Put(key, nil); err != nil {
					t.Fatalf("Put %v failed: %v", key, err)
				}
			}

			names, err := s.List([]string{"a"})
			if err != nil {
				t.Fatalf("List failed: %v", err)
			}
			if diff := cmp.Diff([]string{"x", "y", "z"}, names); diff != "" {
				t.Errorf("List mismatch (-want +got):\n%s", diff)
			}

			if err := s.Delete([]string{"a", "x"}); err != nil {
				t.Fatalf("Delete failed: %v", err)
			}
			if ok, _ := s.Exists([]string{"a", "x"}); ok {
				t.Errorf("expected deleted document to be gone")
			}
			if ok, _ := s.Exists([]string{"a", "y"}); !ok {
				t.Errorf("expected remaining document to exist")
			}
		})
	}
}

func TestUpdate(t *testing.T) {
	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			key := []string{"counter"}
			if err := s.Put(key, db.Document{"n": 0}); err != nil {
				t.Fatalf("Put failed: %v", err)
			}

			var wg sync.WaitGroup
			for i := 0; i < 10; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for {
						err := s.Update(key, func(doc db.Document) error {
							n, _ := doc.Get("n")
							doc.Set("n", n.(int64)+1)
							return nil
						})
						if errors.Is(err, db.ErrBusy) {
							continue
						}
						if err != nil {
							t.Errorf("Update failed: %v", err)
						}
						return
					}
				}()
			}
			wg.Wait()

			doc, _, _ := s.Get(key)
			if n, _ := doc.Get("n"); n != int64(10) {
				t.Errorf("expected n=10, got %v", n)
			}

			failure := errors.New("abort")
			err := s.Update(key, func(doc db.Document) error {
				doc.Set("n", int64(-1))
				return failure
			})
			if !errors.Is(err, failure) {
				t.Errorf("expected the callback error, got %v", err)
			}
			doc, _, _ = s.Get(key)
			if n, _ := doc.Get("n"); n != int64(10) {
				t.Errorf("failed update must not persist, got n=%v", n)
			}
		})
	}
}

func TestGetDBInfo(t *testing.T) {
	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			if err := s.Put([]string{"k"}, db.Document{"v": "x"}); err != nil {
				t.Fatalf("Put failed: %v", err)
			}
			info, err := s.GetDBInfo()
			if err != nil {
				t.Fatalf("GetDBInfo failed: %v", err)
			}
			if string(info.DbType) != name {
				t.Errorf("expected backend %s, got %s", name, info.DbType)
			}
		})
	}
}

func TestCreateFailureLeavesNoObject(t *testing.T) {
	d, err := database.OpenEmbedded(t.TempDir(), 1<<17)
	if err != nil {
		t.Fatalf("OpenEmbedded failed: %v", err)
	}
	defer d.Close()
	s := NewLocalStore(d)

	key := []string{"big"}
	huge := db.Document{"blob": strings.Repeat("x", 1<<18)}
	if err := s.Create(key, huge); !errors.Is(err, db.ErrIO) {
		t.Fatalf("expected ErrIO for a document above the size limit, got %v", err)
	}

	if found, err := s.Exists(key); err != nil || found {
		t.Errorf("expected no object after the failed create, found=%t err=%v", found, err)
	}
	if err := s.Create(key, db.Document{"small": true}); err != nil {
		t.Errorf("expected a retry with a small document to succeed, got %v", err)
	}
}
