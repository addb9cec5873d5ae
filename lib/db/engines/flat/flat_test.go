package flat

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/ValentinKolb/docdb/lib/db"
	"github.com/google/go-cmp/cmp"
)

func newTestBackend(t *testing.T) (db.Backend, string) {
	t.Helper()
	root := t.TempDir()
	backend, err := NewFlatDB(root, &Options{SyncWrites: true})
	if err != nil {
		t.Fatalf("NewFlatDB failed: %v", err)
	}
	t.Cleanup(func() { backend.Close() })
	return backend, root
}

func store(t *testing.T, backend db.Backend, key []string, doc db.Document) {
	t.Helper()
	h, err := backend.Create(key)
	if err != nil {
		t.Fatalf("Create %v failed: %v", key, err)
	}
	if err := h.Store(doc); err != nil {
		t.Fatalf("Store %v failed: %v", key, err)
	}
	if err := h.Release(); err != nil {
		t.Fatalf("Release %v failed: %v", key, err)
	}
}

func TestFileLayout(t *testing.T) {
	backend, root := newTestBackend(t)

	store(t, backend, []string{"users", "alice"}, db.Document{"age": int64(30)})
	store(t, backend, []string{"a/b", ".."}, db.Document{})

	data, err := os.ReadFile(filepath.Join(root, "users", "alice.json"))
	if err != nil {
		t.Fatalf("expected object file: %v", err)
	}
	if string(data) != `{"age":30}` {
		t.Errorf("unexpected file content %s", data)
	}

	if _, err := os.Stat(filepath.Join(root, "a%2Fb", "%2E%2E.json")); err != nil {
		t.Errorf("expected escaped file name: %v", err)
	}

	if runtime.GOOS != "windows" {
		info, err := os.Stat(filepath.Join(root, "users"))
		if err != nil {
			t.Fatalf("stat failed: %v", err)
		}
		if info.Mode().Perm()&^defaultDirMode != 0 {
			t.Errorf("namespace directory has mode %v", info.Mode().Perm())
		}
	}
}

func TestDeletePrunesEmptyNamespaces(t *testing.T) {
	backend, root := newTestBackend(t)

	store(t, backend, []string{"a", "b", "c"}, db.Document{})
	store(t, backend, []string{"a", "keep"}, db.Document{})

	if err := backend.Delete([]string{"a", "b", "c"}); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "a", "b")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected empty namespace a/b to be removed, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "a")); err != nil {
		t.Errorf("namespace a still holds an object and must stay: %v", err)
	}

	if err := backend.Delete([]string{"a", "keep"}); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "a")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected namespace a to be removed, got %v", err)
	}
	if _, err := os.Stat(root); err != nil {
		t.Errorf("root must never be removed: %v", err)
	}
}

func TestListSkipsForeignFiles(t *testing.T) {
	backend, root := newTestBackend(t)

	store(t, backend, []string{"doc"}, db.Document{})

	for _, name := range []string{"notes.txt", "bad%zz.json", "raw.dot.json"} {
		if err := os.WriteFile(filepath.Join(root, name), []byte("{}"), 0o600); err != nil {
			t.Fatalf("WriteFile failed: %v", err)
		}
	}

	names, err := backend.List(nil)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if diff := cmp.Diff([]string{"doc"}, names); diff != "" {
		t.Errorf("List mismatch (-want +got):\n%s", diff)
	}
}

func TestCorruptFile(t *testing.T) {
	backend, root := newTestBackend(t)

	if err := os.WriteFile(filepath.Join(root, "broken.json"), []byte("[1,2"), 0o600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	for _, hint := range []db.Hint{db.HintReadOnly, db.HintWrite} {
		h, err := backend.Acquire([]string{"broken"}, hint)
		if err != nil {
			t.Fatalf("Acquire failed: %v", err)
		}
		if _, err := h.Load(); !errors.Is(err, db.ErrDecode) {
			t.Errorf("expected ErrDecode for %s load, got %v", hint, err)
		}
		_ = h.Release()
	}
}

func TestBusyObjectCannotBeDeleted(t *testing.T) {
	backend, _ := newTestBackend(t)

	h, err := backend.Create([]string{"held"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := backend.Delete([]string{"held"}); !errors.Is(err, db.ErrBusy) {
		t.Errorf("expected ErrBusy while the object is held, got %v", err)
	}
	if _, err := backend.Create([]string{"held"}); !errors.Is(err, db.ErrAlreadyExists) {
		t.Errorf("expected ErrAlreadyExists while the object is held, got %v", err)
	}
	if err := h.Release(); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if err := backend.Delete([]string{"held"}); err != nil {
		t.Errorf("Delete after Release failed: %v", err)
	}
}

func TestReadOnlyHandleRejectsStore(t *testing.T) {
	backend, _ := newTestBackend(t)

	store(t, backend, []string{"ro"}, db.Document{"v": int64(1)})

	h, err := backend.Acquire([]string{"ro"}, db.HintReadOnly)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if err := h.Store(db.Document{"v": int64(2)}); !errors.Is(err, db.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument when storing through a read-only handle, got %v", err)
	}

	// read-only handles hold no lock
	w, err := backend.Acquire([]string{"ro"}, db.HintWrite)
	if err != nil {
		t.Fatalf("write Acquire next to a read-only handle failed: %v", err)
	}
	_ = w.Release()
	_ = h.Release()
}

func TestRootIsRequired(t *testing.T) {
	if _, err := NewFlatDB("", nil); !errors.Is(err, db.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument for an empty root, got %v", err)
	}
}

func TestRootOpenOncePerProcess(t *testing.T) {
	backend, root := newTestBackend(t)

	if _, err := NewFlatDB(root, nil); !errors.Is(err, db.ErrBusy) {
		t.Fatalf("expected ErrBusy for a second backend on %s, got %v", root, err)
	}

	// the same directory under another name
	link := filepath.Join(t.TempDir(), "link")
	if err := os.Symlink(root, link); err == nil {
		if _, err := NewFlatDB(link, nil); !errors.Is(err, db.ErrBusy) {
			t.Errorf("expected ErrBusy through a symlink, got %v", err)
		}
	}

	if err := backend.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	reopened, err := NewFlatDB(root, nil)
	if err != nil {
		t.Fatalf("expected the root to be free after Close, got %v", err)
	}
	if err := reopened.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}

	// other roots are unaffected
	other, err := NewFlatDB(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("NewFlatDB failed: %v", err)
	}
	other.Close()
}
