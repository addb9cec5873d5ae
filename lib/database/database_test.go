package database

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ValentinKolb/docdb/lib/db"
	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

type opener func(t *testing.T, cacheBytes int64) *Database

var backends = map[string]opener{
	"flat": func(t *testing.T, cacheBytes int64) *Database {
		d, err := Open(t.TempDir(), cacheBytes)
		if err != nil {
			t.Fatalf("Open failed: %v", err)
		}
		return d
	},
	"bolt": func(t *testing.T, cacheBytes int64) *Database {
		d, err := OpenEmbedded(t.TempDir(), 0)
		if err != nil {
			t.Fatalf("OpenEmbedded failed: %v", err)
		}
		if err := d.SetMaxCache(cacheBytes); err != nil {
			t.Fatalf("SetMaxCache failed: %v", err)
		}
		return d
	},
}

// forEachBackend runs fn against a fresh database of every backend
func forEachBackend(t *testing.T, cacheBytes int64, fn func(t *testing.T, d *Database)) {
	for name, open := range backends {
		t.Run(name, func(t *testing.T) {
			d := open(t, cacheBytes)
			defer d.Close()
			fn(t, d)
		})
	}
}

func write(t *testing.T, d *Database, doc db.Document, key ...string) {
	t.Helper()
	ref, err := d.Create(key...)
	if errors.Is(err, db.ErrAlreadyExists) {
		ref, err = d.Lock(key...)
	}
	if err != nil {
		t.Fatalf("failed to lock %v: %v", key, err)
	}
	if !ref.SetDocument(doc) {
		t.Fatalf("SetDocument failed for %v", key)
	}
	if err := d.Unlock(ref); err != nil {
		t.Fatalf("Unlock %v failed: %v", key, err)
	}
}

func readDoc(t *testing.T, d *Database, key ...string) db.Document {
	t.Helper()
	ref, err := d.LockIntent(db.HintReadOnly, key...)
	if err != nil {
		t.Fatalf("read-only lock of %v failed: %v", key, err)
	}
	doc := ref.Document()
	if err := d.Unlock(ref); err != nil {
		t.Fatalf("Unlock %v failed: %v", key, err)
	}
	return doc
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func TestRoundTrip(t *testing.T) {
	forEachBackend(t, 1<<20, func(t *testing.T, d *Database) {
		ref, err := d.Create("users", "alice")
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		ref.Document().Set("name", "alice")
		ref.Document().Set("tags", []any{"admin", int64(1)})
		want := ref.Document().Clone()
		if err := d.Unlock(ref); err != nil {
			t.Fatalf("Unlock failed: %v", err)
		}

		for _, hint := range []db.Hint{db.HintWrite, db.HintReadOnly} {
			ref, err := d.LockIntent(hint, "users", "alice")
			if err != nil {
				t.Fatalf("%s lock failed: %v", hint, err)
			}
			if diff := cmp.Diff(want, ref.Document()); diff != "" {
				t.Errorf("%s lock returned a different document (-want +got):\n%s", hint, diff)
			}
			if err := d.Unlock(ref); err != nil {
				t.Errorf("Unlock failed: %v", err)
			}
		}

		// same result with a cold cache
		if err := d.SetMaxCache(0); err != nil {
			t.Fatalf("SetMaxCache failed: %v", err)
		}
		if diff := cmp.Diff(want, readDoc(t, d, "users", "alice")); diff != "" {
			t.Errorf("uncached read returned a different document (-want +got):\n%s", diff)
		}
	})
}

func TestCreateExists(t *testing.T) {
	forEachBackend(t, 1<<20, func(t *testing.T, d *Database) {
		if ok, _ := d.Exists("k"); ok {
			t.Errorf("object must not exist before Create")
		}

		ref, err := d.Create("k")
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		if err := d.Unlock(ref); err != nil {
			t.Fatalf("Unlock failed: %v", err)
		}
		if ok, _ := d.Exists("k"); !ok {
			t.Errorf("object must exist after Create")
		}

		if _, err := d.Create("k"); !errors.Is(err, db.ErrAlreadyExists) {
			t.Errorf("expected ErrAlreadyExists, got %v", err)
		}
		if ok, _ := d.Exists("k"); !ok {
			t.Errorf("object must still exist after a failed Create")
		}
		if doc := readDoc(t, d, "k"); len(doc) != 0 {
			t.Errorf("expected the created object to hold {}, got %v", doc)
		}
	})
}

func TestListSemantics(t *testing.T) {
	forEachBackend(t, 0, func(t *testing.T, d *Database) {
		write(t, d, db.Document{}, "a", "x")
		write(t, d, db.Document{}, "a", "y")
		write(t, d, db.Document{}, "a", "z", "q")

		names, err := d.List("a")
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if diff := cmp.Diff([]string{"x", "y", "z"}, names); diff != "" {
			t.Errorf("List mismatch (-want +got):\n%s", diff)
		}

		root, _ := d.List()
		if diff := cmp.Diff([]string{"a"}, root); diff != "" {
			t.Errorf("root List mismatch (-want +got):\n%s", diff)
		}
	})
}

func TestReadOnlyNonMutation(t *testing.T) {
	forEachBackend(t, 1<<20, func(t *testing.T, d *Database) {
		original := db.Document{"v": "original", "nested": map[string]any{"n": int64(1)}}
		write(t, d, original, "doc")

		// once from the cache, once from the backend
		for _, cacheBytes := range []int64{1 << 20, 0} {
			if err := d.SetMaxCache(cacheBytes); err != nil {
				t.Fatalf("SetMaxCache failed: %v", err)
			}
			ref, err := d.LockIntent(db.HintReadOnly, "doc")
			if err != nil {
				t.Fatalf("read-only lock failed: %v", err)
			}
			ref.Document().Set("v", "changed")
			ref.Document()["nested"].(map[string]any)["n"] = int64(2)
			if err := d.Unlock(ref); err != nil {
				t.Fatalf("Unlock failed: %v", err)
			}

			if diff := cmp.Diff(original, readDoc(t, d, "doc")); diff != "" {
				t.Errorf("cache=%d: read-only changes were persisted (-want +got):\n%s", cacheBytes, diff)
			}
		}
	})
}

func TestDeleteThenLock(t *testing.T) {
	forEachBackend(t, 1<<20, func(t *testing.T, d *Database) {
		write(t, d, db.Document{"v": int64(1)}, "ns", "doc")
		if d.CacheStats().Entries != 1 {
			t.Fatalf("expected the written document to be cached")
		}

		if err := d.Delete("ns", "doc"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if d.CacheStats().Entries != 0 {
			t.Errorf("Delete must evict the cached document")
		}
		if _, err := d.Lock("ns", "doc"); !errors.Is(err, db.ErrNotFound) {
			t.Errorf("expected ErrNotFound after Delete, got %v", err)
		}
		if _, err := d.LockIntent(db.HintReadOnly, "ns", "doc"); !errors.Is(err, db.ErrNotFound) {
			t.Errorf("expected ErrNotFound for a read-only lock after Delete, got %v", err)
		}
		if err := d.Delete("ns", "doc"); !errors.Is(err, db.ErrNotFound) {
			t.Errorf("expected ErrNotFound for a second Delete, got %v", err)
		}
	})
}

func TestCacheBound(t *testing.T) {
	forEachBackend(t, 0, func(t *testing.T, d *Database) {
		const limit = 4096
		if err := d.SetMaxCache(limit); err != nil {
			t.Fatalf("SetMaxCache failed: %v", err)
		}

		for i := 0; i < 100; i++ {
			doc := db.Document{"payload": strings.Repeat("x", i*10)}
			write(t, d, doc, "docs", fmt.Sprintf("%03d", i))
			if stats := d.CacheStats(); stats.SizeBytes > limit {
				t.Fatalf("cache holds %d bytes after insert %d, limit is %d", stats.SizeBytes, i, limit)
			}
		}

		if err := d.SetMaxCache(1024); err != nil {
			t.Fatalf("SetMaxCache failed: %v", err)
		}
		if stats := d.CacheStats(); stats.SizeBytes > 1024 {
			t.Errorf("cache holds %d bytes after shrinking to 1024", stats.SizeBytes)
		}

		// evicted documents are still readable from the backend
		if v, _ := readDoc(t, d, "docs", "000").Get("payload"); v != "" {
			t.Errorf("unexpected payload %v", v)
		}
	})
}

func TestCachedDocumentIsIsolated(t *testing.T) {
	forEachBackend(t, 1<<20, func(t *testing.T, d *Database) {
		ref, err := d.Create("iso")
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		doc := ref.Document()
		doc.Set("v", "persisted")
		if err := d.Unlock(ref); err != nil {
			t.Fatalf("Unlock failed: %v", err)
		}

		// the caller still holds the map it filled
		doc.Set("v", "changed after unlock")
		if v, _ := readDoc(t, d, "iso").Get("v"); v != "persisted" {
			t.Errorf("changes after Unlock leaked into the cache: %v", v)
		}
		if ref.Document() != nil {
			t.Errorf("an unlocked reference must not expose a document")
		}
	})
}

func TestUnlockTwice(t *testing.T) {
	forEachBackend(t, 0, func(t *testing.T, d *Database) {
		ref, err := d.Create("twice")
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		if err := d.Unlock(ref); err != nil {
			t.Fatalf("Unlock failed: %v", err)
		}
		if err := d.Unlock(ref); !errors.Is(err, db.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument for a second Unlock, got %v", err)
		}
		if ref.SetDocument(db.Document{}) {
			t.Errorf("SetDocument on an unlocked reference must fail")
		}
		if err := d.Unlock(nil); !errors.Is(err, db.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument for a nil reference, got %v", err)
		}
	})
}

func TestSetDocument(t *testing.T) {
	forEachBackend(t, 1<<20, func(t *testing.T, d *Database) {
		ref, err := d.Create("set")
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		if ref.SetDocument(nil) {
			t.Errorf("SetDocument(nil) must fail")
		}
		if ref.SetDocument(db.Document{"ch": make(chan int)}) {
			t.Errorf("SetDocument with an unencodable value must fail")
		}
		if !ref.SetDocument(db.Document{"n": 5, "f": float32(0.5)}) {
			t.Fatalf("SetDocument failed")
		}
		if err := d.Unlock(ref); err != nil {
			t.Fatalf("Unlock failed: %v", err)
		}

		want := db.Document{"n": int64(5), "f": 0.5}
		if diff := cmp.Diff(want, readDoc(t, d, "set")); diff != "" {
			t.Errorf("document mismatch (-want +got):\n%s", diff)
		}
	})
}

func TestInvalidKeys(t *testing.T) {
	forEachBackend(t, 0, func(t *testing.T, d *Database) {
		if _, err := d.Create(); !errors.Is(err, db.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument for an empty key, got %v", err)
		}
		if _, err := d.Lock("a", ""); !errors.Is(err, db.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument for an empty segment, got %v", err)
		}
		if _, err := d.LockIntent(db.Hint(9), "a"); !errors.Is(err, db.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument for an unknown intent, got %v", err)
		}
	})
}

func TestFlatExclusivity(t *testing.T) {
	d := backends["flat"](t, 1<<20)
	defer d.Close()

	write(t, d, db.Document{}, "x")
	ref, err := d.Lock("x")
	if err != nil {
		t.Fatalf("Lock failed: %v", err)
	}
	if _, err := d.Lock("x"); !errors.Is(err, db.ErrBusy) {
		t.Errorf("expected ErrBusy for a second write lock, got %v", err)
	}
	if _, err := d.LockIntent(db.HintReadOnly, "x"); !errors.Is(err, db.ErrBusy) {
		t.Errorf("expected ErrBusy for a read-only lock of a locked object, got %v", err)
	}
	if err := d.Unlock(ref); err != nil {
		t.Fatalf("Unlock failed: %v", err)
	}
	ref, err = d.Lock("x")
	if err != nil {
		t.Fatalf("Lock after Unlock failed: %v", err)
	}
	_ = d.Unlock(ref)

	var metrics bytes.Buffer
	d.WriteMetrics(&metrics)
	if !strings.Contains(metrics.String(), "docdb_busy_total") {
		t.Errorf("expected busy counter in metrics output:\n%s", metrics.String())
	}
}

func TestEmbeddedWritersAreSerialized(t *testing.T) {
	d := backends["bolt"](t, 1<<20)
	defer d.Close()

	write(t, d, db.Document{"n": int64(0)}, "x")
	ref, err := d.Lock("x")
	if err != nil {
		t.Fatalf("Lock failed: %v", err)
	}

	second := make(chan *Ref, 1)
	go func() {
		r, err := d.Lock("x")
		if err != nil {
			t.Errorf("second Lock failed: %v", err)
			close(second)
			return
		}
		second <- r
	}()

	select {
	case <-second:
		t.Fatalf("second writer got a reference while the first was live")
	case <-time.After(100 * time.Millisecond):
	}

	ref.Document().Set("n", int64(1))
	if err := d.Unlock(ref); err != nil {
		t.Fatalf("Unlock failed: %v", err)
	}

	select {
	case r, ok := <-second:
		if !ok {
			return
		}
		if n, _ := r.Document().Get("n"); n != int64(1) {
			t.Errorf("second writer must see the first writer's document, got n=%v", n)
		}
		_ = d.Unlock(r)
	case <-time.After(5 * time.Second):
		t.Fatalf("second writer did not get the object")
	}
}

func TestConcurrentIncrements(t *testing.T) {
	forEachBackend(t, 1<<20, func(t *testing.T, d *Database) {
		write(t, d, db.Document{"n": int64(0)}, "counter")

		const workers = 6
		const increments = 20

		var wg sync.WaitGroup
		for w := 0; w < workers; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < increments; {
					ref, err := d.Lock("counter")
					if errors.Is(err, db.ErrBusy) {
						time.Sleep(time.Millisecond)
						continue
					}
					if err != nil {
						t.Errorf("Lock failed: %v", err)
						return
					}
					n, _ := ref.Document().Get("n")
					ref.Document().Set("n", n.(int64)+1)
					if err := d.Unlock(ref); err != nil {
						t.Errorf("Unlock failed: %v", err)
						return
					}
					i++
				}
			}()
		}
		wg.Wait()

		if n, _ := readDoc(t, d, "counter").Get("n"); n != int64(workers*increments) {
			t.Errorf("expected %d, got %v", workers*increments, n)
		}
	})
}

func TestClose(t *testing.T) {
	forEachBackend(t, 1<<20, func(t *testing.T, d *Database) {
		write(t, d, db.Document{}, "k")
		if err := d.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
		if d.CacheStats().Entries != 0 {
			t.Errorf("Close must empty the cache")
		}

		if _, err := d.Lock("k"); !errors.Is(err, db.ErrClosed) {
			t.Errorf("expected ErrClosed from Lock, got %v", err)
		}
		if _, err := d.Exists("k"); !errors.Is(err, db.ErrClosed) {
			t.Errorf("expected ErrClosed from Exists, got %v", err)
		}
		if _, err := d.List(); !errors.Is(err, db.ErrClosed) {
			t.Errorf("expected ErrClosed from List, got %v", err)
		}
		if err := d.SetMaxCache(10); !errors.Is(err, db.ErrClosed) {
			t.Errorf("expected ErrClosed from SetMaxCache, got %v", err)
		}
		if err := d.Close(); !errors.Is(err, db.ErrClosed) {
			t.Errorf("expected ErrClosed from a second Close, got %v", err)
		}
	})
}

func TestInfo(t *testing.T) {
	forEachBackend(t, 1<<20, func(t *testing.T, d *Database) {
		write(t, d, db.Document{"v": strings.Repeat("y", 100)}, "info")
		readDoc(t, d, "info")

		info := d.GetInfo()
		meta, ok := info.Metadata.(map[string]interface{})
		if !ok {
			t.Fatalf("unexpected metadata %T", info.Metadata)
		}
		if meta["cache_hits"].(uint64) < 1 {
			t.Errorf("expected the read to hit the cache, got %v", meta["cache_hits"])
		}
		if docs := meta["documents"].(map[string]interface{}); docs["written"].(int64) != 1 {
			t.Errorf("expected one written document, got %v", docs["written"])
		}
	})
}
