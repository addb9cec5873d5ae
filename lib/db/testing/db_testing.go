package testing

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ValentinKolb/docdb/lib/db"
	"github.com/ValentinKolb/docdb/lib/db/pathkey"
	"github.com/google/go-cmp/cmp"
)

// BackendFactory opens a backend stored in dir. Opening the same dir again
// must yield the previously persisted objects.
type BackendFactory func(dir string) (db.Backend, error)

// RunBackendTests runs a comprehensive test suite for a backend implementation.
func RunBackendTests(t *testing.T, name string, factory BackendFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("CreateLoadStore", func(t *testing.T) {
			testCreateLoadStore(t, open(t, factory))
		})

		t.Run("CreateExisting", func(t *testing.T) {
			testCreateExisting(t, open(t, factory))
		})

		t.Run("AcquireMissing", func(t *testing.T) {
			testAcquireMissing(t, open(t, factory))
		})

		t.Run("ReleaseDiscards", func(t *testing.T) {
			testReleaseDiscards(t, open(t, factory))
		})

		t.Run("Delete", func(t *testing.T) {
			testDelete(t, open(t, factory))
		})

		t.Run("Exists", func(t *testing.T) {
			testExists(t, open(t, factory))
		})

		t.Run("List", func(t *testing.T) {
			testList(t, open(t, factory))
		})

		t.Run("EscapedSegments", func(t *testing.T) {
			testEscapedSegments(t, open(t, factory))
		})

		t.Run("InvalidKeys", func(t *testing.T) {
			testInvalidKeys(t, open(t, factory))
		})

		t.Run("ValueTypes", func(t *testing.T) {
			testValueTypes(t, open(t, factory))
		})

		t.Run("Exclusivity", func(t *testing.T) {
			testExclusivity(t, open(t, factory))
		})

		t.Run("ConcurrentCounter", func(t *testing.T) {
			testConcurrentCounter(t, open(t, factory))
		})

		t.Run("Reopen", func(t *testing.T) {
			testReopen(t, factory)
		})

		t.Run("Closed", func(t *testing.T) {
			testClosed(t, open(t, factory))
		})

		t.Run("Info", func(t *testing.T) {
			testInfo(t, open(t, factory))
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

// open creates a backend in a fresh temporary directory
func open(t testing.TB, factory BackendFactory) db.Backend {
	t.Helper()
	backend, err := factory(t.TempDir())
	if err != nil {
		t.Fatalf("failed to open backend: %v", err)
	}
	return backend
}

// Checks if the backend supports the specified feature
// Skip the test if it is not supported
func requireFeature(t testing.TB, backend db.Backend, feature db.Feature) {
	if !backend.SupportsFeature(feature) {
		t.Skip()
	}
}

// put creates key (or locks it if it exists) and stores doc
func put(t testing.TB, backend db.Backend, key []string, doc db.Document) {
	t.Helper()
	h, err := backend.Create(key)
	if errors.Is(err, db.ErrAlreadyExists) {
		h, err = backend.Acquire(key, db.HintWrite)
	}
	if err != nil {
		t.Fatalf("failed to lock %v: %v", key, err)
	}
	if err := h.Store(doc); err != nil {
		t.Fatalf("failed to store %v: %v", key, err)
	}
	if err := h.Release(); err != nil {
		t.Fatalf("failed to release %v: %v", key, err)
	}
}

// read loads the document of key with a read-only handle
func read(t testing.TB, backend db.Backend, key []string) db.Document {
	t.Helper()
	h, err := backend.Acquire(key, db.HintReadOnly)
	if err != nil {
		t.Fatalf("failed to acquire %v read-only: %v", key, err)
	}
	defer h.Release()
	doc, err := h.Load()
	if err != nil {
		t.Fatalf("failed to load %v: %v", key, err)
	}
	return doc
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testCreateLoadStore(t *testing.T, backend db.Backend) {
	defer backend.Close()

	requireFeature(t, backend, db.FeatureCreate|db.FeatureReadOnlyLock)

	key := []string{"users", "alice"}
	h, err := backend.Create(key)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	doc, err := h.Load()
	if err != nil {
		t.Fatalf("Load after Create failed: %v", err)
	}
	if len(doc) != 0 {
		t.Errorf("Expected a new object to hold an empty document, got %v", doc)
	}

	doc.Set("name", "alice")
	doc.Set("age", int64(30))
	if err := h.Store(doc); err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	if h.Modified().IsZero() {
		t.Errorf("Expected a modification time after Store")
	}
	if err := h.Release(); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if err := h.Release(); err != nil {
		t.Errorf("Release must be idempotent, got %v", err)
	}

	got := read(t, backend, key)
	if diff := cmp.Diff(doc, got); diff != "" {
		t.Errorf("Stored document mismatch (-want +got):\n%s", diff)
	}

	doc.Set("age", int64(31))
	put(t, backend, key, doc)
	if age, _ := read(t, backend, key).Get("age"); age != int64(31) {
		t.Errorf("Expected age 31 after update, got %v", age)
	}
}

func testCreateExisting(t *testing.T, backend db.Backend) {
	defer backend.Close()

	requireFeature(t, backend, db.FeatureCreate)

	key := []string{"dup"}
	put(t, backend, key, db.Document{"v": int64(1)})

	if _, err := backend.Create(key); !errors.Is(err, db.ErrAlreadyExists) {
		t.Errorf("Expected ErrAlreadyExists for an existing object, got %v", err)
	}
	if v, _ := read(t, backend, key).Get("v"); v != int64(1) {
		t.Errorf("Failed Create must not touch the existing document, got v=%v", v)
	}
}

func testAcquireMissing(t *testing.T, backend db.Backend) {
	defer backend.Close()

	requireFeature(t, backend, db.FeatureLock|db.FeatureReadOnlyLock)

	for _, hint := range []db.Hint{db.HintReadOnly, db.HintWrite} {
		if _, err := backend.Acquire([]string{"missing"}, hint); !errors.Is(err, db.ErrNotFound) {
			t.Errorf("Expected ErrNotFound for %s acquire of a missing object, got %v", hint, err)
		}
	}
}

func testReleaseDiscards(t *testing.T, backend db.Backend) {
	defer backend.Close()

	requireFeature(t, backend, db.FeatureLock)

	key := []string{"keep"}
	put(t, backend, key, db.Document{"v": "original"})

	h, err := backend.Acquire(key, db.HintWrite)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	doc, err := h.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	doc.Set("v", "changed")
	if err := h.Release(); err != nil {
		t.Fatalf("Release failed: %v", err)
	}

	if v, _ := read(t, backend, key).Get("v"); v != "original" {
		t.Errorf("Expected unstored changes to be discarded, got %v", v)
	}
}

func testDelete(t *testing.T, backend db.Backend) {
	defer backend.Close()

	requireFeature(t, backend, db.FeatureDelete|db.FeatureExists)

	key := []string{"ns", "gone"}
	put(t, backend, key, db.Document{"x": true})

	if err := backend.Delete(key); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if ok, _ := backend.Exists(key); ok {
		t.Errorf("Expected object to be gone after Delete")
	}
	if err := backend.Delete(key); !errors.Is(err, db.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for a second Delete, got %v", err)
	}
	if _, err := backend.Acquire(key, db.HintWrite); !errors.Is(err, db.ErrNotFound) {
		t.Errorf("Expected ErrNotFound when locking a deleted object, got %v", err)
	}

	// the key can be reused
	put(t, backend, key, db.Document{"x": false})
	if x, _ := read(t, backend, key).Get("x"); x != false {
		t.Errorf("Expected recreated object to hold the new document, got %v", x)
	}
}

func testExists(t *testing.T, backend db.Backend) {
	defer backend.Close()

	requireFeature(t, backend, db.FeatureExists)

	if ok, err := backend.Exists([]string{"a", "b"}); ok || err != nil {
		t.Errorf("Expected missing object, got %v %v", ok, err)
	}

	put(t, backend, []string{"a", "b"}, db.Document{})

	if ok, err := backend.Exists([]string{"a", "b"}); !ok || err != nil {
		t.Errorf("Expected object to exist, got %v %v", ok, err)
	}
	// a namespace is not an object
	if ok, _ := backend.Exists([]string{"a"}); ok {
		t.Errorf("Expected namespace a not to count as an object")
	}
	if _, err := backend.Exists(nil); !errors.Is(err, db.ErrInvalidArgument) {
		t.Errorf("Expected ErrInvalidArgument for an empty key, got %v", err)
	}
}

func testList(t *testing.T, backend db.Backend) {
	defer backend.Close()

	requireFeature(t, backend, db.FeatureList)

	if names, err := backend.List(nil); err != nil || len(names) != 0 {
		t.Errorf("Expected empty root, got %v %v", names, err)
	}

	for _, key := range [][]string{
		{"a", "c"},
		{"a", "b"},
		{"a", "d", "e"},
		{"x"},
		{"a"}, // object and namespace at once
	} {
		put(t, backend, key, db.Document{"key": strings.Join(key, "/")})
	}

	cases := []struct {
		prefix []string
		want   []string
	}{
		{nil, []string{"a", "x"}},
		{[]string{"a"}, []string{"b", "c", "d"}},
		{[]string{"a", "d"}, []string{"e"}},
		{[]string{"x"}, []string{}},
		{[]string{"nope"}, []string{}},
		{[]string{"a", "b", "c"}, []string{}},
	}
	for _, c := range cases {
		got, err := backend.List(c.prefix)
		if err != nil {
			t.Errorf("List(%v) failed: %v", c.prefix, err)
			continue
		}
		if diff := cmp.Diff(c.want, got); diff != "" {
			t.Errorf("List(%v) mismatch (-want +got):\n%s", c.prefix, diff)
		}
	}

	// deleting the last object of a namespace removes the namespace
	if backend.SupportsFeature(db.FeatureDelete) {
		if err := backend.Delete([]string{"a", "d", "e"}); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		got, _ := backend.List([]string{"a"})
		if diff := cmp.Diff([]string{"b", "c"}, got); diff != "" {
			t.Errorf("List after Delete mismatch (-want +got):\n%s", diff)
		}
	}
}

func testEscapedSegments(t *testing.T, backend db.Backend) {
	defer backend.Close()

	requireFeature(t, backend, db.FeatureList)

	keys := [][]string{
		{"we/ird"},
		{"we%2Fird"},
		{".."},
		{"."},
		{"a.json"},
		{"back\\slash"},
		{"ümlaut ✓"},
	}
	for i, key := range keys {
		put(t, backend, key, db.Document{"i": int64(i)})
	}
	for i, key := range keys {
		if v, _ := read(t, backend, key).Get("i"); v != int64(i) {
			t.Errorf("Expected %q to hold i=%d, got %v", key[0], i, v)
		}
	}

	got, err := backend.List(nil)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	want := []string{".", "..", "a.json", "back\\slash", "we%2Fird", "we/ird", "ümlaut ✓"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("List mismatch (-want +got):\n%s", diff)
	}
}

func testInvalidKeys(t *testing.T, backend db.Backend) {
	defer backend.Close()

	tooLong := make([]string, pathkey.MaxSegments+1)
	for i := range tooLong {
		tooLong[i] = "s"
	}

	invalid := map[string][]string{
		"empty key":     {},
		"empty segment": {"a", ""},
		"nul byte":      {"a\x00b"},
		"too long":      tooLong,
	}
	for name, key := range invalid {
		if _, err := backend.Create(key); !errors.Is(err, db.ErrInvalidArgument) {
			t.Errorf("%s: expected ErrInvalidArgument from Create, got %v", name, err)
		}
		if _, err := backend.Acquire(key, db.HintWrite); !errors.Is(err, db.ErrInvalidArgument) {
			t.Errorf("%s: expected ErrInvalidArgument from Acquire, got %v", name, err)
		}
		if err := backend.Delete(key); !errors.Is(err, db.ErrInvalidArgument) {
			t.Errorf("%s: expected ErrInvalidArgument from Delete, got %v", name, err)
		}
	}
}

func testValueTypes(t *testing.T, backend db.Backend) {
	defer backend.Close()

	doc := db.Document{
		"int":    int64(-42),
		"float":  1.5,
		"string": "text",
		"bool":   true,
		"null":   nil,
		"list":   []any{int64(1), "two", 3.25, []any{}},
		"object": map[string]any{"nested": map[string]any{"deep": int64(7)}},
	}
	put(t, backend, []string{"types"}, doc)

	if diff := cmp.Diff(doc, read(t, backend, []string{"types"})); diff != "" {
		t.Errorf("Document mismatch (-want +got):\n%s", diff)
	}
}

func testExclusivity(t *testing.T, backend db.Backend) {
	defer backend.Close()

	requireFeature(t, backend, db.FeatureLock|db.FeatureReadOnlyLock)

	key := []string{"contended"}
	put(t, backend, key, db.Document{"n": int64(0)})

	h, err := backend.Acquire(key, db.HintWrite)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	if !backend.SupportsFeature(db.FeatureSerializedWriters) {
		if _, err := backend.Acquire(key, db.HintWrite); !errors.Is(err, db.ErrBusy) {
			t.Errorf("Expected ErrBusy for a second write lock, got %v", err)
		}
		if _, err := backend.Acquire(key, db.HintReadOnly); !errors.Is(err, db.ErrBusy) {
			t.Errorf("Expected ErrBusy for a read lock while writing, got %v", err)
		}
		if err := h.Release(); err != nil {
			t.Fatalf("Release failed: %v", err)
		}
		h2, err := backend.Acquire(key, db.HintWrite)
		if err != nil {
			t.Fatalf("Expected Acquire to succeed after Release, got %v", err)
		}
		_ = h2.Release()
		return
	}

	// serialized writers wait for the current writer
	acquired := make(chan error, 1)
	go func() {
		h2, err := backend.Acquire(key, db.HintWrite)
		if err == nil {
			err = h2.Release()
		}
		acquired <- err
	}()

	select {
	case err := <-acquired:
		t.Fatalf("Second writer got through while the first held the object: %v", err)
	case <-time.After(100 * time.Millisecond):
	}

	// readers are not blocked by the writer
	if v, _ := read(t, backend, key).Get("n"); v != int64(0) {
		t.Errorf("Expected readers to see the committed document, got n=%v", v)
	}

	if err := h.Release(); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	select {
	case err := <-acquired:
		if err != nil {
			t.Errorf("Second writer failed: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Second writer did not get the object after Release")
	}
}

func testConcurrentCounter(t *testing.T, backend db.Backend) {
	defer backend.Close()

	requireFeature(t, backend, db.FeatureLock)

	key := []string{"counter"}
	put(t, backend, key, db.Document{"n": int64(0)})

	const workers = 8
	const increments = 25

	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < increments; {
				h, err := backend.Acquire(key, db.HintWrite)
				if errors.Is(err, db.ErrBusy) {
					time.Sleep(time.Millisecond)
					continue
				}
				if err != nil {
					errs <- err
					return
				}
				doc, err := h.Load()
				if err == nil {
					n, _ := doc.Get("n")
					doc.Set("n", n.(int64)+1)
					err = h.Store(doc)
				}
				_ = h.Release()
				if err != nil {
					errs <- err
					return
				}
				i++
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("Worker failed: %v", err)
	}
	if n, _ := read(t, backend, key).Get("n"); n != int64(workers*increments) {
		t.Errorf("Expected counter %d, got %v (lost updates)", workers*increments, n)
	}
}

func testReopen(t *testing.T, factory BackendFactory) {
	dir := t.TempDir()

	backend, err := factory(dir)
	if err != nil {
		t.Fatalf("failed to open backend: %v", err)
	}
	for i := 0; i < 10; i++ {
		put(t, backend, []string{"docs", fmt.Sprintf("doc-%d", i)}, db.Document{"i": int64(i)})
	}
	if err := backend.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	backend, err = factory(dir)
	if err != nil {
		t.Fatalf("failed to reopen backend: %v", err)
	}
	defer backend.Close()

	for i := 0; i < 10; i++ {
		if v, _ := read(t, backend, []string{"docs", fmt.Sprintf("doc-%d", i)}).Get("i"); v != int64(i) {
			t.Errorf("Expected doc-%d to survive reopening, got i=%v", i, v)
		}
	}
	if names, _ := backend.List([]string{"docs"}); len(names) != 10 {
		t.Errorf("Expected 10 listed documents after reopening, got %d", len(names))
	}
}

func testClosed(t *testing.T, backend db.Backend) {
	put(t, backend, []string{"k"}, db.Document{})
	if err := backend.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if _, err := backend.Create([]string{"other"}); !errors.Is(err, db.ErrClosed) {
		t.Errorf("Expected ErrClosed from Create, got %v", err)
	}
	if _, err := backend.Acquire([]string{"k"}, db.HintReadOnly); !errors.Is(err, db.ErrClosed) {
		t.Errorf("Expected ErrClosed from Acquire, got %v", err)
	}
	if _, err := backend.List(nil); !errors.Is(err, db.ErrClosed) {
		t.Errorf("Expected ErrClosed from List, got %v", err)
	}
	if err := backend.Close(); err != nil {
		t.Errorf("Close must be idempotent, got %v", err)
	}
}

func testInfo(t *testing.T, backend db.Backend) {
	defer backend.Close()

	put(t, backend, []string{"info"}, db.Document{"payload": strings.Repeat("x", 256)})

	info := backend.GetInfo()
	if info.DbType == "" {
		t.Errorf("Expected a backend type")
	}
	if info.SizeBytes <= 0 {
		t.Errorf("Expected a positive size, got %d", info.SizeBytes)
	}
	if len(info.SupportedFeatures) == 0 {
		t.Errorf("Expected supported features to be reported")
	}
	for _, f := range info.SupportedFeatures {
		if !backend.SupportsFeature(f) {
			t.Errorf("Feature %s is reported but not supported", f)
		}
	}
}
