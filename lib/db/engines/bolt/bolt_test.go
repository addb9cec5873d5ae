package bolt

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/ValentinKolb/docdb/lib/db"
	"github.com/ValentinKolb/docdb/lib/db/codec"
	"github.com/google/go-cmp/cmp"
)

func put(t *testing.T, backend db.Backend, key []string, doc db.Document) error {
	t.Helper()
	h, err := backend.Create(key)
	if errors.Is(err, db.ErrAlreadyExists) {
		h, err = backend.Acquire(key, db.HintWrite)
	}
	if err != nil {
		t.Fatalf("failed to lock %v: %v", key, err)
	}
	if err := h.Store(doc); err != nil {
		_ = h.Release()
		return err
	}
	return h.Release()
}

func TestCodecIsKeptOnReopen(t *testing.T) {
	dir := t.TempDir()

	backend, err := NewBoltDB(dir, &Options{Codec: codec.Snappy})
	if err != nil {
		t.Fatalf("NewBoltDB failed: %v", err)
	}
	if !backend.SupportsFeature(db.FeatureCompression) {
		t.Errorf("expected compression support with codec %s", codec.Snappy)
	}
	doc := db.Document{"text": strings.Repeat("compress me ", 100)}
	if err := put(t, backend, []string{"doc"}, doc); err != nil {
		t.Fatalf("put failed: %v", err)
	}
	if err := backend.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// the requested codec is ignored for an existing database
	backend, err = NewBoltDB(dir, &Options{Codec: codec.LZ4})
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer backend.Close()

	meta := backend.GetInfo().Metadata.(map[string]interface{})
	if meta["codec"] != codec.Snappy {
		t.Errorf("expected codec %s after reopening, got %v", codec.Snappy, meta["codec"])
	}

	h, err := backend.Acquire([]string{"doc"}, db.HintReadOnly)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	got, err := h.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if diff := cmp.Diff(doc, got); diff != "" {
		t.Errorf("document mismatch (-want +got):\n%s", diff)
	}
}

func TestUnknownCodec(t *testing.T) {
	if _, err := NewBoltDB(t.TempDir(), &Options{Codec: "brotli"}); !errors.Is(err, db.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument for an unknown codec, got %v", err)
	}
}

func TestSizeLimit(t *testing.T) {
	backend, err := NewBoltDB(t.TempDir(), &Options{MaxBytes: 1 << 20, NoSync: true})
	if err != nil {
		t.Fatalf("NewBoltDB failed: %v", err)
	}
	defer backend.Close()

	huge := db.Document{"blob": strings.Repeat("x", 2<<20)}
	if err := put(t, backend, []string{"huge"}, huge); !errors.Is(err, db.ErrIO) {
		t.Errorf("expected ErrIO when exceeding the size limit, got %v", err)
	}

	// the failed store left the previous (empty) document behind
	h, err := backend.Acquire([]string{"huge"}, db.HintReadOnly)
	if err == nil {
		doc, _ := h.Load()
		if len(doc) != 0 {
			t.Errorf("expected the oversized document to be discarded")
		}
	}

	if err := put(t, backend, []string{"small"}, db.Document{"ok": true}); err != nil {
		t.Errorf("small documents must still fit: %v", err)
	}
}

func TestSizeLimitBoundsFile(t *testing.T) {
	const maxBytes = 100000
	dir := t.TempDir()
	backend, err := NewBoltDB(dir, &Options{MaxBytes: maxBytes, NoSync: true})
	if err != nil {
		t.Fatalf("NewBoltDB failed: %v", err)
	}
	defer backend.Close()

	create := func(key []string, doc db.Document) error {
		h, err := backend.Create(key)
		if err != nil {
			return err
		}
		if err := h.Store(doc); err != nil {
			_ = h.Release()
			return err
		}
		return h.Release()
	}

	doc := db.Document{"blob": strings.Repeat("x", 2<<10)}
	stored := 0
	var storeErr error
	for i := 0; i < 200 && storeErr == nil; i++ {
		if storeErr = create([]string{"docs", strconv.Itoa(i)}, doc); storeErr == nil {
			stored++
		}

		info, err := os.Stat(filepath.Join(dir, FileName))
		if err != nil {
			t.Fatalf("stat failed: %v", err)
		}
		if info.Size() > maxBytes {
			t.Fatalf("data file grew to %d bytes after %d documents (limit %d)", info.Size(), stored, maxBytes)
		}
	}

	if !errors.Is(storeErr, db.ErrIO) {
		t.Errorf("expected ErrIO once the limit is reached, got %v", storeErr)
	}
	if stored == 0 {
		t.Errorf("expected documents to fit below the limit")
	}
}

func TestSizeLimitRounding(t *testing.T) {
	tests := []struct {
		maxBytes int64
		want     int64
	}{
		{0, 0},
		{1 << 15, 1 << 15},
		{100000, 1 << 16},
		{1 << 20, 1 << 20},
		{(1 << 30) - 1, 1 << 29},
		{3<<30 + 5, 3 << 30},
	}
	for _, tt := range tests {
		got, err := sizeLimit(tt.maxBytes)
		if err != nil {
			t.Errorf("sizeLimit(%d) failed: %v", tt.maxBytes, err)
			continue
		}
		if got != tt.want {
			t.Errorf("sizeLimit(%d) = %d, want %d", tt.maxBytes, got, tt.want)
		}
	}

	for _, maxBytes := range []int64{-1, 1000} {
		if _, err := NewBoltDB(t.TempDir(), &Options{MaxBytes: maxBytes}); !errors.Is(err, db.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument for limit %d, got %v", maxBytes, err)
		}
	}
}

func TestListAcrossDepths(t *testing.T) {
	backend, err := NewBoltDB(t.TempDir(), &Options{NoSync: true})
	if err != nil {
		t.Fatalf("NewBoltDB failed: %v", err)
	}
	defer backend.Close()

	deep := []string{"p"}
	for i := 0; i < 40; i++ {
		deep = append(deep, "n")
	}
	for _, key := range [][]string{
		{"p", "z"},
		{"p", "a", "b", "c"},
		deep,
		{"q", "x"},
		{"pp"},
	} {
		if err := put(t, backend, key, db.Document{}); err != nil {
			t.Fatalf("put %v failed: %v", key, err)
		}
	}

	got, err := backend.List([]string{"p"})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if diff := cmp.Diff([]string{"a", "n", "z"}, got); diff != "" {
		t.Errorf("List mismatch (-want +got):\n%s", diff)
	}

	got, _ = backend.List(deep[:40])
	if diff := cmp.Diff([]string{"n"}, got); diff != "" {
		t.Errorf("List of a deep prefix mismatch (-want +got):\n%s", diff)
	}
}

func TestSecondOpenIsBusy(t *testing.T) {
	dir := t.TempDir()
	backend, err := NewBoltDB(dir, nil)
	if err != nil {
		t.Fatalf("NewBoltDB failed: %v", err)
	}
	defer backend.Close()

	if _, err := NewBoltDB(dir, &Options{Timeout: 50 * time.Millisecond}); !errors.Is(err, db.ErrBusy) {
		t.Errorf("expected ErrBusy while another handle holds the file, got %v", err)
	}
}

func TestModificationTime(t *testing.T) {
	backend, err := NewBoltDB(t.TempDir(), &Options{NoSync: true})
	if err != nil {
		t.Fatalf("NewBoltDB failed: %v", err)
	}
	defer backend.Close()

	before := time.Now()
	if err := put(t, backend, []string{"m"}, db.Document{}); err != nil {
		t.Fatalf("put failed: %v", err)
	}

	h, err := backend.Acquire([]string{"m"}, db.HintReadOnly)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if h.Modified().Before(before.Add(-time.Second)) || h.Modified().After(time.Now().Add(time.Second)) {
		t.Errorf("unexpected modification time %v", h.Modified())
	}
}
