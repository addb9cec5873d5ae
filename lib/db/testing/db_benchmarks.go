package testing

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/ValentinKolb/docdb/lib/db"
)

// RunBackendBenchmarks runs all benchmarks for a backend implementation
func RunBackendBenchmarks(b *testing.B, name string, factory BackendFactory) {
	b.Run(name, func(b *testing.B) {
		b.Run("Create", func(b *testing.B) {
			benchmarkCreate(b, open(b, factory))
		})

		b.Run("Update", func(b *testing.B) {
			benchmarkUpdate(b, open(b, factory))
		})

		b.Run("UpdateLargeDocument", func(b *testing.B) {
			benchmarkUpdateLarge(b, open(b, factory))
		})

		b.Run("Read", func(b *testing.B) {
			benchmarkRead(b, open(b, factory))
		})

		b.Run("Exists", func(b *testing.B) {
			benchmarkExists(b, open(b, factory))
		})

		b.Run("List", func(b *testing.B) {
			benchmarkList(b, open(b, factory))
		})

		b.Run("MixedUsage", func(b *testing.B) {
			benchmarkMixedUsage(b, open(b, factory))
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

// populate creates n objects below the "bench" namespace
func populate(b *testing.B, backend db.Backend, n int, doc db.Document) [][]string {
	keys := make([][]string, n)
	for i := range keys {
		keys[i] = []string{"bench", fmt.Sprintf("doc-%d", i)}
		put(b, backend, keys[i], doc)
	}
	return keys
}

// update runs one write cycle and reports whether the object was busy
func update(backend db.Backend, key []string, field string, value any) (busy bool, err error) {
	h, err := backend.Acquire(key, db.HintWrite)
	if errors.Is(err, db.ErrBusy) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	defer h.Release()

	doc, err := h.Load()
	if err != nil {
		return false, err
	}
	doc.Set(field, value)
	return false, h.Store(doc)
}

// --------------------------------------------------------------------------
// Benchmark functions
// --------------------------------------------------------------------------

// Benchmark for Create operation
func benchmarkCreate(b *testing.B, backend db.Backend) {
	b.Cleanup(func() {
		backend.Close()
	})

	requireFeature(b, backend, db.FeatureCreate)

	var counter atomic.Int64
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			key := []string{"bench", fmt.Sprintf("doc-%d", counter.Add(1))}
			h, err := backend.Create(key)
			if err != nil {
				b.Errorf("Create failed: %v", err)
				return
			}
			_ = h.Release()
		}
	})
}

// Benchmark for a load-modify-store cycle on existing objects
func benchmarkUpdate(b *testing.B, backend db.Backend) {
	b.Cleanup(func() {
		backend.Close()
	})

	requireFeature(b, backend, db.FeatureLock)

	keys := populate(b, backend, 1000, db.Document{"n": int64(0)})

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		r := rand.New(rand.NewSource(rand.Int63()))
		for pb.Next() {
			if _, err := update(backend, keys[r.Intn(len(keys))], "n", r.Int63()); err != nil {
				b.Errorf("update failed: %v", err)
				return
			}
		}
	})
}

// Benchmark for updates of documents with large field values
func benchmarkUpdateLarge(b *testing.B, backend db.Backend) {
	b.Cleanup(func() {
		backend.Close()
	})

	requireFeature(b, backend, db.FeatureLock)

	keys := populate(b, backend, 100, db.Document{})
	large := strings.Repeat("docdb-", 16*1024)

	b.SetBytes(int64(len(large)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := update(backend, keys[i%len(keys)], "payload", large); err != nil {
			b.Fatalf("update failed: %v", err)
		}
	}
}

// Benchmark for read-only access
func benchmarkRead(b *testing.B, backend db.Backend) {
	b.Cleanup(func() {
		backend.Close()
	})

	requireFeature(b, backend, db.FeatureReadOnlyLock)

	keys := populate(b, backend, 1000, db.Document{"name": "bench", "tags": []any{"a", "b"}})

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		r := rand.New(rand.NewSource(rand.Int63()))
		for pb.Next() {
			h, err := backend.Acquire(keys[r.Intn(len(keys))], db.HintReadOnly)
			if err != nil {
				b.Errorf("Acquire failed: %v", err)
				return
			}
			if _, err := h.Load(); err != nil {
				b.Errorf("Load failed: %v", err)
			}
			_ = h.Release()
		}
	})
}

// Benchmark for Exists on present and missing objects
func benchmarkExists(b *testing.B, backend db.Backend) {
	b.Cleanup(func() {
		backend.Close()
	})

	requireFeature(b, backend, db.FeatureExists)

	keys := populate(b, backend, 500, db.Document{})

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			key := keys[i%len(keys)]
			if i%2 == 1 {
				key = []string{"bench", fmt.Sprintf("missing-%d", i)}
			}
			if _, err := backend.Exists(key); err != nil {
				b.Errorf("Exists failed: %v", err)
				return
			}
			i++
		}
	})
}

// Benchmark for listing a namespace
func benchmarkList(b *testing.B, backend db.Backend) {
	b.Cleanup(func() {
		backend.Close()
	})

	requireFeature(b, backend, db.FeatureList)

	populate(b, backend, 500, db.Document{})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		names, err := backend.List([]string{"bench"})
		if err != nil {
			b.Fatalf("List failed: %v", err)
		}
		if len(names) != 500 {
			b.Fatalf("Expected 500 names, got %d", len(names))
		}
	}
}

// Benchmark with a realistic mix of reads, updates and existence checks
func benchmarkMixedUsage(b *testing.B, backend db.Backend) {
	b.Cleanup(func() {
		backend.Close()
	})

	requireFeature(b, backend, db.FeatureLock|db.FeatureReadOnlyLock|db.FeatureExists)

	keys := populate(b, backend, 1000, db.Document{"n": int64(0)})

	var busy atomic.Int64
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		r := rand.New(rand.NewSource(rand.Int63()))
		for pb.Next() {
			key := keys[r.Intn(len(keys))]
			switch op := r.Intn(10); {
			case op < 6:
				h, err := backend.Acquire(key, db.HintReadOnly)
				if errors.Is(err, db.ErrBusy) {
					busy.Add(1)
					continue
				}
				if err != nil {
					b.Errorf("Acquire failed: %v", err)
					return
				}
				_, _ = h.Load()
				_ = h.Release()
			case op < 9:
				wasBusy, err := update(backend, key, "n", r.Int63())
				if err != nil {
					b.Errorf("update failed: %v", err)
					return
				}
				if wasBusy {
					busy.Add(1)
				}
			default:
				_, _ = backend.Exists(key)
			}
		}
	})
	b.ReportMetric(float64(busy.Load())/float64(b.N), "busy/op")
}
