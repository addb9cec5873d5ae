package database

import (
	"fmt"
	"io"

	"github.com/VictoriaMetrics/metrics"
)

// dbMetrics groups the Prometheus metrics of one database. Every database
// owns its own set, labelled with the database name.
type dbMetrics struct {
	set *metrics.Set

	cacheHits      *metrics.Counter
	cacheMisses    *metrics.Counter
	cacheEvictions *metrics.Counter
	busy           *metrics.Counter
	writeLocks     *metrics.Counter
	readLocks      *metrics.Counter
	unlockErrors   *metrics.Counter
	documentSize   *metrics.Histogram
}

func newDBMetrics(name string, d *Database) *dbMetrics {
	set := metrics.NewSet()
	label := func(metric string) string {
		return fmt.Sprintf("%s{db=%q}", metric, name)
	}

	m := &dbMetrics{
		set:            set,
		cacheHits:      set.NewCounter(label("docdb_cache_hits_total")),
		cacheMisses:    set.NewCounter(label("docdb_cache_misses_total")),
		cacheEvictions: set.NewCounter(label("docdb_cache_evictions_total")),
		busy:           set.NewCounter(label("docdb_busy_total")),
		writeLocks:     set.NewCounter(fmt.Sprintf("docdb_locks_total{db=%q,intent=\"write\"}", name)),
		readLocks:      set.NewCounter(fmt.Sprintf("docdb_locks_total{db=%q,intent=\"read\"}", name)),
		unlockErrors:   set.NewCounter(label("docdb_unlock_errors_total")),
		documentSize:   set.NewHistogram(label("docdb_document_size_bytes")),
	}

	set.NewGauge(label("docdb_cache_entries"), func() float64 {
		return float64(d.CacheStats().Entries)
	})
	set.NewGauge(label("docdb_cache_size_bytes"), func() float64 {
		return float64(d.CacheStats().SizeBytes)
	})
	set.NewGauge(label("docdb_cache_max_bytes"), func() float64 {
		return float64(d.CacheStats().MaxBytes)
	})
	return m
}

// WriteMetrics writes the metrics of the database in Prometheus text format.
func (d *Database) WriteMetrics(w io.Writer) {
	d.metrics.set.WritePrometheus(w)
}
