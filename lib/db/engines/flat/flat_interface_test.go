package flat

import (
	"testing"

	"github.com/ValentinKolb/docdb/lib/db"
	dbtesting "github.com/ValentinKolb/docdb/lib/db/testing"
)

func Test(t *testing.T) {
	dbtesting.RunBackendTests(t, "FlatDB", func(dir string) (db.Backend, error) {
		return NewFlatDB(dir, nil)
	})
}

func Benchmark(b *testing.B) {
	dbtesting.RunBackendBenchmarks(b, "FlatDB", func(dir string) (db.Backend, error) {
		return NewFlatDB(dir, nil)
	})
}
