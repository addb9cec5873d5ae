package bolt

import (
	"testing"

	"github.com/ValentinKolb/docdb/lib/db"
	"github.com/ValentinKolb/docdb/lib/db/codec"
	dbtesting "github.com/ValentinKolb/docdb/lib/db/testing"
)

func Test(t *testing.T) {
	for _, name := range []string{codec.None, codec.Zstd} {
		dbtesting.RunBackendTests(t, "BoltDB-"+name, func(dir string) (db.Backend, error) {
			return NewBoltDB(dir, &Options{Codec: name, NoSync: true})
		})
	}
}

func Benchmark(b *testing.B) {
	dbtesting.RunBackendBenchmarks(b, "BoltDB", func(dir string) (db.Backend, error) {
		return NewBoltDB(dir, &Options{NoSync: true})
	})
}
