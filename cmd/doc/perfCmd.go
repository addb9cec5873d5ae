package doc

import (
	"encoding/csv"
	"errors"
	"fmt"
	"log"
	"math"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/ValentinKolb/docdb/cmd/util"
	"github.com/ValentinKolb/docdb/lib/db"
	"github.com/ValentinKolb/docdb/rpc/common"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	perfTestCmd = &cobra.Command{
		Use:     "perf",
		Short:   "Performance testing tool for docdb servers",
		Long:    "",
		RunE:    run,
		PreRunE: processPerfConfig,
	}
	perfKeyPrefix        = "__test"
	perfLargeValueSizeKB = 100
	perfNumThreads       = 10
	perfKeySpread        = 100
	perfSkip             = make([]string, 0)
)

// benchmark is one named benchmark of the perf command
type benchmark struct {
	name string
	// prepare is called with every key before the benchmark starts
	prepare bool
	// op is the operation measured, i counts the calls of one goroutine
	op func(key []string, i int) error
}

func init() {
	// add flags
	key := "skip"
	perfTestCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. put,get)"))
	key = "threads"
	perfTestCmd.Flags().Int(key, 10, util.WrapString("Number of threads to use for the benchmark"))
	key = "large-value-size"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How large the document for the put-large test should be (in KB)"))
	key = "keys"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How many different keys to use for the tests"))
	key = "csv"
	perfTestCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// Read the configuration from the command line flags and environment variables
	perfLargeValueSizeKB = viper.GetInt("large-value-size")
	perfKeySpread = max(viper.GetInt("keys"), 1)
	perfNumThreads = max(viper.GetInt("threads"), 1)
	perfSkip = util.SplitList(viper.GetString("skip"))

	return nil
}

func run(_ *cobra.Command, _ []string) error {

	fmt.Println("Performance testing tool for docdb servers")

	// Print configuration
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println(util.GetClientConfig().String())
	fmt.Printf("Database: %s\n", util.GetDatabaseName())
	fmt.Printf("Threads: %d\n", perfNumThreads)
	fmt.Println()

	fmt.Println("staring tests...")

	smallDoc := db.Document{"value": "test", "n": 1}
	largeDoc := db.Document{"value": strings.Repeat("x", perfLargeValueSizeKB*1024)}

	benchmarks := []benchmark{
		{name: "put", op: func(key []string, _ int) error {
			return rpcStore.Put(key, smallDoc)
		}},
		{name: "put-large", op: func(key []string, _ int) error {
			return rpcStore.Put(key, largeDoc)
		}},
		{name: "get", prepare: true, op: func(key []string, _ int) error {
			_, _, err := rpcStore.Get(key)
			return err
		}},
		{name: "delete", prepare: true, op: func(key []string, _ int) error {
			return ignoreNotFound(rpcStore.Delete(key))
		}},
		{name: "exists", prepare: true, op: func(key []string, _ int) error {
			_, err := rpcStore.Exists(key)
			return err
		}},
		{name: "exists-not", op: func(key []string, _ int) error {
			_, err := rpcStore.Exists(append(key, "missing"))
			return err
		}},
		{name: "list", prepare: true, op: func(key []string, _ int) error {
			_, err := rpcStore.List(key[:len(key)-1])
			return err
		}},
		{name: "mixed", prepare: true, op: func(key []string, i int) error {
			switch i % 4 {
			case 0: // put
				return rpcStore.Put(key, smallDoc)
			case 1: // get
				_, _, err := rpcStore.Get(key)
				return err
			case 2: // delete
				return ignoreNotFound(rpcStore.Delete(key))
			default: // exists
				_, err := rpcStore.Exists(key)
				return err
			}
		}},
	}

	// Create results map
	results := make(map[string]testing.BenchmarkResult)

	for _, bm := range benchmarks {
		result := runBenchmark(bm, smallDoc)
		results[bm.name] = result
		printResult(bm.name, result)
	}

	// Write results to csv is specified
	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, results, util.GetClientConfig()); err != nil {
			return fmt.Errorf("failed to export results to CSV: %v", err)
		}
		fmt.Println("Export complete")
	}

	return nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// runBenchmark runs bm in parallel on perfKeySpread keys, the keys are
// removed afterwards
func runBenchmark(bm benchmark, doc db.Document) testing.BenchmarkResult {
	return testing.Benchmark(func(b *testing.B) {
		if shouldSkip(bm.name) {
			return
		}

		// prepare keys
		getKey, iter := getKeys(bm.name)

		if bm.prepare {
			iter(func(k []string) {
				if err := rpcStore.Put(k, doc); err != nil {
					log.Printf("(%s) - error putting key: %v\n", bm.name, err)
				}
			})
		}

		// cleanup
		b.Cleanup(func() {
			iter(func(k []string) {
				if err := ignoreNotFound(rpcStore.Delete(k)); err != nil {
					log.Printf("(%s) - error deleting key: %v\n", bm.name, err)
				}
			})
		})

		b.SetParallelism(perfNumThreads)

		b.ResetTimer()

		b.RunParallel(func(pb *testing.PB) {
			counter := 0
			for pb.Next() {
				if err := bm.op(getKey(counter), counter); err != nil {
					log.Printf("(%s) - error: %v\n", bm.name, err)
				}
				counter++
			}
		})
	})
}

func ignoreNotFound(err error) error {
	if errors.Is(err, db.ErrNotFound) {
		return nil
	}
	return err
}

func shouldSkip(test string) bool {
	// Check if the test is in the skip list
	for _, skip := range perfSkip {
		if test == skip {
			return true
		}
	}
	return false
}

// creates an array of test keys and functions to work with them
func getKeys(prefix string) (func(int) []string, func(func([]string))) {
	keys := make([][]string, perfKeySpread)
	for i := 0; i < perfKeySpread; i++ {
		keys[i] = []string{perfKeyPrefix, prefix, strconv.Itoa(i)}
	}

	// Function to get a key by index (with wraparound). The caller gets its
	// own copy, benchmarks may append to it.
	getKey := func(i int) []string {
		key := keys[i%perfKeySpread]
		return key[:len(key):len(key)]
	}

	// Function to iterate over all keys and apply a function to each
	iterateKeys := func(fn func([]string)) {
		for _, key := range keys {
			fn(key)
		}
	}

	return getKey, iterateKeys
}

// printResult prints the result of a benchmark test in a formatted way
func printResult(test string, result testing.BenchmarkResult) {
	if result.NsPerOp() == 0 {
		fmt.Printf("%-20sskipped\n", test)
		return
	}

	nsPerOp := math.Max(float64(result.NsPerOp()), 1) // prevent division by zero
	opsPerSec := 1.0 / (nsPerOp / 1e9)

	// Print the formatted result
	fmt.Printf("%-20s%.0fns/op (%s/op)\t%.0f ops/sec\n", test, nsPerOp, time.Duration(nsPerOp), opsPerSec)
}

// writeResultsToCSV writes benchmark results to a CSV file
func writeResultsToCSV(csvPath string, results map[string]testing.BenchmarkResult, config *common.ClientConfig) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	// Write header
	header := []string{
		"Test", "NsPerOp", "DurationPerOp", "OpsPerSec", "Skipped",
		"Endpoints", "TimeoutSec", "RetryCount", "ConnectionsPerEndpoint",
		"Database", "Serializer", "Transport",
		"Threads", "LargeValueSizeKB", "Keys Count",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	// Write test results
	for test, result := range results {
		var nsPerOp float64
		var opsPerSec float64
		var skipped string

		if result.NsPerOp() == 0 {
			skipped = "true"
		} else {
			skipped = "false"
			nsPerOp = math.Max(float64(result.NsPerOp()), 1)
			opsPerSec = 1.0 / (nsPerOp / 1e9)
		}

		row := []string{
			test,
			fmt.Sprintf("%.0f", nsPerOp),
			time.Duration(nsPerOp).String(),
			fmt.Sprintf("%.0f", opsPerSec),
			skipped,
			strings.Join(config.Transport.Endpoints, ";"),
			strconv.Itoa(config.TimeoutSecond),
			strconv.Itoa(config.Transport.RetryCount),
			strconv.Itoa(config.Transport.ConnectionsPerEndpoint),
			util.GetDatabaseName(),
			viper.GetString("serializer"),
			viper.GetString("transport"),
			strconv.Itoa(perfNumThreads),
			strconv.Itoa(perfLargeValueSizeKB),
			strconv.Itoa(perfKeySpread),
		}

		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for test %s: %v", test, err)
		}
	}

	return nil
}
