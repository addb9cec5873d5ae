// Package testing provides standardised tests and benchmarks for
// document backends that satisfy the db.Backend interface.
//
// The package contains:
//   - testing: A test suite for validating conformance to the Backend contract
//     (object lifecycle, listing, key escaping, exclusivity, persistence)
//   - benchmark: Performance tests for the common object operations
//
// Tests that depend on optional features are skipped when a backend does
// not report the feature through SupportsFeature.
//
// Example usage:
//
//	// Creating a factory function for your implementation
//	factory := func(dir string) (db.Backend, error) {
//		return NewMyBackend(dir)
//	}
//
//	// Running the standard test suite
//	testing.RunBackendTests(t, "MyBackend", factory)
//
//	// Running performance benchmarks
//	testing.RunBackendBenchmarks(b, "MyBackend", factory)
package testing
