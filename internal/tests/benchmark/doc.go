// Package benchmark provides performance benchmarks for the autosave
// engine across storage backends.
//
// Run benchmarks with:
//
//	go test -bench=. -benchmem ./internal/tests/benchmark/...
//
// Run only one backend:
//
//	go test -bench='ProcessTick/sqlite' -benchmem -benchtime=10s ./internal/tests/benchmark/...
//
// Compare results:
//
//	benchstat old.txt new.txt
package benchmark
