// Package perf hosts opt-in benchmarks for tree construction and selection
// changes on large synthetic datasets.
//
// The benchmarks are behind build tags (`perf`, `perf_large`) so they stay
// out of default test runs.
package perf
