// Package store persists test results.
package store

import (
	"context"
	"errors"

	"dockbench/pkg/benchmark"
)

// ErrResultNotFound is returned when no result has the requested id.
var ErrResultNotFound = errors.New("result not found")

// Filter narrows List. Empty fields match everything. SortBy defaults to
// timestamp and Order to descending.
type Filter struct {
	DBImage   string
	Operation string
	RunID     string
	SortBy    string
	Order     string
	Limit     int
}

// ResultStore is an append-only log of test results. Appends are safe for
// concurrent runs and a result is never visible before it is fully written.
type ResultStore interface {
	Append(ctx context.Context, result *benchmark.TestResult) error
	List(ctx context.Context, filter Filter) ([]benchmark.TestResult, error)
	Get(ctx context.Context, id int64) (benchmark.TestResult, error)
	Delete(ctx context.Context, id int64) error
	DistinctImages(ctx context.Context) ([]string, error)
	DistinctOperations(ctx context.Context) ([]string, error)
	Close() error
}
