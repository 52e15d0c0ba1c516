package feeder

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
)

// Record represents a single row of data with named fields.
type Record map[string]string

// Feeder provides per-iteration data from a dataset with deterministic round-robin selection.
// Implementations must be safe for concurrent use.
type Feeder interface {
	// Next returns the next record from the dataset, or ErrExhausted once
	// every record was handed out and rewind is disabled.
	Next(ctx context.Context) (Record, error)

	// Close releases any resources held by the feeder.
	Close() error

	// Len returns the total number of records in the dataset.
	Len() int
}

// ErrExhausted is returned when a feeder has no more records and rewind is disabled.
var ErrExhausted = errors.New("feeder exhausted: no more records available")

// Open loads path as CSV or JSON depending on its extension.
func Open(path string, rewind bool) (Feeder, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return NewCSVFeeder(path, rewind)
	case ".json":
		return NewJSONFeeder(path, rewind)
	default:
		return nil, fmt.Errorf("unsupported feeder file %q (expected .csv or .json)", path)
	}
}

// roundRobin hands out records in file order, optionally wrapping around.
type roundRobin struct {
	mu      sync.Mutex
	records []Record
	index   int
	rewind  bool
}

func (r *roundRobin) Next(ctx context.Context) (Record, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.index >= len(r.records) {
		if !r.rewind || len(r.records) == 0 {
			return nil, ErrExhausted
		}
		r.index = 0
	}

	record := r.records[r.index]
	r.index++
	return record, nil
}

func (r *roundRobin) Close() error {
	return nil
}

func (r *roundRobin) Len() int {
	return len(r.records)
}
