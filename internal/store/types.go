// Package store provides the search cluster that partition indexes live in.
//
// The Backend interface covers the index management and bulk operations the
// ingestion pipeline depends on. BleveCluster implements it on top of bleve,
// with one bleve index per partition.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Sentinel errors returned by Backend implementations.
var (
	// ErrIndexExists is returned by CreateIndex when the name is already taken.
	ErrIndexExists = errors.New("index already exists")

	// ErrIndexNotFound is returned when an operation targets a missing index.
	ErrIndexNotFound = errors.New("index not found")

	// ErrIndexBusy is returned when an index stays locked by another process
	// for longer than the cluster's open timeout.
	ErrIndexBusy = errors.New("index is in use by another process")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("cluster is closed")
)

// Backend is the slice of a search cluster the pipeline uses.
type Backend interface {
	// IndexExists reports whether an index with the exact name exists.
	IndexExists(ctx context.Context, name string) (bool, error)

	// CreateIndex creates an index with the given definition. It returns
	// ErrIndexExists when another writer created it first.
	CreateIndex(ctx context.Context, name string, def *IndexDefinition) error

	// Bulk writes items in a single request. Per-item failures are
	// reported in the response, not as an error.
	Bulk(ctx context.Context, items []BulkItem) (*BulkResponse, error)

	// ListIndices returns index names matching a glob pattern, sorted.
	ListIndices(ctx context.Context, pattern string) ([]string, error)

	// DeleteIndices deletes the named indices in one call. Names that do
	// not exist are reported through *MissingIndicesError after the rest
	// have been deleted.
	DeleteIndices(ctx context.Context, names []string) error

	// Close releases resources held by the backend.
	Close() error
}

// Searcher runs ad-hoc queries against a single index.
type Searcher interface {
	Search(ctx context.Context, index, query string, limit int) (*SearchResult, error)
	DocCount(ctx context.Context, index string) (uint64, error)
}

// IndexDefinition is what an index is created with.
type IndexDefinition struct {
	// Template is the mapping document applied to the index.
	Template *Template

	// Fields are the known leaf field names below FieldRoot. Dynamic
	// templates are expanded against them when the backend cannot match
	// field names at write time.
	Fields []string

	// FieldRoot is the object path holding Fields, e.g. "event".
	FieldRoot string
}

// BulkItem is one document in a bulk request.
type BulkItem struct {
	Index    string
	Type     string
	ID       string
	Document any
}

// BulkItemResult is the outcome of one bulk item.
type BulkItemResult struct {
	Index  string
	ID     string
	Status int
	Error  string
}

// Failed reports whether the item was rejected.
func (r BulkItemResult) Failed() bool {
	return r.Status >= 300
}

// BulkResponse is the response to a bulk request. Items are in request order.
type BulkResponse struct {
	Took   time.Duration
	Errors bool
	Items  []BulkItemResult
}

// Failures returns the rejected items.
func (r *BulkResponse) Failures() []BulkItemResult {
	var out []BulkItemResult
	for _, item := range r.Items {
		if item.Failed() {
			out = append(out, item)
		}
	}
	return out
}

// SearchHit is a single search result.
type SearchHit struct {
	ID     string         `json:"id"`
	Score  float64        `json:"score"`
	Fields map[string]any `json:"fields"`
}

// SearchResult is the response to a search.
type SearchResult struct {
	Total uint64        `json:"total"`
	Took  time.Duration `json:"took_ns"`
	Hits  []SearchHit   `json:"hits"`
}

// MissingIndicesError reports names a delete call could not find.
type MissingIndicesError struct {
	Names []string
}

func (e *MissingIndicesError) Error() string {
	return fmt.Sprintf("no such index: [%s]", strings.Join(e.Names, ", "))
}

// Is lets errors.Is(err, ErrIndexNotFound) match.
func (e *MissingIndicesError) Is(target error) bool {
	return target == ErrIndexNotFound
}
