package index

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/Aman-CERP/eventindexer/internal/store"
)

// fakeBackend records every call and keeps index names in a set.
type fakeBackend struct {
	mu sync.Mutex

	indices map[string]bool

	existsErr error
	createErr error
	bulkErr   error
	listErr   error
	deleteErr error

	// failPositions makes Bulk reject the items at these positions.
	failPositions map[int]bool

	existsCalls int
	createCalls []string
	createDefs  []*store.IndexDefinition
	bulkCalls   [][]store.BulkItem
	deleteCalls [][]string
}

func newFakeBackend(names ...string) *fakeBackend {
	b := &fakeBackend{indices: make(map[string]bool)}
	for _, n := range names {
		b.indices[n] = true
	}
	return b
}

func (b *fakeBackend) IndexExists(ctx context.Context, name string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.existsCalls++
	if b.existsErr != nil {
		return false, b.existsErr
	}
	return b.indices[name], nil
}

func (b *fakeBackend) CreateIndex(ctx context.Context, name string, def *store.IndexDefinition) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.createCalls = append(b.createCalls, name)
	b.createDefs = append(b.createDefs, def)
	if b.createErr != nil {
		return b.createErr
	}
	if b.indices[name] {
		return store.ErrIndexExists
	}
	b.indices[name] = true
	return nil
}

func (b *fakeBackend) Bulk(ctx context.Context, items []store.BulkItem) (*store.BulkResponse, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bulkCalls = append(b.bulkCalls, items)
	if b.bulkErr != nil {
		return nil, b.bulkErr
	}
	resp := &store.BulkResponse{Items: make([]store.BulkItemResult, len(items))}
	for i, item := range items {
		resp.Items[i] = store.BulkItemResult{Index: item.Index, ID: item.ID, Status: 201}
		if b.failPositions[i] {
			resp.Items[i].Status = 400
			resp.Items[i].Error = fmt.Sprintf("mapper_parsing_exception: item %d", i)
			resp.Errors = true
		}
	}
	return resp, nil
}

func (b *fakeBackend) ListIndices(ctx context.Context, pattern string) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.listErr != nil {
		return nil, b.listErr
	}
	names := make([]string, 0, len(b.indices))
	for n := range b.indices {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

func (b *fakeBackend) DeleteIndices(ctx context.Context, names []string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deleteCalls = append(b.deleteCalls, append([]string(nil), names...))
	if b.deleteErr != nil {
		return b.deleteErr
	}
	var missing []string
	for _, n := range names {
		if !b.indices[n] {
			missing = append(missing, n)
			continue
		}
		delete(b.indices, n)
	}
	if len(missing) > 0 {
		return &store.MissingIndicesError{Names: missing}
	}
	return nil
}

func (b *fakeBackend) Close() error { return nil }

var _ store.Backend = (*fakeBackend)(nil)
