package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/gofrs/flock"
	lru "github.com/hashicorp/golang-lru/v2"
	bolterrors "go.etcd.io/bbolt/errors"
)

const (
	// MemoryEndpoint selects an in-memory cluster.
	MemoryEndpoint = "mem://"

	// DefaultOpenIndexCache is the number of partition indexes kept open.
	DefaultOpenIndexCache = 16

	// DefaultOpenTimeout bounds the wait for an index another process holds.
	DefaultOpenTimeout = 5 * time.Second

	locksDir     = ".locks"
	metaFileName = "index_meta.json"
)

// BleveCluster is a Backend that keeps one bleve index per partition.
//
// On disk each index lives in <root>/<name>. Index creation is serialised
// across processes with a lock file under <root>/.locks, and open handles are
// kept in a bounded LRU.
type BleveCluster struct {
	mu          sync.Mutex
	root        string
	mem         map[string]bleve.Index
	open        *lru.Cache[string, bleve.Index]
	openTimeout time.Duration
	closed      bool
}

// ClusterOption configures OpenCluster.
type ClusterOption func(*BleveCluster)

// WithOpenTimeout bounds how long opening an index waits for another process
// to release it. Non-positive values keep DefaultOpenTimeout.
func WithOpenTimeout(d time.Duration) ClusterOption {
	return func(c *BleveCluster) {
		if d > 0 {
			c.openTimeout = d
		}
	}
}

var (
	_ Backend  = (*BleveCluster)(nil)
	_ Searcher = (*BleveCluster)(nil)
)

// OpenCluster opens the cluster at endpoint: a directory, a file:// URL or
// MemoryEndpoint. cacheSize bounds the number of open disk indexes.
func OpenCluster(endpoint string, cacheSize int, opts ...ClusterOption) (*BleveCluster, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("cluster endpoint is empty")
	}
	if endpoint == MemoryEndpoint {
		return &BleveCluster{mem: make(map[string]bleve.Index)}, nil
	}

	root := strings.TrimPrefix(endpoint, "file://")
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cluster directory %s: %w", root, err)
	}
	if cacheSize <= 0 {
		cacheSize = DefaultOpenIndexCache
	}
	cache, err := lru.NewWithEvict[string, bleve.Index](cacheSize, func(name string, idx bleve.Index) {
		if err := idx.Close(); err != nil {
			slog.Warn("index_close_failed", slog.String("index", name), slog.String("error", err.Error()))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create index cache: %w", err)
	}
	c := &BleveCluster{root: root, open: cache, openTimeout: DefaultOpenTimeout}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Root returns the cluster directory, or "" for an in-memory cluster.
func (c *BleveCluster) Root() string {
	return c.root
}

// IndexExists reports whether the named index exists.
func (c *BleveCluster) IndexExists(ctx context.Context, name string) (bool, error) {
	if err := validateName(name); err != nil {
		return false, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false, ErrClosed
	}
	return c.existsLocked(name)
}

func (c *BleveCluster) existsLocked(name string) (bool, error) {
	if c.mem != nil {
		_, ok := c.mem[name]
		return ok, nil
	}
	_, err := os.Stat(filepath.Join(c.root, name, metaFileName))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("stat index %s: %w", name, err)
}

// CreateIndex creates the named index from def.
func (c *BleveCluster) CreateIndex(ctx context.Context, name string, def *IndexDefinition) error {
	if err := validateName(name); err != nil {
		return err
	}
	im, err := BuildMapping(def)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}

	if c.mem != nil {
		if _, ok := c.mem[name]; ok {
			return ErrIndexExists
		}
		idx, err := bleve.NewMemOnly(im)
		if err != nil {
			return fmt.Errorf("create index %s: %w", name, err)
		}
		if err := idx.SetInternal([]byte(templateInternalKey), def.Template.Raw()); err != nil {
			_ = idx.Close()
			return fmt.Errorf("store mapping template in %s: %w", name, err)
		}
		c.mem[name] = idx
		return nil
	}

	lockDir := filepath.Join(c.root, locksDir)
	if err := os.MkdirAll(lockDir, 0755); err != nil {
		return fmt.Errorf("create lock directory: %w", err)
	}
	lock := flock.New(filepath.Join(lockDir, name+".lock"))
	locked, err := lock.TryLockContext(ctx, 50*time.Millisecond)
	if err != nil {
		return fmt.Errorf("lock index %s: %w", name, err)
	}
	if !locked {
		return fmt.Errorf("lock index %s: not acquired", name)
	}
	defer func() { _ = lock.Unlock() }()

	exists, err := c.existsLocked(name)
	if err != nil {
		return err
	}
	if exists {
		return ErrIndexExists
	}

	path := filepath.Join(c.root, name)
	// A directory without index_meta.json is left over from an interrupted create.
	if _, err := os.Stat(path); err == nil {
		slog.Warn("index_incomplete_removed", slog.String("index", name), slog.String("path", path))
		if err := os.RemoveAll(path); err != nil {
			return fmt.Errorf("remove incomplete index %s: %w", name, err)
		}
	}

	idx, err := bleve.New(path, im)
	if errors.Is(err, bleve.ErrorIndexPathExists) {
		return ErrIndexExists
	}
	if err != nil {
		return fmt.Errorf("create index %s: %w", name, err)
	}
	if err := idx.SetInternal([]byte(templateInternalKey), def.Template.Raw()); err != nil {
		_ = idx.Close()
		return fmt.Errorf("store mapping template in %s: %w", name, err)
	}
	c.open.Add(name, idx)
	return nil
}

// Bulk indexes items grouped by target index, one batch per index.
func (c *BleveCluster) Bulk(ctx context.Context, items []BulkItem) (*BulkResponse, error) {
	start := time.Now()
	resp := &BulkResponse{Items: make([]BulkItemResult, len(items))}
	if len(items) == 0 {
		return resp, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}

	byIndex := make(map[string][]int)
	var order []string
	for i, item := range items {
		resp.Items[i] = BulkItemResult{Index: item.Index, ID: item.ID, Status: 201}
		if _, ok := byIndex[item.Index]; !ok {
			order = append(order, item.Index)
		}
		byIndex[item.Index] = append(byIndex[item.Index], i)
	}

	for _, name := range order {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		positions := byIndex[name]

		idx, err := c.handleLocked(name)
		if err != nil {
			if !errors.Is(err, ErrIndexNotFound) {
				return nil, err
			}
			for _, pos := range positions {
				resp.Items[pos].Status = 404
				resp.Items[pos].Error = fmt.Sprintf("index_not_found_exception: no such index [%s]", name)
			}
			resp.Errors = true
			continue
		}

		strict := strictMapping(idx)
		batch := idx.NewBatch()
		for _, pos := range positions {
			item := items[pos]
			if item.ID == "" {
				resp.Items[pos].Status = 400
				resp.Items[pos].Error = "action_request_validation_exception: id is missing"
				resp.Errors = true
				continue
			}
			if strict != nil {
				if err := CheckDocument(strict, documentType(item), item.Document); err != nil {
					resp.Items[pos].Status = 400
					resp.Items[pos].Error = "mapper_parsing_exception: " + err.Error()
					resp.Errors = true
					continue
				}
			}
			if err := batch.Index(item.ID, item.Document); err != nil {
				resp.Items[pos].Status = 400
				resp.Items[pos].Error = "mapper_parsing_exception: " + err.Error()
				resp.Errors = true
			}
		}
		if batch.Size() == 0 {
			continue
		}
		if err := idx.Batch(batch); err != nil {
			return nil, fmt.Errorf("bulk write to %s: %w", name, err)
		}
	}

	resp.Took = time.Since(start)
	return resp, nil
}

// ListIndices returns the names matching pattern in lexicographic order.
func (c *BleveCluster) ListIndices(ctx context.Context, pattern string) ([]string, error) {
	if pattern == "" {
		pattern = "*"
	}
	if _, err := filepath.Match(pattern, ""); err != nil {
		return nil, fmt.Errorf("invalid index pattern %q: %w", pattern, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}

	var candidates []string
	if c.mem != nil {
		for name := range c.mem {
			candidates = append(candidates, name)
		}
	} else {
		entries, err := os.ReadDir(c.root)
		if err != nil {
			if os.IsNotExist(err) {
				return []string{}, nil
			}
			return nil, fmt.Errorf("list indices: %w", err)
		}
		for _, e := range entries {
			if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
				continue
			}
			if ok, _ := c.existsLocked(e.Name()); ok {
				candidates = append(candidates, e.Name())
			}
		}
	}

	names := make([]string, 0, len(candidates))
	for _, name := range candidates {
		if ok, _ := filepath.Match(pattern, name); ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// DeleteIndices deletes every named index that exists and reports the rest
// through *MissingIndicesError.
func (c *BleveCluster) DeleteIndices(ctx context.Context, names []string) error {
	for _, name := range names {
		if err := validateName(name); err != nil {
			return err
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}

	var missing []string
	for _, name := range names {
		if c.mem != nil {
			idx, ok := c.mem[name]
			if !ok {
				missing = append(missing, name)
				continue
			}
			_ = idx.Close()
			delete(c.mem, name)
			continue
		}

		exists, err := c.existsLocked(name)
		if err != nil {
			return err
		}
		if !exists {
			missing = append(missing, name)
			continue
		}
		c.open.Remove(name)
		if err := os.RemoveAll(filepath.Join(c.root, name)); err != nil {
			return fmt.Errorf("delete index %s: %w", name, err)
		}
		_ = os.Remove(filepath.Join(c.root, locksDir, name+".lock"))
	}

	if len(missing) > 0 {
		return &MissingIndicesError{Names: missing}
	}
	return nil
}

// Search runs a query string query against one index. An empty query matches
// every document.
func (c *BleveCluster) Search(ctx context.Context, index, queryStr string, limit int) (*SearchResult, error) {
	if err := validateName(index); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 10
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}

	idx, err := c.handleLocked(index)
	if err != nil {
		return nil, err
	}

	var req *bleve.SearchRequest
	if strings.TrimSpace(queryStr) == "" {
		req = bleve.NewSearchRequestOptions(bleve.NewMatchAllQuery(), limit, 0, false)
	} else {
		req = bleve.NewSearchRequestOptions(bleve.NewQueryStringQuery(queryStr), limit, 0, false)
	}
	req.Fields = []string{"*"}

	res, err := idx.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", index, err)
	}

	out := &SearchResult{
		Total: res.Total,
		Took:  res.Took,
		Hits:  make([]SearchHit, 0, len(res.Hits)),
	}
	for _, hit := range res.Hits {
		out.Hits = append(out.Hits, SearchHit{ID: hit.ID, Score: hit.Score, Fields: hit.Fields})
	}
	return out, nil
}

// DocCount returns the number of documents in an index.
func (c *BleveCluster) DocCount(ctx context.Context, index string) (uint64, error) {
	if err := validateName(index); err != nil {
		return 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, ErrClosed
	}
	idx, err := c.handleLocked(index)
	if err != nil {
		return 0, err
	}
	return idx.DocCount()
}

// StoredTemplate returns the mapping document an index was created with.
func (c *BleveCluster) StoredTemplate(ctx context.Context, index string) ([]byte, error) {
	if err := validateName(index); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	idx, err := c.handleLocked(index)
	if err != nil {
		return nil, err
	}
	return idx.GetInternal([]byte(templateInternalKey))
}

// Release closes every open disk index so other processes can open them. The
// cluster stays usable and reopens indexes on demand.
func (c *BleveCluster) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.mem != nil {
		return
	}
	c.open.Purge()
}

// Close closes every open index.
func (c *BleveCluster) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true

	var errs []error
	if c.mem != nil {
		for name, idx := range c.mem {
			if err := idx.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close %s: %w", name, err))
			}
		}
		c.mem = nil
		return errors.Join(errs...)
	}
	c.open.Purge()
	return nil
}

// strictMapping returns the index mapping when the index was created from a
// template that rejects malformed values, and nil otherwise.
func strictMapping(idx bleve.Index) *mapping.IndexMappingImpl {
	raw, err := idx.GetInternal([]byte(templateInternalKey))
	if err != nil || len(raw) == 0 {
		return nil
	}
	tmpl, err := ParseTemplate(raw)
	if err != nil || tmpl.IgnoreMalformed() {
		return nil
	}
	im, ok := idx.Mapping().(*mapping.IndexMappingImpl)
	if !ok {
		return nil
	}
	return im
}

func documentType(item BulkItem) string {
	if item.Type != "" {
		return item.Type
	}
	if c, ok := item.Document.(interface{ BleveType() string }); ok {
		return c.BleveType()
	}
	return ""
}

func (c *BleveCluster) handleLocked(name string) (bleve.Index, error) {
	if c.mem != nil {
		idx, ok := c.mem[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrIndexNotFound, name)
		}
		return idx, nil
	}

	if idx, ok := c.open.Get(name); ok {
		return idx, nil
	}
	exists, err := c.existsLocked(name)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrIndexNotFound, name)
	}
	idx, err := bleve.OpenUsing(filepath.Join(c.root, name), map[string]interface{}{
		"bolt_timeout": c.openTimeout.String(),
	})
	if errors.Is(err, bolterrors.ErrTimeout) {
		return nil, fmt.Errorf("%w: %s (waited %s)", ErrIndexBusy, name, c.openTimeout)
	}
	if err != nil {
		return nil, fmt.Errorf("open index %s: %w", name, err)
	}
	c.open.Add(name, idx)
	return idx, nil
}

func validateName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("index name is empty")
	case strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_"):
		return fmt.Errorf("index name %q must not start with '.' or '_'", name)
	case strings.ContainsAny(name, `/\*?"<>| ,#`):
		return fmt.Errorf("index name %q contains an invalid character", name)
	case name != strings.ToLower(name):
		return fmt.Errorf("index name %q must be lowercase", name)
	}
	return nil
}
