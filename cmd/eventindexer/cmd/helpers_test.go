package cmd

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/eventindexer/internal/blob"
	"github.com/Aman-CERP/eventindexer/internal/partition"
	"github.com/Aman-CERP/eventindexer/internal/schema"
	"github.com/Aman-CERP/eventindexer/internal/store"
)

const testBucket = "events"

// cliEnv is an isolated working area with a config file pointing at it.
type cliEnv struct {
	dir        string
	configPath string
	blobRoot   string
	indexRoot  string
	ledgerPath string
	blobs      *blob.FileStore
}

func newCLIEnv(t *testing.T, retentionDays int) *cliEnv {
	t.Helper()
	for _, name := range []string{
		"ES_END_POINT", "DAYS_TO_KEEP_INDEX",
		"EVENTINDEXER_ENDPOINT", "EVENTINDEXER_RETENTION_DAYS",
		"EVENTINDEXER_BLOB_PROVIDER", "EVENTINDEXER_BLOB_ROOT",
		"EVENTINDEXER_LEDGER_PATH", "EVENTINDEXER_LOG_LEVEL",
	} {
		t.Setenv(name, "")
	}

	dir := t.TempDir()
	e := &cliEnv{
		dir:        dir,
		configPath: filepath.Join(dir, "eventindexer.yaml"),
		blobRoot:   filepath.Join(dir, "blobs"),
		indexRoot:  filepath.Join(dir, "indices"),
		ledgerPath: filepath.Join(dir, "ledger.db"),
	}
	cfg := fmt.Sprintf(`search:
  endpoint: %s
  open_index_cache: 4
  open_timeout: 300ms
retention:
  days_to_keep: %d
blob:
  provider: file
  root: %s
ledger:
  enabled: true
  path: %s
watch:
  debounce: 50ms
logging:
  level: error
`, e.indexRoot, retentionDays, e.blobRoot, e.ledgerPath)
	require.NoError(t, os.WriteFile(e.configPath, []byte(cfg), 0644))

	blobs, err := blob.NewFileStore(e.blobRoot)
	require.NoError(t, err)
	e.blobs = blobs
	return e
}

// run executes the CLI with the env's config and returns stdout.
func (e *cliEnv) run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	return e.runContext(t.Context(), stdin, &bytes.Buffer{}, args...)
}

type outBuffer interface {
	io.Writer
	String() string
}

func (e *cliEnv) runContext(ctx context.Context, stdin string, stdout outBuffer, args ...string) (string, error) {
	opts := &rootOptions{}
	root := newRootCmd(opts)
	root.SetArgs(append([]string{"--config", e.configPath}, args...))
	root.SetOut(stdout)
	root.SetErr(&bytes.Buffer{})
	root.SetIn(strings.NewReader(stdin))
	err := root.ExecuteContext(ctx)
	if terr := opts.teardown(); err == nil {
		err = terr
	}
	return stdout.String(), err
}

// runKey returns an enriched-good object key for a run started at ts.
func runKey(ts time.Time, part string) string {
	return fmt.Sprintf("logs/enriched/good/run=%s/%s", ts.UTC().Format(partition.TimestampLayout), part)
}

// partitionFor returns the partition name a run started at ts lands in.
func partitionFor(ts time.Time) string {
	return partition.NewNamer("", -1).Format(ts.UTC())
}

// eventLine builds a tab-separated event with one value per schema column.
func eventLine(overrides map[string]string) string {
	fields := schema.Snowplow().Fields()
	tokens := make([]string, len(fields))
	for i, f := range fields {
		if v, ok := overrides[f]; ok {
			tokens[i] = v
			continue
		}
		tokens[i] = "v" + f
	}
	return strings.Join(tokens, "\t")
}

// putEvents stores a gzip object holding one line per app id.
func (e *cliEnv) putEvents(t *testing.T, key string, appIDs ...string) {
	t.Helper()
	var lines []string
	for _, id := range appIDs {
		lines = append(lines, eventLine(map[string]string{"app_id": id}))
	}
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(strings.Join(lines, "\n") + "\n"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, e.blobs.Put(context.Background(), testBucket, key, &buf))
}

// cluster opens the env's index directory.
func (e *cliEnv) cluster(t *testing.T) *store.BleveCluster {
	t.Helper()
	c, err := store.OpenCluster(e.indexRoot, 4)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// syncBuffer is a bytes.Buffer safe for a writer and a concurrent reader.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// rewriteConfig replaces old with new in the config file at path.
func rewriteConfig(t *testing.T, path, old, new string) {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), old)
	require.NoError(t, os.WriteFile(path, []byte(strings.Replace(string(data), old, new, 1)), 0644))
}

func countLines(s string) int {
	return len(strings.Split(strings.TrimRight(s, "\n"), "\n"))
}

func containsAll(s string, subs ...string) bool {
	for _, sub := range subs {
		if !strings.Contains(s, sub) {
			return false
		}
	}
	return true
}
