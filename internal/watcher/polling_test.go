package watcher

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(p *poller) map[string]Operation {
	out := make(map[string]Operation)
	p.poll(func(ev ObjectEvent) { out[ev.Path] = ev.Operation })
	return out
}

func TestPoller_ReportsChangesSinceBaseline(t *testing.T) {
	// Given: a root with one existing object
	root := t.TempDir()
	existing := filepath.Join(root, "events", "old.gz")
	require.NoError(t, os.MkdirAll(filepath.Dir(existing), 0o755))
	require.NoError(t, os.WriteFile(existing, []byte("a"), 0o644))

	p := newPoller(root, DefaultOptions())
	p.baseline()

	// When: nothing changes
	// Then: nothing is reported
	assert.Empty(t, collect(p))

	// When: a new object appears, one grows and a partial upload starts
	created := filepath.Join(root, "events", "new.gz")
	require.NoError(t, os.WriteFile(created, []byte("b"), 0o644))
	require.NoError(t, os.WriteFile(existing, []byte("aa"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "events", "up.gz.tmp"), []byte("c"), 0o644))

	// Then: the new and modified objects are reported
	changes := collect(p)
	assert.Equal(t, map[string]Operation{created: OpCreate, existing: OpModify}, changes)

	// When: an object is removed
	require.NoError(t, os.Remove(created))

	// Then: a delete is reported
	assert.Equal(t, map[string]Operation{created: OpDelete}, collect(p))
}

func TestPoller_SkipsHiddenDirectories(t *testing.T) {
	root := t.TempDir()
	p := newPoller(root, DefaultOptions())
	p.baseline()

	hidden := filepath.Join(root, ".locks", "x.lock")
	require.NoError(t, os.MkdirAll(filepath.Dir(hidden), 0o755))
	require.NoError(t, os.WriteFile(hidden, nil, 0o644))

	assert.Empty(t, collect(p))
}

func TestObjectWatcher_PollingMode(t *testing.T) {
	// Given: a watcher forced into polling mode
	root := t.TempDir()
	w, err := New(root, Options{ForcePolling: true, PollInterval: 30 * time.Millisecond, DebounceWindow: 30 * time.Millisecond})
	require.NoError(t, err)
	assert.Equal(t, "polling", w.Mode())

	done := make(chan error, 1)
	ctx := t.Context()
	go func() { done <- w.Start(ctx) }()
	time.Sleep(100 * time.Millisecond)

	// When: an object is written
	obj := filepath.Join(root, "events", "logs", "part-0001.gz")
	require.NoError(t, os.MkdirAll(filepath.Dir(obj), 0o755))
	require.NoError(t, os.WriteFile(obj, []byte("x"), 0o644))

	// Then: it is reported
	select {
	case batch := <-w.Events():
		require.Len(t, batch, 1)
		assert.Equal(t, obj, batch[0].Path)
		assert.Equal(t, OpCreate, batch[0].Operation)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for object event")
	}

	require.NoError(t, w.Stop())
	require.NoError(t, <-done)
}
