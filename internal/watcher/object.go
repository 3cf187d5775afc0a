package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Aman-CERP/eventindexer/internal/trigger"
)

// ObjectWatcher reports objects written below a blob root. Objects present
// when watching starts are not reported.
type ObjectWatcher struct {
	root      string
	opts      Options
	fsw       *fsnotify.Watcher
	poller    *poller
	debouncer *Debouncer
	events    chan []ObjectEvent
	errors    chan error
	stopCh    chan struct{}
	mu        sync.RWMutex
	stopped   bool
	started   bool
	closeOnce sync.Once
	discarded atomic.Uint64
}

// New creates a watcher for root, which must be an existing directory.
func New(root string, opts Options) (*ObjectWatcher, error) {
	opts = opts.WithDefaults()

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve absolute path: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("watch root %s: %w", abs, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("watch root %s is not a directory", abs)
	}

	w := &ObjectWatcher{
		root:      abs,
		opts:      opts,
		debouncer: NewDebouncer(opts.DebounceWindow),
		events:    make(chan []ObjectEvent, opts.EventBufferSize),
		errors:    make(chan error, 10),
		stopCh:    make(chan struct{}),
	}

	if !opts.ForcePolling {
		fsw, err := fsnotify.NewWatcher()
		if err == nil {
			w.fsw = fsw
		} else {
			slog.Warn("fsnotify_unavailable", slog.String("error", err.Error()))
		}
	}
	if w.fsw == nil {
		w.poller = newPoller(abs, opts)
	}
	return w, nil
}

// Start watches until ctx is cancelled or Stop is called.
func (w *ObjectWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	w.started = true
	w.mu.Unlock()
	go w.forward(ctx)

	slog.Info("watch_started", slog.String("root", w.root), slog.String("mode", w.Mode()))
	if w.fsw != nil {
		return w.runFsnotify(ctx)
	}
	return w.runPolling(ctx)
}

func (w *ObjectWatcher) runFsnotify(ctx context.Context) error {
	if err := w.addRecursive(w.root, false); err != nil {
		return fmt.Errorf("add directories to watcher: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			_ = w.Stop()
			return ctx.Err()
		case <-w.stopCh:
			return nil
		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handle(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.emitError(err)
		}
	}
}

func (w *ObjectWatcher) runPolling(ctx context.Context) error {
	w.poller.baseline()
	ticker := time.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = w.Stop()
			return ctx.Err()
		case <-w.stopCh:
			return nil
		case <-ticker.C:
			w.poller.poll(w.debouncer.Add)
		}
	}
}

func (w *ObjectWatcher) handle(event fsnotify.Event) {
	rel, err := filepath.Rel(w.root, event.Name)
	if err != nil || rel == "." {
		return
	}
	if w.opts.ignored(filepath.ToSlash(rel)) {
		return
	}

	now := time.Now()
	switch {
	case event.Op&fsnotify.Create != 0:
		info, err := os.Stat(event.Name)
		if err != nil {
			return
		}
		if info.IsDir() {
			// Files may land before the directory watch is in place.
			if err := w.addRecursive(event.Name, true); err != nil {
				w.emitError(err)
			}
			return
		}
		w.debouncer.Add(ObjectEvent{Path: event.Name, Operation: OpCreate, Timestamp: now})
	case event.Op&fsnotify.Write != 0:
		w.debouncer.Add(ObjectEvent{Path: event.Name, Operation: OpModify, Timestamp: now})
	case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		w.debouncer.Add(ObjectEvent{Path: event.Name, Operation: OpDelete, Timestamp: now})
	}
}

// addRecursive watches every directory below dir. With report set, files
// already present are queued as created.
func (w *ObjectWatcher) addRecursive(dir string, report bool) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		rel, _ := filepath.Rel(w.root, path)
		if rel != "." && w.opts.ignored(filepath.ToSlash(rel)) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return w.fsw.Add(path)
		}
		if report {
			w.debouncer.Add(ObjectEvent{Path: path, Operation: OpCreate, Timestamp: time.Now()})
		}
		return nil
	})
}

// forward is the only sender on w.events and closes it on return.
func (w *ObjectWatcher) forward(ctx context.Context) {
	defer w.closeEvents()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case batch, ok := <-w.debouncer.Output():
			if !ok {
				return
			}
			if !w.emitEvents(ctx, batch) {
				return
			}
		}
	}
}

// emitEvents waits for the consumer to take batch. It gives up only when
// watching stops.
func (w *ObjectWatcher) emitEvents(ctx context.Context, batch []ObjectEvent) bool {
	select {
	case w.events <- batch:
		return true
	case <-ctx.Done():
	case <-w.stopCh:
	}
	count := w.discarded.Add(1)
	slog.Warn("watch_batch_discarded",
		slog.Int("batch_size", len(batch)),
		slog.Uint64("total_discarded_batches", count))
	return false
}

func (w *ObjectWatcher) closeEvents() {
	w.closeOnce.Do(func() { close(w.events) })
}

func (w *ObjectWatcher) emitError(err error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.stopped {
		return
	}
	select {
	case w.errors <- err:
	default:
	}
}

// Stop stops watching and closes the event channels. Safe to call multiple
// times. Once started, the events channel closes when forwarding exits.
func (w *ObjectWatcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return nil
	}
	w.stopped = true
	close(w.stopCh)
	w.debouncer.Stop()
	if w.fsw != nil {
		_ = w.fsw.Close()
	}
	if !w.started {
		w.closeEvents()
	}
	close(w.errors)
	return nil
}

// Events returns the channel of debounced batches.
func (w *ObjectWatcher) Events() <-chan []ObjectEvent {
	return w.events
}

// Errors returns non-fatal watcher errors.
func (w *ObjectWatcher) Errors() <-chan error {
	return w.errors
}

// DiscardedBatches returns the number of batches still undelivered when
// watching stopped.
func (w *ObjectWatcher) DiscardedBatches() uint64 {
	return w.discarded.Load()
}

// Mode returns "fsnotify" or "polling".
func (w *ObjectWatcher) Mode() string {
	if w.fsw != nil {
		return "fsnotify"
	}
	return "polling"
}

// Root returns the watched directory.
func (w *ObjectWatcher) Root() string {
	return w.root
}

// Locator maps a file path to the bucket and key of the object it holds.
type Locator interface {
	Locate(path string) (bucket, key string, err error)
}

// Notifications converts a batch into ingest notifications. Deletions and
// files outside any bucket are skipped.
func Notifications(loc Locator, batch []ObjectEvent) []trigger.Notification {
	out := make([]trigger.Notification, 0, len(batch))
	for _, ev := range batch {
		if ev.Operation == OpDelete {
			continue
		}
		bucket, key, err := loc.Locate(ev.Path)
		if err != nil {
			slog.Warn("watch_path_skipped", slog.String("path", ev.Path), slog.String("error", err.Error()))
			continue
		}
		out = append(out, trigger.Notification{Bucket: bucket, Key: key})
	}
	return out
}
