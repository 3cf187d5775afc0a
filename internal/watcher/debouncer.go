package watcher

import (
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Debouncer coalesces object events until the stream has been quiet for the
// window, then emits one event per path, sorted by path:
//   - CREATE + MODIFY = CREATE (the object is still new)
//   - CREATE + DELETE = nothing (the upload was abandoned)
//   - MODIFY + DELETE = DELETE
//   - DELETE + CREATE = CREATE (the object was replaced)
type Debouncer struct {
	window  time.Duration
	pending map[string]ObjectEvent
	mu      sync.Mutex
	output  chan []ObjectEvent
	timer   *time.Timer
	stopped bool
}

// NewDebouncer creates a debouncer with the given quiet window. Events are
// never dropped: while the output is full they stay pending.
func NewDebouncer(window time.Duration) *Debouncer {
	return &Debouncer{
		window:  window,
		pending: make(map[string]ObjectEvent),
		output:  make(chan []ObjectEvent, 10),
	}
}

// Add queues an event and restarts the quiet window.
func (d *Debouncer) Add(event ObjectEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	if existing, ok := d.pending[event.Path]; ok {
		merged, keep := coalesce(existing, event)
		if keep {
			d.pending[event.Path] = merged
		} else {
			delete(d.pending, event.Path)
		}
	} else {
		d.pending[event.Path] = event
	}

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.flush)
}

func coalesce(existing, next ObjectEvent) (ObjectEvent, bool) {
	switch {
	case existing.Operation == OpCreate && next.Operation == OpModify:
		existing.Timestamp = next.Timestamp
		return existing, true
	case existing.Operation == OpCreate && next.Operation == OpDelete:
		return ObjectEvent{}, false
	case existing.Operation == OpDelete && next.Operation != OpDelete:
		next.Operation = OpCreate
		return next, true
	default:
		return next, true
	}
}

func (d *Debouncer) flush() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped || len(d.pending) == 0 {
		return
	}

	events := make([]ObjectEvent, 0, len(d.pending))
	for _, ev := range d.pending {
		events = append(events, ev)
	}
	sort.Slice(events, func(i, j int) bool { return events[i].Path < events[j].Path })

	select {
	case d.output <- events:
		d.pending = make(map[string]ObjectEvent)
	default:
		// Keep everything pending and retry once the consumer catches up.
		slog.Debug("debouncer_output_full", slog.Int("pending", len(events)))
		d.timer = time.AfterFunc(d.window, d.flush)
	}
}

// Output returns the channel of debounced batches.
func (d *Debouncer) Output() <-chan []ObjectEvent {
	return d.output
}

// Stop discards pending events and closes the output channel.
// Safe to call multiple times.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
	close(d.output)
}
