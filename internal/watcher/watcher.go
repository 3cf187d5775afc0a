package watcher

import (
	"path"
	"strings"
	"time"
)

// Operation is the kind of change observed for an object.
type Operation int

const (
	// OpCreate indicates a new object was written.
	OpCreate Operation = iota
	// OpModify indicates an existing object was rewritten.
	OpModify
	// OpDelete indicates an object was removed.
	OpDelete
)

// String returns a human-readable representation of the operation.
func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	default:
		return "UNKNOWN"
	}
}

// ObjectEvent is a change to one object file.
type ObjectEvent struct {
	// Path is the absolute file path.
	Path string

	// Operation is the kind of change.
	Operation Operation

	// Timestamp is when the change was detected.
	Timestamp time.Time
}

// Options configures the watcher.
type Options struct {
	// DebounceWindow is how long an object must be quiet before it is emitted.
	// Default: 500ms
	DebounceWindow time.Duration

	// PollInterval is the scan interval in polling mode.
	// Default: 5s
	PollInterval time.Duration

	// EventBufferSize is the number of batches buffered for the consumer.
	// A full buffer holds further changes back until the consumer catches up.
	// Default: 100
	EventBufferSize int

	// ForcePolling skips fsnotify.
	ForcePolling bool

	// IgnoreSuffixes are file name suffixes of partial uploads.
	// Default: .tmp, .part, ~
	IgnoreSuffixes []string
}

// DefaultOptions returns the default watcher options.
func DefaultOptions() Options {
	return Options{
		DebounceWindow:  500 * time.Millisecond,
		PollInterval:    5 * time.Second,
		EventBufferSize: 100,
		IgnoreSuffixes:  []string{".tmp", ".part", "~"},
	}
}

// WithDefaults returns options with defaults applied for zero values.
func (o Options) WithDefaults() Options {
	defaults := DefaultOptions()
	if o.DebounceWindow <= 0 {
		o.DebounceWindow = defaults.DebounceWindow
	}
	if o.PollInterval <= 0 {
		o.PollInterval = defaults.PollInterval
	}
	if o.EventBufferSize <= 0 {
		o.EventBufferSize = defaults.EventBufferSize
	}
	if o.IgnoreSuffixes == nil {
		o.IgnoreSuffixes = defaults.IgnoreSuffixes
	}
	return o
}

// ignored reports whether a slash-separated path relative to the root is
// hidden or a partial upload.
func (o Options) ignored(rel string) bool {
	for _, part := range strings.Split(rel, "/") {
		if strings.HasPrefix(part, ".") && part != "." {
			return true
		}
	}
	base := path.Base(rel)
	for _, suffix := range o.IgnoreSuffixes {
		if suffix != "" && strings.HasSuffix(base, suffix) {
			return true
		}
	}
	return false
}
