// Package partition maps blob object keys to time-partitioned index names
// and parses those names back into creation timestamps.
package partition

import (
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Aman-CERP/eventindexer/internal/errors"
)

const (
	// DefaultPrefix is the literal prefix of every managed partition name.
	DefaultPrefix = "snowplow_events"

	// DefaultBucketTokenLen is the length of the leading token ("run=") the
	// log shipper puts in front of the timestamp directory.
	DefaultBucketTokenLen = 4

	// TimestampLayout is the sortable creation timestamp embedded in names.
	TimestampLayout = "2006-01-02-15-04-05"
)

// ErrUnmanaged is returned by ParseTimestamp for names outside the convention.
var ErrUnmanaged = stderrors.New("not a managed partition")

// Namer derives and parses partition names of the form <prefix>_<timestamp>.
type Namer struct {
	prefix   string
	tokenLen int
}

// NewNamer creates a namer. An empty prefix falls back to DefaultPrefix and a
// negative bucketTokenLen to DefaultBucketTokenLen. A bucketTokenLen of zero
// is kept: the whole directory segment is the timestamp.
func NewNamer(prefix string, bucketTokenLen int) *Namer {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if bucketTokenLen < 0 {
		bucketTokenLen = DefaultBucketTokenLen
	}
	return &Namer{prefix: prefix, tokenLen: bucketTokenLen}
}

// Prefix returns the configured name prefix.
func (n *Namer) Prefix() string {
	return n.prefix
}

// Derive builds the partition name for an object key from the
// second-to-last path segment with the bucket token stripped.
func (n *Namer) Derive(key string) (string, error) {
	segments := strings.Split(key, "/")
	if len(segments) < 2 {
		return "", errors.New(errors.ErrCodeMalformedKey,
			fmt.Sprintf("object key %q has fewer than two path segments", key), nil).
			WithDetail("key", key)
	}

	dir := segments[len(segments)-2]
	if len(dir) <= n.tokenLen {
		return "", errors.New(errors.ErrCodeMalformedKey,
			fmt.Sprintf("object key %q: segment %q is too short to carry a partition timestamp", key, dir), nil).
			WithDetail("key", key).
			WithSuggestion("objects must live under a <token><timestamp>/ directory, e.g. run=2021-01-05-00-00-00/")
	}

	name := n.prefix + "_" + dir[n.tokenLen:]
	if !n.IsManaged(name) {
		slog.Warn("partition_name_unmanaged",
			slog.String("key", key),
			slog.String("partition", name))
	}
	return name, nil
}

// ParseTimestamp returns the creation timestamp embedded in name, in UTC.
// Names without the prefix or with a non-conforming timestamp yield ErrUnmanaged.
func (n *Namer) ParseTimestamp(name string) (time.Time, error) {
	rest, ok := strings.CutPrefix(name, n.prefix+"_")
	if !ok {
		return time.Time{}, ErrUnmanaged
	}

	ts, err := time.ParseInLocation(TimestampLayout, rest, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrUnmanaged, err)
	}
	// Reject anything the layout tolerates but would not reproduce.
	if ts.Format(TimestampLayout) != rest {
		return time.Time{}, ErrUnmanaged
	}
	return ts, nil
}

// IsManaged reports whether name follows the <prefix>_<timestamp> convention.
func (n *Namer) IsManaged(name string) bool {
	_, err := n.ParseTimestamp(name)
	return err == nil
}

// Format returns the managed partition name for t.
func (n *Namer) Format(t time.Time) string {
	return n.prefix + "_" + t.UTC().Format(TimestampLayout)
}
