// Package decode turns raw, possibly gzip-compressed log objects into a lazy
// stream of structured documents.
package decode

import (
	"bufio"
	stderrors "errors"
	"fmt"
	"io"
	"iter"
	"strings"
	"sync/atomic"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"

	"github.com/Aman-CERP/eventindexer/internal/errors"
	"github.com/Aman-CERP/eventindexer/internal/schema"
)

// DefaultMaxLineBytes bounds a single log line.
const DefaultMaxLineBytes = 4 * 1024 * 1024

// ErrAlreadyConsumed is yielded when a document stream is iterated twice.
var ErrAlreadyConsumed = stderrors.New("document stream already consumed")

// Decoder splits log objects into documents using a schema registry.
type Decoder struct {
	registry     *schema.Registry
	maxLineBytes int
}

// Option configures a Decoder.
type Option func(*Decoder)

// WithMaxLineBytes overrides the per-line size limit.
func WithMaxLineBytes(n int) Option {
	return func(d *Decoder) {
		if n > 0 {
			d.maxLineBytes = n
		}
	}
}

// New creates a decoder bound to registry.
func New(registry *schema.Registry, opts ...Option) *Decoder {
	d := &Decoder{
		registry:     registry,
		maxLineBytes: DefaultMaxLineBytes,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Classify derives the record classification from path segments 2 and 3
// of key, joined by an underscore.
func Classify(key string) string {
	segments := strings.Split(key, "/")
	if len(segments) < 2 {
		return ""
	}
	end := min(3, len(segments))
	return strings.Join(segments[1:end], "_")
}

// Decode returns a one-shot sequence of documents read from r. When
// compressed is set, r is a gzip stream and is decompressed while reading.
// Empty lines are skipped and line order is preserved. The sequence stops
// after the first error.
func (d *Decoder) Decode(bucket, key string, compressed bool, r io.Reader) iter.Seq2[*Document, error] {
	classification := Classify(key)
	parseFields := classification == ClassEnrichedGood
	var consumed atomic.Bool

	return func(yield func(*Document, error) bool) {
		if consumed.Swap(true) {
			yield(nil, ErrAlreadyConsumed)
			return
		}

		body := r
		if compressed {
			zr, err := gzip.NewReader(r)
			if err != nil {
				yield(nil, corruptErr(key, err))
				return
			}
			defer zr.Close()
			body = zr
		}

		scanner := bufio.NewScanner(body)
		scanner.Buffer(make([]byte, 0, 64*1024), d.maxLineBytes)

		for scanner.Scan() {
			line := scanner.Text()
			if line == "" {
				continue
			}

			doc := &Document{
				Meta: Meta{
					SourceLocation: SourceLocation{Bucket: bucket, Key: key},
					Source:         Source,
					Classification: classification,
				},
				Message: line,
			}
			if parseFields {
				doc.Event = d.registry.Pair(strings.Split(line, "\t"))
			}

			if !yield(doc, nil) {
				return
			}
		}

		if err := scanner.Err(); err != nil {
			yield(nil, readErr(key, compressed, err))
		}
	}
}

// Collect drains a document sequence into a slice.
func Collect(seq iter.Seq2[*Document, error]) ([]*Document, error) {
	var docs []*Document
	for doc, err := range seq {
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func corruptErr(key string, cause error) error {
	return errors.New(errors.ErrCodeObjectCorrupt,
		fmt.Sprintf("object %q could not be decoded", key), cause).
		WithDetail("key", key)
}

func readErr(key string, compressed bool, err error) error {
	var corrupt flate.CorruptInputError
	switch {
	case stderrors.Is(err, bufio.ErrTooLong):
		return corruptErr(key, err)
	case compressed && (stderrors.Is(err, gzip.ErrChecksum) ||
		stderrors.Is(err, gzip.ErrHeader) ||
		stderrors.Is(err, io.ErrUnexpectedEOF) ||
		stderrors.As(err, &corrupt)):
		return corruptErr(key, err)
	default:
		return errors.New(errors.ErrCodeObjectFetchFailed,
			fmt.Sprintf("reading object %q failed", key), err).
			WithDetail("key", key)
	}
}
