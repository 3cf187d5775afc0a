package index

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Aman-CERP/eventindexer/internal/decode"
	ierrors "github.com/Aman-CERP/eventindexer/internal/errors"
	"github.com/Aman-CERP/eventindexer/internal/store"
)

// LoadResult is the outcome of a successful load.
type LoadResult struct {
	Partition string
	Indexed   int
	Empty     bool
	Took      time.Duration
}

// BulkError lists the documents a bulk write rejected.
type BulkError struct {
	Partition string
	Total     int
	Failed    []store.BulkItemResult
}

func (e *BulkError) Error() string {
	msg := fmt.Sprintf("%d of %d documents rejected by %s", len(e.Failed), e.Total, e.Partition)
	if len(e.Failed) > 0 {
		msg += ": " + e.Failed[0].Error
	}
	return msg
}

// Loader submits documents to a partition in a single bulk request.
type Loader struct {
	backend store.Backend
	newID   func() string
}

// NewLoader creates a Loader. Every document gets a random id, so
// reprocessing an object indexes its documents again.
func NewLoader(backend store.Backend) *Loader {
	return &Loader{backend: backend, newID: uuid.NewString}
}

// Load writes docs to partition. An empty batch makes no backend call.
func (l *Loader) Load(ctx context.Context, partition string, docs []*decode.Document) (*LoadResult, error) {
	if len(docs) == 0 {
		slog.Info("nothing_to_index", slog.String("partition", partition))
		return &LoadResult{Partition: partition, Empty: true}, nil
	}

	items := make([]store.BulkItem, len(docs))
	for i, doc := range docs {
		items[i] = store.BulkItem{
			Index:    partition,
			Type:     decode.DocType,
			ID:       l.newID(),
			Document: doc,
		}
	}

	start := time.Now()
	resp, err := l.backend.Bulk(ctx, items)
	if err != nil {
		return nil, ierrors.BackendError(fmt.Sprintf("bulk request to %s failed", partition), err).
			WithDetail("partition", partition)
	}

	if failed := resp.Failures(); resp.Errors || len(failed) > 0 {
		bulkErr := &BulkError{Partition: partition, Total: len(items), Failed: failed}
		for _, f := range failed {
			slog.Error("bulk_item_failed",
				slog.String("partition", partition),
				slog.String("id", f.ID),
				slog.Int("status", f.Status),
				slog.String("error", f.Error))
		}
		return nil, ierrors.New(ierrors.ErrCodeBulkFailed, bulkErr.Error(), bulkErr).
			WithDetail("partition", partition).
			WithDetail("failed", fmt.Sprintf("%d", len(failed)))
	}

	result := &LoadResult{Partition: partition, Indexed: len(items), Took: time.Since(start)}
	slog.Info("documents_indexed",
		slog.String("partition", partition),
		slog.Int("count", result.Indexed),
		slog.Duration("took", result.Took))
	return result, nil
}
