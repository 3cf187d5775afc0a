// Package blob retrieves event log objects from a blob store.
package blob

import (
	"context"
	"io"
)

// Store fetches objects by bucket and key. Callers close the returned reader.
type Store interface {
	Get(ctx context.Context, bucket, key string) (io.ReadCloser, error)
}
