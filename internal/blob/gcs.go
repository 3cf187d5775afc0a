package blob

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
)

// GCSStore reads objects from Google Cloud Storage.
type GCSStore struct {
	client *storage.Client
	owned  bool
}

var _ Store = (*GCSStore)(nil)

// NewGCSStore creates a client with application default credentials.
// STORAGE_EMULATOR_HOST is honoured.
func NewGCSStore(ctx context.Context) (*GCSStore, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return &GCSStore{client: client, owned: true}, nil
}

// NewGCSStoreFromClient wraps an existing client. Close does not close it.
func NewGCSStoreFromClient(client *storage.Client) *GCSStore {
	return &GCSStore{client: client}
}

// Get opens a streaming reader for the object.
func (s *GCSStore) Get(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	r, err := s.client.Bucket(bucket).Object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, storage.ErrBucketNotExist) {
			return nil, notFound(bucket, key, err)
		}
		return nil, fetchFailed(bucket, key, err)
	}
	return r, nil
}

// Close releases the client if the store created it.
func (s *GCSStore) Close() error {
	if !s.owned {
		return nil
	}
	return s.client.Close()
}
