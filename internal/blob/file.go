package blob

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	ierrors "github.com/Aman-CERP/eventindexer/internal/errors"
)

// FileStore serves objects from a directory tree laid out as
// <root>/<bucket>/<key>.
type FileStore struct {
	root string
}

var _ Store = (*FileStore)(nil)

// NewFileStore creates a FileStore rooted at root.
func NewFileStore(root string) (*FileStore, error) {
	if strings.TrimSpace(root) == "" {
		return nil, ierrors.ConfigError("blob root is empty", nil).
			WithSuggestion("Set blob.root in the config file or EVENTINDEXER_BLOB_ROOT")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve blob root %s: %w", root, err)
	}
	return &FileStore{root: abs}, nil
}

// Root returns the absolute root directory.
func (s *FileStore) Root() string {
	return s.root
}

// Path returns the file path of an object.
func (s *FileStore) Path(bucket, key string) (string, error) {
	if bucket == "" || strings.ContainsAny(bucket, `/\`) || bucket == "." || bucket == ".." {
		return "", ierrors.New(ierrors.ErrCodeInvalidInput, fmt.Sprintf("invalid bucket name %q", bucket), nil)
	}
	if key == "" {
		return "", ierrors.New(ierrors.ErrCodeInvalidInput, "object key is empty", nil)
	}
	bucketDir := filepath.Join(s.root, bucket)
	p := filepath.Join(bucketDir, filepath.FromSlash(key))
	if !strings.HasPrefix(p, bucketDir+string(filepath.Separator)) {
		return "", ierrors.New(ierrors.ErrCodeInvalidInput, fmt.Sprintf("object key %q escapes its bucket", key), nil)
	}
	return p, nil
}

// Locate maps a file below the root back to its bucket and key.
func (s *FileStore) Locate(path string) (bucket, key string, err error) {
	rel, err := filepath.Rel(s.root, path)
	if err != nil {
		return "", "", fmt.Errorf("locate %s: %w", path, err)
	}
	rel = filepath.ToSlash(rel)
	if strings.HasPrefix(rel, "../") || rel == ".." {
		return "", "", fmt.Errorf("%s is outside blob root %s", path, s.root)
	}
	bucket, key, ok := strings.Cut(rel, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("%s is not inside a bucket directory", path)
	}
	return bucket, key, nil
}

// Get opens the object for reading.
func (s *FileStore) Get(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := s.Path(bucket, key)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, notFound(bucket, key, err)
		}
		return nil, fetchFailed(bucket, key, err)
	}
	if info.IsDir() {
		return nil, notFound(bucket, key, fmt.Errorf("%s is a directory", p))
	}
	f, err := os.Open(p)
	if err != nil {
		return nil, fetchFailed(bucket, key, err)
	}
	return f, nil
}

// Put writes an object, creating parent directories.
func (s *FileStore) Put(ctx context.Context, bucket, key string, r io.Reader) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := s.Path(bucket, key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return fmt.Errorf("create object directory: %w", err)
	}
	tmp := p + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create object %s: %w", key, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("write object %s: %w", key, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("close object %s: %w", key, err)
	}
	return os.Rename(tmp, p)
}

// List returns the keys in bucket that start with prefix, in lexical order.
// Hidden files and unfinished Put temporaries are skipped. A missing bucket
// lists nothing.
func (s *FileStore) List(ctx context.Context, bucket, prefix string) ([]string, error) {
	bucketDir, err := s.Path(bucket, "_")
	if err != nil {
		return nil, err
	}
	bucketDir = filepath.Dir(bucketDir)

	var keys []string
	err = filepath.WalkDir(bucketDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && p == bucketDir {
				return filepath.SkipAll
			}
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if p != bucketDir && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || strings.HasSuffix(d.Name(), ".tmp") {
			return nil
		}
		rel, err := filepath.Rel(bucketDir, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, ierrors.New(ierrors.ErrCodeObjectFetchFailed, fmt.Sprintf("failed to list bucket %s", bucket), err).
			WithDetail("bucket", bucket)
	}
	return keys, nil
}

func notFound(bucket, key string, cause error) error {
	return ierrors.New(ierrors.ErrCodeObjectNotFound, fmt.Sprintf("object %s/%s not found", bucket, key), cause).
		WithDetail("bucket", bucket).
		WithDetail("key", key)
}

func fetchFailed(bucket, key string, cause error) error {
	return ierrors.New(ierrors.ErrCodeObjectFetchFailed, fmt.Sprintf("failed to fetch object %s/%s", bucket, key), cause).
		WithDetail("bucket", bucket).
		WithDetail("key", key)
}
