// Package staging makes sure asset sources sit at a durable object URI
// before any batch job references them.
package staging

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Key  string
	Size int64
}

// ObjectStore abstracts the object storage operations staging needs.
type ObjectStore interface {
	Ping(ctx context.Context) error
	EnsureBucket(ctx context.Context, bucket string) error
	StatObject(ctx context.Context, bucket, key string) (ObjectInfo, error)
	PutFile(ctx context.Context, bucket, key, path string) error
}

// LocalStore persists objects on disk. It backs tests and single-host runs.
type LocalStore struct {
	root string
}

// NewLocalStore creates a local object store rooted at root.
func NewLocalStore(root string) *LocalStore {
	if root == "" {
		root = filepath.Join(os.TempDir(), "asset-staging")
	}
	_ = os.MkdirAll(root, 0o755)
	return &LocalStore{root: root}
}

func (s *LocalStore) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return os.MkdirAll(s.root, 0o755)
}

func (s *LocalStore) EnsureBucket(ctx context.Context, bucket string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if bucket == "" {
		return wrapError(CodeBucketNotFound, false, os.ErrNotExist)
	}
	return os.MkdirAll(s.bucketPath(bucket), 0o755)
}

func (s *LocalStore) StatObject(ctx context.Context, bucket, key string) (ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return ObjectInfo{}, err
	}
	info, err := os.Stat(s.objectPath(bucket, key))
	if err != nil {
		if os.IsNotExist(err) {
			return ObjectInfo{}, wrapError(CodeObjectNotFound, false, err)
		}
		return ObjectInfo{}, wrapError(CodePermissionDenied, false, err)
	}
	if info.IsDir() {
		return ObjectInfo{}, wrapError(CodeObjectNotFound, false, fmt.Errorf("%s is a prefix", key))
	}
	return ObjectInfo{Key: key, Size: info.Size()}, nil
}

func (s *LocalStore) PutFile(ctx context.Context, bucket, key, path string) error {
	if err := s.EnsureBucket(ctx, bucket); err != nil {
		return err
	}

	src, err := os.Open(path)
	if err != nil {
		return wrapError(CodeObjectNotFound, false, err)
	}
	defer src.Close()

	fullPath := s.objectPath(bucket, key)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return wrapError(CodePermissionDenied, false, err)
	}
	dst, err := os.Create(fullPath)
	if err != nil {
		return wrapError(CodeUploadFailed, true, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return wrapError(CodeUploadFailed, true, err)
	}
	if err := dst.Close(); err != nil {
		return wrapError(CodeUploadFailed, true, err)
	}
	return nil
}

func (s *LocalStore) bucketPath(bucket string) string {
	return filepath.Join(s.root, sanitize(bucket))
}

func (s *LocalStore) objectPath(bucket, key string) string {
	return filepath.Join(s.bucketPath(bucket), filepath.FromSlash(sanitize(key)))
}

// sanitize drops parent references so keys cannot escape the store root.
func sanitize(p string) string {
	parts := strings.Split(filepath.ToSlash(p), "/")
	kept := parts[:0]
	for _, part := range parts {
		if part == "" || part == "." || part == ".." {
			continue
		}
		kept = append(kept, part)
	}
	return strings.Join(kept, "/")
}
