package staging

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"path"
	"path/filepath"
	"strings"
)

// Stager guarantees that a source file is at a durable s3:// URI.
type Stager struct {
	store  ObjectStore
	bucket string
	prefix string

	// UploadRoot is the only directory local sources may be read from.
	// When empty, local paths and file:// URIs are rejected.
	UploadRoot string
}

// NewStager creates a stager that uploads local files to bucket under prefix.
func NewStager(store ObjectStore, bucket, prefix string) (*Stager, error) {
	if bucket == "" {
		return nil, wrapError(CodeBucketNotFound, false, errors.New("staging bucket is required"))
	}
	return &Stager{store: store, bucket: bucket, prefix: strings.Trim(prefix, "/")}, nil
}

// Ensure returns the durable URI of uri for the given dataset version.
// s3:// URIs must already exist; http(s) URIs are passed through; local
// paths and file:// URIs under UploadRoot are uploaded under
// <prefix>/<dataset>/<version>/.
func (s *Stager) Ensure(ctx context.Context, dataset, version, uri string) (string, error) {
	src, err := parseSource(uri, s.UploadRoot)
	if err != nil {
		return "", err
	}

	switch {
	case src.bucket != "":
		if _, err := s.store.StatObject(ctx, src.bucket, src.key); err != nil {
			return "", err
		}
		return uri, nil
	case src.local != "":
		key := path.Join(s.prefix, dataset, version, filepath.Base(src.local))
		if err := s.store.PutFile(ctx, s.bucket, key, src.local); err != nil {
			return "", err
		}
		return fmt.Sprintf("s3://%s/%s", s.bucket, key), nil
	default:
		return uri, nil
	}
}

// CheckSource reports whether uri could be staged with uploadRoot, without
// touching any object store.
func CheckSource(uri, uploadRoot string) error {
	_, err := parseSource(uri, uploadRoot)
	return err
}

// LocalPath resolves a bare path or file:// path to a file inside root,
// following symlinks. Relative paths are taken relative to root.
func LocalPath(p, root string) (string, error) {
	if root == "" {
		return "", wrapError(CodePermissionDenied, false, fmt.Errorf("local source %q: no upload root is configured", p))
	}
	realRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		return "", wrapError(CodePermissionDenied, false, fmt.Errorf("upload root %q: %w", root, err))
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(realRoot, p)
	}
	realPath, err := filepath.EvalSymlinks(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", wrapError(CodeObjectNotFound, false, fmt.Errorf("local source %q: %w", p, err))
		}
		return "", wrapError(CodePermissionDenied, false, fmt.Errorf("local source %q: %w", p, err))
	}
	rel, err := filepath.Rel(realRoot, realPath)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", wrapError(CodePermissionDenied, false, fmt.Errorf("local source %q is outside the upload root", p))
	}
	return realPath, nil
}

// source is a parsed source URI: an s3 object, a local file or a web URL.
type source struct {
	bucket string
	key    string
	local  string
}

func parseSource(uri, uploadRoot string) (source, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return source{}, wrapError(CodeUnsupportedURI, false, fmt.Errorf("parse %q: %w", uri, err))
	}

	switch u.Scheme {
	case "s3":
		key := strings.TrimPrefix(u.Path, "/")
		if u.Host == "" || key == "" {
			return source{}, wrapError(CodeUnsupportedURI, false, fmt.Errorf("%q has no bucket or key", uri))
		}
		return source{bucket: u.Host, key: key}, nil

	case "http", "https":
		if u.Host == "" {
			return source{}, wrapError(CodeUnsupportedURI, false, fmt.Errorf("%q has no host", uri))
		}
		return source{}, nil

	case "", "file":
		p := u.Path
		if u.Scheme == "" {
			p = uri
		}
		local, err := LocalPath(p, uploadRoot)
		if err != nil {
			return source{}, err
		}
		return source{local: local}, nil

	default:
		return source{}, wrapError(CodeUnsupportedURI, false, fmt.Errorf("unsupported scheme %q", u.Scheme))
	}
}

// EnsureAll stages every uri in order.
func (s *Stager) EnsureAll(ctx context.Context, dataset, version string, uris []string) ([]string, error) {
	out := make([]string, 0, len(uris))
	for _, uri := range uris {
		durable, err := s.Ensure(ctx, dataset, version, uri)
		if err != nil {
			return nil, err
		}
		out = append(out, durable)
	}
	return out, nil
}

// IsRetryable reports whether a staging error is transient.
func IsRetryable(err error) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Retryable
	}
	return false
}
