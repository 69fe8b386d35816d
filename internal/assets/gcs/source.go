// Package gcs implements an asset source backed by a Google Cloud Storage
// bucket, for deployments that publish the UI bundle to GCS instead of
// shipping it with the binary.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path"
	"strings"

	"cloud.google.com/go/storage"

	"github.com/JakeFAU/empire-server/internal/assets"
)

// Config captures the bucket and object prefix holding the bundle.
type Config struct {
	Bucket string
	Prefix string
}

// objectReader opens one object with its attributes.
type objectReader interface {
	NewReader(ctx context.Context, object string) (io.ReadCloser, storage.ReaderObjectAttrs, error)
}

type bucketReader struct {
	bucket *storage.BucketHandle
}

func (b bucketReader) NewReader(ctx context.Context, object string) (io.ReadCloser, storage.ReaderObjectAttrs, error) {
	r, err := b.bucket.Object(object).NewReader(ctx)
	if err != nil {
		return nil, storage.ReaderObjectAttrs{}, err //nolint:wrapcheck // wrapped by Open
	}
	return r, r.Attrs, nil
}

// Source reads assets from a GCS bucket.
type Source struct {
	reader objectReader
	bucket string
	prefix string
}

// New creates a GCS-backed asset source.
func New(client *storage.Client, cfg Config) (*Source, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return newSource(bucketReader{bucket: client.Bucket(cfg.Bucket)}, cfg), nil
}

func newSource(reader objectReader, cfg Config) *Source {
	return &Source{
		reader: reader,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}
}

// Object returns the object name a bundle path maps to.
func (s *Source) Object(name string) string {
	name = strings.TrimPrefix(path.Clean("/"+name), "/")
	if s.prefix == "" {
		return name
	}
	return s.prefix + "/" + name
}

// Open streams the object for name. Missing objects report fs.ErrNotExist.
func (s *Source) Open(ctx context.Context, name string) (*assets.Object, error) {
	object := s.Object(name)
	body, attrs, err := s.reader.NewReader(ctx, object)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, &fs.PathError{Op: "open", Path: fmt.Sprintf("gs://%s/%s", s.bucket, object), Err: fs.ErrNotExist}
		}
		return nil, fmt.Errorf("read gs://%s/%s: %w", s.bucket, object, err)
	}
	return &assets.Object{
		Body:        body,
		ContentType: attrs.ContentType,
		Size:        attrs.Size,
		ModTime:     attrs.LastModified,
	}, nil
}
