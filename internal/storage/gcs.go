package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"docflow/internal/config"
)

// gcsStorage implements Storage on a Google Cloud Storage bucket.
type gcsStorage struct {
	client *gcs.Client
	bucket *gcs.BucketHandle
}

// NewGCS creates a storage client for the configured bucket.
func NewGCS(ctx context.Context, cfg config.GCSConfig) (Storage, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("gcs bucket is required")
	}
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	cli, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}
	return &gcsStorage{client: cli, bucket: cli.Bucket(cfg.Bucket)}, nil
}

// PingContext reports whether the bucket is reachable. Used by the health check.
func (g *gcsStorage) PingContext(ctx context.Context) error {
	if _, err := g.bucket.Attrs(ctx); err != nil {
		return fmt.Errorf("gcs: %w", err)
	}
	return nil
}

func (g *gcsStorage) Put(ctx context.Context, key string, r io.Reader, opt PutObjectOptions) (ObjectInfo, error) {
	w := g.bucket.Object(key).NewWriter(ctx)
	w.ContentType = opt.ContentType
	w.Metadata = opt.Metadata
	n, err := io.Copy(w, r)
	if err != nil {
		_ = w.Close()
		return ObjectInfo{}, fmt.Errorf("gcs write %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return ObjectInfo{}, fmt.Errorf("gcs finalize %s: %w", key, err)
	}
	attrs := w.Attrs()
	info := ObjectInfo{Key: key, Size: n, ContentType: opt.ContentType, Metadata: opt.Metadata, LastModified: time.Now()}
	if attrs != nil {
		info.ETag = attrs.Etag
		info.LastModified = attrs.Updated
	}
	return info, nil
}

func (g *gcsStorage) Get(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error) {
	obj := g.bucket.Object(key)
	attrs, err := obj.Attrs(ctx)
	if err != nil {
		if errors.Is(err, gcs.ErrObjectNotExist) {
			return nil, ObjectInfo{}, fmt.Errorf("%w: %s", ErrObjectNotFound, key)
		}
		return nil, ObjectInfo{}, err
	}
	rc, err := obj.NewReader(ctx)
	if err != nil {
		return nil, ObjectInfo{}, fmt.Errorf("gcs reader %s: %w", key, err)
	}
	return rc, ObjectInfo{
		Key:          key,
		Size:         attrs.Size,
		ETag:         attrs.Etag,
		ContentType:  attrs.ContentType,
		LastModified: attrs.Updated,
		Metadata:     attrs.Metadata,
	}, nil
}

func (g *gcsStorage) Delete(ctx context.Context, key string) error {
	err := g.bucket.Object(key).Delete(ctx)
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return nil
	}
	return err
}

func (g *gcsStorage) PresignGet(_ context.Context, key string, expiry time.Duration) (string, error) {
	return g.bucket.SignedURL(key, &gcs.SignedURLOptions{
		Method:  "GET",
		Expires: time.Now().Add(expiry),
		Scheme:  gcs.SigningSchemeV4,
	})
}
