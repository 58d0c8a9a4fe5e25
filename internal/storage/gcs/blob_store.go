// Package gcs archives page snapshots in Google Cloud Storage.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
)

// DefaultCacheControl keeps snapshots out of shared caches.
const DefaultCacheControl = "private, no-store"

// ErrSnapshotExists is returned when an object already exists under the snapshot path.
var ErrSnapshotExists = errors.New("snapshot already archived")

// Config names the bucket snapshots are written to.
type Config struct {
	Bucket       string
	CacheControl string
}

// BlobStore writes snapshots once each; an existing object is never replaced.
type BlobStore struct {
	client       *storage.Client
	bucket       string
	cacheControl string
}

// New creates a GCS snapshot store. The caller owns client.
func New(client *storage.Client, cfg Config) (*BlobStore, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	cacheControl := cfg.CacheControl
	if cacheControl == "" {
		cacheControl = DefaultCacheControl
	}
	return &BlobStore{
		client:       client,
		bucket:       cfg.Bucket,
		cacheControl: cacheControl,
	}, nil
}

// PutObject uploads a snapshot in a single request and returns its gs:// URI.
// The file name without extension is recorded as the object's run-id metadata.
func (s *BlobStore) PutObject(ctx context.Context, name string, contentType string, r io.Reader) (string, error) {
	name = strings.TrimPrefix(name, "/")
	if strings.TrimSpace(name) == "" {
		return "", fmt.Errorf("path is required")
	}
	object := s.client.Bucket(s.bucket).Object(name).If(storage.Conditions{DoesNotExist: true})
	writer := object.NewWriter(ctx)
	// Snapshots are a few hundred KiB; skip the resumable session.
	writer.ChunkSize = 0
	writer.CacheControl = s.cacheControl
	if contentType != "" {
		writer.ContentType = contentType
	}
	base := path.Base(name)
	writer.Metadata = map[string]string{
		"run-id": strings.TrimSuffix(base, path.Ext(base)),
	}

	if _, err := io.Copy(writer, r); err != nil {
		if closeErr := writer.Close(); closeErr != nil {
			return "", fmt.Errorf("upload snapshot %s: %w (close writer: %v)", name, err, closeErr)
		}
		return "", fmt.Errorf("upload snapshot %s: %w", name, err)
	}
	if err := writer.Close(); err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && apiErr.Code == http.StatusPreconditionFailed {
			return "", fmt.Errorf("upload snapshot %s: %w", name, ErrSnapshotExists)
		}
		return "", fmt.Errorf("upload snapshot %s: %w", name, err)
	}
	return fmt.Sprintf("gs://%s/%s", s.bucket, name), nil
}
