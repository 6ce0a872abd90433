package storage

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/feichai0017/catalog-ingestor/pkg/logger"
	"github.com/feichai0017/catalog-ingestor/pkg/storage/minio"
	"github.com/feichai0017/catalog-ingestor/pkg/storage/s3"
)

// StorageType selects the object storage backend
type StorageType string

const (
	StorageTypeS3    StorageType = "s3"
	StorageTypeMinio StorageType = "minio"
)

// Storage is the object storage contract used for extracted images and
// uploaded source documents.
type Storage interface {
	// Store uploads reader under key and returns the object's public URL.
	// size may be -1 when unknown.
	Store(ctx context.Context, reader io.Reader, size int64, key, contentType string) (string, error)
	// Get fetches an object
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete removes an object
	Delete(ctx context.Context, key string) error
	// CleanupBefore removes objects last modified before threshold
	CleanupBefore(ctx context.Context, threshold time.Time) error
	// EnsureBucket checks the bucket and creates it when missing
	EnsureBucket(ctx context.Context) error
	// URL returns the public URL for key
	URL(key string) string
}

// NewStorage builds the configured backend. It does not touch the network;
// reachability is checked by EnsureBucket during capability probing.
func NewStorage(storageType StorageType, log logger.Logger) (Storage, error) {
	switch storageType {
	case StorageTypeS3:
		client, err := s3.GetClient(log)
		if err != nil {
			return nil, err
		}
		return client, nil
	case StorageTypeMinio:
		client, err := minio.GetClient(log)
		if err != nil {
			return nil, err
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", storageType)
	}
}
