// Package storage defines the blob storage abstraction and its backends.
// The backend is chosen at startup: MinioStorage talks to any S3-compatible
// provider (MinIO, ArvanCloud, AWS S3), DriveStorage keeps one file per blob
// on a local filesystem.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/afero"

	"github.com/radif/uploader/internal/config"
)

var (
	// ErrNotFound is returned when no blob exists under the given key.
	ErrNotFound = errors.New("blob not found")
	// ErrBackendUnavailable is returned when the remote store could not serve a request.
	ErrBackendUnavailable = errors.New("storage backend unavailable")
	// ErrCorruptRecord is returned when a stored blob cannot be decoded.
	ErrCorruptRecord = errors.New("stored blob is corrupt")
	// ErrContentTypeTooLong is returned when a content type does not fit the drive header.
	ErrContentTypeTooLong = errors.New("content type longer than 255 bytes")
	// ErrInvalidKey is returned for keys that are empty or would escape the store.
	ErrInvalidKey = errors.New("invalid blob key")
)

// BlobStore is the interface for saving, loading and deleting blobs.
type BlobStore interface {
	// Save writes data under key. An existing blob with the same key is replaced.
	Save(ctx context.Context, key, contentType string, data []byte) error
	// Load returns the payload and content type stored under key.
	Load(ctx context.Context, key string) ([]byte, string, error)
	// Delete removes the blob stored under key.
	Delete(ctx context.Context, key string) error
}

// New builds the backend selected by cfg.Driver.
func New(ctx context.Context, cfg config.StorageConfig) (BlobStore, error) {
	switch cfg.Driver {
	case config.DriverObject:
		return NewMinioStorage(ctx, MinioOptions{
			Endpoint:  cfg.Endpoint,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
			Bucket:    cfg.Bucket,
			Region:    cfg.Region,
			UseSSL:    cfg.UseSSL,
		})
	case config.DriverDrive:
		return NewDriveStorage(afero.NewOsFs(), cfg.DriveRoot)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
