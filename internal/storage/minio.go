package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const defaultContentType = "application/octet-stream"

// MinioOptions configures a MinioStorage.
type MinioOptions struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
}

// MinioStorage implements BlobStore using a MinIO (or any S3-compatible) backend.
// Every call maps to exactly one object request; the content type travels as
// the object's Content-Type attribute.
type MinioStorage struct {
	client *minio.Client
	bucket string
}

// NewMinioStorage creates a MinIO client, ensures the bucket exists and
// returns a ready-to-use MinioStorage. Buckets are addressed path-style so
// providers without virtual-host DNS work unchanged.
func NewMinioStorage(ctx context.Context, opts MinioOptions) (*MinioStorage, error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:        credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure:       opts.UseSSL,
		Region:       opts.Region,
		BucketLookup: minio.BucketLookupPath,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, opts.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket existence: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, opts.Bucket, minio.MakeBucketOptions{Region: opts.Region}); err != nil {
			return nil, fmt.Errorf("create bucket %q: %w", opts.Bucket, err)
		}
		slog.Info("storage: created bucket", "bucket", opts.Bucket)
	}

	return &MinioStorage{client: client, bucket: opts.Bucket}, nil
}

// Save uploads data to the bucket under key.
func (s *MinioStorage) Save(ctx context.Context, key, contentType string, data []byte) error {
	if contentType == "" {
		contentType = defaultContentType
	}
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return classifyMinioError("put object", key, err)
	}
	return nil
}

// Load downloads the object at key together with its content type.
func (s *MinioStorage) Load(ctx context.Context, key string) ([]byte, string, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, "", classifyMinioError("get object", key, err)
	}
	defer obj.Close()

	// GetObject is lazy; Stat issues the request and surfaces a missing key.
	info, err := obj.Stat()
	if err != nil {
		return nil, "", classifyMinioError("get object", key, err)
	}
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, "", classifyMinioError("read object", key, err)
	}
	return data, info.ContentType, nil
}

// Delete removes the object at key from the bucket. S3 reports success for
// keys that do not exist, so a missing object is only reported as ErrNotFound
// when the provider answers with a 404.
func (s *MinioStorage) Delete(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return classifyMinioError("remove object", key, err)
	}
	return nil
}

// classifyMinioError maps a failed remote call to ErrNotFound or
// ErrBackendUnavailable based on the provider's response.
func classifyMinioError(op, key string, err error) error {
	resp := minio.ToErrorResponse(err)
	switch {
	case resp.StatusCode == http.StatusNotFound,
		resp.Code == "NoSuchKey",
		resp.Code == "NoSuchBucket":
		return fmt.Errorf("%w: %s %q: %w", ErrNotFound, op, key, err)
	default:
		return fmt.Errorf("%w: %s %q: %w", ErrBackendUnavailable, op, key, err)
	}
}
