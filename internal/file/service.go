package file

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/radif/uploader/internal/storage"
)

// MetadataStore opens transactions over file records.
type MetadataStore interface {
	Begin(ctx context.Context) (Tx, error)
}

// Tx is a metadata transaction. Nothing it does is visible to other
// transactions until Commit; Rollback discards it and is safe to call after
// Commit.
type Tx interface {
	FindByID(ctx context.Context, publicID string) (*Record, error)
	Insert(ctx context.Context, rec *Record) error
	DeleteBySecret(ctx context.Context, secret string) (*Record, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Options tunes a Service.
type Options struct {
	// PublicIDLength is the number of characters in generated public ids.
	PublicIDLength int
	// CacheMaxAge is passed through to retrieval results untouched.
	CacheMaxAge int
}

// UploadResult holds the identifiers returned to the uploader.
type UploadResult struct {
	PublicID string
	Secret   string
}

// Blob is a retrieved file.
type Blob struct {
	Data        []byte
	ContentType string
	CacheMaxAge int
}

// Service coordinates the metadata store and the blob store.
type Service struct {
	meta   MetadataStore
	blobs  storage.BlobStore
	opts   Options
	clock  *millisClock
	newIDs func(publicIDLength int) (identifiers, error)
	log    *slog.Logger
}

// NewService creates a new file Service.
func NewService(meta MetadataStore, blobs storage.BlobStore, opts Options) *Service {
	return &Service{
		meta:   meta,
		blobs:  blobs,
		opts:   opts,
		clock:  &millisClock{now: time.Now},
		newIDs: newIdentifiers,
		log:    slog.Default().With("component", "file"),
	}
}

// Upload stores data and its metadata record. The record is inserted first
// and only committed once the blob is saved, so a failed save leaves nothing
// visible.
//
// If the commit fails after the blob was saved, the blob is left without a
// record. This case is logged with the storage id and not repaired.
func (s *Service) Upload(ctx context.Context, data []byte, contentType string) (*UploadResult, error) {
	ids, err := s.newIDs(s.opts.PublicIDLength)
	if err != nil {
		return nil, fmt.Errorf("generate identifiers: %w", err)
	}

	tx, err := s.meta.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: begin upload: %w", ErrDatabase, err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	rec := &Record{
		PublicID:   ids.publicID,
		StorageID:  ids.storageID,
		Secret:     ids.secret,
		UploadedAt: s.clock.nowMillis(),
		SizeBytes:  int64(len(data)),
	}
	if err := tx.Insert(ctx, rec); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDatabase, err)
	}

	if err := s.blobs.Save(ctx, rec.StorageID, contentType, data); err != nil {
		return nil, saveError(err)
	}

	if err := tx.Commit(ctx); err != nil {
		s.log.ErrorContext(ctx, "upload commit failed, blob is orphaned",
			"storage_id", rec.StorageID, "error", err)
		return nil, fmt.Errorf("%w: commit upload: %w", ErrDatabase, err)
	}

	s.log.InfoContext(ctx, "file uploaded", "id", rec.PublicID, "size", rec.SizeBytes)
	return &UploadResult{PublicID: rec.PublicID, Secret: rec.Secret}, nil
}

// Delete removes the record owning secret and its blob. The row delete is
// rolled back if the blob cannot be removed, so the secret stays usable.
func (s *Service) Delete(ctx context.Context, secret string) error {
	tx, err := s.meta.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: begin delete: %w", ErrDatabase, err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	rec, err := tx.DeleteBySecret(ctx, secret)
	if errors.Is(err, ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDatabase, err)
	}

	if err := s.blobs.Delete(ctx, rec.StorageID); err != nil {
		err = blobError("delete blob", err)
		s.logInconsistency(ctx, err, rec)
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		s.log.ErrorContext(ctx, "delete commit failed, record has no blob",
			"id", rec.PublicID, "storage_id", rec.StorageID, "error", err)
		return fmt.Errorf("%w: commit delete: %w", ErrDatabase, err)
	}

	s.log.InfoContext(ctx, "file deleted", "id", rec.PublicID)
	return nil
}

// Retrieve returns the blob published under publicID.
func (s *Service) Retrieve(ctx context.Context, publicID string) (*Blob, error) {
	tx, err := s.meta.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: begin retrieve: %w", ErrDatabase, err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	rec, err := tx.FindByID(ctx, publicID)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDatabase, err)
	}

	data, contentType, err := s.blobs.Load(ctx, rec.StorageID)
	if err != nil {
		err = blobError("load blob", err)
		s.logInconsistency(ctx, err, rec)
		return nil, err
	}
	if int64(len(data)) != rec.SizeBytes {
		return nil, fmt.Errorf("%w: %q holds %d bytes, record says %d",
			ErrCorruptRecord, rec.PublicID, len(data), rec.SizeBytes)
	}

	return &Blob{Data: data, ContentType: contentType, CacheMaxAge: s.opts.CacheMaxAge}, nil
}

func (s *Service) logInconsistency(ctx context.Context, err error, rec *Record) {
	if errors.Is(err, ErrInconsistent) {
		s.log.ErrorContext(ctx, "file record has no blob",
			"id", rec.PublicID, "storage_id", rec.StorageID, "error", err)
	}
}

// saveError maps a failed save. NotFound on a write means the bucket or root
// is gone, which is a backend fault rather than a lost blob.
func saveError(err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%w: save blob: %w", ErrBackendUnavailable, err)
	}
	return blobError("save blob", err)
}

// blobError maps a load or delete failure onto the file error kinds. A
// missing blob is an inconsistency: both run only after the record was found.
func blobError(op string, err error) error {
	kind := ErrBackendUnavailable
	switch {
	case errors.Is(err, storage.ErrNotFound):
		kind = ErrInconsistent
	case errors.Is(err, storage.ErrCorruptRecord):
		kind = ErrCorruptRecord
	case errors.Is(err, storage.ErrContentTypeTooLong):
		kind = ErrInvalidInput
	}
	return fmt.Errorf("%w: %s: %w", kind, op, err)
}
