package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/spf13/afero"
)

const (
	// maxContentTypeLen is the largest content type the one-byte header can describe.
	maxContentTypeLen = 255
	tmpDirName        = ".tmp"
)

// DriveStorage implements BlobStore with one file per blob under root.
//
// File layout:
//
//	[1 byte L][L bytes content type, UTF-8][payload]
type DriveStorage struct {
	fs   afero.Fs
	root string
}

// NewDriveStorage returns a DriveStorage rooted at root on fs. The root and
// its temp directory are created if missing.
func NewDriveStorage(fs afero.Fs, root string) (*DriveStorage, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, fmt.Errorf("drive root is required")
	}
	if err := fs.MkdirAll(filepath.Join(root, tmpDirName), 0o755); err != nil {
		return nil, fmt.Errorf("create drive root %q: %w", root, err)
	}
	return &DriveStorage{fs: fs, root: root}, nil
}

// Save writes the header and payload to a temp file and renames it into
// place, so readers never observe a partially written blob.
func (d *DriveStorage) Save(ctx context.Context, key, contentType string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(contentType) > maxContentTypeLen {
		return fmt.Errorf("%w: got %d bytes", ErrContentTypeTooLong, len(contentType))
	}
	path, err := d.pathFor(key)
	if err != nil {
		return err
	}

	tmpDir := filepath.Join(d.root, tmpDirName)
	if err := d.fs.MkdirAll(tmpDir, 0o755); err != nil {
		return fmt.Errorf("%w: create temp dir: %w", ErrBackendUnavailable, err)
	}
	tmp, err := afero.TempFile(d.fs, tmpDir, "save-*")
	if err != nil {
		return fmt.Errorf("%w: create temp file: %w", ErrBackendUnavailable, err)
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = d.fs.Remove(tmpPath)
	}

	if _, err := tmp.Write(encodeHeader(contentType)); err != nil {
		cleanup()
		return fmt.Errorf("%w: write header: %w", ErrBackendUnavailable, err)
	}
	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("%w: write payload: %w", ErrBackendUnavailable, err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("%w: sync blob: %w", ErrBackendUnavailable, err)
	}
	if err := tmp.Close(); err != nil {
		_ = d.fs.Remove(tmpPath)
		return fmt.Errorf("%w: close blob: %w", ErrBackendUnavailable, err)
	}
	if err := d.fs.Rename(tmpPath, path); err != nil {
		_ = d.fs.Remove(tmpPath)
		return fmt.Errorf("%w: move blob into place: %w", ErrBackendUnavailable, err)
	}
	return nil
}

// Load reads the blob stored under key. A missing or unreadable file is
// ErrNotFound; a file whose header does not fit its contents is ErrCorruptRecord.
func (d *DriveStorage) Load(ctx context.Context, key string) ([]byte, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	path, err := d.pathFor(key)
	if err != nil {
		return nil, "", err
	}
	raw, err := afero.ReadFile(d.fs, path)
	if err != nil {
		return nil, "", fmt.Errorf("%w: read %q: %w", ErrNotFound, key, err)
	}
	data, contentType, err := decodeBlob(raw)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %q: %w", ErrCorruptRecord, key, err)
	}
	return data, contentType, nil
}

// Delete removes the file stored under key.
func (d *DriveStorage) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := d.pathFor(key)
	if err != nil {
		return err
	}
	if err := d.fs.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %q", ErrNotFound, key)
		}
		return fmt.Errorf("%w: remove %q: %w", ErrBackendUnavailable, key, err)
	}
	return nil
}

// pathFor maps key to a file directly under root. Keys may not contain
// separators or start with a dot.
func (d *DriveStorage) pathFor(key string) (string, error) {
	if key == "" || strings.HasPrefix(key, ".") || strings.ContainsAny(key, `/\`) {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return filepath.Join(d.root, key), nil
}

func encodeHeader(contentType string) []byte {
	header := make([]byte, 0, 1+len(contentType))
	header = append(header, byte(len(contentType)))
	return append(header, contentType...)
}

func decodeBlob(raw []byte) ([]byte, string, error) {
	if len(raw) == 0 {
		return nil, "", errors.New("missing content type header")
	}
	n := int(raw[0])
	if 1+n > len(raw) {
		return nil, "", fmt.Errorf("content type length %d exceeds file size %d", n, len(raw)-1)
	}
	contentType := raw[1 : 1+n]
	if !utf8.Valid(contentType) {
		return nil, "", errors.New("content type is not valid UTF-8")
	}
	return raw[1+n:], string(contentType), nil
}
