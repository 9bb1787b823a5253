// Package filetest provides in-memory metadata and blob stores for tests.
package filetest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/radif/uploader/internal/file"
	"github.com/radif/uploader/internal/storage"
)

var errTxClosed = errors.New("tx is closed")

// MetadataStore is an in-memory file.MetadataStore. Inserts become visible
// on commit. Deletes take effect immediately and are undone on rollback, the
// way PostgreSQL holds the row lock of DELETE ... RETURNING until the
// transaction ends.
type MetadataStore struct {
	mu        sync.Mutex
	records   map[string]file.Record
	beginErr  error
	commitErr error
}

// NewMetadataStore returns an empty MetadataStore.
func NewMetadataStore() *MetadataStore {
	return &MetadataStore{records: make(map[string]file.Record)}
}

// FailBegin makes every later Begin return err. Pass nil to clear.
func (m *MetadataStore) FailBegin(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.beginErr = err
}

// FailCommit makes every later Commit abort with err. Pass nil to clear.
func (m *MetadataStore) FailCommit(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commitErr = err
}

// Get returns the committed record with the given public id.
func (m *MetadataStore) Get(publicID string) (file.Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[publicID]
	return rec, ok
}

// Len returns the number of committed records.
func (m *MetadataStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

// Begin implements file.MetadataStore.
func (m *MetadataStore) Begin(ctx context.Context) (file.Tx, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.beginErr != nil {
		return nil, m.beginErr
	}
	return &memTx{store: m}, nil
}

type memTx struct {
	store   *MetadataStore
	inserts []file.Record
	deleted []file.Record
	closed  bool
}

func (t *memTx) FindByID(ctx context.Context, publicID string) (*file.Record, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	if t.closed {
		return nil, errTxClosed
	}
	rec, ok := t.store.records[publicID]
	if !ok {
		return nil, file.ErrNotFound
	}
	return &rec, nil
}

func (t *memTx) Insert(ctx context.Context, rec *file.Record) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	if t.closed {
		return errTxClosed
	}
	all := make([]file.Record, 0, len(t.store.records)+len(t.inserts))
	for _, r := range t.store.records {
		all = append(all, r)
	}
	all = append(all, t.inserts...)
	for _, r := range all {
		if r.PublicID == rec.PublicID || r.StorageID == rec.StorageID || r.Secret == rec.Secret {
			return fmt.Errorf("insert file: %w", file.ErrIDCollision)
		}
	}
	t.inserts = append(t.inserts, *rec)
	return nil
}

func (t *memTx) DeleteBySecret(ctx context.Context, secret string) (*file.Record, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	if t.closed {
		return nil, errTxClosed
	}
	for id, rec := range t.store.records {
		if rec.Secret == secret {
			delete(t.store.records, id)
			t.deleted = append(t.deleted, rec)
			return &rec, nil
		}
	}
	return nil, file.ErrNotFound
}

func (t *memTx) Commit(ctx context.Context) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	if t.closed {
		return errTxClosed
	}
	t.closed = true
	if t.store.commitErr != nil {
		t.restore()
		return t.store.commitErr
	}
	for _, rec := range t.inserts {
		t.store.records[rec.PublicID] = rec
	}
	return nil
}

func (t *memTx) Rollback(ctx context.Context) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	t.restore()
	return nil
}

func (t *memTx) restore() {
	for _, rec := range t.deleted {
		t.store.records[rec.PublicID] = rec
	}
}

type blob struct {
	data        []byte
	contentType string
}

// BlobStore is an in-memory storage.BlobStore with injectable failures.
type BlobStore struct {
	mu        sync.Mutex
	blobs     map[string]blob
	saveErr   error
	loadErr   error
	deleteErr error
	deletes   int
}

// NewBlobStore returns an empty BlobStore.
func NewBlobStore() *BlobStore {
	return &BlobStore{blobs: make(map[string]blob)}
}

// FailSave, FailLoad and FailDelete make the matching operation return err.
// Pass nil to clear.
func (b *BlobStore) FailSave(err error)   { b.setErr(&b.saveErr, err) }
func (b *BlobStore) FailLoad(err error)   { b.setErr(&b.loadErr, err) }
func (b *BlobStore) FailDelete(err error) { b.setErr(&b.deleteErr, err) }

func (b *BlobStore) setErr(dst *error, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	*dst = err
}

// Len returns the number of stored blobs.
func (b *BlobStore) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.blobs)
}

// Deletes returns how many blobs were successfully deleted.
func (b *BlobStore) Deletes() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.deletes
}

// Remove drops a blob without going through Delete, to simulate loss.
func (b *BlobStore) Remove(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.blobs, key)
}

// Save implements storage.BlobStore.
func (b *BlobStore) Save(ctx context.Context, key, contentType string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.saveErr != nil {
		return b.saveErr
	}
	b.blobs[key] = blob{data: append([]byte(nil), data...), contentType: contentType}
	return nil
}

// Load implements storage.BlobStore.
func (b *BlobStore) Load(ctx context.Context, key string) ([]byte, string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.loadErr != nil {
		return nil, "", b.loadErr
	}
	bl, ok := b.blobs[key]
	if !ok {
		return nil, "", fmt.Errorf("%w: %q", storage.ErrNotFound, key)
	}
	return append([]byte(nil), bl.data...), bl.contentType, nil
}

// Delete implements storage.BlobStore.
func (b *BlobStore) Delete(ctx context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.deleteErr != nil {
		return b.deleteErr
	}
	if _, ok := b.blobs[key]; !ok {
		return fmt.Errorf("%w: %q", storage.ErrNotFound, key)
	}
	delete(b.blobs, key)
	b.deletes++
	return nil
}
