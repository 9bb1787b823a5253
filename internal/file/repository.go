// Package file stores uploaded files: a metadata row in PostgreSQL and a
// blob in the configured storage backend, kept consistent by transactions.
package file

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Record is the metadata row for one uploaded file.
type Record struct {
	PublicID   string
	StorageID  string
	Secret     string
	UploadedAt int64 // milliseconds since epoch
	SizeBytes  int64
}

const recordColumns = `id, bucket_id, secret, uploaded_at, size`

// Repository handles file metadata persistence.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new Repository with the given connection pool.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Begin opens a transaction. Callers must Commit or Rollback it.
func (r *Repository) Begin(ctx context.Context) (Tx, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	return &pgTx{tx: tx}, nil
}

// pgTx implements Tx on top of a pgx transaction.
type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) FindByID(ctx context.Context, publicID string) (*Record, error) {
	rec, err := scanRecord(t.tx.QueryRow(ctx,
		`SELECT `+recordColumns+` FROM files WHERE id = $1`,
		publicID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find file by id: %w", err)
	}
	return rec, nil
}

func (t *pgTx) Insert(ctx context.Context, rec *Record) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO files (`+recordColumns+`) VALUES ($1, $2, $3, $4, $5)`,
		rec.PublicID, rec.StorageID, rec.Secret, rec.UploadedAt, rec.SizeBytes,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert file: %w: %w", ErrIDCollision, err)
		}
		return fmt.Errorf("insert file: %w", err)
	}
	return nil
}

// DeleteBySecret deletes and returns the row in one statement, so concurrent
// callers with the same secret cannot both see it.
func (t *pgTx) DeleteBySecret(ctx context.Context, secret string) (*Record, error) {
	rec, err := scanRecord(t.tx.QueryRow(ctx,
		`DELETE FROM files WHERE secret = $1 RETURNING `+recordColumns,
		secret,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("delete file by secret: %w", err)
	}
	return rec, nil
}

func (t *pgTx) Commit(ctx context.Context) error {
	return t.tx.Commit(ctx)
}

// Rollback is a no-op once the transaction has been committed.
func (t *pgTx) Rollback(ctx context.Context) error {
	if err := t.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return err
	}
	return nil
}

func scanRecord(row pgx.Row) (*Record, error) {
	rec := &Record{}
	err := row.Scan(&rec.PublicID, &rec.StorageID, &rec.Secret, &rec.UploadedAt, &rec.SizeBytes)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// isUniqueViolation checks whether an error is a PostgreSQL unique_violation (code 23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
