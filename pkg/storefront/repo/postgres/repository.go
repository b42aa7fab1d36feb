package postgres

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tendant/simple-storefront/pkg/storefront"
)

//go:embed schema.sql
var schema string

// DBTX is an interface that allows us to use either a database connection or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
	Begin(context.Context) (pgx.Tx, error)
}

// Repository implements storefront.Repository using PostgreSQL
type Repository struct {
	db   DBTX
	pool *pgxpool.Pool
}

// New creates a new PostgreSQL repository
func New(db DBTX) *Repository {
	return &Repository{db: db}
}

// NewWithPool creates a new PostgreSQL repository with connection pool
func NewWithPool(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool, pool: pool}
}

// Migrate creates the tables when they do not exist yet
func (r *Repository) Migrate(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, schema); err != nil {
		return r.handlePostgresError("migrate", err)
	}
	return nil
}

// Ping checks the pool can reach the database
func (r *Repository) Ping(ctx context.Context) error {
	if r.pool == nil {
		return nil
	}
	return r.pool.Ping(ctx)
}

// Error handling helper
func (r *Repository) handlePostgresError(operation string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return fmt.Errorf("%s: duplicate entry (%s)", operation, pgErr.ConstraintName)
		case "23503": // foreign_key_violation
			return fmt.Errorf("%s: referenced record not found", operation)
		case "23502": // not_null_violation
			return fmt.Errorf("%s: required field %s is missing", operation, pgErr.ColumnName)
		case "42P01": // undefined_table
			return fmt.Errorf("%s: table does not exist - database migration required", operation)
		default:
			return fmt.Errorf("database error in %s: %s (code: %s)", operation, pgErr.Message, pgErr.Code)
		}
	}

	return fmt.Errorf("database error in %s: %w", operation, err)
}

// Record operations

const recordColumns = `id, name, category, region, genre, description, download_link,
	primary_file_id, cover_image_id, gallery_image_ids, created_at, updated_at`

func (r *Repository) CreateRecord(ctx context.Context, record *storefront.ContentRecord) error {
	gallery, err := encodeGallery(record.GalleryImageIDs)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO content_record (` + recordColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err = r.db.Exec(ctx, query,
		record.ID, record.Name, record.Category, record.Region, record.Genre,
		record.Description, record.DownloadLink, record.PrimaryFileID, record.CoverImageID,
		gallery, record.CreatedAt, record.UpdatedAt)
	if err != nil {
		return r.handlePostgresError("create record", err)
	}
	return nil
}

func (r *Repository) GetRecord(ctx context.Context, id uuid.UUID) (*storefront.ContentRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM content_record WHERE id = $1`

	record, err := scanRecord(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storefront.ErrContentNotFound
		}
		return nil, r.handlePostgresError("get record", err)
	}
	return record, nil
}

func (r *Repository) ListRecords(ctx context.Context) ([]*storefront.ContentRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM content_record ORDER BY created_at DESC`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, r.handlePostgresError("list records", err)
	}
	defer rows.Close()

	records := []*storefront.ContentRecord{}
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, r.handlePostgresError("list records", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, r.handlePostgresError("list records", err)
	}
	return records, nil
}

func (r *Repository) UpdateRecord(ctx context.Context, record *storefront.ContentRecord) error {
	gallery, err := encodeGallery(record.GalleryImageIDs)
	if err != nil {
		return err
	}

	query := `
		UPDATE content_record SET
			name = $2, category = $3, region = $4, genre = $5, description = $6,
			download_link = $7, primary_file_id = $8, cover_image_id = $9,
			gallery_image_ids = $10, updated_at = $11
		WHERE id = $1`

	tag, err := r.db.Exec(ctx, query,
		record.ID, record.Name, record.Category, record.Region, record.Genre,
		record.Description, record.DownloadLink, record.PrimaryFileID, record.CoverImageID,
		gallery, record.UpdatedAt)
	if err != nil {
		return r.handlePostgresError("update record", err)
	}
	if tag.RowsAffected() == 0 {
		return storefront.ErrContentNotFound
	}
	return nil
}

func (r *Repository) DeleteRecord(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM content_record WHERE id = $1`, id)
	if err != nil {
		return r.handlePostgresError("delete record", err)
	}
	if tag.RowsAffected() == 0 {
		return storefront.ErrContentNotFound
	}
	return nil
}

func (r *Repository) FindRecordByImage(ctx context.Context, blobID uuid.UUID) (*storefront.ContentRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM content_record
		WHERE cover_image_id = $1 OR gallery_image_ids @> jsonb_build_array($2::text)
		LIMIT 1`

	record, err := scanRecord(r.db.QueryRow(ctx, query, blobID, blobID.String()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storefront.ErrContentNotFound
		}
		return nil, r.handlePostgresError("find record by image", err)
	}
	return record, nil
}

// Blob manifest operations

// CreateBlob inserts the manifest and its chunks in one transaction
func (r *Repository) CreateBlob(ctx context.Context, blob *storefront.Blob, chunks []storefront.Chunk) error {
	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO blob (id, name, mime_type, size, checksum, chunk_size, chunk_count, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			blob.ID, blob.Name, blob.MimeType, blob.Size, blob.Checksum,
			blob.ChunkSize, blob.ChunkCount, blob.CreatedAt)
		if err != nil {
			return err
		}

		if len(chunks) == 0 {
			return nil
		}
		batch := &pgx.Batch{}
		for _, c := range chunks {
			batch.Queue(`
				INSERT INTO blob_chunk (blob_id, chunk_index, object_key, size, checksum)
				VALUES ($1, $2, $3, $4, $5)`,
				blob.ID, c.Index, c.Key, c.Size, c.Checksum)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return r.handlePostgresError("create blob", err)
	}
	return nil
}

const blobColumns = `id, name, mime_type, size, checksum, chunk_size, chunk_count, created_at`

func (r *Repository) GetBlob(ctx context.Context, id uuid.UUID) (*storefront.Blob, error) {
	query := `SELECT ` + blobColumns + ` FROM blob WHERE id = $1`

	blob, err := scanBlob(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storefront.ErrBlobNotFound
		}
		return nil, r.handlePostgresError("get blob", err)
	}
	return blob, nil
}

func (r *Repository) GetChunks(ctx context.Context, blobID uuid.UUID) ([]storefront.Chunk, error) {
	if _, err := r.GetBlob(ctx, blobID); err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, `
		SELECT blob_id, chunk_index, object_key, size, checksum
		FROM blob_chunk WHERE blob_id = $1 ORDER BY chunk_index`, blobID)
	if err != nil {
		return nil, r.handlePostgresError("get chunks", err)
	}
	defer rows.Close()

	var chunks []storefront.Chunk
	for rows.Next() {
		var c storefront.Chunk
		if err := rows.Scan(&c.BlobID, &c.Index, &c.Key, &c.Size, &c.Checksum); err != nil {
			return nil, r.handlePostgresError("get chunks", err)
		}
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, r.handlePostgresError("get chunks", err)
	}
	return chunks, nil
}

func (r *Repository) ListBlobs(ctx context.Context) ([]*storefront.Blob, error) {
	rows, err := r.db.Query(ctx, `SELECT `+blobColumns+` FROM blob ORDER BY created_at`)
	if err != nil {
		return nil, r.handlePostgresError("list blobs", err)
	}
	defer rows.Close()

	blobs := []*storefront.Blob{}
	for rows.Next() {
		blob, err := scanBlob(rows)
		if err != nil {
			return nil, r.handlePostgresError("list blobs", err)
		}
		blobs = append(blobs, blob)
	}
	if err := rows.Err(); err != nil {
		return nil, r.handlePostgresError("list blobs", err)
	}
	return blobs, nil
}

// DeleteBlob removes the manifest; chunk rows follow through ON DELETE CASCADE
func (r *Repository) DeleteBlob(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM blob WHERE id = $1`, id)
	if err != nil {
		return r.handlePostgresError("delete blob", err)
	}
	if tag.RowsAffected() == 0 {
		return storefront.ErrBlobNotFound
	}
	return nil
}

func scanRecord(row pgx.Row) (*storefront.ContentRecord, error) {
	var record storefront.ContentRecord
	var gallery []byte
	err := row.Scan(
		&record.ID, &record.Name, &record.Category, &record.Region, &record.Genre,
		&record.Description, &record.DownloadLink, &record.PrimaryFileID, &record.CoverImageID,
		&gallery, &record.CreatedAt, &record.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if record.GalleryImageIDs, err = decodeGallery(gallery); err != nil {
		return nil, err
	}
	return &record, nil
}

func scanBlob(row pgx.Row) (*storefront.Blob, error) {
	var blob storefront.Blob
	err := row.Scan(&blob.ID, &blob.Name, &blob.MimeType, &blob.Size, &blob.Checksum,
		&blob.ChunkSize, &blob.ChunkCount, &blob.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &blob, nil
}

func encodeGallery(ids []uuid.UUID) ([]byte, error) {
	if ids == nil {
		ids = []uuid.UUID{}
	}
	data, err := json.Marshal(ids)
	if err != nil {
		return nil, fmt.Errorf("encode gallery: %w", err)
	}
	return data, nil
}

func decodeGallery(data []byte) ([]uuid.UUID, error) {
	ids := []uuid.UUID{}
	if len(data) == 0 {
		return ids, nil
	}
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, fmt.Errorf("decode gallery: %w", err)
	}
	if ids == nil {
		ids = []uuid.UUID{}
	}
	return ids, nil
}
