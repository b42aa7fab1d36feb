package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/tendant/simple-storefront/pkg/storefront"
	_ "modernc.org/sqlite"
)

// Repository implements storefront.Repository using SQLite
type Repository struct {
	db *sql.DB
}

// NewRepository opens (creating if needed) the database at dbPath
func NewRepository(dbPath string) (*Repository, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	repo := &Repository{db: db}
	if err := repo.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return repo, nil
}

// Close closes the database connection
func (r *Repository) Close() error {
	return r.db.Close()
}

// Ping checks the database connection
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *Repository) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS content_record (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			category TEXT NOT NULL,
			region TEXT NOT NULL DEFAULT '',
			genre TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			download_link TEXT NOT NULL DEFAULT '',
			primary_file_id TEXT,
			cover_image_id TEXT,
			gallery_image_ids TEXT NOT NULL DEFAULT '[]',
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_content_record_created_at ON content_record(created_at);`,
		`CREATE TABLE IF NOT EXISTS blob (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			mime_type TEXT NOT NULL,
			size INTEGER NOT NULL,
			checksum TEXT NOT NULL,
			chunk_size INTEGER NOT NULL,
			chunk_count INTEGER NOT NULL,
			created_at DATETIME NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS blob_chunk (
			blob_id TEXT NOT NULL,
			chunk_index INTEGER NOT NULL,
			object_key TEXT NOT NULL,
			size INTEGER NOT NULL,
			checksum TEXT NOT NULL,
			PRIMARY KEY (blob_id, chunk_index)
		);`,
	}
	for _, stmt := range statements {
		if _, err := r.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

// Record operations

const recordColumns = `id, name, category, region, genre, description, download_link,
	primary_file_id, cover_image_id, gallery_image_ids, created_at, updated_at`

func (r *Repository) CreateRecord(ctx context.Context, record *storefront.ContentRecord) error {
	gallery, err := encodeGallery(record.GalleryImageIDs)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO content_record (`+recordColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID.String(), record.Name, record.Category, record.Region, record.Genre,
		record.Description, record.DownloadLink, nullableID(record.PrimaryFileID),
		nullableID(record.CoverImageID), gallery, record.CreatedAt.UTC(), record.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to create record: %w", err)
	}
	return nil
}

func (r *Repository) GetRecord(ctx context.Context, id uuid.UUID) (*storefront.ContentRecord, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM content_record WHERE id = ?`, id.String())

	record, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storefront.ErrContentNotFound
		}
		return nil, fmt.Errorf("failed to get record: %w", err)
	}
	return record, nil
}

func (r *Repository) ListRecords(ctx context.Context) ([]*storefront.ContentRecord, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+recordColumns+` FROM content_record ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	defer rows.Close()

	records := []*storefront.ContentRecord{}
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func (r *Repository) UpdateRecord(ctx context.Context, record *storefront.ContentRecord) error {
	gallery, err := encodeGallery(record.GalleryImageIDs)
	if err != nil {
		return err
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE content_record SET
			name = ?, category = ?, region = ?, genre = ?, description = ?,
			download_link = ?, primary_file_id = ?, cover_image_id = ?,
			gallery_image_ids = ?, updated_at = ?
		WHERE id = ?`,
		record.Name, record.Category, record.Region, record.Genre, record.Description,
		record.DownloadLink, nullableID(record.PrimaryFileID), nullableID(record.CoverImageID),
		gallery, record.UpdatedAt.UTC(), record.ID.String())
	if err != nil {
		return fmt.Errorf("failed to update record: %w", err)
	}
	return expectOneRow(result, storefront.ErrContentNotFound)
}

func (r *Repository) DeleteRecord(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM content_record WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	return expectOneRow(result, storefront.ErrContentNotFound)
}

func (r *Repository) FindRecordByImage(ctx context.Context, blobID uuid.UUID) (*storefront.ContentRecord, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM content_record
		WHERE cover_image_id = ?
			OR EXISTS (SELECT 1 FROM json_each(content_record.gallery_image_ids) WHERE json_each.value = ?)
		LIMIT 1`, blobID.String(), blobID.String())

	record, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storefront.ErrContentNotFound
		}
		return nil, fmt.Errorf("failed to find record by image: %w", err)
	}
	return record, nil
}

// Blob manifest operations

func (r *Repository) CreateBlob(ctx context.Context, blob *storefront.Blob, chunks []storefront.Chunk) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO blob (id, name, mime_type, size, checksum, chunk_size, chunk_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		blob.ID.String(), blob.Name, blob.MimeType, blob.Size, blob.Checksum,
		blob.ChunkSize, blob.ChunkCount, blob.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to create blob: %w", err)
	}

	for _, c := range chunks {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO blob_chunk (blob_id, chunk_index, object_key, size, checksum)
			VALUES (?, ?, ?, ?, ?)`,
			blob.ID.String(), c.Index, c.Key, c.Size, c.Checksum)
		if err != nil {
			return fmt.Errorf("failed to create chunk %d: %w", c.Index, err)
		}
	}

	return tx.Commit()
}

const blobColumns = `id, name, mime_type, size, checksum, chunk_size, chunk_count, created_at`

func (r *Repository) GetBlob(ctx context.Context, id uuid.UUID) (*storefront.Blob, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+blobColumns+` FROM blob WHERE id = ?`, id.String())

	blob, err := scanBlob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storefront.ErrBlobNotFound
		}
		return nil, fmt.Errorf("failed to get blob: %w", err)
	}
	return blob, nil
}

func (r *Repository) GetChunks(ctx context.Context, blobID uuid.UUID) ([]storefront.Chunk, error) {
	if _, err := r.GetBlob(ctx, blobID); err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT chunk_index, object_key, size, checksum
		FROM blob_chunk WHERE blob_id = ? ORDER BY chunk_index`, blobID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to get chunks: %w", err)
	}
	defer rows.Close()

	var chunks []storefront.Chunk
	for rows.Next() {
		c := storefront.Chunk{BlobID: blobID}
		if err := rows.Scan(&c.Index, &c.Key, &c.Size, &c.Checksum); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

func (r *Repository) ListBlobs(ctx context.Context) ([]*storefront.Blob, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+blobColumns+` FROM blob ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list blobs: %w", err)
	}
	defer rows.Close()

	blobs := []*storefront.Blob{}
	for rows.Next() {
		blob, err := scanBlob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan blob: %w", err)
		}
		blobs = append(blobs, blob)
	}
	return blobs, rows.Err()
}

func (r *Repository) DeleteBlob(ctx context.Context, id uuid.UUID) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `DELETE FROM blob WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("failed to delete blob: %w", err)
	}
	if err := expectOneRow(result, storefront.ErrBlobNotFound); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM blob_chunk WHERE blob_id = ?`, id.String()); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}

	return tx.Commit()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*storefront.ContentRecord, error) {
	var (
		record         storefront.ContentRecord
		id             string
		primary, cover sql.NullString
		gallery        string
	)
	err := row.Scan(&id, &record.Name, &record.Category, &record.Region, &record.Genre,
		&record.Description, &record.DownloadLink, &primary, &cover, &gallery,
		&record.CreatedAt, &record.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if record.ID, err = uuid.Parse(id); err != nil {
		return nil, err
	}
	if record.PrimaryFileID, err = parseNullableID(primary); err != nil {
		return nil, err
	}
	if record.CoverImageID, err = parseNullableID(cover); err != nil {
		return nil, err
	}
	record.GalleryImageIDs = []uuid.UUID{}
	if gallery != "" {
		if err := json.Unmarshal([]byte(gallery), &record.GalleryImageIDs); err != nil {
			return nil, fmt.Errorf("decode gallery: %w", err)
		}
	}
	return &record, nil
}

func scanBlob(row scanner) (*storefront.Blob, error) {
	var blob storefront.Blob
	var id string
	err := row.Scan(&id, &blob.Name, &blob.MimeType, &blob.Size, &blob.Checksum,
		&blob.ChunkSize, &blob.ChunkCount, &blob.CreatedAt)
	if err != nil {
		return nil, err
	}
	if blob.ID, err = uuid.Parse(id); err != nil {
		return nil, err
	}
	return &blob, nil
}

func nullableID(id *uuid.UUID) sql.NullString {
	if id == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: id.String(), Valid: true}
}

func parseNullableID(s sql.NullString) (*uuid.UUID, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	id, err := uuid.Parse(s.String)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func encodeGallery(ids []uuid.UUID) (string, error) {
	if ids == nil {
		ids = []uuid.UUID{}
	}
	data, err := json.Marshal(ids)
	if err != nil {
		return "", fmt.Errorf("encode gallery: %w", err)
	}
	return string(data), nil
}

func expectOneRow(result sql.Result, notFound error) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}
