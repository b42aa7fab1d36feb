package storefront

import (
	"context"
	"io"

	"github.com/google/uuid"
)

// StorageBackend stores the fixed-size chunk objects a blob is split into.
// Missing keys must be reported as ErrObjectNotFound.
type StorageBackend interface {
	// Upload writes size bytes from reader under key
	Upload(ctx context.Context, key string, reader io.Reader, size int64) error

	// Download opens the object stored under key
	Download(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes the object stored under key
	Delete(ctx context.Context, key string) error
}

// BlobStore is the streaming put/get/delete surface over chunked storage.
type BlobStore interface {
	// Put consumes reader and returns the blob manifest once every chunk and
	// the manifest itself are committed. Nothing is kept on failure.
	Put(ctx context.Context, reader io.Reader, name, mimeType string) (*Blob, error)

	// Get returns the manifest and a lazily fetched stream of the payload.
	Get(ctx context.Context, id uuid.UUID) (*Blob, io.ReadCloser, error)

	// Stat returns the manifest only.
	Stat(ctx context.Context, id uuid.UUID) (*Blob, error)

	// Delete removes the manifest and then the chunks.
	Delete(ctx context.Context, id uuid.UUID) error

	// List returns every stored manifest.
	List(ctx context.Context) ([]*Blob, error)
}

// RecordRepository persists content records. It has no knowledge of blobs.
type RecordRepository interface {
	CreateRecord(ctx context.Context, record *ContentRecord) error
	GetRecord(ctx context.Context, id uuid.UUID) (*ContentRecord, error)
	ListRecords(ctx context.Context) ([]*ContentRecord, error)
	UpdateRecord(ctx context.Context, record *ContentRecord) error
	DeleteRecord(ctx context.Context, id uuid.UUID) error

	// FindRecordByImage returns the record whose cover or gallery references
	// blobID, or ErrContentNotFound.
	FindRecordByImage(ctx context.Context, blobID uuid.UUID) (*ContentRecord, error)
}

// RecordReader serves the catalog read paths. It may answer from a cache,
// so mutations never build on what it returns.
type RecordReader interface {
	GetRecord(ctx context.Context, id uuid.UUID) (*ContentRecord, error)
	ListRecords(ctx context.Context) ([]*ContentRecord, error)
}

// BlobRepository persists blob manifests and their chunk lists.
type BlobRepository interface {
	// CreateBlob stores the manifest and its chunks atomically
	CreateBlob(ctx context.Context, blob *Blob, chunks []Chunk) error
	GetBlob(ctx context.Context, id uuid.UUID) (*Blob, error)
	GetChunks(ctx context.Context, blobID uuid.UUID) ([]Chunk, error)
	ListBlobs(ctx context.Context) ([]*Blob, error)
	DeleteBlob(ctx context.Context, id uuid.UUID) error
}

// Repository is implemented by the bundled repositories, which keep records
// and blob manifests in the same database.
type Repository interface {
	RecordRepository
	BlobRepository
}

// Pinger is implemented by dependencies that can report readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// EventSink receives lifecycle notifications. Errors are logged by the
// service and never fail the operation that raised them.
type EventSink interface {
	// ContentCreated is fired after a record is committed
	ContentCreated(ctx context.Context, record *ContentRecord) error

	// ContentUpdated is fired after an update is committed
	ContentUpdated(ctx context.Context, record *ContentRecord) error

	// ContentDeleted is fired after a record is removed
	ContentDeleted(ctx context.Context, report *DeleteReport) error

	// BlobStored is fired for each blob written by a lifecycle operation
	BlobStored(ctx context.Context, blob *Blob) error

	// BlobDeleted is fired for each blob deletion attempt
	BlobDeleted(ctx context.Context, blobID uuid.UUID, err error) error
}
