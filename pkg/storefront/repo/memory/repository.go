package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/tendant/simple-storefront/pkg/storefront"
)

// Repository implements storefront.Repository using in-memory storage
type Repository struct {
	mu      sync.RWMutex
	records map[uuid.UUID]*storefront.ContentRecord
	blobs   map[uuid.UUID]*storefront.Blob
	chunks  map[uuid.UUID][]storefront.Chunk // blob_id -> chunks in index order
}

// New creates a new in-memory repository
func New() *Repository {
	return &Repository{
		records: make(map[uuid.UUID]*storefront.ContentRecord),
		blobs:   make(map[uuid.UUID]*storefront.Blob),
		chunks:  make(map[uuid.UUID][]storefront.Chunk),
	}
}

// Record operations

func (r *Repository) CreateRecord(ctx context.Context, record *storefront.ContentRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.records[record.ID]; exists {
		return fmt.Errorf("content %s already exists", record.ID)
	}
	r.records[record.ID] = record.Clone()
	return nil
}

func (r *Repository) GetRecord(ctx context.Context, id uuid.UUID) (*storefront.ContentRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	record, exists := r.records[id]
	if !exists {
		return nil, storefront.ErrContentNotFound
	}
	return record.Clone(), nil
}

// ListRecords returns every record, newest first
func (r *Repository) ListRecords(ctx context.Context) ([]*storefront.ContentRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	records := make([]*storefront.ContentRecord, 0, len(r.records))
	for _, record := range r.records {
		records = append(records, record.Clone())
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	return records, nil
}

func (r *Repository) UpdateRecord(ctx context.Context, record *storefront.ContentRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.records[record.ID]; !exists {
		return storefront.ErrContentNotFound
	}
	r.records[record.ID] = record.Clone()
	return nil
}

func (r *Repository) DeleteRecord(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.records[id]; !exists {
		return storefront.ErrContentNotFound
	}
	delete(r.records, id)
	return nil
}

func (r *Repository) FindRecordByImage(ctx context.Context, blobID uuid.UUID) (*storefront.ContentRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, record := range r.records {
		if record.CoverImageID != nil && *record.CoverImageID == blobID {
			return record.Clone(), nil
		}
		for _, id := range record.GalleryImageIDs {
			if id == blobID {
				return record.Clone(), nil
			}
		}
	}
	return nil, storefront.ErrContentNotFound
}

// Blob manifest operations

func (r *Repository) CreateBlob(ctx context.Context, blob *storefront.Blob, chunks []storefront.Chunk) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.blobs[blob.ID]; exists {
		return fmt.Errorf("blob %s already exists", blob.ID)
	}
	blobCopy := *blob
	r.blobs[blob.ID] = &blobCopy
	r.chunks[blob.ID] = append([]storefront.Chunk(nil), chunks...)
	return nil
}

func (r *Repository) GetBlob(ctx context.Context, id uuid.UUID) (*storefront.Blob, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	blob, exists := r.blobs[id]
	if !exists {
		return nil, storefront.ErrBlobNotFound
	}
	blobCopy := *blob
	return &blobCopy, nil
}

func (r *Repository) GetChunks(ctx context.Context, blobID uuid.UUID) ([]storefront.Chunk, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, exists := r.blobs[blobID]; !exists {
		return nil, storefront.ErrBlobNotFound
	}
	return append([]storefront.Chunk(nil), r.chunks[blobID]...), nil
}

// ListBlobs returns every manifest, oldest first
func (r *Repository) ListBlobs(ctx context.Context) ([]*storefront.Blob, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	blobs := make([]*storefront.Blob, 0, len(r.blobs))
	for _, blob := range r.blobs {
		blobCopy := *blob
		blobs = append(blobs, &blobCopy)
	}
	sort.Slice(blobs, func(i, j int) bool {
		return blobs[i].CreatedAt.Before(blobs[j].CreatedAt)
	})
	return blobs, nil
}

func (r *Repository) DeleteBlob(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.blobs[id]; !exists {
		return storefront.ErrBlobNotFound
	}
	delete(r.blobs, id)
	delete(r.chunks, id)
	return nil
}
