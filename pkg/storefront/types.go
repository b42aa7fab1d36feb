package storefront

import (
	"io"
	"time"

	"github.com/google/uuid"
)

// ContentRecord is a catalog entry together with references to its blobs.
type ContentRecord struct {
	ID              uuid.UUID   `json:"id"`
	Name            string      `json:"name"`
	Category        string      `json:"category"`
	Region          string      `json:"region"`
	Genre           string      `json:"genre"`
	Description     string      `json:"description"`
	DownloadLink    string      `json:"download_link,omitempty"`
	PrimaryFileID   *uuid.UUID  `json:"primary_file_id,omitempty"`
	CoverImageID    *uuid.UUID  `json:"cover_image_id,omitempty"`
	GalleryImageIDs []uuid.UUID `json:"gallery_image_ids"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// Clone returns a deep copy so callers can mutate references safely.
func (r *ContentRecord) Clone() *ContentRecord {
	if r == nil {
		return nil
	}
	c := *r
	if r.PrimaryFileID != nil {
		id := *r.PrimaryFileID
		c.PrimaryFileID = &id
	}
	if r.CoverImageID != nil {
		id := *r.CoverImageID
		c.CoverImageID = &id
	}
	c.GalleryImageIDs = append([]uuid.UUID{}, r.GalleryImageIDs...)
	return &c
}

// BlobRef pairs a referenced blob with the slot holding it.
type BlobRef struct {
	Slot   Slot
	BlobID uuid.UUID
}

// BlobRefs lists every blob the record references, primary file first and
// gallery images in display order.
func (r *ContentRecord) BlobRefs() []BlobRef {
	var refs []BlobRef
	if r.PrimaryFileID != nil {
		refs = append(refs, BlobRef{Slot: SlotFile, BlobID: *r.PrimaryFileID})
	}
	if r.CoverImageID != nil {
		refs = append(refs, BlobRef{Slot: SlotCover, BlobID: *r.CoverImageID})
	}
	for _, id := range r.GalleryImageIDs {
		refs = append(refs, BlobRef{Slot: SlotGallery, BlobID: id})
	}
	return refs
}

// Blob is the manifest of a stored binary payload.
type Blob struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	MimeType   string    `json:"mime_type"`
	Size       int64     `json:"size"`
	Checksum   string    `json:"checksum"`
	ChunkSize  int64     `json:"chunk_size"`
	ChunkCount int       `json:"chunk_count"`
	CreatedAt  time.Time `json:"created_at"`
}

// Chunk is one fixed-size piece of a blob held by a storage backend.
type Chunk struct {
	BlobID   uuid.UUID `json:"blob_id"`
	Index    int       `json:"index"`
	Key      string    `json:"key"`
	Size     int64     `json:"size"`
	Checksum string    `json:"checksum"`
}

// FileUpload is a named stream to be stored as a blob.
type FileUpload struct {
	Name     string
	MimeType string
	Reader   io.Reader
}

// LifecycleState tracks a mutating operation on a content record.
type LifecycleState string

const (
	StatePending     LifecycleState = "pending"
	StateBlobsStaged LifecycleState = "blobs_staged"
	StateCommitted   LifecycleState = "committed"
	StateFailed      LifecycleState = "failed"
)

// BlobDeletion is the outcome of deleting one referenced blob.
type BlobDeletion struct {
	BlobID      uuid.UUID
	Slot        Slot
	AlreadyGone bool
	Err         error
}

// DeleteReport collects per-blob outcomes of a record deletion.
type DeleteReport struct {
	ContentID uuid.UUID
	Blobs     []BlobDeletion
}

// Failed returns the deletions that did not succeed.
func (r *DeleteReport) Failed() []BlobDeletion {
	var failed []BlobDeletion
	for _, d := range r.Blobs {
		if d.Err != nil {
			failed = append(failed, d)
		}
	}
	return failed
}
