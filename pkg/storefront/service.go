package storefront

import (
	"context"
	"io"
)

// Service is the content lifecycle manager. It keeps content records and
// the blobs they reference consistent across create, update and delete.
type Service interface {
	// CreateContent validates the request, stores every supplied file and
	// only then writes the record. Blobs stored by a failed attempt are
	// removed before returning.
	CreateContent(ctx context.Context, req CreateContentRequest) (*ContentRecord, error)

	// GetContent returns a record. Malformed ids are reported as not found.
	GetContent(ctx context.Context, id string) (*ContentRecord, error)

	// ListContent returns every record.
	ListContent(ctx context.Context) ([]*ContentRecord, error)

	// UpdateContent stages new files, saves the record pointing at them and
	// then removes the blobs they replaced.
	UpdateContent(ctx context.Context, req UpdateContentRequest) (*ContentRecord, error)

	// DeleteContent removes every referenced blob on a best-effort basis and
	// then the record. The report lists each blob outcome.
	DeleteContent(ctx context.Context, id string) (*DeleteReport, error)

	// DeleteSlot clears one slot and deletes its blob(s).
	DeleteSlot(ctx context.Context, id string, slotName string) (*ContentRecord, error)

	// DeleteGalleryImage removes a single gallery entry and its blob.
	DeleteGalleryImage(ctx context.Context, id string, blobID string) (*ContentRecord, error)

	// OpenBlob streams a stored blob.
	OpenBlob(ctx context.Context, blobID string) (*Blob, io.ReadCloser, error)

	// OpenPreview streams a blob only when a record uses it as its cover or
	// as a gallery image. Any other blob is reported as not found.
	OpenPreview(ctx context.Context, blobID string) (*Blob, io.ReadCloser, error)

	// StatBlob returns a blob manifest.
	StatBlob(ctx context.Context, blobID string) (*Blob, error)
}

// CreateContentRequest carries the fields and files of a new record.
type CreateContentRequest struct {
	Name          string
	Category      string
	Region        string
	Genre         string
	Description   string
	DownloadLink  string
	File          *FileUpload
	CoverImage    *FileUpload
	GalleryImages []FileUpload
}

// UpdateContentRequest changes an existing record. Nil text fields and nil
// files leave the current value untouched.
type UpdateContentRequest struct {
	ID            string
	Name          string
	Category      *string
	Region        *string
	Genre         *string
	Description   *string
	DownloadLink  *string
	File          *FileUpload
	CoverImage    *FileUpload
	GalleryImages []FileUpload
	// AppendGallery adds GalleryImages after the existing ones instead of
	// replacing the whole gallery.
	AppendGallery bool
}
