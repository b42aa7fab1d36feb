package storefront

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Error types
var (
	// ErrNotFound is the root of every not-found error in the package
	ErrNotFound = errors.New("not found")

	// ErrContentNotFound indicates a content record was not found
	ErrContentNotFound = fmt.Errorf("content %w", ErrNotFound)

	// ErrBlobNotFound indicates a blob manifest was not found
	ErrBlobNotFound = fmt.Errorf("blob %w", ErrNotFound)

	// ErrObjectNotFound indicates a chunk object was not found in a storage backend
	ErrObjectNotFound = fmt.Errorf("object %w", ErrNotFound)

	// ErrGalleryImageNotFound indicates the blob is not part of the record's gallery
	ErrGalleryImageNotFound = fmt.Errorf("gallery image %w", ErrNotFound)

	// ErrSlotEmpty indicates a slot holds no blob reference
	ErrSlotEmpty = fmt.Errorf("slot reference %w", ErrNotFound)

	// ErrValidation indicates a request failed validation
	ErrValidation = errors.New("validation failed")

	// ErrInvalidSlot indicates an unknown slot name
	ErrInvalidSlot = errors.New("invalid slot")

	// ErrUnauthorized indicates missing, invalid or expired credentials
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden indicates a valid credential without the required role
	ErrForbidden = errors.New("forbidden")

	// ErrUpload indicates a lifecycle operation failed while storing blobs
	ErrUpload = errors.New("upload failed")

	// ErrStoreWrite indicates a blob could not be written to the chunk store
	ErrStoreWrite = errors.New("store write failed")

	// ErrExternalService indicates the order verification service failed
	ErrExternalService = errors.New("external service error")

	// ErrPayloadTooLarge indicates the request body exceeded the configured limit
	ErrPayloadTooLarge = errors.New("payload too large")
)

// ValidationError describes a rejected request field
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// SlotError reports an unknown slot name
type SlotError struct {
	Name string
}

func (e *SlotError) Error() string {
	return fmt.Sprintf("invalid slot %q", e.Name)
}

func (e *SlotError) Unwrap() error {
	return ErrInvalidSlot
}

// ContentError represents an error related to content operations
type ContentError struct {
	ContentID uuid.UUID
	Op        string
	Err       error
}

func (e *ContentError) Error() string {
	return fmt.Sprintf("content operation %s failed for content %s: %v", e.Op, e.ContentID, e.Err)
}

func (e *ContentError) Unwrap() error {
	return e.Err
}

// BlobError represents an error related to blob operations
type BlobError struct {
	BlobID uuid.UUID
	Op     string
	Err    error
}

func (e *BlobError) Error() string {
	return fmt.Sprintf("blob operation %s failed for blob %s: %v", e.Op, e.BlobID, e.Err)
}

func (e *BlobError) Unwrap() error {
	return e.Err
}

// StorageError represents an error related to storage backend operations
type StorageError struct {
	Backend string
	Key     string
	Op      string
	Err     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage operation %s failed for key %s on backend %s: %v", e.Op, e.Key, e.Backend, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Kind is the machine readable error category exposed to clients
type Kind string

const (
	KindValidation      Kind = "validation_error"
	KindNotFound        Kind = "not_found"
	KindInvalidSlot     Kind = "invalid_slot"
	KindUnauthorized    Kind = "unauthorized"
	KindForbidden       Kind = "forbidden"
	KindUpload          Kind = "upload_error"
	KindExternalService Kind = "external_service_error"
	KindPayloadTooLarge Kind = "payload_too_large"
	KindInternal        Kind = "internal_error"
)

// KindOf maps an error onto the client facing taxonomy.
// Upload failures are checked before not-found so that a missing chunk
// during a write is still reported as an upload error.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrInvalidSlot):
		return KindInvalidSlot
	case errors.Is(err, ErrPayloadTooLarge):
		return KindPayloadTooLarge
	case errors.Is(err, ErrUpload), errors.Is(err, ErrStoreWrite):
		return KindUpload
	case errors.Is(err, ErrExternalService):
		return KindExternalService
	case errors.Is(err, ErrUnauthorized):
		return KindUnauthorized
	case errors.Is(err, ErrForbidden):
		return KindForbidden
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	default:
		return KindInternal
	}
}

var notFoundMessages = []error{
	ErrContentNotFound,
	ErrGalleryImageNotFound,
	ErrSlotEmpty,
	ErrBlobNotFound,
}

// PublicMessage returns a human readable message for err that is safe to
// show to clients. Storage and database details are never included.
func PublicMessage(err error) string {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr.Error()
	}
	var serr *SlotError
	if errors.As(err, &serr) {
		return serr.Error()
	}

	switch KindOf(err) {
	case KindNotFound:
		for _, target := range notFoundMessages {
			if errors.Is(err, target) {
				return target.Error()
			}
		}
		return ErrNotFound.Error()
	case KindUnauthorized:
		return "missing, invalid or expired credential"
	case KindForbidden:
		return "insufficient role for this operation"
	case KindUpload:
		return "failed to store uploaded files"
	case KindExternalService:
		return "error verifying order"
	case KindPayloadTooLarge:
		return "request body too large"
	default:
		return "internal server error"
	}
}
