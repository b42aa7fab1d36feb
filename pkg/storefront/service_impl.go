package storefront

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

var tracer = otel.Tracer("github.com/tendant/simple-storefront/pkg/storefront")

// service implements the Service interface
type service struct {
	records           RecordRepository
	reads             RecordReader
	blobs             BlobStore
	eventSink         EventSink
	catalog           Catalog
	logger            *slog.Logger
	locks             *recordLocks
	uploadConcurrency int
	now               func() time.Time
}

// Option represents a functional option for configuring the service
type Option func(*service)

// WithRecordRepository sets the content record store
func WithRecordRepository(repo RecordRepository) Option {
	return func(s *service) {
		s.records = repo
	}
}

// WithRecordReader sets the store GetContent and ListContent answer from,
// typically a cache in front of the record repository. Mutations always
// read the record repository.
func WithRecordReader(reader RecordReader) Option {
	return func(s *service) {
		s.reads = reader
	}
}

// WithBlobStore sets the chunked blob store
func WithBlobStore(store BlobStore) Option {
	return func(s *service) {
		s.blobs = store
	}
}

// WithEventSink sets the event sink for the service
func WithEventSink(sink EventSink) Option {
	return func(s *service) {
		s.eventSink = sink
	}
}

// WithCatalog sets the category set and gallery rules
func WithCatalog(catalog Catalog) Option {
	return func(s *service) {
		s.catalog = catalog
	}
}

// WithLogger sets the logger used for lifecycle and cleanup messages
func WithLogger(logger *slog.Logger) Option {
	return func(s *service) {
		s.logger = logger
	}
}

// WithUploadConcurrency caps the number of files stored in parallel by a
// single operation
func WithUploadConcurrency(n int) Option {
	return func(s *service) {
		s.uploadConcurrency = n
	}
}

// WithClock overrides the timestamp source
func WithClock(now func() time.Time) Option {
	return func(s *service) {
		s.now = now
	}
}

// New creates a new service instance with the given options.
// A record repository and a blob store are required.
func New(options ...Option) (Service, error) {
	s := &service{
		eventSink:         NewNoopEventSink(),
		catalog:           DefaultCatalog(),
		logger:            slog.Default(),
		locks:             newRecordLocks(),
		uploadConcurrency: 4,
		now:               func() time.Time { return time.Now().UTC() },
	}

	for _, option := range options {
		option(s)
	}

	if s.records == nil {
		return nil, fmt.Errorf("record repository is required")
	}
	if s.blobs == nil {
		return nil, fmt.Errorf("blob store is required")
	}
	if s.reads == nil {
		s.reads = s.records
	}
	if s.uploadConcurrency < 1 {
		s.uploadConcurrency = 1
	}

	return s, nil
}

// uploadJob is one file headed for a slot.
type uploadJob struct {
	slot  Slot
	field string
	file  FileUpload
}

func uploadJobs(file, cover *FileUpload, gallery []FileUpload) []uploadJob {
	var jobs []uploadJob
	if file != nil {
		jobs = append(jobs, uploadJob{slot: SlotFile, field: "file", file: *file})
	}
	if cover != nil {
		jobs = append(jobs, uploadJob{slot: SlotCover, field: "coverImage", file: *cover})
	}
	for _, img := range gallery {
		jobs = append(jobs, uploadJob{slot: SlotGallery, field: "galleryImages", file: img})
	}
	return jobs
}

func validateJobs(jobs []uploadJob) error {
	for i := range jobs {
		if err := validateUpload(jobs[i].field, &jobs[i].file); err != nil {
			return err
		}
	}
	return nil
}

// Content operations

func (s *service) CreateContent(ctx context.Context, req CreateContentRequest) (*ContentRecord, error) {
	ctx, span := tracer.Start(ctx, "storefront.create_content")
	defer span.End()

	record, jobs, err := s.prepareCreate(req)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.String("content.id", record.ID.String()), attribute.Int("content.files", len(jobs)))

	log := s.logger.With("content_id", record.ID, "op", "create")
	s.transition(ctx, span, log, StatePending, nil)

	blobs, err := s.stage(ctx, jobs)
	if err != nil {
		s.transition(ctx, span, log, StateFailed, err)
		return nil, &ContentError{ContentID: record.ID, Op: "create", Err: err}
	}
	s.transition(ctx, span, log, StateBlobsStaged, nil)

	for i, job := range jobs {
		id := blobs[i].ID
		switch job.slot {
		case SlotFile:
			record.PrimaryFileID = &id
		case SlotCover:
			record.CoverImageID = &id
		case SlotGallery:
			record.GalleryImageIDs = append(record.GalleryImageIDs, id)
		}
	}

	now := s.now()
	record.CreatedAt = now
	record.UpdatedAt = now

	if err := s.records.CreateRecord(ctx, record); err != nil {
		s.discard(ctx, blobs)
		s.transition(ctx, span, log, StateFailed, err)
		return nil, &ContentError{ContentID: record.ID, Op: "create", Err: err}
	}
	s.transition(ctx, span, log, StateCommitted, nil)

	s.emit(ctx, "content_created", s.eventSink.ContentCreated(ctx, record))
	return record.Clone(), nil
}

func (s *service) prepareCreate(req CreateContentRequest) (*ContentRecord, []uploadJob, error) {
	name, err := validateName(req.Name)
	if err != nil {
		return nil, nil, err
	}
	category, err := s.catalog.validateCategory(req.Category)
	if err != nil {
		return nil, nil, err
	}
	link, err := validateDownloadLink(req.DownloadLink)
	if err != nil {
		return nil, nil, err
	}
	if s.catalog.RequireCoverImage && req.CoverImage == nil {
		return nil, nil, &ValidationError{Field: "coverImage", Message: "is required"}
	}
	if err := s.catalog.validateGalleryCount(len(req.GalleryImages)); err != nil {
		return nil, nil, err
	}

	jobs := uploadJobs(req.File, req.CoverImage, req.GalleryImages)
	if err := validateJobs(jobs); err != nil {
		return nil, nil, err
	}

	record := &ContentRecord{
		ID:              uuid.New(),
		Name:            name,
		Category:        category,
		Region:          strings.TrimSpace(req.Region),
		Genre:           strings.TrimSpace(req.Genre),
		Description:     strings.TrimSpace(req.Description),
		DownloadLink:    link,
		GalleryImageIDs: []uuid.UUID{},
	}
	return record, jobs, nil
}

func (s *service) GetContent(ctx context.Context, id string) (*ContentRecord, error) {
	contentID, err := parseContentID(id)
	if err != nil {
		return nil, err
	}
	return s.reads.GetRecord(ctx, contentID)
}

func (s *service) ListContent(ctx context.Context) ([]*ContentRecord, error) {
	records, err := s.reads.ListRecords(ctx)
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []*ContentRecord{}
	}
	return records, nil
}

func (s *service) UpdateContent(ctx context.Context, req UpdateContentRequest) (*ContentRecord, error) {
	ctx, span := tracer.Start(ctx, "storefront.update_content", trace.WithAttributes(attribute.String("content.id", req.ID)))
	defer span.End()

	contentID, err := parseContentID(req.ID)
	if err != nil {
		return nil, err
	}
	name, err := validateName(req.Name)
	if err != nil {
		return nil, err
	}
	var category string
	if req.Category != nil {
		if category, err = s.catalog.validateCategory(*req.Category); err != nil {
			return nil, err
		}
	}
	var link string
	if req.DownloadLink != nil {
		if link, err = validateDownloadLink(*req.DownloadLink); err != nil {
			return nil, err
		}
	}
	jobs := uploadJobs(req.File, req.CoverImage, req.GalleryImages)
	if err := validateJobs(jobs); err != nil {
		return nil, err
	}

	unlock := s.locks.lock(contentID)
	defer unlock()

	current, err := s.records.GetRecord(ctx, contentID)
	if err != nil {
		return nil, err
	}

	galleryCount := len(req.GalleryImages)
	if req.AppendGallery {
		galleryCount += len(current.GalleryImageIDs)
	}
	if err := s.catalog.validateGalleryCount(galleryCount); err != nil {
		return nil, err
	}

	log := s.logger.With("content_id", contentID, "op", "update")
	s.transition(ctx, span, log, StatePending, nil)

	blobs, err := s.stage(ctx, jobs)
	if err != nil {
		s.transition(ctx, span, log, StateFailed, err)
		return nil, &ContentError{ContentID: contentID, Op: "update", Err: err}
	}
	s.transition(ctx, span, log, StateBlobsStaged, nil)

	updated := current.Clone()
	updated.Name = name
	if req.Category != nil {
		updated.Category = category
	}
	if req.Region != nil {
		updated.Region = strings.TrimSpace(*req.Region)
	}
	if req.Genre != nil {
		updated.Genre = strings.TrimSpace(*req.Genre)
	}
	if req.Description != nil {
		updated.Description = strings.TrimSpace(*req.Description)
	}
	if req.DownloadLink != nil {
		updated.DownloadLink = link
	}

	var replaced []BlobRef
	var gallery []uuid.UUID
	for i, job := range jobs {
		id := blobs[i].ID
		switch job.slot {
		case SlotFile:
			if updated.PrimaryFileID != nil {
				replaced = append(replaced, BlobRef{Slot: SlotFile, BlobID: *updated.PrimaryFileID})
			}
			updated.PrimaryFileID = &id
		case SlotCover:
			if updated.CoverImageID != nil {
				replaced = append(replaced, BlobRef{Slot: SlotCover, BlobID: *updated.CoverImageID})
			}
			updated.CoverImageID = &id
		case SlotGallery:
			gallery = append(gallery, id)
		}
	}
	if len(gallery) > 0 {
		if req.AppendGallery {
			updated.GalleryImageIDs = append(updated.GalleryImageIDs, gallery...)
		} else {
			for _, old := range updated.GalleryImageIDs {
				replaced = append(replaced, BlobRef{Slot: SlotGallery, BlobID: old})
			}
			updated.GalleryImageIDs = gallery
		}
	}
	updated.UpdatedAt = s.now()

	if err := s.records.UpdateRecord(ctx, updated); err != nil {
		s.discard(ctx, blobs)
		s.transition(ctx, span, log, StateFailed, err)
		return nil, &ContentError{ContentID: contentID, Op: "update", Err: err}
	}
	s.transition(ctx, span, log, StateCommitted, nil)

	// The record no longer points at the replaced blobs.
	for _, d := range s.deleteBlobs(ctx, replaced) {
		if d.Err != nil {
			log.WarnContext(ctx, "failed to delete replaced blob", "blob_id", d.BlobID, "slot", d.Slot, "error", d.Err)
		}
	}

	s.emit(ctx, "content_updated", s.eventSink.ContentUpdated(ctx, updated))
	return updated.Clone(), nil
}

func (s *service) DeleteContent(ctx context.Context, id string) (*DeleteReport, error) {
	ctx, span := tracer.Start(ctx, "storefront.delete_content", trace.WithAttributes(attribute.String("content.id", id)))
	defer span.End()

	contentID, err := parseContentID(id)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.lock(contentID)
	defer unlock()

	record, err := s.records.GetRecord(ctx, contentID)
	if err != nil {
		return nil, err
	}

	log := s.logger.With("content_id", contentID, "op", "delete")
	report := &DeleteReport{ContentID: contentID}
	report.Blobs = s.deleteBlobs(ctx, record.BlobRefs())
	for _, d := range report.Failed() {
		log.WarnContext(ctx, "failed to delete blob", "blob_id", d.BlobID, "slot", d.Slot, "error", d.Err)
	}
	span.SetAttributes(attribute.Int("content.blobs", len(report.Blobs)), attribute.Int("content.failed_blobs", len(report.Failed())))

	if err := s.records.DeleteRecord(ctx, contentID); err != nil {
		span.RecordError(err)
		return report, &ContentError{ContentID: contentID, Op: "delete", Err: err}
	}

	s.emit(ctx, "content_deleted", s.eventSink.ContentDeleted(ctx, report))
	return report, nil
}

func (s *service) DeleteSlot(ctx context.Context, id string, slotName string) (*ContentRecord, error) {
	ctx, span := tracer.Start(ctx, "storefront.delete_slot", trace.WithAttributes(
		attribute.String("content.id", id),
		attribute.String("content.slot", slotName),
	))
	defer span.End()

	slot, err := ParseSlot(slotName)
	if err != nil {
		return nil, err
	}
	contentID, err := parseContentID(id)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.lock(contentID)
	defer unlock()

	record, err := s.records.GetRecord(ctx, contentID)
	if err != nil {
		return nil, err
	}

	var refs []BlobRef
	for _, ref := range record.BlobRefs() {
		if ref.Slot == slot {
			refs = append(refs, ref)
		}
	}
	if len(refs) == 0 {
		return nil, &ContentError{ContentID: contentID, Op: "delete slot " + string(slot), Err: ErrSlotEmpty}
	}

	// Blobs go first. Only references whose blob is gone are dropped, so a
	// failed deletion leaves its reference valid.
	updated := record.Clone()
	var failures []error
	for _, d := range s.deleteBlobs(ctx, refs) {
		if d.Err != nil {
			failures = append(failures, fmt.Errorf("blob %s: %w", d.BlobID, d.Err))
			continue
		}
		switch slot {
		case SlotFile:
			updated.PrimaryFileID = nil
		case SlotCover:
			updated.CoverImageID = nil
		case SlotGallery:
			updated.GalleryImageIDs = removeID(updated.GalleryImageIDs, d.BlobID)
		}
	}

	if len(failures) < len(refs) {
		updated.UpdatedAt = s.now()
		if err := s.records.UpdateRecord(ctx, updated); err != nil {
			s.logger.ErrorContext(ctx, "record still references deleted blobs", "content_id", contentID, "slot", slot, "error", err)
			return nil, &ContentError{ContentID: contentID, Op: "delete slot " + string(slot), Err: err}
		}
		s.emit(ctx, "content_updated", s.eventSink.ContentUpdated(ctx, updated))
	}
	if len(failures) > 0 {
		err := errors.Join(failures...)
		span.RecordError(err)
		return nil, &ContentError{ContentID: contentID, Op: "delete slot " + string(slot), Err: err}
	}

	return updated.Clone(), nil
}

func (s *service) DeleteGalleryImage(ctx context.Context, id string, blobID string) (*ContentRecord, error) {
	ctx, span := tracer.Start(ctx, "storefront.delete_gallery_image", trace.WithAttributes(
		attribute.String("content.id", id),
		attribute.String("blob.id", blobID),
	))
	defer span.End()

	contentID, err := parseContentID(id)
	if err != nil {
		return nil, err
	}
	imageID, err := uuid.Parse(blobID)
	if err != nil {
		return nil, &ContentError{ContentID: contentID, Op: "delete gallery image", Err: ErrGalleryImageNotFound}
	}

	unlock := s.locks.lock(contentID)
	defer unlock()

	record, err := s.records.GetRecord(ctx, contentID)
	if err != nil {
		return nil, err
	}
	if !containsID(record.GalleryImageIDs, imageID) {
		return nil, &ContentError{ContentID: contentID, Op: "delete gallery image", Err: ErrGalleryImageNotFound}
	}

	results := s.deleteBlobs(ctx, []BlobRef{{Slot: SlotGallery, BlobID: imageID}})
	if err := results[0].Err; err != nil {
		span.RecordError(err)
		return nil, &ContentError{ContentID: contentID, Op: "delete gallery image", Err: err}
	}

	updated := record.Clone()
	updated.GalleryImageIDs = removeID(updated.GalleryImageIDs, imageID)
	updated.UpdatedAt = s.now()
	if err := s.records.UpdateRecord(ctx, updated); err != nil {
		s.logger.ErrorContext(ctx, "record still references deleted blob", "content_id", contentID, "blob_id", imageID, "error", err)
		return nil, &ContentError{ContentID: contentID, Op: "delete gallery image", Err: err}
	}

	s.emit(ctx, "content_updated", s.eventSink.ContentUpdated(ctx, updated))
	return updated.Clone(), nil
}

// Blob operations

func (s *service) OpenBlob(ctx context.Context, blobID string) (*Blob, io.ReadCloser, error) {
	id, err := parseBlobID(blobID)
	if err != nil {
		return nil, nil, err
	}
	return s.blobs.Get(ctx, id)
}

func (s *service) OpenPreview(ctx context.Context, blobID string) (*Blob, io.ReadCloser, error) {
	id, err := parseBlobID(blobID)
	if err != nil {
		return nil, nil, err
	}
	if _, err := s.records.FindRecordByImage(ctx, id); err != nil {
		if errors.Is(err, ErrContentNotFound) {
			return nil, nil, fmt.Errorf("blob %s is not a cover or gallery image: %w", id, ErrBlobNotFound)
		}
		return nil, nil, err
	}
	return s.blobs.Get(ctx, id)
}

func (s *service) StatBlob(ctx context.Context, blobID string) (*Blob, error) {
	id, err := parseBlobID(blobID)
	if err != nil {
		return nil, err
	}
	return s.blobs.Stat(ctx, id)
}

// stage stores every job concurrently. On failure every blob written by
// this call is deleted and nothing is returned.
func (s *service) stage(ctx context.Context, jobs []uploadJob) ([]*Blob, error) {
	if len(jobs) == 0 {
		return nil, nil
	}

	results := make([]*Blob, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.uploadConcurrency)
	for i, job := range jobs {
		g.Go(func() error {
			blob, err := s.blobs.Put(gctx, job.file.Reader, job.file.Name, job.file.MimeType)
			if err != nil {
				return fmt.Errorf("%s %q: %w", job.field, job.file.Name, err)
			}
			results[i] = blob
			s.emit(ctx, "blob_stored", s.eventSink.BlobStored(ctx, blob))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		s.discard(ctx, results)
		return nil, fmt.Errorf("%w: %w", ErrUpload, err)
	}
	return results, nil
}

// discard removes blobs staged by an operation that did not commit.
func (s *service) discard(ctx context.Context, blobs []*Blob) {
	var refs []BlobRef
	for _, b := range blobs {
		if b != nil {
			refs = append(refs, BlobRef{BlobID: b.ID})
		}
	}
	for _, d := range s.deleteBlobs(ctx, refs) {
		if d.Err != nil {
			s.logger.ErrorContext(ctx, "failed to roll back staged blob", "blob_id", d.BlobID, "error", d.Err)
		}
	}
}

// deleteBlobs attempts every deletion independently and collects the
// outcomes in input order. A blob that is already gone counts as deleted.
// Deletions run to completion even if the caller's context is cancelled.
func (s *service) deleteBlobs(ctx context.Context, refs []BlobRef) []BlobDeletion {
	results := make([]BlobDeletion, len(refs))
	ctx = context.WithoutCancel(ctx)

	var wg sync.WaitGroup
	for i, ref := range refs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d := BlobDeletion{BlobID: ref.BlobID, Slot: ref.Slot}
			if err := s.blobs.Delete(ctx, ref.BlobID); err != nil {
				if errors.Is(err, ErrBlobNotFound) {
					d.AlreadyGone = true
				} else {
					d.Err = err
				}
			}
			s.emit(ctx, "blob_deleted", s.eventSink.BlobDeleted(ctx, ref.BlobID, d.Err))
			results[i] = d
		}()
	}
	wg.Wait()
	return results
}

func (s *service) transition(ctx context.Context, span trace.Span, log *slog.Logger, state LifecycleState, err error) {
	span.AddEvent("lifecycle", trace.WithAttributes(attribute.String("lifecycle.state", string(state))))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(state))
		log.WarnContext(ctx, "lifecycle operation failed", "state", state, "error", err)
		return
	}
	log.DebugContext(ctx, "lifecycle transition", "state", state)
}

func (s *service) emit(ctx context.Context, event string, err error) {
	if err != nil {
		s.logger.WarnContext(ctx, "event sink failed", "event", event, "error", err)
	}
}

func parseContentID(id string) (uuid.UUID, error) {
	parsed, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return uuid.Nil, fmt.Errorf("malformed content id %q: %w", id, ErrContentNotFound)
	}
	return parsed, nil
}

func parseBlobID(id string) (uuid.UUID, error) {
	parsed, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return uuid.Nil, fmt.Errorf("malformed blob id %q: %w", id, ErrBlobNotFound)
	}
	return parsed, nil
}

func containsID(ids []uuid.UUID, id uuid.UUID) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func removeID(ids []uuid.UUID, id uuid.UUID) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(ids))
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
