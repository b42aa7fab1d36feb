package storefront_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-storefront/pkg/storefront"
	"github.com/tendant/simple-storefront/pkg/storefront/blobstore"
	"github.com/tendant/simple-storefront/pkg/storefront/repo/memory"
	memorystorage "github.com/tendant/simple-storefront/pkg/storefront/storage/memory"
)

type harness struct {
	svc     storefront.Service
	repo    *memory.Repository
	backend *memorystorage.Backend
	store   *blobstore.Store
}

func newHarness(t *testing.T, opts ...storefront.Option) *harness {
	t.Helper()
	repo := memory.New()
	backend := memorystorage.New()
	store, err := blobstore.New(backend, repo, blobstore.WithChunkSize(4))
	require.NoError(t, err)
	return newHarnessWithStore(t, repo, backend, store, store, opts...)
}

func newHarnessWithStore(t *testing.T, repo *memory.Repository, backend *memorystorage.Backend, store *blobstore.Store, blobs storefront.BlobStore, opts ...storefront.Option) *harness {
	t.Helper()
	base := []storefront.Option{
		storefront.WithRecordRepository(repo),
		storefront.WithBlobStore(blobs),
	}
	svc, err := storefront.New(append(base, opts...)...)
	require.NoError(t, err)
	return &harness{svc: svc, repo: repo, backend: backend, store: store}
}

func upload(name, body string) *storefront.FileUpload {
	return &storefront.FileUpload{Name: name, MimeType: "image/png", Reader: strings.NewReader(body)}
}

func readBlob(t *testing.T, svc storefront.Service, id uuid.UUID) string {
	t.Helper()
	_, rc, err := svc.OpenBlob(context.Background(), id.String())
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(data)
}

// flakyStore fails Put for a chosen file name and Delete for chosen ids.
type flakyStore struct {
	storefront.BlobStore
	mu         sync.Mutex
	failPut    string
	failDelete map[uuid.UUID]bool
}

func (f *flakyStore) Put(ctx context.Context, r io.Reader, name, mimeType string) (*storefront.Blob, error) {
	if name == f.failPut {
		return nil, errors.New("backend unavailable")
	}
	return f.BlobStore.Put(ctx, r, name, mimeType)
}

func (f *flakyStore) Delete(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	fail := f.failDelete[id]
	f.mu.Unlock()
	if fail {
		return errors.New("backend unavailable")
	}
	return f.BlobStore.Delete(ctx, id)
}

func (f *flakyStore) breakDelete(id uuid.UUID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failDelete == nil {
		f.failDelete = map[uuid.UUID]bool{}
	}
	f.failDelete[id] = true
}

func newFlakyHarness(t *testing.T) (*harness, *flakyStore) {
	t.Helper()
	repo := memory.New()
	backend := memorystorage.New()
	store, err := blobstore.New(backend, repo, blobstore.WithChunkSize(4))
	require.NoError(t, err)
	flaky := &flakyStore{BlobStore: store}
	return newHarnessWithStore(t, repo, backend, store, flaky), flaky
}

func TestServiceCreation(t *testing.T) {
	tests := []struct {
		name        string
		options     []storefront.Option
		expectError bool
	}{
		{
			name:        "no options should fail",
			expectError: true,
		},
		{
			name:        "without blob store should fail",
			options:     []storefront.Option{storefront.WithRecordRepository(memory.New())},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := storefront.New(tt.options...)
			if tt.expectError {
				assert.Error(t, err)
				assert.Nil(t, svc)
			} else {
				assert.NoError(t, err)
				assert.NotNil(t, svc)
			}
		})
	}
}

func TestCreateContent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	record, err := h.svc.CreateContent(ctx, storefront.CreateContentRequest{
		Name:          "  Game A ",
		Category:      "games",
		Region:        "EU",
		File:          upload("game.zip", "zip-bytes"),
		CoverImage:    upload("cover.png", "cover-bytes"),
		GalleryImages: []storefront.FileUpload{*upload("g1.png", "one"), *upload("g2.png", "two")},
	})
	require.NoError(t, err)

	assert.Equal(t, "Game A", record.Name)
	assert.Equal(t, "Games", record.Category)
	require.NotNil(t, record.PrimaryFileID)
	require.NotNil(t, record.CoverImageID)
	require.Len(t, record.GalleryImageIDs, 2)
	assert.False(t, record.CreatedAt.IsZero())

	assert.Equal(t, "zip-bytes", readBlob(t, h.svc, *record.PrimaryFileID))
	assert.Equal(t, "cover-bytes", readBlob(t, h.svc, *record.CoverImageID))
	assert.Equal(t, "one", readBlob(t, h.svc, record.GalleryImageIDs[0]))
	assert.Equal(t, "two", readBlob(t, h.svc, record.GalleryImageIDs[1]))

	got, err := h.svc.GetContent(ctx, record.ID.String())
	require.NoError(t, err)
	assert.Equal(t, record, got)
}

func TestCreateContentValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		req   storefront.CreateContentRequest
		field string
	}{
		{
			name:  "missing name",
			req:   storefront.CreateContentRequest{Category: "Games", CoverImage: upload("c.png", "c")},
			field: "name",
		},
		{
			name:  "unknown category",
			req:   storefront.CreateContentRequest{Name: "x", Category: "Music", CoverImage: upload("c.png", "c")},
			field: "category",
		},
		{
			name:  "missing cover",
			req:   storefront.CreateContentRequest{Name: "x", Category: "Games"},
			field: "coverImage",
		},
		{
			name: "bad download link",
			req: storefront.CreateContentRequest{
				Name: "x", Category: "Games", DownloadLink: "ftp://example.com/x", CoverImage: upload("c.png", "c"),
			},
			field: "downloadLink",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.svc.CreateContent(ctx, tt.req)
			require.Error(t, err)
			assert.Equal(t, storefront.KindValidation, storefront.KindOf(err))

			var verr *storefront.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}

	assert.Empty(t, h.backend.Keys(), "validation must happen before any upload")
}

func TestCreateContentGalleryCap(t *testing.T) {
	catalog := storefront.DefaultCatalog()
	catalog.MaxGalleryImages = 1
	h := newHarness(t, storefront.WithCatalog(catalog))

	_, err := h.svc.CreateContent(context.Background(), storefront.CreateContentRequest{
		Name:          "x",
		Category:      "Games",
		CoverImage:    upload("c.png", "c"),
		GalleryImages: []storefront.FileUpload{*upload("a", "a"), *upload("b", "b")},
	})
	assert.ErrorIs(t, err, storefront.ErrValidation)
	assert.Empty(t, h.backend.Keys())
}

func TestCreateContentRollsBackOnUploadFailure(t *testing.T) {
	h, flaky := newFlakyHarness(t)
	flaky.failPut = "broken.png"

	_, err := h.svc.CreateContent(context.Background(), storefront.CreateContentRequest{
		Name:          "x",
		Category:      "Games",
		File:          upload("game.zip", "payload-bytes"),
		CoverImage:    upload("cover.png", "cover-bytes"),
		GalleryImages: []storefront.FileUpload{*upload("broken.png", "nope")},
	})
	require.Error(t, err)
	assert.Equal(t, storefront.KindUpload, storefront.KindOf(err))

	records, err := h.svc.ListContent(context.Background())
	require.NoError(t, err)
	assert.Empty(t, records)

	blobs, err := h.store.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, blobs)
	assert.Empty(t, h.backend.Keys())
}

func TestGetContentMalformedID(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.GetContent(context.Background(), "not-a-uuid")
	assert.ErrorIs(t, err, storefront.ErrContentNotFound)
	assert.Equal(t, storefront.KindNotFound, storefront.KindOf(err))

	_, _, err = h.svc.OpenBlob(context.Background(), "nope")
	assert.ErrorIs(t, err, storefront.ErrBlobNotFound)
}

func TestListContentEmpty(t *testing.T) {
	h := newHarness(t)

	records, err := h.svc.ListContent(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, records)
	assert.Empty(t, records)
}

func TestUpdateContentReplacesOnlySuppliedSlots(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	record, err := h.svc.CreateContent(ctx, storefront.CreateContentRequest{
		Name:       "Game A",
		Category:   "Games",
		File:       upload("game.zip", "v1"),
		CoverImage: upload("cover.png", "old cover"),
	})
	require.NoError(t, err)
	oldCover := *record.CoverImageID
	file := *record.PrimaryFileID

	genre := "Puzzle"
	updated, err := h.svc.UpdateContent(ctx, storefront.UpdateContentRequest{
		ID:         record.ID.String(),
		Name:       "Game A+",
		Genre:      &genre,
		CoverImage: upload("cover2.png", "new cover"),
	})
	require.NoError(t, err)

	assert.Equal(t, "Game A+", updated.Name)
	assert.Equal(t, "Puzzle", updated.Genre)
	assert.Equal(t, "Games", updated.Category)
	assert.Equal(t, file, *updated.PrimaryFileID)
	assert.NotEqual(t, oldCover, *updated.CoverImageID)
	assert.Equal(t, "new cover", readBlob(t, h.svc, *updated.CoverImageID))

	_, err = h.svc.StatBlob(ctx, oldCover.String())
	assert.ErrorIs(t, err, storefront.ErrBlobNotFound)
	_, err = h.svc.StatBlob(ctx, file.String())
	assert.NoError(t, err)
}

func TestUpdateContentGallery(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	record, err := h.svc.CreateContent(ctx, storefront.CreateContentRequest{
		Name:          "x",
		Category:      "Images",
		CoverImage:    upload("c.png", "c"),
		GalleryImages: []storefront.FileUpload{*upload("a", "a")},
	})
	require.NoError(t, err)
	first := record.GalleryImageIDs[0]

	appended, err := h.svc.UpdateContent(ctx, storefront.UpdateContentRequest{
		ID:            record.ID.String(),
		Name:          "x",
		GalleryImages: []storefront.FileUpload{*upload("b", "b")},
		AppendGallery: true,
	})
	require.NoError(t, err)
	require.Len(t, appended.GalleryImageIDs, 2)
	assert.Equal(t, first, appended.GalleryImageIDs[0])

	replaced, err := h.svc.UpdateContent(ctx, storefront.UpdateContentRequest{
		ID:            record.ID.String(),
		Name:          "x",
		GalleryImages: []storefront.FileUpload{*upload("c", "c")},
	})
	require.NoError(t, err)
	require.Len(t, replaced.GalleryImageIDs, 1)
	for _, old := range appended.GalleryImageIDs {
		_, err := h.svc.StatBlob(ctx, old.String())
		assert.ErrorIs(t, err, storefront.ErrBlobNotFound)
	}
}

func TestUpdateContentFailureKeepsRecord(t *testing.T) {
	h, flaky := newFlakyHarness(t)
	ctx := context.Background()

	record, err := h.svc.CreateContent(ctx, storefront.CreateContentRequest{
		Name:       "x",
		Category:   "Games",
		CoverImage: upload("c.png", "cover"),
	})
	require.NoError(t, err)

	flaky.failPut = "broken.zip"
	_, err = h.svc.UpdateContent(ctx, storefront.UpdateContentRequest{
		ID:         record.ID.String(),
		Name:       "renamed",
		File:       upload("broken.zip", "zip"),
		CoverImage: upload("c2.png", "cover 2"),
	})
	require.Error(t, err)

	got, err := h.svc.GetContent(ctx, record.ID.String())
	require.NoError(t, err)
	assert.Equal(t, record, got)
	assert.Equal(t, "cover", readBlob(t, h.svc, *got.CoverImageID))

	blobs, err := h.store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, blobs, 1)
}

func TestUpdateContentNotFound(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.UpdateContent(context.Background(), storefront.UpdateContentRequest{
		ID:   uuid.NewString(),
		Name: "x",
	})
	assert.ErrorIs(t, err, storefront.ErrContentNotFound)
}

func TestDeleteContent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	record, err := h.svc.CreateContent(ctx, storefront.CreateContentRequest{
		Name:          "Game A",
		Category:      "Games",
		File:          upload("game.zip", "zip-bytes"),
		CoverImage:    upload("cover.png", "cover"),
		GalleryImages: []storefront.FileUpload{*upload("g.png", "g")},
	})
	require.NoError(t, err)

	report, err := h.svc.DeleteContent(ctx, record.ID.String())
	require.NoError(t, err)
	require.Len(t, report.Blobs, 3)
	assert.Empty(t, report.Failed())
	assert.Equal(t, storefront.SlotFile, report.Blobs[0].Slot)

	_, err = h.svc.GetContent(ctx, record.ID.String())
	assert.ErrorIs(t, err, storefront.ErrContentNotFound)
	for _, ref := range record.BlobRefs() {
		_, err := h.svc.StatBlob(ctx, ref.BlobID.String())
		assert.ErrorIs(t, err, storefront.ErrBlobNotFound)
	}
	assert.Empty(t, h.backend.Keys())
}

func TestDeleteContentReportsFailedBlobs(t *testing.T) {
	h, flaky := newFlakyHarness(t)
	ctx := context.Background()

	record, err := h.svc.CreateContent(ctx, storefront.CreateContentRequest{
		Name:       "x",
		Category:   "Games",
		File:       upload("game.zip", "zip"),
		CoverImage: upload("c.png", "cover"),
	})
	require.NoError(t, err)
	flaky.breakDelete(*record.CoverImageID)

	report, err := h.svc.DeleteContent(ctx, record.ID.String())
	require.NoError(t, err)
	failed := report.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, *record.CoverImageID, failed[0].BlobID)
	assert.Equal(t, storefront.SlotCover, failed[0].Slot)

	_, err = h.svc.GetContent(ctx, record.ID.String())
	assert.ErrorIs(t, err, storefront.ErrContentNotFound)
}

func TestDeleteContentAlreadyGoneBlob(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	record, err := h.svc.CreateContent(ctx, storefront.CreateContentRequest{
		Name:       "x",
		Category:   "Games",
		CoverImage: upload("c.png", "cover"),
	})
	require.NoError(t, err)
	require.NoError(t, h.store.Delete(ctx, *record.CoverImageID))

	report, err := h.svc.DeleteContent(ctx, record.ID.String())
	require.NoError(t, err)
	require.Len(t, report.Blobs, 1)
	assert.True(t, report.Blobs[0].AlreadyGone)
	assert.NoError(t, report.Blobs[0].Err)
}

func TestDeleteSlot(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	record, err := h.svc.CreateContent(ctx, storefront.CreateContentRequest{
		Name:          "x",
		Category:      "Games",
		File:          upload("game.zip", "zip"),
		CoverImage:    upload("c.png", "cover"),
		GalleryImages: []storefront.FileUpload{*upload("a", "a"), *upload("b", "b")},
	})
	require.NoError(t, err)

	t.Run("primary alias clears the file", func(t *testing.T) {
		updated, err := h.svc.DeleteSlot(ctx, record.ID.String(), "PRIMARY")
		require.NoError(t, err)
		assert.Nil(t, updated.PrimaryFileID)
		assert.NotNil(t, updated.CoverImageID)

		_, err = h.svc.StatBlob(ctx, record.PrimaryFileID.String())
		assert.ErrorIs(t, err, storefront.ErrBlobNotFound)
	})

	t.Run("empty slot is not found", func(t *testing.T) {
		_, err := h.svc.DeleteSlot(ctx, record.ID.String(), "file")
		assert.ErrorIs(t, err, storefront.ErrSlotEmpty)
		assert.Equal(t, storefront.KindNotFound, storefront.KindOf(err))
	})

	t.Run("gallery clears every image", func(t *testing.T) {
		updated, err := h.svc.DeleteSlot(ctx, record.ID.String(), "galleryImages")
		require.NoError(t, err)
		assert.Empty(t, updated.GalleryImageIDs)
	})

	t.Run("unknown slot", func(t *testing.T) {
		_, err := h.svc.DeleteSlot(ctx, record.ID.String(), "thumbnail")
		assert.ErrorIs(t, err, storefront.ErrInvalidSlot)
		assert.Equal(t, storefront.KindInvalidSlot, storefront.KindOf(err))
	})
}

func TestDeleteSlotKeepsReferenceWhenBlobDeleteFails(t *testing.T) {
	h, flaky := newFlakyHarness(t)
	ctx := context.Background()

	record, err := h.svc.CreateContent(ctx, storefront.CreateContentRequest{
		Name:       "x",
		Category:   "Games",
		CoverImage: upload("c.png", "cover"),
	})
	require.NoError(t, err)
	flaky.breakDelete(*record.CoverImageID)

	_, err = h.svc.DeleteSlot(ctx, record.ID.String(), "cover")
	require.Error(t, err)

	got, err := h.svc.GetContent(ctx, record.ID.String())
	require.NoError(t, err)
	require.NotNil(t, got.CoverImageID)
	assert.Equal(t, "cover", readBlob(t, h.svc, *got.CoverImageID))
}

func TestDeleteGalleryImage(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	record, err := h.svc.CreateContent(ctx, storefront.CreateContentRequest{
		Name:          "x",
		Category:      "Images",
		CoverImage:    upload("c.png", "c"),
		GalleryImages: []storefront.FileUpload{*upload("a", "a"), *upload("b", "b"), *upload("c", "c")},
	})
	require.NoError(t, err)
	middle := record.GalleryImageIDs[1]

	updated, err := h.svc.DeleteGalleryImage(ctx, record.ID.String(), middle.String())
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{record.GalleryImageIDs[0], record.GalleryImageIDs[2]}, updated.GalleryImageIDs)

	_, err = h.svc.DeleteGalleryImage(ctx, record.ID.String(), middle.String())
	assert.ErrorIs(t, err, storefront.ErrGalleryImageNotFound)

	_, err = h.svc.DeleteGalleryImage(ctx, record.ID.String(), record.CoverImageID.String())
	assert.ErrorIs(t, err, storefront.ErrGalleryImageNotFound, "cover is not a gallery image")
}

type recordingSink struct {
	storefront.NoopEventSink
	mu      sync.Mutex
	created int
	stored  int
	deleted int
}

func (r *recordingSink) ContentCreated(ctx context.Context, record *storefront.ContentRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.created++
	return errors.New("sink errors are ignored")
}

func (r *recordingSink) BlobStored(ctx context.Context, blob *storefront.Blob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stored++
	return nil
}

func (r *recordingSink) BlobDeleted(ctx context.Context, blobID uuid.UUID, err error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleted++
	return nil
}

func TestEventSink(t *testing.T) {
	sink := &recordingSink{}
	h := newHarness(t, storefront.WithEventSink(storefront.MultiEventSink{sink, storefront.NewLogEventSink(nil)}))
	ctx := context.Background()

	record, err := h.svc.CreateContent(ctx, storefront.CreateContentRequest{
		Name:       "x",
		Category:   "Games",
		File:       upload("game.zip", "zip"),
		CoverImage: upload("c.png", "c"),
	})
	require.NoError(t, err)
	_, err = h.svc.DeleteContent(ctx, record.ID.String())
	require.NoError(t, err)

	assert.Equal(t, 1, sink.created)
	assert.Equal(t, 2, sink.stored)
	assert.Equal(t, 2, sink.deleted)
}

func TestConcurrentUpdatesOfOneRecord(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	record, err := h.svc.CreateContent(ctx, storefront.CreateContentRequest{
		Name:       "x",
		Category:   "Games",
		CoverImage: upload("c.png", "c"),
	})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.svc.UpdateContent(ctx, storefront.UpdateContentRequest{
				ID:         record.ID.String(),
				Name:       "x",
				CoverImage: upload("c.png", "cover"),
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	// Every replaced cover was removed; only the final one is left.
	blobs, err := h.store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, blobs, 1)
}

// frozenReader keeps answering with the record it was last given.
type frozenReader struct {
	mu     sync.Mutex
	record *storefront.ContentRecord
}

func (f *frozenReader) freeze(record *storefront.ContentRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record = record.Clone()
}

func (f *frozenReader) GetRecord(ctx context.Context, id uuid.UUID) (*storefront.ContentRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.record == nil || f.record.ID != id {
		return nil, storefront.ErrContentNotFound
	}
	return f.record.Clone(), nil
}

func (f *frozenReader) ListRecords(ctx context.Context) ([]*storefront.ContentRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.record == nil {
		return nil, nil
	}
	return []*storefront.ContentRecord{f.record.Clone()}, nil
}

func TestMutationsIgnoreStaleCatalogReads(t *testing.T) {
	reader := &frozenReader{}
	h := newHarness(t, storefront.WithRecordReader(reader))
	ctx := context.Background()

	record, err := h.svc.CreateContent(ctx, storefront.CreateContentRequest{
		Name:       "Game A",
		Category:   "Games",
		CoverImage: upload("cover.png", "old cover"),
	})
	require.NoError(t, err)
	reader.freeze(record)
	oldCover := *record.CoverImageID

	replaced, err := h.svc.UpdateContent(ctx, storefront.UpdateContentRequest{
		ID:         record.ID.String(),
		Name:       "Game A",
		CoverImage: upload("cover2.png", "new cover"),
	})
	require.NoError(t, err)
	newCover := *replaced.CoverImageID

	// Catalog reads come from the reader, which still holds the first version.
	got, err := h.svc.GetContent(ctx, record.ID.String())
	require.NoError(t, err)
	assert.Equal(t, oldCover, *got.CoverImageID)

	description := "now with more levels"
	updated, err := h.svc.UpdateContent(ctx, storefront.UpdateContentRequest{
		ID:          record.ID.String(),
		Name:        "Game A",
		Description: &description,
	})
	require.NoError(t, err)
	assert.Equal(t, newCover, *updated.CoverImageID)

	persisted, err := h.repo.GetRecord(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, newCover, *persisted.CoverImageID)
	assert.Equal(t, "new cover", readBlob(t, h.svc, newCover))

	_, err = h.svc.DeleteSlot(ctx, record.ID.String(), "cover")
	require.NoError(t, err)
	blobs, err := h.store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, blobs)
}

func TestOpenPreview(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	record, err := h.svc.CreateContent(ctx, storefront.CreateContentRequest{
		Name:          "Game A",
		Category:      "Games",
		File:          upload("game.zip", "paid payload"),
		CoverImage:    upload("cover.png", "cover"),
		GalleryImages: []storefront.FileUpload{*upload("g.png", "gallery")},
	})
	require.NoError(t, err)

	for id, want := range map[uuid.UUID]string{
		*record.CoverImageID:      "cover",
		record.GalleryImageIDs[0]: "gallery",
	} {
		_, rc, err := h.svc.OpenPreview(ctx, id.String())
		require.NoError(t, err)
		data, err := io.ReadAll(rc)
		rc.Close()
		require.NoError(t, err)
		assert.Equal(t, want, string(data))
	}

	_, _, err = h.svc.OpenPreview(ctx, record.PrimaryFileID.String())
	assert.ErrorIs(t, err, storefront.ErrBlobNotFound)
	assert.Equal(t, storefront.KindNotFound, storefront.KindOf(err))

	_, _, err = h.svc.OpenPreview(ctx, "not-a-uuid")
	assert.ErrorIs(t, err, storefront.ErrBlobNotFound)
}
