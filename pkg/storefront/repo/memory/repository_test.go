package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-storefront/pkg/storefront"
	"github.com/tendant/simple-storefront/pkg/storefront/repo/memory"
)

func newRecord(name string, created time.Time) *storefront.ContentRecord {
	cover := uuid.New()
	return &storefront.ContentRecord{
		ID:              uuid.New(),
		Name:            name,
		Category:        "Games",
		CoverImageID:    &cover,
		GalleryImageIDs: []uuid.UUID{uuid.New(), uuid.New()},
		CreatedAt:       created,
		UpdatedAt:       created,
	}
}

func TestMemoryRepository_RecordOperations(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()

	t.Run("CreateAndGet", func(t *testing.T) {
		record := newRecord("Game A", time.Now())
		require.NoError(t, repo.CreateRecord(ctx, record))

		got, err := repo.GetRecord(ctx, record.ID)
		require.NoError(t, err)
		assert.Equal(t, record.Name, got.Name)
		assert.Equal(t, *record.CoverImageID, *got.CoverImageID)
		assert.Equal(t, record.GalleryImageIDs, got.GalleryImageIDs)
	})

	t.Run("CreateDuplicate", func(t *testing.T) {
		record := newRecord("Dup", time.Now())
		require.NoError(t, repo.CreateRecord(ctx, record))
		assert.Error(t, repo.CreateRecord(ctx, record))
	})

	t.Run("ReturnedRecordIsACopy", func(t *testing.T) {
		record := newRecord("Copy", time.Now())
		require.NoError(t, repo.CreateRecord(ctx, record))

		got, err := repo.GetRecord(ctx, record.ID)
		require.NoError(t, err)
		got.GalleryImageIDs[0] = uuid.Nil
		got.Name = "changed"

		again, err := repo.GetRecord(ctx, record.ID)
		require.NoError(t, err)
		assert.Equal(t, "Copy", again.Name)
		assert.NotEqual(t, uuid.Nil, again.GalleryImageIDs[0])
	})

	t.Run("GetNotFound", func(t *testing.T) {
		_, err := repo.GetRecord(ctx, uuid.New())
		assert.ErrorIs(t, err, storefront.ErrContentNotFound)
	})

	t.Run("Update", func(t *testing.T) {
		record := newRecord("Before", time.Now())
		require.NoError(t, repo.CreateRecord(ctx, record))

		record.Name = "After"
		record.CoverImageID = nil
		require.NoError(t, repo.UpdateRecord(ctx, record))

		got, err := repo.GetRecord(ctx, record.ID)
		require.NoError(t, err)
		assert.Equal(t, "After", got.Name)
		assert.Nil(t, got.CoverImageID)
	})

	t.Run("UpdateNotFound", func(t *testing.T) {
		err := repo.UpdateRecord(ctx, newRecord("ghost", time.Now()))
		assert.ErrorIs(t, err, storefront.ErrContentNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		record := newRecord("Doomed", time.Now())
		require.NoError(t, repo.CreateRecord(ctx, record))
		require.NoError(t, repo.DeleteRecord(ctx, record.ID))

		_, err := repo.GetRecord(ctx, record.ID)
		assert.ErrorIs(t, err, storefront.ErrContentNotFound)
		assert.ErrorIs(t, repo.DeleteRecord(ctx, record.ID), storefront.ErrContentNotFound)
	})
}

func TestMemoryRepository_ListNewestFirst(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()
	base := time.Now()

	older := newRecord("older", base.Add(-time.Hour))
	newer := newRecord("newer", base)
	require.NoError(t, repo.CreateRecord(ctx, older))
	require.NoError(t, repo.CreateRecord(ctx, newer))

	records, err := repo.ListRecords(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "newer", records[0].Name)
	assert.Equal(t, "older", records[1].Name)
}

func TestMemoryRepository_BlobOperations(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()

	blob := &storefront.Blob{ID: uuid.New(), Name: "rom.bin", MimeType: "application/octet-stream", Size: 3, ChunkCount: 2, CreatedAt: time.Now()}
	chunks := []storefront.Chunk{
		{BlobID: blob.ID, Index: 0, Key: "blobs/a/0", Size: 2},
		{BlobID: blob.ID, Index: 1, Key: "blobs/a/1", Size: 1},
	}
	require.NoError(t, repo.CreateBlob(ctx, blob, chunks))

	got, err := repo.GetBlob(ctx, blob.ID)
	require.NoError(t, err)
	assert.Equal(t, blob.Name, got.Name)

	gotChunks, err := repo.GetChunks(ctx, blob.ID)
	require.NoError(t, err)
	assert.Equal(t, chunks, gotChunks)

	blobs, err := repo.ListBlobs(ctx)
	require.NoError(t, err)
	assert.Len(t, blobs, 1)

	require.NoError(t, repo.DeleteBlob(ctx, blob.ID))
	_, err = repo.GetBlob(ctx, blob.ID)
	assert.ErrorIs(t, err, storefront.ErrBlobNotFound)
	_, err = repo.GetChunks(ctx, blob.ID)
	assert.ErrorIs(t, err, storefront.ErrBlobNotFound)
	assert.ErrorIs(t, repo.DeleteBlob(ctx, blob.ID), storefront.ErrBlobNotFound)
}

func TestMemoryRepository_FindRecordByImage(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	primary, cover, gallery := uuid.New(), uuid.New(), uuid.New()
	record := &storefront.ContentRecord{
		ID:              uuid.New(),
		Name:            "Game A",
		Category:        "Games",
		PrimaryFileID:   &primary,
		CoverImageID:    &cover,
		GalleryImageIDs: []uuid.UUID{uuid.New(), gallery},
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	require.NoError(t, repo.CreateRecord(ctx, record))
	t.Cleanup(func() { repo.DeleteRecord(context.Background(), record.ID) })

	for _, id := range []uuid.UUID{cover, gallery} {
		got, err := repo.FindRecordByImage(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, record.ID, got.ID)
	}

	_, err := repo.FindRecordByImage(ctx, primary)
	assert.ErrorIs(t, err, storefront.ErrContentNotFound)
	_, err = repo.FindRecordByImage(ctx, uuid.New())
	assert.ErrorIs(t, err, storefront.ErrContentNotFound)
}
