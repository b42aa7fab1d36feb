package postgres_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-storefront/pkg/storefront"
	"github.com/tendant/simple-storefront/pkg/storefront/repo/postgres"
)

// newTestRepo connects to STOREFRONT_TEST_DATABASE_URL, migrates and returns
// a repository. The test is skipped when the variable is unset.
func newTestRepo(t *testing.T) *postgres.Repository {
	t.Helper()
	url := os.Getenv("STOREFRONT_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("STOREFRONT_TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, url)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	repo := postgres.NewWithPool(pool)
	require.NoError(t, repo.Migrate(ctx))
	return repo
}

func TestPostgresRepository_Records(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	cover := uuid.New()
	record := &storefront.ContentRecord{
		ID:              uuid.New(),
		Name:            "Game A",
		Category:        "Games",
		CoverImageID:    &cover,
		GalleryImageIDs: []uuid.UUID{uuid.New()},
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	require.NoError(t, repo.CreateRecord(ctx, record))
	t.Cleanup(func() { _ = repo.DeleteRecord(context.Background(), record.ID) })

	got, err := repo.GetRecord(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, record.Name, got.Name)
	require.NotNil(t, got.CoverImageID)
	assert.Equal(t, cover, *got.CoverImageID)
	assert.Equal(t, record.GalleryImageIDs, got.GalleryImageIDs)

	record.CoverImageID = nil
	require.NoError(t, repo.UpdateRecord(ctx, record))
	got, err = repo.GetRecord(ctx, record.ID)
	require.NoError(t, err)
	assert.Nil(t, got.CoverImageID)

	require.NoError(t, repo.DeleteRecord(ctx, record.ID))
	_, err = repo.GetRecord(ctx, record.ID)
	assert.ErrorIs(t, err, storefront.ErrContentNotFound)
}

func TestPostgresRepository_Blobs(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	blob := &storefront.Blob{ID: uuid.New(), Name: "rom.bin", MimeType: "application/octet-stream", Size: 3, ChunkSize: 2, ChunkCount: 2, CreatedAt: time.Now().UTC()}
	chunks := []storefront.Chunk{
		{BlobID: blob.ID, Index: 0, Key: "k0", Size: 2, Checksum: "a"},
		{BlobID: blob.ID, Index: 1, Key: "k1", Size: 1, Checksum: "b"},
	}
	require.NoError(t, repo.CreateBlob(ctx, blob, chunks))

	gotChunks, err := repo.GetChunks(ctx, blob.ID)
	require.NoError(t, err)
	assert.Equal(t, chunks, gotChunks)

	require.NoError(t, repo.DeleteBlob(ctx, blob.ID))
	_, err = repo.GetChunks(ctx, blob.ID)
	assert.ErrorIs(t, err, storefront.ErrBlobNotFound)
}

func TestPostgresRepository_FindRecordByImage(t *testing.T) {
	repo := newTestRepo(t)
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
