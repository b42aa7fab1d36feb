package memory_test

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-storefront/pkg/storefront"
	memorystorage "github.com/tendant/simple-storefront/pkg/storefront/storage/memory"
)

func TestMemoryBackend(t *testing.T) {
	backend := memorystorage.New()
	ctx := context.Background()
	testKey := "blobs/test/000000"
	testData := "Hello, World! This is test data."

	t.Run("Upload", func(t *testing.T) {
		err := backend.Upload(ctx, testKey, strings.NewReader(testData), int64(len(testData)))
		assert.NoError(t, err)
		assert.Equal(t, []string{testKey}, backend.Keys())
	})

	t.Run("Download", func(t *testing.T) {
		reader, err := backend.Download(ctx, testKey)
		require.NoError(t, err)
		defer reader.Close()

		downloadedData, err := io.ReadAll(reader)
		assert.NoError(t, err)
		assert.Equal(t, testData, string(downloadedData))
	})

	t.Run("Delete", func(t *testing.T) {
		assert.NoError(t, backend.Delete(ctx, testKey))
		assert.Empty(t, backend.Keys())

		_, err := backend.Download(ctx, testKey)
		assert.ErrorIs(t, err, storefront.ErrObjectNotFound)
		assert.ErrorIs(t, backend.Delete(ctx, testKey), storefront.ErrObjectNotFound)
	})
}

func TestMemoryBackendDownloadIsACopy(t *testing.T) {
	backend := memorystorage.New()
	ctx := context.Background()
	require.NoError(t, backend.Upload(ctx, "k", strings.NewReader("abc"), 3))

	reader, err := backend.Download(ctx, "k")
	require.NoError(t, err)
	require.NoError(t, backend.Upload(ctx, "k", strings.NewReader("xyz"), 3))

	data, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(data))
}
