package blobstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-storefront/pkg/storefront"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

var tracer = otel.Tracer("github.com/tendant/simple-storefront/pkg/storefront/blobstore")

const (
	// DefaultChunkSize is the size of every chunk but the last
	DefaultChunkSize int64 = 10 << 20

	// DefaultMimeType is recorded when the uploader does not supply one
	DefaultMimeType = "application/octet-stream"

	deleteConcurrency = 8
)

// Store implements storefront.BlobStore on top of a chunk backend and a
// manifest repository.
type Store struct {
	backend     storefront.StorageBackend
	repo        storefront.BlobRepository
	backendName string
	chunkSize   int64
	logger      *slog.Logger
	now         func() time.Time
}

// Option configures a Store
type Option func(*Store)

// WithChunkSize sets the chunk size in bytes
func WithChunkSize(size int64) Option {
	return func(s *Store) {
		s.chunkSize = size
	}
}

// WithBackendName sets the backend name reported in storage errors
func WithBackendName(name string) Option {
	return func(s *Store) {
		s.backendName = name
	}
}

// WithLogger sets the logger used for cleanup failures
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New creates a chunked blob store. The backend and repository must be ready
// for use; the store performs no lazy initialisation.
func New(backend storefront.StorageBackend, repo storefront.BlobRepository, opts ...Option) (*Store, error) {
	if backend == nil {
		return nil, errors.New("storage backend is required")
	}
	if repo == nil {
		return nil, errors.New("blob repository is required")
	}

	s := &Store{
		backend:     backend,
		repo:        repo,
		backendName: "default",
		chunkSize:   DefaultChunkSize,
		logger:      slog.Default(),
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.chunkSize <= 0 {
		return nil, fmt.Errorf("invalid chunk size %d", s.chunkSize)
	}
	return s, nil
}

// ChunkKey returns the backend key of a chunk.
func ChunkKey(blobID uuid.UUID, index int) string {
	return fmt.Sprintf("blobs/%s/%06d", blobID, index)
}

// Put reads reader to the end in chunkSize pieces. The manifest is committed
// after the last chunk; on any failure the chunks already written are
// removed and an error wrapping storefront.ErrStoreWrite is returned.
func (s *Store) Put(ctx context.Context, reader io.Reader, name, mimeType string) (*storefront.Blob, error) {
	if mimeType == "" {
		mimeType = DefaultMimeType
	}
	blob := &storefront.Blob{
		ID:        uuid.New(),
		Name:      name,
		MimeType:  mimeType,
		ChunkSize: s.chunkSize,
		CreatedAt: s.now(),
	}

	ctx, span := tracer.Start(ctx, "blobstore.put", trace.WithAttributes(
		attribute.String("blob.id", blob.ID.String()),
		attribute.String("blob.mime_type", mimeType),
	))
	defer span.End()

	var chunks []storefront.Chunk
	var written []string
	fail := func(op string, err error) (*storefront.Blob, error) {
		span.RecordError(err)
		if cerr := s.removeKeys(context.WithoutCancel(ctx), written); cerr != nil {
			s.logger.ErrorContext(ctx, "failed to clean up partial blob", "blob_id", blob.ID, "error", cerr)
		}
		return nil, &storefront.BlobError{BlobID: blob.ID, Op: op, Err: fmt.Errorf("%w: %w", storefront.ErrStoreWrite, err)}
	}

	whole := sha256.New()
	buf := make([]byte, s.chunkSize)
	for index := 0; ; index++ {
		if err := ctx.Err(); err != nil {
			return fail("put", err)
		}

		n, rerr := io.ReadFull(reader, buf)
		if n > 0 {
			data := buf[:n]
			sum := sha256.Sum256(data)
			whole.Write(data)

			key := ChunkKey(blob.ID, index)
			written = append(written, key)
			if err := s.backend.Upload(ctx, key, bytes.NewReader(data), int64(n)); err != nil {
				return fail("put", &storefront.StorageError{Backend: s.backendName, Key: key, Op: "upload", Err: err})
			}

			chunks = append(chunks, storefront.Chunk{
				BlobID:   blob.ID,
				Index:    index,
				Key:      key,
				Size:     int64(n),
				Checksum: hex.EncodeToString(sum[:]),
			})
			blob.Size += int64(n)
		}

		if rerr == io.EOF || rerr == io.ErrUnexpectedEOF {
			break
		}
		if rerr != nil {
			return fail("read", rerr)
		}
	}

	blob.Checksum = hex.EncodeToString(whole.Sum(nil))
	blob.ChunkCount = len(chunks)

	if err := s.repo.CreateBlob(ctx, blob, chunks); err != nil {
		return fail("commit", err)
	}

	span.SetAttributes(attribute.Int64("blob.size", blob.Size), attribute.Int("blob.chunks", blob.ChunkCount))
	return blob, nil
}

// Get returns the manifest and a stream that downloads chunks one at a time
// as the caller reads. Each chunk is verified against its checksum.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*storefront.Blob, io.ReadCloser, error) {
	ctx, span := tracer.Start(ctx, "blobstore.get", trace.WithAttributes(attribute.String("blob.id", id.String())))
	defer span.End()

	blob, err := s.Stat(ctx, id)
	if err != nil {
		span.RecordError(err)
		return nil, nil, err
	}
	chunks, err := s.repo.GetChunks(ctx, id)
	if err != nil {
		span.RecordError(err)
		return nil, nil, &storefront.BlobError{BlobID: id, Op: "get", Err: err}
	}

	return blob, newChunkReader(ctx, s.backend, s.backendName, chunks), nil
}

// Stat returns the manifest of a blob.
func (s *Store) Stat(ctx context.Context, id uuid.UUID) (*storefront.Blob, error) {
	blob, err := s.repo.GetBlob(ctx, id)
	if err != nil {
		return nil, &storefront.BlobError{BlobID: id, Op: "stat", Err: err}
	}
	return blob, nil
}

// Delete removes the manifest, which makes the blob unresolvable, and then
// its chunks. Chunk removal failures are logged and left for the orphan
// sweep; they do not fail the call.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	ctx, span := tracer.Start(ctx, "blobstore.delete", trace.WithAttributes(attribute.String("blob.id", id.String())))
	defer span.End()

	if _, err := s.repo.GetBlob(ctx, id); err != nil {
		span.RecordError(err)
		return &storefront.BlobError{BlobID: id, Op: "delete", Err: err}
	}
	chunks, err := s.repo.GetChunks(ctx, id)
	if err != nil {
		span.RecordError(err)
		return &storefront.BlobError{BlobID: id, Op: "delete", Err: err}
	}
	if err := s.repo.DeleteBlob(ctx, id); err != nil {
		span.RecordError(err)
		return &storefront.BlobError{BlobID: id, Op: "delete", Err: err}
	}

	keys := make([]string, 0, len(chunks))
	for _, c := range chunks {
		keys = append(keys, c.Key)
	}
	if err := s.removeKeys(ctx, keys); err != nil {
		s.logger.WarnContext(ctx, "failed to remove chunks of deleted blob", "blob_id", id, "error", err)
	}
	return nil
}

// List returns every stored manifest.
func (s *Store) List(ctx context.Context) ([]*storefront.Blob, error) {
	return s.repo.ListBlobs(ctx)
}

// Ping reports whether the backend and repository are reachable, for those
// that can tell.
func (s *Store) Ping(ctx context.Context) error {
	if p, ok := s.repo.(storefront.Pinger); ok {
		if err := p.Ping(ctx); err != nil {
			return fmt.Errorf("blob repository: %w", err)
		}
	}
	if p, ok := s.backend.(storefront.Pinger); ok {
		if err := p.Ping(ctx); err != nil {
			return fmt.Errorf("storage backend %s: %w", s.backendName, err)
		}
	}
	return nil
}

// removeKeys deletes chunk objects in parallel. Keys that are already gone
// are ignored.
func (s *Store) removeKeys(ctx context.Context, keys []string) error {
	errs := make([]error, len(keys))
	var g errgroup.Group
	g.SetLimit(deleteConcurrency)
	for i, key := range keys {
		g.Go(func() error {
			if err := s.backend.Delete(ctx, key); err != nil && !errors.Is(err, storefront.ErrObjectNotFound) {
				errs[i] = &storefront.StorageError{Backend: s.backendName, Key: key, Op: "delete", Err: err}
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}
