package blobstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"

	"github.com/tendant/simple-storefront/pkg/storefront"
)

// ErrCorruptChunk is returned by a blob stream whose chunk does not match
// the size or checksum recorded in the manifest.
var ErrCorruptChunk = errors.New("corrupt chunk")

var errReaderClosed = errors.New("blob reader closed")

// chunkReader streams a blob by opening one chunk at a time.
type chunkReader struct {
	ctx         context.Context
	backend     storefront.StorageBackend
	backendName string
	chunks      []storefront.Chunk

	next    int
	chunk   storefront.Chunk
	current io.ReadCloser
	hasher  hash.Hash
	read    int64
	err     error
}

func newChunkReader(ctx context.Context, backend storefront.StorageBackend, backendName string, chunks []storefront.Chunk) *chunkReader {
	return &chunkReader{
		ctx:         ctx,
		backend:     backend,
		backendName: backendName,
		chunks:      chunks,
	}
}

func (r *chunkReader) Read(p []byte) (int, error) {
	for {
		if r.err != nil {
			return 0, r.err
		}
		if len(p) == 0 {
			return 0, nil
		}

		if r.current == nil {
			if r.next >= len(r.chunks) {
				return 0, io.EOF
			}
			if err := r.open(r.chunks[r.next]); err != nil {
				r.err = err
				return 0, err
			}
			r.next++
		}

		n, err := r.current.Read(p)
		if n > 0 {
			r.hasher.Write(p[:n])
			r.read += int64(n)
		}

		if err == io.EOF {
			r.current.Close()
			r.current = nil
			if verr := r.verify(); verr != nil {
				r.err = verr
			}
			if n > 0 {
				return n, nil
			}
			continue
		}
		if err != nil {
			r.err = &storefront.StorageError{Backend: r.backendName, Key: r.chunk.Key, Op: "read", Err: err}
			return n, r.err
		}
		if r.read > r.chunk.Size {
			r.err = r.corrupt("longer than recorded")
			return n, nil
		}
		if n > 0 {
			return n, nil
		}
	}
}

func (r *chunkReader) open(c storefront.Chunk) error {
	rc, err := r.backend.Download(r.ctx, c.Key)
	if err != nil {
		return &storefront.StorageError{Backend: r.backendName, Key: c.Key, Op: "download", Err: err}
	}
	r.current = rc
	r.chunk = c
	r.hasher = sha256.New()
	r.read = 0
	return nil
}

func (r *chunkReader) verify() error {
	if r.read != r.chunk.Size {
		return r.corrupt(fmt.Sprintf("size %d, recorded %d", r.read, r.chunk.Size))
	}
	if r.chunk.Checksum != "" && hex.EncodeToString(r.hasher.Sum(nil)) != r.chunk.Checksum {
		return r.corrupt("checksum mismatch")
	}
	return nil
}

func (r *chunkReader) corrupt(detail string) error {
	return fmt.Errorf("%w: chunk %d of blob %s: %s", ErrCorruptChunk, r.chunk.Index, r.chunk.BlobID, detail)
}

func (r *chunkReader) Close() error {
	var err error
	if r.current != nil {
		err = r.current.Close()
		r.current = nil
	}
	r.err = errReaderClosed
	return err
}
