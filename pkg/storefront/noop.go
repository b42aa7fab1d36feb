package storefront

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
)

// NoopEventSink is a no-operation implementation of EventSink
type NoopEventSink struct{}

// NewNoopEventSink creates a new no-operation event sink
func NewNoopEventSink() EventSink {
	return &NoopEventSink{}
}

func (n *NoopEventSink) ContentCreated(ctx context.Context, record *ContentRecord) error { return nil }
func (n *NoopEventSink) ContentUpdated(ctx context.Context, record *ContentRecord) error { return nil }
func (n *NoopEventSink) ContentDeleted(ctx context.Context, report *DeleteReport) error  { return nil }
func (n *NoopEventSink) BlobStored(ctx context.Context, blob *Blob) error                 { return nil }
func (n *NoopEventSink) BlobDeleted(ctx context.Context, blobID uuid.UUID, err error) error {
	return nil
}

// LogEventSink writes lifecycle events to a structured logger
type LogEventSink struct {
	logger *slog.Logger
}

// NewLogEventSink creates an event sink that logs to logger, or to the
// default logger when logger is nil.
func NewLogEventSink(logger *slog.Logger) EventSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogEventSink{logger: logger}
}

func (l *LogEventSink) ContentCreated(ctx context.Context, record *ContentRecord) error {
	l.logger.InfoContext(ctx, "content created", "content_id", record.ID, "name", record.Name, "category", record.Category)
	return nil
}

func (l *LogEventSink) ContentUpdated(ctx context.Context, record *ContentRecord) error {
	l.logger.InfoContext(ctx, "content updated", "content_id", record.ID)
	return nil
}

func (l *LogEventSink) ContentDeleted(ctx context.Context, report *DeleteReport) error {
	l.logger.InfoContext(ctx, "content deleted",
		"content_id", report.ContentID,
		"blobs", len(report.Blobs),
		"failed_blobs", len(report.Failed()))
	return nil
}

func (l *LogEventSink) BlobStored(ctx context.Context, blob *Blob) error {
	l.logger.DebugContext(ctx, "blob stored", "blob_id", blob.ID, "size", blob.Size, "chunks", blob.ChunkCount)
	return nil
}

func (l *LogEventSink) BlobDeleted(ctx context.Context, blobID uuid.UUID, err error) error {
	if err != nil {
		l.logger.WarnContext(ctx, "blob delete failed", "blob_id", blobID, "error", err)
		return nil
	}
	l.logger.DebugContext(ctx, "blob deleted", "blob_id", blobID)
	return nil
}

// MultiEventSink fans events out to several sinks
type MultiEventSink []EventSink

func (m MultiEventSink) ContentCreated(ctx context.Context, record *ContentRecord) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.ContentCreated(ctx, record))
	}
	return errors.Join(errs...)
}

func (m MultiEventSink) ContentUpdated(ctx context.Context, record *ContentRecord) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.ContentUpdated(ctx, record))
	}
	return errors.Join(errs...)
}

func (m MultiEventSink) ContentDeleted(ctx context.Context, report *DeleteReport) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.ContentDeleted(ctx, report))
	}
	return errors.Join(errs...)
}

func (m MultiEventSink) BlobStored(ctx context.Context, blob *Blob) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.BlobStored(ctx, blob))
	}
	return errors.Join(errs...)
}

func (m MultiEventSink) BlobDeleted(ctx context.Context, blobID uuid.UUID, err error) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.BlobDeleted(ctx, blobID, err))
	}
	return errors.Join(errs...)
}
