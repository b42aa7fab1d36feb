package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-storefront/pkg/storefront"
)

// DefaultGracePeriod protects blobs of operations still in flight: a blob is
// stored before the record that references it.
const DefaultGracePeriod = time.Hour

// Reconciler finds and removes blobs no content record references. These
// are left behind when the process stops between storing blobs and saving
// the record.
//
// Endpoints or commands using it should be restricted to administrators.
type Reconciler struct {
	records storefront.RecordRepository
	blobs   storefront.BlobStore
	logger  *slog.Logger
	now     func() time.Time
}

// New creates a Reconciler
func New(records storefront.RecordRepository, blobs storefront.BlobStore, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{records: records, blobs: blobs, logger: logger, now: time.Now}
}

// SweepRequest configures SweepOrphans
type SweepRequest struct {
	GracePeriod time.Duration
	DryRun      bool
}

// SweepResult lists what a sweep found and removed
type SweepResult struct {
	Orphans []*storefront.Blob `json:"orphans"`
	Deleted []uuid.UUID        `json:"deleted"`
	Errors  []string           `json:"errors,omitempty"`
	DryRun  bool               `json:"dry_run"`
}

// Statistics summarises the catalog
type Statistics struct {
	Records      int            `json:"records"`
	ByCategory   map[string]int `json:"by_category"`
	Blobs        int            `json:"blobs"`
	BlobBytes    int64          `json:"blob_bytes"`
	Referenced   int            `json:"referenced"`
	Unreferenced int            `json:"unreferenced"`
}

func (r *Reconciler) referenced(ctx context.Context) (map[uuid.UUID]struct{}, []*storefront.ContentRecord, error) {
	records, err := r.records.ListRecords(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("list records: %w", err)
	}
	refs := make(map[uuid.UUID]struct{})
	for _, record := range records {
		for _, ref := range record.BlobRefs() {
			refs[ref.BlobID] = struct{}{}
		}
	}
	return refs, records, nil
}

// FindOrphans returns unreferenced blobs created more than grace ago
func (r *Reconciler) FindOrphans(ctx context.Context, grace time.Duration) ([]*storefront.Blob, error) {
	if grace < 0 {
		grace = DefaultGracePeriod
	}
	// Blobs are listed before records so that a blob committed together
	// with its record in between is seen as referenced.
	blobs, err := r.blobs.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list blobs: %w", err)
	}
	refs, _, err := r.referenced(ctx)
	if err != nil {
		return nil, err
	}

	cutoff := r.now().Add(-grace)
	orphans := []*storefront.Blob{}
	for _, b := range blobs {
		if _, ok := refs[b.ID]; ok {
			continue
		}
		if b.CreatedAt.After(cutoff) {
			continue
		}
		orphans = append(orphans, b)
	}
	return orphans, nil
}

// SweepOrphans deletes the blobs FindOrphans reports. Individual failures
// are collected and do not stop the sweep.
func (r *Reconciler) SweepOrphans(ctx context.Context, req SweepRequest) (*SweepResult, error) {
	orphans, err := r.FindOrphans(ctx, req.GracePeriod)
	if err != nil {
		return nil, err
	}
	result := &SweepResult{Orphans: orphans, Deleted: []uuid.UUID{}, DryRun: req.DryRun}
	if req.DryRun {
		return result, nil
	}

	for _, b := range orphans {
		if err := r.blobs.Delete(ctx, b.ID); err != nil && !errors.Is(err, storefront.ErrBlobNotFound) {
			r.logger.WarnContext(ctx, "failed to delete orphan blob", "blob_id", b.ID, "error", err)
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", b.ID, err))
			continue
		}
		result.Deleted = append(result.Deleted, b.ID)
	}
	r.logger.InfoContext(ctx, "orphan sweep finished", "orphans", len(orphans), "deleted", len(result.Deleted), "failed", len(result.Errors))
	return result, nil
}

// GetStatistics counts records and blobs
func (r *Reconciler) GetStatistics(ctx context.Context) (*Statistics, error) {
	blobs, err := r.blobs.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list blobs: %w", err)
	}
	refs, records, err := r.referenced(ctx)
	if err != nil {
		return nil, err
	}

	stats := &Statistics{Records: len(records), ByCategory: map[string]int{}, Blobs: len(blobs)}
	for _, record := range records {
		stats.ByCategory[record.Category]++
	}
	for _, b := range blobs {
		stats.BlobBytes += b.Size
		if _, ok := refs[b.ID]; ok {
			stats.Referenced++
		} else {
			stats.Unreferenced++
		}
	}
	return stats, nil
}
