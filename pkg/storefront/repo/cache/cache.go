// Package cache provides a redis read-through cache in front of a record
// repository.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/tendant/simple-storefront/pkg/storefront"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/tendant/simple-storefront/pkg/storefront/repo/cache")

// DefaultTTL is the lifetime of a cached record
const DefaultTTL = 5 * time.Minute

// generationTTL bounds how long an invalidation counter is kept. A fill
// that started before the counter expired is still rejected.
const generationTTL = 24 * time.Hour

var errStaleFill = errors.New("record changed while it was being loaded")

// RecordCache implements storefront.RecordRepository by serving GetRecord
// from redis and delegating everything else. Writes invalidate the cached
// entry. Redis failures never fail a call; the backing repository answers.
//
// Cached records can lag behind the database, so a RecordCache should only
// back catalog reads. Mutations use Authoritative.
type RecordCache struct {
	client *redis.Client
	next   storefront.RecordRepository
	ttl    time.Duration
	logger *slog.Logger
}

// NewClient parses a redis:// URL and checks the server answers
func NewClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}
	return client, nil
}

// New wraps next with a cache stored in client
func New(client *redis.Client, next storefront.RecordRepository, ttl time.Duration, logger *slog.Logger) *RecordCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RecordCache{client: client, next: next, ttl: ttl, logger: logger}
}

func key(id uuid.UUID) string {
	return fmt.Sprintf("content:%s", id)
}

func generationKey(id uuid.UUID) string {
	return fmt.Sprintf("content:%s:gen", id)
}

// Authoritative returns the repository mutations should use. Reads go
// straight to the backing repository and writes still invalidate the cache.
func (c *RecordCache) Authoritative() storefront.RecordRepository {
	return authoritative{c}
}

type authoritative struct {
	*RecordCache
}

func (a authoritative) GetRecord(ctx context.Context, id uuid.UUID) (*storefront.ContentRecord, error) {
	return a.next.GetRecord(ctx, id)
}

func (c *RecordCache) CreateRecord(ctx context.Context, record *storefront.ContentRecord) error {
	return c.next.CreateRecord(ctx, record)
}

func (c *RecordCache) GetRecord(ctx context.Context, id uuid.UUID) (*storefront.ContentRecord, error) {
	ctx, span := tracer.Start(ctx, "cache.get_record", trace.WithAttributes(attribute.String("content.id", id.String())))
	defer span.End()

	data, err := c.client.Get(ctx, key(id)).Bytes()
	switch {
	case err == nil:
		var record storefront.ContentRecord
		if err := json.Unmarshal(data, &record); err == nil {
			span.SetAttributes(attribute.String("cache_status", "hit"))
			return &record, nil
		}
		c.logger.WarnContext(ctx, "discarding undecodable cache entry", "content_id", id)
	case errors.Is(err, redis.Nil):
	default:
		span.RecordError(err)
		c.logger.WarnContext(ctx, "record cache read failed", "content_id", id, "error", err)
	}
	span.SetAttributes(attribute.String("cache_status", "miss"))

	// The generation is read before the record so an invalidation that lands
	// while the record is loading rejects the fill below.
	gen, genErr := c.generation(ctx, id)
	record, err := c.next.GetRecord(ctx, id)
	if err != nil {
		return nil, err
	}
	if genErr == nil {
		c.fill(ctx, id, gen, record)
	}
	return record, nil
}

func (c *RecordCache) generation(ctx context.Context, id uuid.UUID) (int64, error) {
	gen, err := c.client.Get(ctx, generationKey(id)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

// fill caches record unless the entry was invalidated after gen was read
func (c *RecordCache) fill(ctx context.Context, id uuid.UUID, gen int64, record *storefront.ContentRecord) {
	data, err := json.Marshal(record)
	if err != nil {
		return
	}

	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, generationKey(id)).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != gen {
			return errStaleFill
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key(id), data, c.ttl)
			return nil
		})
		return err
	}, generationKey(id))

	switch {
	case err == nil:
	case errors.Is(err, errStaleFill), errors.Is(err, redis.TxFailedErr):
		c.logger.DebugContext(ctx, "skipping stale cache fill", "content_id", id)
	default:
		c.logger.WarnContext(ctx, "record cache write failed", "content_id", id, "error", err)
	}
}

// ListRecords is not cached
func (c *RecordCache) ListRecords(ctx context.Context) ([]*storefront.ContentRecord, error) {
	return c.next.ListRecords(ctx)
}

// FindRecordByImage is not cached
func (c *RecordCache) FindRecordByImage(ctx context.Context, blobID uuid.UUID) (*storefront.ContentRecord, error) {
	return c.next.FindRecordByImage(ctx, blobID)
}

func (c *RecordCache) UpdateRecord(ctx context.Context, record *storefront.ContentRecord) error {
	err := c.next.UpdateRecord(ctx, record)
	c.invalidate(ctx, record.ID)
	return err
}

func (c *RecordCache) DeleteRecord(ctx context.Context, id uuid.UUID) error {
	err := c.next.DeleteRecord(ctx, id)
	c.invalidate(ctx, id)
	return err
}

// Ping checks redis and, when it can tell, the backing repository
func (c *RecordCache) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	if p, ok := c.next.(storefront.Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

func (c *RecordCache) invalidate(ctx context.Context, id uuid.UUID) {
	ctx = context.WithoutCancel(ctx)
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, generationKey(id))
		pipe.Expire(ctx, generationKey(id), generationTTL)
		pipe.Del(ctx, key(id))
		return nil
	})
	if err != nil {
		c.logger.WarnContext(ctx, "record cache invalidation failed", "content_id", id, "error", err)
	}
}
