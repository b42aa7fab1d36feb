package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/tendant/simple-storefront/pkg/storefront"
	"github.com/tendant/simple-storefront/pkg/storefront/admin"
	"github.com/tendant/simple-storefront/pkg/storefront/auth"
	"github.com/tendant/simple-storefront/pkg/storefront/blobstore"
	"github.com/tendant/simple-storefront/pkg/storefront/metrics"
	"github.com/tendant/simple-storefront/pkg/storefront/orders"
	"github.com/tendant/simple-storefront/pkg/storefront/repo/cache"
	"github.com/tendant/simple-storefront/pkg/storefront/repo/memory"
	repopg "github.com/tendant/simple-storefront/pkg/storefront/repo/postgres"
	"github.com/tendant/simple-storefront/pkg/storefront/repo/sqlite"
	"github.com/tendant/simple-storefront/pkg/storefront/staging"
	fsstorage "github.com/tendant/simple-storefront/pkg/storefront/storage/fs"
	memorystorage "github.com/tendant/simple-storefront/pkg/storefront/storage/memory"
	miniostorage "github.com/tendant/simple-storefront/pkg/storefront/storage/minio"
	s3storage "github.com/tendant/simple-storefront/pkg/storefront/storage/s3"
)

// App holds everything built from a ServerConfig. Close releases the
// database and cache connections.
type App struct {
	Service    storefront.Service
	Auth       *auth.Service
	Staging    *staging.Area
	Reconciler *admin.Reconciler
	Records    storefront.RecordRepository
	Blobs      *blobstore.Store

	// Readiness lists the dependencies /health/ready pings
	Readiness map[string]storefront.Pinger
	// Metrics serves the prometheus registry the service reports to
	Metrics http.Handler

	closers []func() error
}

// Close releases every connection opened by Build
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}

// Build opens the repository, cache and chunk backend and wires the service
// and its collaborators. On error every connection already opened is closed.
func (c *ServerConfig) Build(ctx context.Context, logger *slog.Logger) (_ *App, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	app := &App{Readiness: map[string]storefront.Pinger{}}
	defer func() {
		if err != nil {
			app.Close()
		}
	}()

	repo, err := c.buildRepository(ctx, app)
	if err != nil {
		return nil, fmt.Errorf("failed to build repository: %w", err)
	}
	if p, ok := repo.(storefront.Pinger); ok {
		app.Readiness["repository"] = p
	}

	// Mutations read records from the database; only catalog reads are cached.
	var records storefront.RecordRepository = repo
	var reads storefront.RecordReader = repo
	if c.RedisURL != "" {
		client, err := cache.NewClient(ctx, c.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to build record cache: %w", err)
		}
		app.closers = append(app.closers, client.Close)
		recordCache := cache.New(client, repo, c.CacheTTL, logger)
		app.Readiness["cache"] = recordCache
		records = recordCache.Authoritative()
		reads = recordCache
	}
	app.Records = records

	backend, err := c.buildStorageBackend(ctx, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build storage backend: %w", err)
	}
	store, err := blobstore.New(backend, repo,
		blobstore.WithChunkSize(c.ChunkSize),
		blobstore.WithBackendName(c.StorageType()),
		blobstore.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build blob store: %w", err)
	}
	app.Blobs = store
	app.Readiness["blob_store"] = store

	registry := prometheus.NewRegistry()
	sink, err := metrics.NewSink("storefront", registry)
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}
	app.Metrics = metrics.Handler(registry)

	app.Service, err = storefront.New(
		storefront.WithRecordRepository(records),
		storefront.WithRecordReader(reads),
		storefront.WithBlobStore(store),
		storefront.WithCatalog(c.Catalog()),
		storefront.WithLogger(logger),
		storefront.WithEventSink(storefront.MultiEventSink{storefront.NewLogEventSink(logger), sink}),
	)
	if err != nil {
		return nil, err
	}

	app.Auth, err = c.buildAuth(logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build access gate: %w", err)
	}

	app.Staging, err = staging.New(c.StagingDir)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare staging area: %w", err)
	}

	app.Reconciler = admin.New(records, store, logger)
	return app, nil
}

// buildRepository creates a Repository based on the configuration
func (c *ServerConfig) buildRepository(ctx context.Context, app *App) (storefront.Repository, error) {
	switch c.DatabaseType() {
	case "memory":
		return memory.New(), nil
	case "postgres":
		cfg, err := pgxpool.ParseConfig(c.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse DATABASE_URL: %w", err)
		}
		// Optionally set search_path for the connection
		schema := c.DBSchema
		cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
			if schema == "" {
				return nil
			}
			_, err := conn.Exec(ctx, "SET search_path TO "+pgx.Identifier{schema}.Sanitize())
			return err
		}
		pool, err := pgxpool.NewWithConfig(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create pgx pool: %w", err)
		}
		app.closers = append(app.closers, func() error { pool.Close(); return nil })

		repo := repopg.NewWithPool(pool)
		migrateCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if err := repo.Migrate(migrateCtx); err != nil {
			return nil, err
		}
		return repo, nil
	case "sqlite":
		repo, err := sqlite.NewRepository(c.sqlitePath())
		if err != nil {
			return nil, err
		}
		app.closers = append(app.closers, repo.Close)
		return repo, nil
	default:
		return nil, fmt.Errorf("unsupported DATABASE_URL: %s", c.DatabaseURL)
	}
}

// buildStorageBackend creates the chunk backend based on the configuration
func (c *ServerConfig) buildStorageBackend(ctx context.Context, logger *slog.Logger) (storefront.StorageBackend, error) {
	switch c.StorageType() {
	case "memory":
		if c.Environment == "production" {
			logger.Warn("chunks are kept in memory and will be lost on restart")
		}
		return memorystorage.New(), nil
	case "fs":
		return fsstorage.New(fsstorage.Config{BaseDir: c.storageTarget()})
	case "s3":
		return s3storage.New(ctx, s3storage.Config{
			Region:                 c.S3.Region,
			Bucket:                 c.storageTarget(),
			Prefix:                 c.S3.Prefix,
			AccessKeyID:            c.S3.AccessKeyID,
			SecretAccessKey:        c.S3.SecretAccessKey,
			Endpoint:               c.S3.Endpoint,
			UsePathStyle:           c.S3.UsePathStyle,
			EnableSSE:              c.S3.SSEAlgorithm != "",
			SSEAlgorithm:           c.S3.SSEAlgorithm,
			SSEKMSKeyID:            c.S3.SSEKMSKeyID,
			CreateBucketIfNotExist: c.S3.CreateBucket,
		})
	case "minio":
		return miniostorage.New(ctx, miniostorage.Config{
			Endpoint:  c.MinIO.Endpoint,
			AccessKey: c.MinIO.AccessKey,
			SecretKey: c.MinIO.SecretKey,
			Bucket:    c.storageTarget(),
			UseSSL:    c.MinIO.UseSSL,
		})
	default:
		return nil, fmt.Errorf("unsupported STORAGE_URL: %s", c.StorageURL)
	}
}

func (c *ServerConfig) buildAuth(logger *slog.Logger) (*auth.Service, error) {
	gate, err := auth.NewGate(c.JWTSecret,
		auth.WithAdminTTL(c.AdminTokenTTL),
		auth.WithCustomerTTL(c.CustomerTokenTTL),
	)
	if err != nil {
		return nil, err
	}

	var verifier orders.Verifier
	if c.Shopify.StoreURL != "" {
		shop, err := orders.NewShopify(orders.ShopifyConfig{
			StoreURL:    c.Shopify.StoreURL,
			AccessToken: c.Shopify.AccessToken,
			APIVersion:  c.Shopify.APIVersion,
		})
		if err != nil {
			return nil, err
		}
		verifier = shop
	} else {
		logger.Warn("SHOPIFY_STORE_URL is not set; customer login is disabled")
	}

	return auth.NewService(gate, auth.ServiceConfig{
		AdminEmail:        c.AdminEmail,
		AdminPasswordHash: c.AdminPasswordHash,
		Verifier:          verifier,
		Logger:            logger,
	}), nil
}
