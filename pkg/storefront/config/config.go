package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tendant/simple-storefront/pkg/storefront"
)

// Option applies configuration to a ServerConfig instance.
type Option func(*ServerConfig) error

// Load constructs a ServerConfig by applying the supplied options on top of library defaults.
// WithEnv rewrites every field it knows, so pass it before any other option.
func Load(opts ...Option) (*ServerConfig, error) {
	cfg := defaults()

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func defaults() ServerConfig {
	catalog := storefront.DefaultCatalog()
	return ServerConfig{
		Port:        "8080",
		Environment: "development",
		DatabaseURL: "memory",
		DBSchema:    "storefront",
		StorageURL:  "memory://",
		S3: S3Config{
			Region: "us-east-1",
		},
		MinIO: MinIOConfig{
			UseSSL: true,
		},
		ChunkSize:         10 << 20,
		CacheTTL:          5 * time.Minute,
		AdminTokenTTL:     time.Hour,
		CustomerTokenTTL:  3 * time.Hour,
		Shopify:           ShopifyConfig{APIVersion: "2023-01"},
		MaxUploadSize:     5 << 30,
		UploadIdleTimeout: 5 * time.Minute,
		Categories:        catalog.Categories,
		MaxGalleryImages:  catalog.MaxGalleryImages,
		RequireCoverImage: catalog.RequireCoverImage,
		PublicCatalog:     true,
		LogLevel:          "info",
		LogFormat:         "text",
	}
}

// ServerConfig represents server configuration for the storefront service
type ServerConfig struct {
	Port        string `env:"PORT" env-default:"8080"`
	Environment string `env:"ENVIRONMENT" env-default:"development"` // development, production, testing

	// Record store: "memory", "postgres://...", "postgresql://..." or "sqlite://<path>"
	DatabaseURL string `env:"DATABASE_URL" env-default:"memory"`
	DBSchema    string `env:"DB_SCHEMA" env-default:"storefront"` // Postgres schema to use

	// Chunk store: "memory://", "file://<dir>", "s3://<bucket>" or "minio://<bucket>"
	StorageURL string      `env:"STORAGE_URL" env-default:"memory://"`
	S3         S3Config    `env-prefix:"S3_"`
	MinIO      MinIOConfig `env-prefix:"MINIO_"`
	ChunkSize  int64       `env:"CHUNK_SIZE_BYTES" env-default:"10485760"`

	// Record cache, disabled when RedisURL is empty
	RedisURL string        `env:"REDIS_URL"`
	CacheTTL time.Duration `env:"CACHE_TTL" env-default:"5m"`

	// Credentials
	JWTSecret         string        `env:"JWT_SECRET"`
	AdminEmail        string        `env:"ADMIN_EMAIL"`
	AdminPasswordHash string        `env:"ADMIN_PASSWORD_HASH"`
	AdminTokenTTL     time.Duration `env:"ADMIN_TOKEN_TTL" env-default:"1h"`
	CustomerTokenTTL  time.Duration `env:"CUSTOMER_TOKEN_TTL" env-default:"3h"`

	// Order verification, disabled when no store URL is set
	Shopify ShopifyConfig `env-prefix:"SHOPIFY_"`

	// Uploads
	MaxUploadSize     int64         `env:"MAX_UPLOAD_SIZE" env-default:"5368709120"`
	UploadIdleTimeout time.Duration `env:"UPLOAD_IDLE_TIMEOUT" env-default:"5m"`
	StagingDir        string        `env:"STAGING_DIR"`

	// Catalog rules
	Categories        []string `env:"CATALOG_CATEGORIES" env-separator:"," env-default:"Games,Movies,Images,Documents"`
	MaxGalleryImages  int      `env:"MAX_GALLERY_IMAGES" env-default:"30"`
	RequireCoverImage bool     `env:"REQUIRE_COVER_IMAGE" env-default:"true"`
	PublicCatalog     bool     `env:"PUBLIC_CATALOG" env-default:"true"`

	CORSOrigins []string `env:"CORS_ALLOWED_ORIGINS" env-separator:","`

	// Observability
	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	LogLevel     string `env:"LOG_LEVEL" env-default:"info"`
	LogFormat    string `env:"LOG_FORMAT" env-default:"text"`
}

// S3Config holds the settings of the S3 chunk backend
type S3Config struct {
	Region          string `env:"REGION" env-default:"us-east-1"`
	Endpoint        string `env:"ENDPOINT"`
	AccessKeyID     string `env:"ACCESS_KEY_ID"`
	SecretAccessKey string `env:"SECRET_ACCESS_KEY"`
	UsePathStyle    bool   `env:"USE_PATH_STYLE"`
	CreateBucket    bool   `env:"CREATE_BUCKET"`
	Prefix          string `env:"PREFIX"`
	SSEAlgorithm    string `env:"SSE_ALGORITHM"` // AES256 or aws:kms, empty disables SSE
	SSEKMSKeyID     string `env:"SSE_KMS_KEY_ID"`
}

// MinIOConfig holds the settings of the MinIO chunk backend
type MinIOConfig struct {
	Endpoint  string `env:"ENDPOINT"`
	AccessKey string `env:"ACCESS_KEY"`
	SecretKey string `env:"SECRET_KEY"`
	UseSSL    bool   `env:"USE_SSL" env-default:"true"`
}

// ShopifyConfig holds the order service settings
type ShopifyConfig struct {
	StoreURL    string `env:"STORE_URL"`
	AccessToken string `env:"ACCESS_TOKEN"`
	APIVersion  string `env:"API_VERSION" env-default:"2023-01"`
}

// DatabaseType returns "memory", "postgres" or "sqlite" from DatabaseURL.
func (c *ServerConfig) DatabaseType() string {
	u := strings.TrimSpace(c.DatabaseURL)
	switch {
	case u == "" || u == "memory" || u == "memory://":
		return "memory"
	case strings.HasPrefix(u, "postgres://"), strings.HasPrefix(u, "postgresql://"):
		return "postgres"
	case strings.HasPrefix(u, "sqlite://"):
		return "sqlite"
	default:
		return ""
	}
}

// StorageType returns "memory", "fs", "s3" or "minio" from StorageURL.
func (c *ServerConfig) StorageType() string {
	u := strings.TrimSpace(c.StorageURL)
	switch {
	case u == "" || u == "memory" || u == "memory://":
		return "memory"
	case strings.HasPrefix(u, "file://"):
		return "fs"
	case strings.HasPrefix(u, "s3://"):
		return "s3"
	case strings.HasPrefix(u, "minio://"):
		return "minio"
	default:
		return ""
	}
}

// storageTarget is the part of StorageURL after the scheme: a directory for
// file:// and a bucket name for s3:// and minio://.
func (c *ServerConfig) storageTarget() string {
	_, rest, _ := strings.Cut(strings.TrimSpace(c.StorageURL), "://")
	return strings.TrimSuffix(rest, "/")
}

func (c *ServerConfig) sqlitePath() string {
	return strings.TrimPrefix(strings.TrimSpace(c.DatabaseURL), "sqlite://")
}

// Catalog returns the record-shape rules configured for the service.
func (c *ServerConfig) Catalog() storefront.Catalog {
	var categories []string
	for _, cat := range c.Categories {
		if cat = strings.TrimSpace(cat); cat != "" {
			categories = append(categories, cat)
		}
	}
	return storefront.Catalog{
		Categories:        categories,
		MaxGalleryImages:  c.MaxGalleryImages,
		RequireCoverImage: c.RequireCoverImage,
	}
}

// Validate validates the server configuration
func (c *ServerConfig) Validate() error {
	if c.Port == "" {
		return errors.New("port is required")
	}

	switch c.DatabaseType() {
	case "":
		return fmt.Errorf("unsupported DATABASE_URL %q (use 'memory', 'postgres://...' or 'sqlite://<path>')", c.DatabaseURL)
	case "sqlite":
		if c.sqlitePath() == "" {
			return errors.New("sqlite path cannot be empty in DATABASE_URL")
		}
	}

	switch c.StorageType() {
	case "":
		return fmt.Errorf("unsupported STORAGE_URL %q (use 'memory://', 'file://...', 's3://...' or 'minio://...')", c.StorageURL)
	case "fs":
		if c.storageTarget() == "" {
			return errors.New("filesystem path cannot be empty in STORAGE_URL")
		}
	case "s3":
		if c.storageTarget() == "" {
			return errors.New("bucket cannot be empty in STORAGE_URL")
		}
	case "minio":
		if c.storageTarget() == "" {
			return errors.New("bucket cannot be empty in STORAGE_URL")
		}
		if c.MinIO.Endpoint == "" {
			return errors.New("MINIO_ENDPOINT is required for minio storage")
		}
	}

	switch c.S3.SSEAlgorithm {
	case "", "AES256", "aws:kms":
	default:
		return fmt.Errorf("unsupported S3_SSE_ALGORITHM %q (use AES256 or aws:kms)", c.S3.SSEAlgorithm)
	}

	if c.ChunkSize <= 0 {
		return errors.New("chunk size must be positive")
	}
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if (c.AdminEmail == "") != (c.AdminPasswordHash == "") {
		return errors.New("ADMIN_EMAIL and ADMIN_PASSWORD_HASH must be set together")
	}
	if c.AdminTokenTTL <= 0 || c.CustomerTokenTTL <= 0 {
		return errors.New("token lifetimes must be positive")
	}
	if c.Shopify.StoreURL != "" && c.Shopify.AccessToken == "" {
		return errors.New("SHOPIFY_ACCESS_TOKEN is required when SHOPIFY_STORE_URL is set")
	}
	if len(c.Catalog().Categories) == 0 {
		return errors.New("at least one catalog category is required")
	}
	if c.MaxGalleryImages < 0 {
		return errors.New("max gallery images cannot be negative")
	}

	return nil
}
