package config

import (
	"errors"
	"time"

	"github.com/tendant/simple-storefront/pkg/storefront"
)

// WithPort sets the listen port
func WithPort(port string) Option {
	return func(c *ServerConfig) error {
		if port == "" {
			return errors.New("port cannot be empty")
		}
		c.Port = port
		return nil
	}
}

// WithEnvironment sets the runtime environment name
func WithEnvironment(env string) Option {
	return func(c *ServerConfig) error {
		c.Environment = env
		return nil
	}
}

// WithDatabase sets the record store URL
func WithDatabase(url string) Option {
	return func(c *ServerConfig) error {
		c.DatabaseURL = url
		return nil
	}
}

// WithDatabaseSchema sets the Postgres search_path
func WithDatabaseSchema(schema string) Option {
	return func(c *ServerConfig) error {
		c.DBSchema = schema
		return nil
	}
}

// WithMemoryStorage keeps chunks in process memory
func WithMemoryStorage() Option {
	return func(c *ServerConfig) error {
		c.StorageURL = "memory://"
		return nil
	}
}

// WithFilesystemStorage stores chunks under baseDir
func WithFilesystemStorage(baseDir string) Option {
	return func(c *ServerConfig) error {
		if baseDir == "" {
			return errors.New("base directory cannot be empty")
		}
		c.StorageURL = "file://" + baseDir
		return nil
	}
}

// WithS3Storage stores chunks in an S3 bucket
func WithS3Storage(bucket string, s3 S3Config) Option {
	return func(c *ServerConfig) error {
		if bucket == "" {
			return errors.New("bucket cannot be empty")
		}
		c.StorageURL = "s3://" + bucket
		c.S3 = s3
		return nil
	}
}

// WithMinIOStorage stores chunks in a MinIO bucket
func WithMinIOStorage(bucket string, minio MinIOConfig) Option {
	return func(c *ServerConfig) error {
		if bucket == "" {
			return errors.New("bucket cannot be empty")
		}
		c.StorageURL = "minio://" + bucket
		c.MinIO = minio
		return nil
	}
}

// WithChunkSize sets the blob chunk size in bytes
func WithChunkSize(size int64) Option {
	return func(c *ServerConfig) error {
		c.ChunkSize = size
		return nil
	}
}

// WithRedisCache enables the record cache
func WithRedisCache(url string, ttl time.Duration) Option {
	return func(c *ServerConfig) error {
		c.RedisURL = url
		if ttl > 0 {
			c.CacheTTL = ttl
		}
		return nil
	}
}

// WithJWTSecret sets the credential signing secret
func WithJWTSecret(secret string) Option {
	return func(c *ServerConfig) error {
		c.JWTSecret = secret
		return nil
	}
}

// WithAdmin sets the admin login. passwordHash is a bcrypt hash.
func WithAdmin(email, passwordHash string) Option {
	return func(c *ServerConfig) error {
		c.AdminEmail = email
		c.AdminPasswordHash = passwordHash
		return nil
	}
}

// WithShopify enables order verification against a Shopify store
func WithShopify(storeURL, accessToken string) Option {
	return func(c *ServerConfig) error {
		c.Shopify.StoreURL = storeURL
		c.Shopify.AccessToken = accessToken
		return nil
	}
}

// WithCatalog sets the category set and gallery rules
func WithCatalog(catalog storefront.Catalog) Option {
	return func(c *ServerConfig) error {
		c.Categories = append([]string(nil), catalog.Categories...)
		c.MaxGalleryImages = catalog.MaxGalleryImages
		c.RequireCoverImage = catalog.RequireCoverImage
		return nil
	}
}

// WithPublicCatalog opens or closes list and get to anonymous callers
func WithPublicCatalog(public bool) Option {
	return func(c *ServerConfig) error {
		c.PublicCatalog = public
		return nil
	}
}

// WithUploadLimits sets the request body cap and the idle cutoff
func WithUploadLimits(maxSize int64, idle time.Duration) Option {
	return func(c *ServerConfig) error {
		c.MaxUploadSize = maxSize
		c.UploadIdleTimeout = idle
		return nil
	}
}

// WithStagingDir sets where multipart uploads are staged
func WithStagingDir(dir string) Option {
	return func(c *ServerConfig) error {
		c.StagingDir = dir
		return nil
	}
}
