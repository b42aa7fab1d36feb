package config

import (
	"fmt"

	"github.com/ilyakaznacheev/cleanenv"
)

// WithEnv reads every ServerConfig field from the environment. Unset
// variables take the env-default of their field, so options applied after
// WithEnv are the only way to override a value programmatically.
//
// Database:
//
//	DATABASE_URL - "memory" (default), "postgres://..." or "sqlite://<path>"
//	DB_SCHEMA    - Postgres search_path (default "storefront")
//
// Storage:
//
//	STORAGE_URL - "memory://" (default), "file:///path/to/data",
//	              "s3://bucket" (S3_* variables) or "minio://bucket" (MINIO_* variables)
//
// See ServerConfig for the rest.
func WithEnv() Option {
	return func(c *ServerConfig) error {
		if err := cleanenv.ReadEnv(c); err != nil {
			return fmt.Errorf("failed to read environment: %w", err)
		}
		return nil
	}
}

// Usage returns the description of every recognised variable
func Usage() string {
	var cfg ServerConfig
	text, err := cleanenv.GetDescription(&cfg, nil)
	if err != nil {
		return err.Error()
	}
	return text
}
