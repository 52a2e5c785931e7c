package storage

import (
	"context"
	"fmt"
	"io"
)

// Storage is the backend for settlement evidence files: payment proof
// images submitted by users and received over the operator chat channel.
type Storage interface {
	// Put stores a file under the given key.
	Put(ctx context.Context, key string, reader io.Reader, contentType string) error

	// Get retrieves a file by key.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes a file by key. Returns nil if the file doesn't exist.
	Delete(ctx context.Context, key string) error

	// Exists checks whether a key is present.
	Exists(ctx context.Context, key string) (bool, error)

	// GetURL returns the public URL for a stored file.
	GetURL(key string) string
}

// FileInfo describes a stored file
type FileInfo struct {
	Key         string
	Size        int64
	ContentType string
	URL         string
}

// Config selects and configures a storage backend
type Config struct {
	Backend string // "s3" or "local"

	S3Endpoint  string
	S3Region    string
	S3AccessKey string
	S3SecretKey string
	S3Bucket    string

	LocalPath string
	LocalURL  string
}

// New builds the configured storage backend. Local storage is the
// development default.
func New(cfg Config) (Storage, error) {
	switch cfg.Backend {
	case "s3":
		return NewS3Storage(cfg)
	case "local", "":
		return NewLocalStorage(cfg.LocalPath, cfg.LocalURL)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
