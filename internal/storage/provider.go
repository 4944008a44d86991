// Package storage is where finished exports land: a local directory or an
// S3 bucket.
package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"fluxconn/internal/config"
)

// Provider stores exported files under a relative key.
type Provider interface {
	// Create starts writing key. Bytes written to the Upload reach the
	// destination no later than Wait returning.
	Create(ctx context.Context, key string) (Upload, error)

	// Open reads a stored file back.
	Open(ctx context.Context, key string) (io.ReadCloser, error)

	// URL returns where the stored file can be fetched from.
	URL(key string) string
}

// Upload is an in-flight write. Close ends the stream and Wait reports
// whether the file was stored.
type Upload interface {
	io.WriteCloser
	Wait() error
}

// New builds the provider selected by cfg.StorageType.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (Provider, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch cfg.StorageType {
	case "", "local":
		return NewLocalProvider(cfg.LocalStoragePath, logger)
	case "s3":
		if cfg.S3Bucket == "" {
			return nil, fmt.Errorf("s3 storage needs S3_BUCKET")
		}
		client, err := NewS3Client(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return NewS3Provider(client, cfg.S3Bucket, logger), nil
	}
	return nil, fmt.Errorf("unknown storage type %q", cfg.StorageType)
}
