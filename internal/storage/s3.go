package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"fluxconn/internal/config"
)

const (
	s3PartSize    = 10 * 1024 * 1024
	s3Concurrency = 5
)

// NewS3Client builds a client from cfg. Credentials resolve through the
// default AWS chain: environment, shared config files, then instance roles.
func NewS3Client(ctx context.Context, cfg *config.Config) (*s3.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
		}
		o.UsePathStyle = cfg.S3PathStyle
	}), nil
}

// S3Provider uploads exports as multipart objects while they are written.
type S3Provider struct {
	client *s3.Client
	bucket string
	logger *slog.Logger
}

func NewS3Provider(client *s3.Client, bucket string, logger *slog.Logger) *S3Provider {
	return &S3Provider{client: client, bucket: bucket, logger: logger}
}

// Create pipes written bytes into a background multipart upload.
func (p *S3Provider) Create(ctx context.Context, key string) (Upload, error) {
	reader, writer := io.Pipe()
	up := &s3Upload{PipeWriter: writer, done: make(chan error, 1)}

	uploader := manager.NewUploader(p.client, func(u *manager.Uploader) {
		u.PartSize = s3PartSize
		u.Concurrency = s3Concurrency
	})

	go func() {
		p.logger.Info("Starting S3 upload", "bucket", p.bucket, "key", key)
		_, err := uploader.Upload(ctx, &s3.PutObjectInput{
			Bucket: aws.String(p.bucket),
			Key:    aws.String(key),
			Body:   reader,
		})
		// Unblock a writer still pushing bytes after a failed upload.
		_ = reader.CloseWithError(err)
		if err != nil {
			p.logger.Error("S3 upload failed", "key", key, "error", err)
			up.done <- fmt.Errorf("s3 upload failed: %w", err)
			return
		}
		p.logger.Info("S3 upload finished", "key", key)
		up.done <- nil
	}()

	return up, nil
}

func (p *S3Provider) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := p.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("get s3://%s/%s: %w", p.bucket, key, err)
	}
	return out.Body, nil
}

func (p *S3Provider) URL(key string) string {
	return fmt.Sprintf("s3://%s/%s", p.bucket, key)
}

type s3Upload struct {
	*io.PipeWriter
	done chan error
	err  error
	got  bool
}

// Wait closes the stream if needed and blocks until the upload ends.
func (u *s3Upload) Wait() error {
	if !u.got {
		_ = u.PipeWriter.Close()
		u.err = <-u.done
		u.got = true
	}
	return u.err
}
