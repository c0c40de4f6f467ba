package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"kairos/pkg/platform/sentinel"
)

const defaultS3Timeout = 10 * time.Second

// S3Config holds configuration for S3Store.
type S3Config struct {
	Bucket   string
	Region   string
	Endpoint string // optional, for MinIO or LocalStack
	Prefix   string
	Timeout  time.Duration
}

// S3Store keeps blobs in an S3 bucket under prefix + blobID. Calls are not
// retried by the store; the SDK retryer is disabled.
type S3Store struct {
	client  *s3.Client
	bucket  string
	prefix  string
	timeout time.Duration
}

func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithRetryMaxAttempts(1),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultS3Timeout
	}
	return &S3Store{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix, timeout: timeout}, nil
}

func (s *S3Store) Put(ctx context.Context, blobID string, data []byte) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key(blobID)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("text/plain"),
	})
	if err != nil {
		return unavailable("put", blobID, err)
	}
	return nil
}

func (s *S3Store) Get(ctx context.Context, blobID string) ([]byte, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(blobID)),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, sentinel.ErrNotFound
		}
		return nil, unavailable("get", blobID, err)
	}
	defer func() { _ = out.Body.Close() }()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, unavailable("read", blobID, err)
	}
	return data, nil
}

func (s *S3Store) Delete(ctx context.Context, blobID string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(blobID)),
	})
	if err != nil {
		return unavailable("delete", blobID, err)
	}
	return nil
}

// Health checks that the bucket is reachable.
func (s *S3Store) Health(ctx context.Context) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if _, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)}); err != nil {
		return unavailable("head-bucket", s.bucket, err)
	}
	return nil
}

func (s *S3Store) key(blobID string) string {
	return s.prefix + blobID + ".blob"
}

// withTimeout keeps the caller's deadline and applies the store timeout otherwise.
func (s *S3Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

func unavailable(op, blobID string, err error) error {
	return fmt.Errorf("s3 %s %s: %w: %w", op, blobID, sentinel.ErrUnavailable, err)
}
