package documents

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	appconfig "github.com/maraichr/creditlens/internal/config"
)

// ObjectGetter is the part of the S3 API the loader needs.
type ObjectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Store reads document text from an S3-compatible bucket.
type S3Store struct {
	client ObjectGetter
	bucket string
	prefix string
}

// NewS3Store creates a store. Works with both AWS S3 and MinIO.
func NewS3Store(ctx context.Context, cfg appconfig.S3Config) (*S3Store, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = &cfg.Endpoint
			o.UsePathStyle = true
		}
	})

	return &S3Store{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

// NewS3StoreWithClient wraps an existing client.
func NewS3StoreWithClient(client ObjectGetter, bucket, prefix string) *S3Store {
	return &S3Store{client: client, bucket: bucket, prefix: prefix}
}

// Read returns the object body, capped at maxBytes.
func (s *S3Store) Read(ctx context.Context, key string, maxBytes int64) ([]byte, error) {
	full := s.prefix + key
	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &s.bucket,
		Key:    &full,
	})
	if err != nil {
		return nil, fmt.Errorf("get object %s: %w", full, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read object %s: %w", full, err)
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("object %s exceeds %d bytes", full, maxBytes)
	}
	return data, nil
}
