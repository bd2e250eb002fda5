// SPDX-License-Identifier: MIT

// Package objstore uploads archive exports to S3-compatible storage.
package objstore

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/pitwall-live/pitwall/internal/config"
)

// Uploader streams local files into one bucket.
type Uploader struct {
	bucket   string
	uploader *manager.Uploader
}

// New builds an uploader from the archiver config. A non-empty endpoint
// switches to path-style addressing, which MinIO and the in-process fake
// used by tests both require.
func New(ctx context.Context, cfg config.Archiver) (*Uploader, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		}
	})
	return NewWithClient(client, cfg.Bucket), nil
}

// NewWithClient wraps an existing S3 client.
func NewWithClient(client *s3.Client, bucket string) *Uploader {
	return &Uploader{
		bucket:   bucket,
		uploader: manager.NewUploader(client),
	}
}

// UploadFile puts one local file under the given object key.
func (u *Uploader) UploadFile(ctx context.Context, key, path string) error {
	f, err := os.Open(path) // #nosec G304 -- spool files this service wrote itself
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	_, err = u.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	return nil
}
