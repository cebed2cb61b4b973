package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/Skryldev/image-optimizer/config"
	apperrors "github.com/Skryldev/image-optimizer/errors"
)

// minioClient implements S3Client with minio-go.
type minioClient struct {
	client *minio.Client
}

// NewMinioClient builds an S3Client for a MinIO (or other S3-compatible)
// endpoint.  cfg.Endpoint is a host[:port] without scheme.
func NewMinioClient(cfg config.S3Config) (S3Client, error) {
	if cfg.Endpoint == "" {
		return nil, apperrors.New(apperrors.CategoryConfig, "minio.init", fmt.Errorf("endpoint is required"))
	}
	c, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.Secure,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryConfig, "minio.init", err)
	}
	return &minioClient{client: c}, nil
}

func (c *minioClient) PutObject(ctx context.Context, bucket, key string, body io.Reader, meta map[string]string) error {
	opts := minio.PutObjectOptions{UserMetadata: meta}
	if ct, ok := meta["content-type"]; ok {
		opts.ContentType = ct
	}
	_, err := c.client.PutObject(ctx, bucket, key, body, -1, opts)
	return err
}

func (c *minioClient) GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	obj, err := c.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, minioNotFound(err, bucket, key)
	}
	// GetObject is lazy; Stat surfaces a missing key now rather than on
	// first Read.
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		return nil, minioNotFound(err, bucket, key)
	}
	return obj, nil
}

func (c *minioClient) DeleteObject(ctx context.Context, bucket, key string) error {
	return minioNotFound(c.client.RemoveObject(ctx, bucket, key, minio.RemoveObjectOptions{}), bucket, key)
}

func (c *minioClient) HeadObject(ctx context.Context, bucket, key string) (bool, error) {
	_, err := c.client.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	code := minio.ToErrorResponse(err).Code
	if code == "NoSuchKey" || code == "NotFound" {
		return false, nil
	}
	return false, err
}

func minioNotFound(err error, bucket, key string) error {
	if err == nil {
		return nil
	}
	code := minio.ToErrorResponse(err).Code
	if code == "NoSuchKey" || code == "NotFound" {
		return fmt.Errorf("%w: %s/%s", apperrors.ErrNotFound, bucket, key)
	}
	return err
}
