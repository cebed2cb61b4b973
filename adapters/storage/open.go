package storage

import (
	"context"
	"fmt"
	"os"

	"github.com/Skryldev/image-optimizer/config"
	"github.com/Skryldev/image-optimizer/core"
	apperrors "github.com/Skryldev/image-optimizer/errors"
)

// Open returns the storage adapter selected by cfg.Storage.
func Open(ctx context.Context, cfg config.Config) (core.StorageAdapter, error) {
	switch cfg.Storage {
	case config.StorageLocal, "":
		return NewLocal(cfg.Local.RootDir, os.FileMode(cfg.Local.Permissions))
	case config.StorageS3:
		client, err := NewAWSClient(ctx, cfg.S3)
		if err != nil {
			return nil, err
		}
		return NewS3(client, cfg.S3.Bucket)
	case config.StorageMinio:
		client, err := NewMinioClient(cfg.S3)
		if err != nil {
			return nil, err
		}
		return NewS3(client, cfg.S3.Bucket)
	}
	return nil, apperrors.New(apperrors.CategoryConfig, "storage.open",
		fmt.Errorf("unsupported storage backend %q", cfg.Storage))
}
