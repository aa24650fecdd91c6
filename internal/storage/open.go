package storage

import (
	"context"
	"fmt"

	mobilityerrors "github.com/acessivel/mobility/internal/errors"
)

// Open builds the KV backend named by cfg.Backend.
func Open(ctx context.Context, cfg Config) (KV, error) {
	var (
		kv  KV
		err error
	)

	switch cfg.Backend {
	case "", "local":
		kv, err = NewFileKV(cfg.BaseDir, cfg.BackupDir)
	case "memory":
		kv = NewMemoryKV(cfg.MaxBytes)
	case "s3":
		kv, err = NewS3KV(ctx, cfg.Bucket, cfg.Region, cfg.Prefix)
	case "gcs":
		kv, err = NewGCSKV(ctx, cfg.Bucket, cfg.Prefix)
	case "azure":
		kv, err = NewAzureKV("", cfg.Account, cfg.Container, cfg.SASToken, cfg.Prefix)
	default:
		err = fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}

	if err != nil {
		return nil, mobilityerrors.StorageBackendError(cfg.Backend, err)
	}
	return kv, nil
}
