package main

import (
	"context"
	"fmt"

	"cosensync/internal/blobstore"
	"cosensync/internal/config"
)

// openBlobStore builds the blob store selected by storage.backend.
func openBlobStore(ctx context.Context, cfg *config.Config) (blobstore.BlobStore, error) {
	switch cfg.Storage.Backend {
	case "", "local":
		return blobstore.NewLocalDir(cfg.Storage.Dir, cfg.Storage.Mount)
	case "s3":
		s3cfg := cfg.Storage.S3
		client, err := blobstore.NewS3Client(ctx, blobstore.S3ClientOptions{
			Region:          s3cfg.Region,
			Endpoint:        s3cfg.Endpoint,
			AccessKeyID:     s3cfg.AccessKeyID,
			SecretAccessKey: s3cfg.SecretAccessKey,
		})
		if err != nil {
			return nil, err
		}
		return blobstore.NewS3(ctx, blobstore.S3Config{
			Client:     client,
			Bucket:     s3cfg.Bucket,
			Prefix:     s3cfg.Prefix,
			Mount:      cfg.Storage.Mount,
			PublicBase: s3cfg.PublicBase,
		})
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}
