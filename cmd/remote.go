package cmd

import (
	"context"
	"fmt"
	"time"

	"cloudsync/core/backend"
	"cloudsync/core/config"
	"cloudsync/core/link"
	"cloudsync/core/storage"
	"cloudsync/feature/folderstore"
	"cloudsync/feature/s3store"

	"go.uber.org/zap"
)

// openRemote creates the remote storage selected by the sync section. The
// remote kind doubles as its storage ID.
func openRemote(ctx context.Context, cfg *config.Config, logg *zap.Logger) (backend.Storage, error) {
	switch cfg.Sync.Remote {
	case link.RemoteS3:
		client, err := storage.NewClient(cfg.Storage)
		if err != nil {
			return nil, fmt.Errorf("create storage client: %w", err)
		}
		store := s3store.New(link.RemoteS3, client, cfg.Storage, logg.Named("s3"))
		if err := store.EnsureBucket(ctx, cfg.Storage.Region); err != nil {
			return nil, fmt.Errorf("ensure bucket %s: %w", cfg.Storage.Bucket, err)
		}
		return store, nil
	case link.RemoteFolder:
		poll := time.Duration(cfg.Sync.PollSeconds) * time.Second
		return folderstore.NewOS(link.RemoteFolder, cfg.Sync.FolderDir, poll, logg.Named("folder")), nil
	default:
		return nil, fmt.Errorf("unsupported remote %q", cfg.Sync.Remote)
	}
}
