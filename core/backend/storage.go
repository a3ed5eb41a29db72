package backend

import (
	"context"
	"io"

	"cloudsync/core/tree"
)

// LocalStorageID is the reserved ID of the local filesystem.
const LocalStorageID = "local"

// Storage is the capability contract of a storage backend. Paths are the
// display segments of the item as the engine knows them.
type Storage interface {
	// ID returns the storage ID used in the namespace tree.
	ID() string
	// OpenRead opens the content of path. A non-empty expectedVersionID
	// must match the current version.
	OpenRead(ctx context.Context, path []string, expectedVersionID string) (io.ReadCloser, error)
	// Write replaces the content of path and returns the new version.
	// originalVersionID is the version expected to be replaced, empty when
	// the item must not exist yet.
	Write(ctx context.Context, path []string, r io.Reader, originalVersionID string, size int64) (string, error)
	// Delete removes path if it still holds originalVersionID.
	Delete(ctx context.Context, path []string, originalVersionID string) error
	// MakeDir creates a directory and returns its version.
	MakeDir(ctx context.Context, path []string) (string, error)
	// Move renames source to target and returns the version at target.
	Move(ctx context.Context, source, target []string, expectedSourceVersionID, expectedTargetVersionID string) (string, error)
	// GetTree lists the whole storage. cached allows returning the last
	// listing instead of querying the backend again.
	GetTree(ctx context.Context, cached bool) (*tree.Snapshot, error)
	// StartEvents begins delivering change events to sink.
	StartEvents(ctx context.Context, sink EventSink) error
	// StopEvents stops the event source; join waits for it to exit.
	StopEvents(join bool) error
}

// EventSink receives observations from storages.
type EventSink interface {
	StorageCreate(storageID string, path []string, u tree.Update) error
	StorageModify(storageID string, path []string, u tree.Update) error
	StorageDelete(storageID string, path []string)
	StorageMove(storageID string, source, target []string, u tree.Update) error
	StorageOnline(storageID string)
	StorageOffline(storageID string)
}
