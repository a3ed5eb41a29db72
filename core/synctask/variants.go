package synctask

import (
	"fmt"
	"strings"

	"cloudsync/core/tree"
)

// Transfer describes a copy between two storages.
type Transfer struct {
	SourceStorageID string
	SourceVersionID string
	SourcePath      []string

	TargetStorageID string
	TargetPath      []string
	// TargetVersionID is filled in by the worker on success.
	TargetVersionID string
	// OriginalVersionID is the version the target is expected to hold
	// before the write; empty when the target holds nothing.
	OriginalVersionID string

	Size             int64
	BytesTransferred int64
}

// Copy returns the transfer description.
func (t *Transfer) Copy() *Transfer { return t }

// CopyTask is implemented by Upload, Download and CreateDir tasks.
type CopyTask interface {
	Task
	Copy() *Transfer
}

// UploadTask copies local content to a remote storage.
type UploadTask struct {
	Base
	Transfer
}

// NewUpload creates an upload task.
func NewUpload(linkID string, p tree.Path, t Transfer) *UploadTask {
	task := &UploadTask{Transfer: t}
	task.init(linkID, p)
	return task
}

func (t *UploadTask) Kind() Kind { return KindUpload }

func (t *UploadTask) DisplayName() string {
	return fmt.Sprintf("upload %s to %s", joinPath(t.TargetPath), t.TargetStorageID)
}

// DownloadTask copies remote content to the local storage.
type DownloadTask struct {
	Base
	Transfer
}

// NewDownload creates a download task.
func NewDownload(linkID string, p tree.Path, t Transfer) *DownloadTask {
	task := &DownloadTask{Transfer: t}
	task.init(linkID, p)
	return task
}

func (t *DownloadTask) Kind() Kind { return KindDownload }

func (t *DownloadTask) DisplayName() string {
	return fmt.Sprintf("download %s from %s", joinPath(t.SourcePath), t.SourceStorageID)
}

// CreateDirTask creates a directory on the target storage.
type CreateDirTask struct {
	Base
	Transfer
}

// NewCreateDir creates a directory task.
func NewCreateDir(linkID string, p tree.Path, t Transfer) *CreateDirTask {
	task := &CreateDirTask{Transfer: t}
	task.init(linkID, p)
	return task
}

func (t *CreateDirTask) Kind() Kind { return KindCreateDir }

func (t *CreateDirTask) DisplayName() string {
	return fmt.Sprintf("create directory %s on %s", joinPath(t.TargetPath), t.TargetStorageID)
}

// DeleteTask removes an item from one storage.
type DeleteTask struct {
	Base
	TargetStorageID   string
	TargetPath        []string
	OriginalVersionID string
}

// NewDelete creates a delete task.
func NewDelete(linkID string, p tree.Path, storageID string, target []string, originalVersionID string) *DeleteTask {
	task := &DeleteTask{TargetStorageID: storageID, TargetPath: target, OriginalVersionID: originalVersionID}
	task.init(linkID, p)
	return task
}

func (t *DeleteTask) Kind() Kind { return KindDelete }

func (t *DeleteTask) DisplayName() string {
	return fmt.Sprintf("delete %s on %s", joinPath(t.TargetPath), t.TargetStorageID)
}

// MoveTask renames an item inside one storage.
type MoveTask struct {
	Base
	StorageID       string
	SourcePath      []string
	SourceVersionID string
	TargetPath      []string
	// TargetVersionID is filled in by the worker on success.
	TargetVersionID string
}

// NewMove creates a move task.
func NewMove(linkID string, p tree.Path, storageID string, source, target []string, sourceVersionID string) *MoveTask {
	task := &MoveTask{StorageID: storageID, SourcePath: source, TargetPath: target, SourceVersionID: sourceVersionID}
	task.init(linkID, p)
	return task
}

func (t *MoveTask) Kind() Kind { return KindMove }

func (t *MoveTask) DisplayName() string {
	return fmt.Sprintf("move %s to %s on %s", joinPath(t.SourcePath), joinPath(t.TargetPath), t.StorageID)
}

// Participant is one storage taking part in a compare.
type Participant struct {
	StorageID string
	Path      []string
	VersionID string
	IsDir     bool
}

// CompareTask groups storages by content.
type CompareTask struct {
	Base
	Participants []Participant
	// Groups is filled in by the worker: storage IDs with identical content.
	Groups [][]string
}

// NewCompare creates a compare task.
func NewCompare(linkID string, p tree.Path, participants []Participant) *CompareTask {
	task := &CompareTask{Participants: participants}
	task.init(linkID, p)
	return task
}

func (t *CompareTask) Kind() Kind { return KindCompare }

func (t *CompareTask) DisplayName() string {
	ids := make([]string, 0, len(t.Participants))
	for _, p := range t.Participants {
		ids = append(ids, p.StorageID)
	}
	return fmt.Sprintf("compare %s on %s", t.Path, strings.Join(ids, ", "))
}

// FetchTreeTask lists a storage and starts its event source.
type FetchTreeTask struct {
	Base
	StorageID string
	// Tree is filled in by the worker on success.
	Tree *tree.Snapshot
}

// NewFetchTree creates a fetch task for the root of a link.
func NewFetchTree(linkID, storageID string) *FetchTreeTask {
	task := &FetchTreeTask{StorageID: storageID}
	task.init(linkID, tree.Path{})
	return task
}

func (t *FetchTreeTask) Kind() Kind { return KindFetchTree }

func (t *FetchTreeTask) DisplayName() string {
	return "fetch tree of " + t.StorageID
}

// CancelTask cancels every task with the same key.
type CancelTask struct {
	Base
}

// NewCancel creates a cancel task.
func NewCancel(linkID string, p tree.Path) *CancelTask {
	task := &CancelTask{}
	task.init(linkID, p)
	return task
}

func (t *CancelTask) Kind() Kind { return KindCancel }

func (t *CancelTask) DisplayName() string {
	return "cancel tasks of " + t.Path.String()
}

func joinPath(p []string) string {
	return "/" + strings.Join(p, "/")
}
