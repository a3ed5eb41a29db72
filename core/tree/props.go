package tree

import "time"

// StorageProps holds what a single storage reports about an item.
type StorageProps struct {
	VersionID    string    `json:"version_id" yaml:"version_id"`
	ModifiedDate time.Time `json:"modified_date" yaml:"modified_date"`
	Size         int64     `json:"size" yaml:"size"`
	IsDir        bool      `json:"is_dir" yaml:"is_dir"`
	ShareID      string    `json:"share_id,omitempty" yaml:"share_id,omitempty"`
	PublicShare  bool      `json:"public_share" yaml:"public_share"`
	Shared       bool      `json:"shared" yaml:"shared"`
	Deleted      bool      `json:"deleted" yaml:"deleted"`
}

// Equal compares two property sets field by field.
func (p StorageProps) Equal(o StorageProps) bool {
	return p.VersionID == o.VersionID &&
		p.ModifiedDate.Equal(o.ModifiedDate) &&
		p.Size == o.Size &&
		p.IsDir == o.IsDir &&
		p.ShareID == o.ShareID &&
		p.PublicShare == o.PublicShare &&
		p.Shared == o.Shared &&
		p.Deleted == o.Deleted
}

// MoveState tracks a conflict rename issued for one storage.
type MoveState uint8

const (
	MoveNone MoveState = iota
	MoveMoving
	MoveMoved
)

// SyncStatus is the transient per-storage bookkeeping of in-flight tasks.
// It is dropped whenever the node settles in the Synced state.
type SyncStatus struct {
	// Issued is set once a task targeting the storage was emitted.
	Issued bool
	// Running is set while that task has not been acked.
	Running bool
	// Failed is set when the ack carried a non-successful state.
	Failed bool
	// Source and SourceVersion record where a copy read from.
	Source        string
	SourceVersion string
	// EventReceived is set when the storage reported a change mid-flight.
	EventReceived bool
	Move          MoveState
}

// Equivalents records which (storage, version) pairs hold the same content.
type Equivalents struct {
	// Old is kept while a copy pipeline is in flight.
	Old map[string]string `json:"old,omitempty" yaml:"old,omitempty"`
	// New is the last state believed to be in sync.
	New map[string]string `json:"new,omitempty" yaml:"new,omitempty"`
}
