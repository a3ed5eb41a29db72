package synctask

import (
	"sync/atomic"
	"time"

	"cloudsync/core/tree"

	"github.com/google/uuid"
)

// Key identifies the tasks of one node of one link.
type Key struct {
	LinkID string
	Path   string
}

// KeyFor builds the key of a node path.
func KeyFor(linkID string, p tree.Path) Key {
	return Key{LinkID: linkID, Path: p.Key()}
}

// AckFunc receives a task once it reached a terminal state.
type AckFunc func(Task)

// Task is implemented by every task variant.
type Task interface {
	// Kind returns the variant.
	Kind() Kind
	// Info returns the shared task fields.
	Info() *Base
	// DisplayName is a short human readable description used in logs.
	DisplayName() string
}

// Base holds the fields shared by every task.
type Base struct {
	// ID is unique per task instance.
	ID string
	// LinkID is the link that issued the task.
	LinkID string
	// Path is the normalized path of the node the task belongs to.
	Path tree.Path
	// ExecuteAfter defers execution for retries.
	ExecuteAfter time.Time
	// Tries counts execution attempts.
	Tries int

	state     atomic.Uint32
	cancelled atomic.Bool
	acked     atomic.Bool
	ack       AckFunc
}

func (b *Base) init(linkID string, p tree.Path) {
	b.ID = uuid.NewString()
	b.LinkID = linkID
	b.Path = append(tree.Path{}, p...)
}

// Info returns b.
func (b *Base) Info() *Base { return b }

// Key returns the dedup and cancellation key of the task.
func (b *Base) Key() Key { return KeyFor(b.LinkID, b.Path) }

// State returns the current execution state.
func (b *Base) State() State { return State(b.state.Load()) }

// SetState records an execution state.
func (b *Base) SetState(s State) { b.state.Store(uint32(s)) }

// Cancel requests cooperative cancellation.
func (b *Base) Cancel() { b.cancelled.Store(true) }

// Cancelled reports whether cancellation was requested.
func (b *Base) Cancelled() bool { return b.cancelled.Load() }

// SetAckFunc installs the callback invoked by Ack.
func (b *Base) SetAckFunc(fn AckFunc) { b.ack = fn }

// Acked reports whether the ack callback already ran.
func (b *Base) Acked() bool { return b.acked.Load() }

// Ack invokes the callback of t. Only the first call has an effect.
func Ack(t Task) {
	b := t.Info()
	if !b.acked.CompareAndSwap(false, true) {
		return
	}
	if b.ack != nil {
		b.ack(t)
	}
}
