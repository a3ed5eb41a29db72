package reconcile

import (
	"context"
	"errors"
	"fmt"

	"cloudsync/core/backend"
	"cloudsync/core/synctask"
	"cloudsync/core/tree"

	"go.uber.org/zap"
)

// Init starts the state sync: both storage trees are fetched, merged and
// every node is re-evaluated. The engine is Running once both fetches were
// acked.
func (e *Engine) Init(ctx context.Context) error {
	return e.call(ctx, "init", e.init)
}

func (e *Engine) init() error {
	switch s := e.State(); s {
	case Stopped, Offline:
	default:
		return fmt.Errorf("%w: init in state %s", ErrWrongState, s)
	}
	e.localFetched, e.remoteFetched = false, false
	e.issue(synctask.NewFetchTree(e.linkID, e.remoteID))
	e.setState(StateSync)
	return nil
}

// Pause cancels the work of every node and stops driving the state
// machine. Storage events keep updating the tree.
func (e *Engine) Pause(ctx context.Context) error {
	return e.call(ctx, "pause", func() error {
		if e.State() != Running {
			return nil
		}
		e.cancelAll()
		e.setState(Stopped)
		return nil
	})
}

// Resume re-evaluates every node and resumes a paused engine.
func (e *Engine) Resume(ctx context.Context) error {
	return e.call(ctx, "resume", func() error {
		if e.State() != Stopped {
			return nil
		}
		e.syncState()
		e.setState(Running)
		return nil
	})
}

// StorageOffline implements backend.EventSink.
func (e *Engine) StorageOffline(storageID string) {
	e.post("storage_offline", func() {
		e.logger.Info("Storage went offline", zap.String("storage", storageID))
		e.setState(Offline)
	})
}

// StorageOnline implements backend.EventSink. An engine that went offline
// starts a new state sync.
func (e *Engine) StorageOnline(storageID string) {
	e.post("storage_online", func() {
		e.logger.Info("Storage is back online", zap.String("storage", storageID))
		if e.State() != Offline {
			return
		}
		if err := e.init(); err != nil {
			e.logger.Error("Re-initializing after going online failed", zap.Error(err))
		}
	})
}

// syncState forces every node into Synced and re-evaluates it. A failing
// node is logged and skipped.
func (e *Engine) syncState() {
	e.logger.Debug("Starting state sync", zap.Int("nodes", e.tree.Len()))
	for _, n := range e.tree.Nodes() {
		if !e.live(n) {
			continue
		}
		n.State = tree.StateSynced
		e.fireIsolated(n, on(EventCheck))
	}
	e.logger.Debug("State sync done", zap.Int("nodes", e.tree.Len()))
}

// cancelAll fires CancelAll on every node that is not idle.
func (e *Engine) cancelAll() {
	for _, n := range e.tree.Nodes() {
		if !e.live(n) {
			continue
		}
		err := e.fire(n, on(EventCancelAll))
		if errors.Is(err, ErrInvalidTransition) {
			e.logger.Debug("Not cancelling node", zap.Stringer("path", n.Path()), zap.Stringer("state", n.State))
			continue
		}
		if err != nil {
			e.logger.Error("Cancelling node failed", zap.Stringer("path", n.Path()), zap.Error(err))
		}
	}
}

// live reports whether n is still part of the tree. Handlers may remove
// nodes while a caller ranges over a detached node list.
func (e *Engine) live(n *tree.Node) bool {
	cur, ok := e.tree.Get(n.Path())
	return ok && cur == n
}

// fireIsolated fires t and contains both errors and panics to n.
func (e *Engine) fireIsolated(n *tree.Node, t trigger) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("State machine panicked",
				zap.Stringer("path", n.Path()),
				zap.Stringer("event", t.event),
				zap.Any("panic", r),
			)
		}
	}()
	e.fireLogged(n, t)
}

func (e *Engine) ackFetchTree(t *synctask.FetchTreeTask) {
	if t.State() != synctask.Successful {
		e.logger.Warn("Fetching tree failed",
			zap.String("storage", t.StorageID),
			zap.Stringer("state", t.State()),
		)
		e.setState(Stopped)
		return
	}

	if t.Tree == nil {
		t.Tree = &tree.Snapshot{}
	}
	touched, err := e.tree.MergeSnapshot(t.StorageID, t.Tree)
	if err != nil {
		e.logger.Warn("Some items could not be merged", zap.String("storage", t.StorageID), zap.Error(err))
	}
	e.logger.Info("Storage tree merged",
		zap.String("storage", t.StorageID),
		zap.Int("items", len(t.Tree.Items)),
		zap.Int("changed", len(touched)),
	)

	if t.StorageID == backend.LocalStorageID {
		e.localFetched = true
	} else {
		e.remoteFetched = true
		e.issue(synctask.NewFetchTree(e.linkID, backend.LocalStorageID))
	}

	if e.localFetched && e.remoteFetched {
		e.localFetched, e.remoteFetched = false, false
		e.syncState()
		e.setState(Running)
	}
}
