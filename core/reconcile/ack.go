package reconcile

import (
	"fmt"

	"cloudsync/core/notify"
	"cloudsync/core/synctask"
	"cloudsync/core/tree"

	"go.uber.org/zap"
)

// AckTask hands a finished task back to the engine. It is safe to call from
// any goroutine and never blocks.
func (e *Engine) AckTask(t synctask.Task) {
	e.post("ack_task", func() { e.ackTask(t) })
}

func (e *Engine) ackTask(t synctask.Task) {
	b := t.Info()
	e.logger.Debug("Task acked",
		zap.String("task", t.DisplayName()),
		zap.String("id", b.ID),
		zap.Stringer("state", b.State()),
	)

	if ft, ok := t.(*synctask.FetchTreeTask); ok {
		e.ackFetchTree(ft)
		return
	}

	n, ok := e.tree.Get(b.Path)
	if !ok {
		e.logger.Info("Ack for a removed node", zap.String("task", t.DisplayName()))
		return
	}
	// An unavailable storage is not retried from here; the node waits for
	// the next observation like after an invalid operation.
	if st := b.State(); st == synctask.InvalidOperation || st == synctask.NotAvailable {
		n.InvalidOp = true
	}

	switch task := t.(type) {
	case synctask.CopyTask:
		e.ackCopy(n, task)
	case *synctask.DeleteTask:
		e.ackDelete(n, task)
	case *synctask.MoveTask:
		e.ackMove(n, task)
	case *synctask.CancelTask:
		n.TasksCancelled = true
		e.fireRunning(n, on(EventStorageAck))
	case *synctask.CompareTask:
		e.ackCompare(n, task)
	default:
		e.logger.Error("Ack of unhandled task", zap.String("task", t.DisplayName()), zap.Stringer("kind", t.Kind()))
	}
}

// fireRunning fires t only while the engine drives the state machine.
func (e *Engine) fireRunning(n *tree.Node, t trigger) {
	if e.State() == Running {
		e.fireLogged(n, t)
	}
}

func (e *Engine) ackCopy(n *tree.Node, t synctask.CopyTask) {
	tr := t.Copy()
	state := t.Info().State()
	if state == synctask.InvalidAuthentication {
		e.authFailed(n, tr.TargetStorageID)
	}

	s := n.SyncFor(tr.TargetStorageID)
	s.Running = false
	s.Failed = state != synctask.Successful

	if state == synctask.Successful {
		eq := &n.Equivalents
		srcV, hasSrc := eq.New[tr.SourceStorageID]
		tgtV, hasTgt := eq.New[tr.TargetStorageID]
		if (hasSrc && srcV == tr.SourceVersionID) || (hasTgt && tgtV == tr.TargetVersionID) {
			eq.New[tr.SourceStorageID] = tr.SourceVersionID
			eq.New[tr.TargetStorageID] = tr.TargetVersionID
		} else {
			eq.Old = eq.New
			eq.New = map[string]string{
				tr.SourceStorageID: tr.SourceVersionID,
				tr.TargetStorageID: tr.TargetVersionID,
			}
		}
	} else {
		e.logger.Info("Copy failed", zap.String("task", t.DisplayName()), zap.Stringer("state", state))
	}

	e.fireRunning(n, on(EventStorageAck))
}

func (e *Engine) ackDelete(n *tree.Node, t *synctask.DeleteTask) {
	if _, ok := n.Storages[t.TargetStorageID]; !ok {
		e.logger.Info("Delete ack without storage entry",
			zap.Stringer("path", n.Path()),
			zap.String("storage", t.TargetStorageID),
		)
		return
	}
	state := t.State()
	if state == synctask.InvalidAuthentication {
		e.authFailed(n, t.TargetStorageID)
		return
	}

	s := n.SyncFor(t.TargetStorageID)
	s.Running = false
	s.Failed = state != synctask.Successful

	if state == synctask.Successful {
		delete(n.Equivalents.New, t.TargetStorageID)
		if len(n.Equivalents.New) == 1 {
			clear(n.Equivalents.New)
		}
	} else {
		e.logger.Info("Delete failed", zap.String("task", t.DisplayName()), zap.Stringer("state", state))
	}

	e.fireRunning(n, on(EventStorageAck))
}

func (e *Engine) ackMove(n *tree.Node, t *synctask.MoveTask) {
	s := n.SyncFor(t.StorageID)
	if t.State() == synctask.Successful {
		s.Move = tree.MoveMoved
		e.fireRunning(n, on(EventMoveSucceeded))
		return
	}
	e.logger.Info("Conflict rename failed", zap.String("task", t.DisplayName()), zap.Stringer("state", t.State()))
	s.Move = tree.MoveNone
	e.fireRunning(n, on(EventMoveFailed))
}

func (e *Engine) ackCompare(n *tree.Node, t *synctask.CompareTask) {
	if t.State() != synctask.Successful {
		e.logger.Info("Compare failed", zap.String("task", t.DisplayName()), zap.Stringer("state", t.State()))
		return
	}
	if len(t.Groups) == 1 {
		// Equal content everywhere: the current versions are equivalent.
		n.Equivalents.New = n.Versions()
	}
	n.CompareGroups = t.Groups
	n.CompareReceived = true
	e.fireRunning(n, on(EventCompareAck))
}

func (e *Engine) authFailed(n *tree.Node, storageID string) {
	e.logger.Warn("Authentication failed", zap.String("storage", storageID), zap.Stringer("path", n.Path()))
	e.notify(notify.Notification{
		Kind:        notify.KindAuth,
		Title:       "Authentication failed",
		Description: fmt.Sprintf("The credentials for %s are no longer valid.", storageID),
		Path:        n.Path().String(),
	})
}
