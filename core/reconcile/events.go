package reconcile

import (
	"fmt"

	"cloudsync/core/backend"
	"cloudsync/core/tree"

	"go.uber.org/zap"
)

var _ backend.EventSink = (*Engine)(nil)

// StorageCreate implements backend.EventSink. The update is validated
// before it is queued; a rejected update never reaches the tree.
func (e *Engine) StorageCreate(storageID string, path []string, u tree.Update) error {
	return e.postUpdate("storage_create", EventCreated, storageID, path, u)
}

// StorageModify implements backend.EventSink. A modification of an unknown
// path is handled as a creation.
func (e *Engine) StorageModify(storageID string, path []string, u tree.Update) error {
	return e.postUpdate("storage_modify", EventModified, storageID, path, u)
}

// StorageDelete implements backend.EventSink.
func (e *Engine) StorageDelete(storageID string, path []string) {
	path = append([]string{}, path...)
	e.post("storage_delete", func() { e.storageDelete(storageID, path) })
}

// StorageMove implements backend.EventSink. The destination is created with
// the properties of the source subtree before the source is deleted.
func (e *Engine) StorageMove(storageID string, src, dst []string, u tree.Update) error {
	if err := u.Validate(); err != nil {
		return fmt.Errorf("move %v: %w", dst, err)
	}
	src, dst = append([]string{}, src...), append([]string{}, dst...)
	e.post("storage_move", func() { e.storageMove(storageID, src, dst, u) })
	return nil
}

func (e *Engine) postUpdate(name string, event Event, storageID string, path []string, u tree.Update) error {
	if err := u.Validate(); err != nil {
		return fmt.Errorf("%s %v: %w", name, path, err)
	}
	path = append([]string{}, path...)
	e.post(name, func() {
		if err := e.storageUpdate(event, storageID, path, u); err != nil {
			e.logger.Warn("Rejected storage event",
				zap.String("storage", storageID),
				zap.Strings("path", path),
				zap.Error(err),
			)
		}
	})
	return nil
}

// storageUpdate applies a create or modify event.
func (e *Engine) storageUpdate(event Event, storageID string, display []string, u tree.Update) error {
	p := tree.Normalize(display)
	if p.IsRoot() {
		return nil
	}

	_, existed := e.tree.Get(p)
	n := e.tree.GetOrCreate(p)

	var before *tree.StorageProps
	if cur, ok := n.Storages[storageID]; ok {
		b := *cur
		before = &b
	}

	changed, err := n.UpdateStorageProps(storageID, u)
	if err != nil {
		if !existed {
			e.tree.Remove(n)
		}
		return err
	}
	e.tree.SetDisplayNames(storageID, p, display)

	if changed {
		after := *n.Storages[storageID]
		e.publish(PropsChange{StorageID: storageID, Path: p, Before: before, After: &after})
	}

	if e.State() != Running {
		return nil
	}
	if !changed && n.State == tree.StateSynced {
		// Nothing new to decide on.
		return nil
	}
	n.SyncFor(storageID).EventReceived = true
	e.fireLogged(n, on(event))
	return nil
}

// storageDelete marks storageID deleted on the node at display and all of
// its descendants.
func (e *Engine) storageDelete(storageID string, display []string) {
	p := tree.Normalize(display)
	root, ok := e.tree.Get(p)
	if !ok || p.IsRoot() {
		e.logger.Debug("Delete of unknown path", zap.String("storage", storageID), zap.Stringer("path", p))
		return
	}

	for _, n := range e.tree.Subtree(root) {
		if !e.live(n) {
			continue
		}
		cur, ok := n.Storages[storageID]
		if !ok {
			continue
		}
		before := *cur
		if !n.MarkDeleted(storageID) {
			continue
		}
		after := *n.Storages[storageID]
		e.publish(PropsChange{StorageID: storageID, Path: n.Path(), Before: &before, After: &after})

		if e.State() != Running {
			continue
		}
		n.SyncFor(storageID).EventReceived = true
		e.fireIsolated(n, on(EventDeleted))
	}
}

// storageMove re-creates the source subtree at dst and deletes the source.
func (e *Engine) storageMove(storageID string, src, dst []string, u tree.Update) {
	srcPath := tree.Normalize(src)
	if srcPath.Equal(tree.Normalize(dst)) {
		// A rename that only changes case or normalization form.
		if err := e.storageUpdate(EventModified, storageID, dst, u); err != nil {
			e.logger.Warn("Rejected move", zap.Strings("dst", dst), zap.Error(err))
		}
		return
	}

	if err := e.storageUpdate(EventCreated, storageID, dst, u); err != nil {
		e.logger.Warn("Rejected move", zap.Strings("dst", dst), zap.Error(err))
		return
	}

	if n, ok := e.tree.Get(srcPath); ok {
		for _, child := range e.tree.Children(n) {
			props, ok := child.Storages[storageID]
			if !ok || props.Deleted {
				continue
			}
			name := child.DisplayName(storageID)
			childSrc := append(append([]string{}, src...), name)
			childDst := append(append([]string{}, dst...), name)
			e.storageMove(storageID, childSrc, childDst, tree.UpdateFrom(*props))
		}
	}

	e.storageDelete(storageID, src)
}
