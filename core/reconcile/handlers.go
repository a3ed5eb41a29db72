package reconcile

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"cloudsync/core/backend"
	"cloudsync/core/notify"
	"cloudsync/core/synctask"
	"cloudsync/core/tree"

	"go.uber.org/zap"
)

func (e *Engine) issueUpload(n *tree.Node, targets []string) {
	local, ok := n.Storages[backend.LocalStorageID]
	if !ok {
		e.logger.Warn("Upload without local entry", zap.Stringer("path", n.Path()))
		return
	}
	for _, target := range targets {
		s := n.SyncFor(target)
		s.Issued, s.Running, s.Failed = true, true, false
		s.Source = backend.LocalStorageID
		s.SourceVersion = local.VersionID

		tr := synctask.Transfer{
			SourceStorageID: backend.LocalStorageID,
			SourceVersionID: local.VersionID,
			SourcePath:      e.storagePath(n.Path(), backend.LocalStorageID, ""),
			TargetStorageID: target,
			TargetPath:      e.storagePath(n.Path(), target, backend.LocalStorageID),
			Size:            local.Size,
		}
		if local.IsDir {
			e.issue(synctask.NewCreateDir(e.linkID, n.Path(), tr))
			continue
		}
		if p, ok := n.Storages[target]; ok {
			tr.OriginalVersionID = p.VersionID
		}
		e.issue(synctask.NewUpload(e.linkID, n.Path(), tr))
	}
}

func (e *Engine) issueDownload(n *tree.Node, source string) {
	src, ok := n.Storages[source]
	if !ok {
		e.logger.Warn("Download without source entry", zap.Stringer("path", n.Path()), zap.String("source", source))
		return
	}
	s := n.SyncFor(backend.LocalStorageID)
	s.Issued, s.Running, s.Failed = true, true, false
	s.Source = source
	s.SourceVersion = src.VersionID

	tr := synctask.Transfer{
		SourceStorageID: source,
		SourceVersionID: src.VersionID,
		SourcePath:      e.storagePath(n.Path(), source, ""),
		TargetStorageID: backend.LocalStorageID,
		TargetPath:      e.storagePath(n.Path(), backend.LocalStorageID, source),
		Size:            src.Size,
	}
	if src.IsDir {
		e.issue(synctask.NewCreateDir(e.linkID, n.Path(), tr))
		return
	}
	if p, ok := n.Storages[backend.LocalStorageID]; ok {
		tr.OriginalVersionID = p.VersionID
	}
	e.issue(synctask.NewDownload(e.linkID, n.Path(), tr))
}

func (e *Engine) issueDelete(n *tree.Node, targets []string) {
	for _, target := range targets {
		s := n.SyncFor(target)
		s.Issued, s.Running, s.Failed = true, true, false

		var original string
		if p, ok := n.Storages[target]; ok {
			original = p.VersionID
		}
		e.issue(synctask.NewDelete(e.linkID, n.Path(), target, e.storagePath(n.Path(), target, ""), original))
	}
}

func (e *Engine) issueCompare(n *tree.Node) {
	ids := n.StorageIDs()
	participants := make([]synctask.Participant, 0, len(ids))
	for _, id := range ids {
		p := n.Storages[id]
		participants = append(participants, synctask.Participant{
			StorageID: id,
			Path:      e.storagePath(n.Path(), id, ""),
			VersionID: p.VersionID,
			IsDir:     p.IsDir,
		})
	}
	e.issue(synctask.NewCompare(e.linkID, n.Path(), participants))
}

// issueMoves renames every copy that is not grouped with the local one.
// Renamed storages are no longer required to match.
func (e *Engine) issueMoves(n *tree.Node, groups [][]string) {
	parent := n.Path().Parent()
	for _, group := range groups {
		if slices.Contains(group, backend.LocalStorageID) {
			continue
		}
		for _, id := range group {
			p, ok := n.Storages[id]
			if !ok {
				continue
			}
			name := n.DisplayName(id)
			newName := e.freeConflictName(parent, name, p.IsDir)
			oldPath := e.storagePath(n.Path(), id, "")
			newPath := append(e.storagePath(parent, id, ""), newName)

			delete(n.Desired, id)
			n.SyncFor(id).Move = tree.MoveMoving
			e.issue(synctask.NewMove(e.linkID, n.Path(), id, oldPath, newPath, p.VersionID))

			e.notify(notify.Notification{
				Kind:        notify.KindConflict,
				Title:       "Conflict detected",
				Description: fmt.Sprintf("The file %q has conflicts. It was renamed to %q on %s.", strings.Join(oldPath, "/"), newName, id),
				Path:        n.Path().String(),
			})
		}
	}
}

func (e *Engine) issueCancel(n *tree.Node) {
	n.TasksCancelled = false
	e.issue(synctask.NewCancel(e.linkID, n.Path()))
}

// onCopying checks running uploads or downloads for completion and for
// changes that invalidate them.
func (e *Engine) onCopying(n *tree.Node, upload bool) error {
	source := backend.LocalStorageID
	if !upload {
		source = n.SyncFor(backend.LocalStorageID).Source
	}
	eq, old := n.Equivalents.New, n.Equivalents.Old

	finished := make(map[string]string)
	current := make(map[string]string)
	for id := range n.Desired {
		p, ok := n.Storages[id]
		if !ok {
			continue
		}
		s := n.Sync[id]
		if s == nil || !s.Failed {
			current[id] = p.VersionID
		}
		if s != nil && s.Running || p.VersionID == "" || id == source {
			continue
		}
		if v, ok := old[id]; ok && v == p.VersionID {
			continue
		}
		finished[id] = p.VersionID
	}

	// A source that changed since the copy was issued makes it stale.
	for _, id := range slices.Sorted(maps.Keys(n.Sync)) {
		s := n.Sync[id]
		if s.Source == "" {
			continue
		}
		var version string
		if p, ok := n.Storages[s.Source]; ok {
			version = p.VersionID
		}
		if version != s.SourceVersion {
			e.logger.Debug("Copy source changed, cancelling",
				zap.Stringer("path", n.Path()),
				zap.String("source", s.Source),
				zap.String("expected", s.SourceVersion),
				zap.String("actual", version),
			)
			return e.fire(n, on(EventCancelAll))
		}
	}

	if len(finished) > 0 && len(eq) > 0 && !pairsSubset(finished, eq) {
		e.logger.Debug("Target changed outside the copy, cancelling", zap.Stringer("path", n.Path()))
		return e.fire(n, on(EventCancelAll))
	}

	for id := range n.Desired {
		if s := n.Sync[id]; s != nil && s.Running {
			return nil
		}
	}

	if len(eq) == 0 || pairsSubset(eq, current) {
		return e.fire(n, on(EventAllDone))
	}
	return nil
}

// onDeleting removes the node once every storage reported the deletion and
// otherwise waits for the issued deletes.
func (e *Engine) onDeleting(n *tree.Node) error {
	eq := n.Equivalents.New

	allDeleted := true
	for _, p := range n.Storages {
		if !p.Deleted {
			allDeleted = false
			break
		}
	}
	if len(eq) == 0 && allDeleted {
		e.logger.Debug("Deleted on every storage, removing node", zap.Stringer("path", n.Path()))
		if err := e.fire(n, on(EventNodeDeleted)); err != nil {
			return err
		}
		e.tree.Remove(n)
		return nil
	}

	settled := true
	running := make(map[string]string)
	for id, s := range n.Sync {
		if !s.Issued {
			continue
		}
		p := n.Storages[id]
		switch {
		case s.Running:
			settled = false
			if p != nil && p.VersionID != "" {
				running[id] = p.VersionID
			}
		case s.Failed:
		case p == nil || p.Deleted:
		default:
			// Acked but the deletion was not reported yet.
			settled = false
		}
	}

	if settled {
		return e.fire(n, on(EventAllDone))
	}
	if len(eq) > 0 && !pairsSubset(running, eq) {
		return e.fire(n, on(EventCancelAll))
	}
	return nil
}

func (e *Engine) onComparing(n *tree.Node) error {
	for id := range n.Storages {
		if s := n.Sync[id]; s != nil && s.EventReceived {
			return e.fire(n, on(EventCancelAll))
		}
	}
	if !n.CompareReceived {
		return nil
	}
	if maps.Equal(n.Equivalents.New, n.Versions()) {
		return e.fire(n, on(EventEqual))
	}
	return e.fire(n, trigger{event: EventResolveDifferent, groups: n.CompareGroups})
}

// onResolving waits until every rename was acked and every renamed storage
// reported the old name as gone.
func (e *Engine) onResolving(n *tree.Node) error {
	for _, s := range n.Sync {
		if s.Move == tree.MoveMoving {
			return nil
		}
	}
	for id, s := range n.Sync {
		if s.Move != tree.MoveMoved {
			continue
		}
		if p, ok := n.Storages[id]; ok && !p.Deleted {
			return nil
		}
	}
	return e.fire(n, on(EventAllDone))
}

// onCancelling waits for the Cancel ack and for the event of every task
// that still succeeded.
func (e *Engine) onCancelling(n *tree.Node) error {
	if !n.TasksCancelled {
		return nil
	}
	succeeded := make(map[string]struct{})
	observed := make(map[string]struct{})
	for id, s := range n.Sync {
		if !s.Issued {
			continue
		}
		if !s.Running && !s.Failed {
			succeeded[id] = struct{}{}
		}
		if s.EventReceived {
			observed[id] = struct{}{}
		}
	}
	if len(succeeded) == 0 || maps.Equal(succeeded, observed) {
		return e.fire(n, on(EventAllCancelled))
	}
	e.logger.Debug("Waiting for events of cancelled tasks", zap.Stringer("path", n.Path()))
	return nil
}
