package reconcile

import (
	"context"
	"fmt"

	"cloudsync/core/backend"
	"cloudsync/core/tree"
)

// ShareState describes how an item is shared on the remote storage.
type ShareState struct {
	StorageID    string `json:"storage_id"`
	ShareID      string `json:"share_id,omitempty"`
	PublicShared bool   `json:"public_shared"`
}

// Query returns a copy of the node at path.
func (e *Engine) Query(ctx context.Context, path []string) (tree.View, error) {
	var v tree.View
	err := e.call(ctx, "query", func() error {
		n, err := e.lookup(path)
		if err != nil {
			return err
		}
		v = n.View()
		return nil
	})
	return v, err
}

// QueryStoragePath returns the display path of the item on every remote
// storage that holds it.
func (e *Engine) QueryStoragePath(ctx context.Context, path []string) (map[string][]string, error) {
	var out map[string][]string
	err := e.call(ctx, "query_storage_path", func() error {
		n, err := e.lookup(path)
		if err != nil {
			return err
		}
		out = make(map[string][]string, len(n.Storages))
		for id := range n.Storages {
			if id != backend.LocalStorageID {
				out[id] = e.storagePath(n.Path(), id, "")
			}
		}
		return nil
	})
	return out, err
}

// QueryShareState walks up from path through the existing ancestors. The
// first public share wins; otherwise the first share ID found is reported.
func (e *Engine) QueryShareState(ctx context.Context, path []string) (ShareState, error) {
	st := ShareState{StorageID: e.remoteID}
	err := e.call(ctx, "query_share_state", func() error {
		lineage := e.tree.Lineage(tree.Normalize(path))
		for _, n := range lineage {
			if p, ok := n.Storages[e.remoteID]; ok && p.PublicShare {
				st.PublicShared = true
				break
			}
		}
		for _, n := range lineage {
			if p, ok := n.Storages[e.remoteID]; ok && p.ShareID != "" {
				st.ShareID = p.ShareID
				break
			}
		}
		return nil
	})
	return st, err
}

// Snapshot exports the persisted model. It is served ahead of queued
// events.
func (e *Engine) Snapshot(ctx context.Context) (tree.Model, error) {
	var m tree.Model
	err := e.callPriority(ctx, "snapshot", func() error {
		m = e.tree.Export()
		return nil
	})
	return m, err
}

// Nodes returns a copy of every node in pre-order.
func (e *Engine) Nodes(ctx context.Context) ([]tree.View, error) {
	var out []tree.View
	err := e.call(ctx, "nodes", func() error {
		for _, n := range e.tree.Nodes() {
			out = append(out, n.View())
		}
		return nil
	})
	return out, err
}

func (e *Engine) lookup(path []string) (*tree.Node, error) {
	p := tree.Normalize(path)
	n, ok := e.tree.Get(p)
	if !ok || p.IsRoot() {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, p)
	}
	return n, nil
}
