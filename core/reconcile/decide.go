package reconcile

import (
	"maps"
	"slices"

	"cloudsync/core/backend"
	"cloudsync/core/tree"

	"go.uber.org/zap"
)

// onSynced is the reconciliation decision for a settled node. It issues at
// most one kind of work by firing the matching event.
func (e *Engine) onSynced(n *tree.Node) error {
	if n.InvalidOp {
		n.InvalidOp = false
		e.logger.Info("Invalid operation, waiting for the next change", zap.Stringer("path", n.Path()))
		return nil
	}

	e.cleanup(n)

	current := n.Versions()
	if len(current) == 0 {
		e.logger.Debug("No storage holds the item, removing node", zap.Stringer("path", n.Path()))
		e.tree.Remove(n)
		return nil
	}

	n.Desired[backend.LocalStorageID] = struct{}{}
	n.Desired[e.remoteID] = struct{}{}

	eq := n.Equivalents.New
	if maps.Equal(eq, current) && sameKeys(eq, n.Desired) {
		clear(n.Equivalents.Old)
		return nil
	}

	holders := slices.Sorted(maps.Keys(current))
	_, localHolds := current[backend.LocalStorageID]

	if len(eq) == 0 {
		// Never synced: one holder is distributed, several are compared.
		switch {
		case len(holders) > 1:
			return e.fire(n, on(EventConflicted))
		case !localHolds:
			return e.fire(n, trigger{event: EventIssueDownload, source: holders[0]})
		default:
			return e.fire(n, trigger{event: EventIssueUpload, targets: without(n.Desired, backend.LocalStorageID)})
		}
	}

	if sameKeys(current, n.Desired) {
		unsynced := pairsMissing(current, eq)
		switch len(unsynced) {
		case 0:
			return nil
		case 1:
		default:
			return e.fire(n, on(EventConflicted))
		}

		storageID := unsynced[0]
		version := current[storageID]
		if len(n.Equivalents.Old) == 0 {
			if storageID == backend.LocalStorageID {
				return e.fire(n, trigger{event: EventIssueUpload, targets: without(n.Desired, backend.LocalStorageID)})
			}
			return e.fire(n, trigger{event: EventIssueDownload, source: storageID})
		}
		if old, ok := n.Equivalents.Old[storageID]; ok && old == version {
			// Continuation of a copy pipeline that already passed through
			// this storage.
			return e.fire(n, trigger{event: EventIssueUpload, targets: []string{storageID}})
		}
		return e.fire(n, on(EventConflicted))
	}

	var missing, unwanted []string
	for _, id := range slices.Sorted(maps.Keys(n.Desired)) {
		if _, ok := current[id]; !ok {
			missing = append(missing, id)
		}
	}
	for _, id := range holders {
		if !n.IsDesired(id) {
			unwanted = append(unwanted, id)
		}
	}

	if len(unwanted) > 0 {
		for _, id := range unwanted {
			if _, ok := eq[id]; !ok {
				return e.fire(n, on(EventConflicted))
			}
		}
		return e.fire(n, trigger{event: EventIssueDelete, targets: unwanted})
	}

	var inSync []string
	for _, id := range holders {
		if v, ok := eq[id]; ok && v == current[id] {
			inSync = append(inSync, id)
		}
	}
	wasSynced := slices.ContainsFunc(missing, func(id string) bool {
		_, ok := eq[id]
		return ok
	})
	if wasSynced && len(inSync) > 0 {
		// Deleted on a storage where it was in sync: propagate the delete.
		return e.fire(n, trigger{event: EventIssueDelete, targets: inSync})
	}
	if slices.Contains(missing, backend.LocalStorageID) {
		return e.fire(n, trigger{event: EventIssueDownload, source: holders[0]})
	}
	return e.fire(n, trigger{event: EventIssueUpload, targets: missing})
}

// cleanup drops the transient bookkeeping of a node and every entry that no
// longer takes part in the link.
func (e *Engine) cleanup(n *tree.Node) {
	clear(n.Sync)
	n.TasksCancelled = false
	n.CompareReceived = false
	n.CompareGroups = nil

	for id, p := range n.Storages {
		if p.Deleted || !e.available(id) {
			delete(n.Storages, id)
		}
	}

	eq := n.Equivalents.New
	for id := range eq {
		if !e.available(id) {
			delete(eq, id)
		}
	}
	if len(eq) < 2 {
		clear(eq)
	}
	for id := range eq {
		delete(n.Equivalents.Old, id)
	}
}

// available reports whether storageID belongs to the link.
func (e *Engine) available(storageID string) bool {
	return storageID == backend.LocalStorageID || storageID == e.remoteID
}

// sameKeys reports whether m holds exactly the keys of set.
func sameKeys(m map[string]string, set map[string]struct{}) bool {
	if len(m) != len(set) {
		return false
	}
	for k := range m {
		if _, ok := set[k]; !ok {
			return false
		}
	}
	return true
}

// pairsMissing returns, sorted, the keys of a whose (key, value) pair is not
// in b.
func pairsMissing(a, b map[string]string) []string {
	var out []string
	for k, v := range a {
		if bv, ok := b[k]; !ok || bv != v {
			out = append(out, k)
		}
	}
	slices.Sort(out)
	return out
}

// pairsSubset reports whether every (key, value) pair of a is in b.
func pairsSubset(a, b map[string]string) bool {
	return len(pairsMissing(a, b)) == 0
}

// without returns the sorted members of set except skip.
func without(set map[string]struct{}, skip string) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		if k != skip {
			out = append(out, k)
		}
	}
	slices.Sort(out)
	return out
}
