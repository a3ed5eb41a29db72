package tree

import (
	"maps"
	"slices"
)

// SnapshotItem is one entry of a storage listing. Path holds the display
// segments as the storage reports them.
type SnapshotItem struct {
	Path  []string
	Props StorageProps
}

// Snapshot is the full listing of one storage.
type Snapshot struct {
	Items []SnapshotItem
}

// Add appends an item to the snapshot.
func (s *Snapshot) Add(path []string, props StorageProps) {
	s.Items = append(s.Items, SnapshotItem{Path: path, Props: props})
}

// Index maps normalized keys to items.
func (s *Snapshot) Index() map[string]SnapshotItem {
	if s == nil {
		return map[string]SnapshotItem{}
	}
	out := make(map[string]SnapshotItem, len(s.Items))
	for _, item := range s.Items {
		out[Normalize(item.Path).Key()] = item
	}
	return out
}

// ChangeKind classifies a difference between two snapshots.
type ChangeKind uint8

const (
	ChangeCreate ChangeKind = iota
	ChangeModify
	ChangeDelete
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeCreate:
		return "create"
	case ChangeModify:
		return "modify"
	case ChangeDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Change is a single difference produced by Diff.
type Change struct {
	Kind  ChangeKind
	Path  []string
	Props StorageProps
}

// Diff compares two listings of the same storage. Creates and modifies are
// ordered parents first. Deletes are reported only for the topmost removed
// path, since deleting a node covers its subtree.
func Diff(prev, next *Snapshot) []Change {
	before := prev.Index()
	after := next.Index()
	var changes []Change

	for _, key := range slices.Sorted(maps.Keys(after)) {
		item := after[key]
		old, ok := before[key]
		switch {
		case !ok:
			changes = append(changes, Change{Kind: ChangeCreate, Path: item.Path, Props: item.Props})
		case !old.Props.Equal(item.Props):
			changes = append(changes, Change{Kind: ChangeModify, Path: item.Path, Props: item.Props})
		}
	}

	for _, key := range slices.Sorted(maps.Keys(before)) {
		if _, ok := after[key]; ok {
			continue
		}
		if parent := ParseKey(key).Parent(); !parent.IsRoot() {
			_, was := before[parent.Key()]
			_, is := after[parent.Key()]
			if was && !is {
				continue
			}
		}
		changes = append(changes, Change{Kind: ChangeDelete, Path: before[key].Path})
	}
	return changes
}
