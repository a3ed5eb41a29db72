package tree

import (
	"fmt"
	"maps"
	"slices"
)

// Node is a single item of the namespace tree.
type Node struct {
	path     Path
	parent   string
	children map[string]struct{}

	Storages    map[string]*StorageProps
	Names       map[string]string
	Equivalents Equivalents
	Desired     map[string]struct{}

	State           SyncState
	TasksCancelled  bool
	InvalidOp       bool
	CompareReceived bool
	CompareGroups   [][]string
	Sync            map[string]*SyncStatus
}

func newNode(p Path) *Node {
	n := &Node{
		path:     p,
		parent:   p.Parent().Key(),
		children: make(map[string]struct{}),
		Names:    make(map[string]string),
	}
	n.reset()
	return n
}

// reset drops all synchronization data but keeps the tree structure.
func (n *Node) reset() {
	n.Storages = make(map[string]*StorageProps)
	n.Equivalents = Equivalents{Old: map[string]string{}, New: map[string]string{}}
	n.Desired = make(map[string]struct{})
	n.State = StateUnknown
	n.TasksCancelled = false
	n.InvalidOp = false
	n.CompareReceived = false
	n.CompareGroups = nil
	n.Sync = make(map[string]*SyncStatus)
}

// Path returns the normalized path of the node.
func (n *Node) Path() Path { return n.path }

// ChildCount returns the number of direct children.
func (n *Node) ChildCount() int { return len(n.children) }

// SyncFor returns the sync bookkeeping of a storage, creating it on demand.
func (n *Node) SyncFor(storageID string) *SyncStatus {
	s, ok := n.Sync[storageID]
	if !ok {
		s = &SyncStatus{}
		n.Sync[storageID] = s
	}
	return s
}

// Versions maps every storage entry to its version. Deleted entries map to
// the empty version.
func (n *Node) Versions() map[string]string {
	out := make(map[string]string, len(n.Storages))
	for id, p := range n.Storages {
		out[id] = p.VersionID
	}
	return out
}

// StorageIDs returns the sorted IDs of the storages reporting the node.
func (n *Node) StorageIDs() []string {
	return slices.Sorted(maps.Keys(n.Storages))
}

// IsDir reports whether any storage reports the node as a directory.
func (n *Node) IsDir() bool {
	for _, p := range n.Storages {
		if p.IsDir {
			return true
		}
	}
	return false
}

// DisplayName returns the name storageID uses for the node, falling back to
// any known name and finally to the normalized segment.
func (n *Node) DisplayName(storageID string) string {
	if name, ok := n.Names[storageID]; ok {
		return name
	}
	if ids := slices.Sorted(maps.Keys(n.Names)); len(ids) > 0 {
		return n.Names[ids[0]]
	}
	return n.path.Name()
}

// UpdateStorageProps merges u into the entry of storageID. It returns true
// when the stored properties changed. A failed update leaves the node as it
// was, including not creating a new entry.
func (n *Node) UpdateStorageProps(storageID string, u Update) (bool, error) {
	if err := u.Validate(); err != nil {
		return false, err
	}

	current, exists := n.Storages[storageID]
	if !exists && (u.VersionID.Op != OpSet || u.IsDir.Op != OpSet) {
		return false, fmt.Errorf("%w: new entry for %q requires version_id and is_dir", ErrMandatoryField, storageID)
	}

	var next StorageProps
	if exists {
		next = *current
	}
	u.VersionID.apply(&next.VersionID)
	u.ModifiedDate.apply(&next.ModifiedDate)
	u.Size.apply(&next.Size)
	u.IsDir.apply(&next.IsDir)
	u.ShareID.apply(&next.ShareID)
	u.PublicShare.apply(&next.PublicShare)
	u.Shared.apply(&next.Shared)
	next.Deleted = false

	if exists && current.Equal(next) {
		return false, nil
	}
	n.Storages[storageID] = &next
	return true, nil
}

// MarkDeleted flags the entry of storageID as deleted and drops its
// version. It returns false when the storage has no entry.
func (n *Node) MarkDeleted(storageID string) bool {
	p, ok := n.Storages[storageID]
	if !ok {
		return false
	}
	p.Deleted = true
	p.VersionID = ""
	return true
}

// IsDesired reports whether storageID is in the desired set.
func (n *Node) IsDesired(storageID string) bool {
	_, ok := n.Desired[storageID]
	return ok
}

// View returns a detached copy of the node for callers outside the engine.
func (n *Node) View() View {
	v := View{
		Path:     append(Path{}, n.path...),
		State:    n.State.String(),
		Storages: make(map[string]StorageProps, len(n.Storages)),
		Names:    maps.Clone(n.Names),
		Desired:  slices.Sorted(maps.Keys(n.Desired)),
		Old:      maps.Clone(n.Equivalents.Old),
		New:      maps.Clone(n.Equivalents.New),
	}
	for id, p := range n.Storages {
		v.Storages[id] = *p
	}
	return v
}

// View is a read-only snapshot of a node.
type View struct {
	Path     Path                    `json:"path" yaml:"path"`
	State    string                  `json:"state" yaml:"state"`
	Storages map[string]StorageProps `json:"storages" yaml:"storages"`
	Names    map[string]string       `json:"names" yaml:"names"`
	Desired  []string                `json:"desired" yaml:"desired"`
	Old      map[string]string       `json:"old,omitempty" yaml:"old,omitempty"`
	New      map[string]string       `json:"new,omitempty" yaml:"new,omitempty"`
}
