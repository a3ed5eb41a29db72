package tree

import (
	"errors"
	"fmt"
	"maps"
	"slices"
)

// Tree is an arena of nodes keyed by normalized path.
type Tree struct {
	nodes map[string]*Node
}

// New returns a tree holding only the root node.
func New() *Tree {
	t := &Tree{nodes: make(map[string]*Node)}
	t.nodes[""] = newNode(Path{})
	return t
}

// Root returns the root node.
func (t *Tree) Root() *Node {
	return t.nodes[""]
}

// Len returns the number of nodes, root excluded.
func (t *Tree) Len() int {
	return len(t.nodes) - 1
}

// Get looks up a node by normalized path.
func (t *Tree) Get(p Path) (*Node, bool) {
	n, ok := t.nodes[p.Key()]
	return n, ok
}

// GetOrCreate returns the node at p, creating it and any missing ancestors.
func (t *Tree) GetOrCreate(p Path) *Node {
	if n, ok := t.nodes[p.Key()]; ok {
		return n
	}
	parent := t.GetOrCreate(p.Parent())
	n := newNode(append(Path{}, p...))
	t.nodes[n.path.Key()] = n
	parent.children[p.Name()] = struct{}{}
	return n
}

// SetDisplayNames records the display segments storageID uses for p and
// each of its ancestors. display must have the same length as p.
func (t *Tree) SetDisplayNames(storageID string, p Path, display []string) {
	for i := range p {
		if i >= len(display) {
			return
		}
		if n, ok := t.nodes[p[:i+1].Key()]; ok {
			n.Names[storageID] = display[i]
		}
	}
}

// Parent returns the parent of n. The root has no parent.
func (t *Tree) Parent(n *Node) (*Node, bool) {
	if n.path.IsRoot() {
		return nil, false
	}
	p, ok := t.nodes[n.parent]
	return p, ok
}

// Children returns the direct children of n ordered by name.
func (t *Tree) Children(n *Node) []*Node {
	out := make([]*Node, 0, len(n.children))
	for _, name := range slices.Sorted(maps.Keys(n.children)) {
		if c, ok := t.nodes[n.path.Child(name).Key()]; ok {
			out = append(out, c)
		}
	}
	return out
}

// Subtree returns n and all of its descendants in pre-order. The result is
// a detached slice, so callers may mutate the tree while ranging over it.
func (t *Tree) Subtree(n *Node) []*Node {
	var out []*Node
	stack := []*Node{n}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		out = append(out, cur)
		children := t.Children(cur)
		for i := len(children) - 1; i >= 0; i-- {
			stack = append(stack, children[i])
		}
	}
	return out
}

// Nodes returns every node except the root in pre-order.
func (t *Tree) Nodes() []*Node {
	return t.Subtree(t.Root())[1:]
}

// Lineage returns the node at p followed by its existing ancestors up to,
// and excluding, the root. Missing path elements are skipped.
func (t *Tree) Lineage(p Path) []*Node {
	var out []*Node
	for cur := p; !cur.IsRoot(); cur = cur.Parent() {
		if n, ok := t.nodes[cur.Key()]; ok {
			out = append(out, n)
		}
	}
	return out
}

// Remove deletes n from the tree. A node that still has children is kept
// as an empty placeholder until its last descendant is removed. Empty
// ancestors are pruned. It reports whether n itself left the arena.
func (t *Tree) Remove(n *Node) bool {
	if n.path.IsRoot() {
		return false
	}
	n.reset()
	if len(n.children) > 0 {
		return false
	}

	for cur := n; !cur.path.IsRoot(); {
		parent, ok := t.Parent(cur)
		delete(t.nodes, cur.path.Key())
		if !ok {
			break
		}
		delete(parent.children, cur.path.Name())
		if parent.path.IsRoot() || len(parent.children) > 0 || len(parent.Storages) > 0 {
			break
		}
		cur = parent
	}
	return true
}

// MergeSnapshot applies a full tree listing of storageID. Every listed item
// is upserted and the storage's entry is dropped from every node that is
// not listed. It returns the nodes whose properties changed. Items that
// fail to merge are skipped and reported in the joined error.
func (t *Tree) MergeSnapshot(storageID string, snap *Snapshot) ([]*Node, error) {
	seen := make(map[string]struct{}, len(snap.Items))
	touched := make(map[string]*Node)
	var errs []error

	for _, item := range snap.Items {
		p := Normalize(item.Path)
		if p.IsRoot() {
			continue
		}
		n := t.GetOrCreate(p)
		t.SetDisplayNames(storageID, p, item.Path)
		seen[p.Key()] = struct{}{}

		changed, err := n.UpdateStorageProps(storageID, UpdateFrom(item.Props))
		if err != nil {
			errs = append(errs, fmt.Errorf("merge %s: %w", p, err))
			continue
		}
		if changed {
			touched[p.Key()] = n
		}
	}

	for key, n := range t.nodes {
		if _, ok := seen[key]; ok {
			continue
		}
		if _, ok := n.Storages[storageID]; ok {
			delete(n.Storages, storageID)
			touched[key] = n
		}
	}

	out := make([]*Node, 0, len(touched))
	for _, key := range slices.Sorted(maps.Keys(touched)) {
		out = append(out, touched[key])
	}
	return out, errors.Join(errs...)
}
