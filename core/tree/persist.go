package tree

import (
	"maps"
	"slices"
)

// PersistedNode is the durable part of a node: what the user wants and what
// the engine last believed to be in sync. Observed properties are never
// persisted, they are re-fetched on startup.
type PersistedNode struct {
	Path    []string          `json:"path" yaml:"path"`
	Desired []string          `json:"desired,omitempty" yaml:"desired,omitempty"`
	Old     map[string]string `json:"old,omitempty" yaml:"old,omitempty"`
	New     map[string]string `json:"new,omitempty" yaml:"new,omitempty"`
}

// Model is the persisted form of a tree.
type Model struct {
	Nodes []PersistedNode `json:"nodes" yaml:"nodes"`
}

// Export returns the persisted form of every node that carries desired
// storages or equivalents.
func (t *Tree) Export() Model {
	var m Model
	for _, n := range t.Nodes() {
		if len(n.Desired) == 0 && len(n.Equivalents.Old) == 0 && len(n.Equivalents.New) == 0 {
			continue
		}
		pn := PersistedNode{
			Path:    append([]string{}, n.path...),
			Desired: slices.Sorted(maps.Keys(n.Desired)),
		}
		if len(n.Equivalents.Old) > 0 {
			pn.Old = maps.Clone(n.Equivalents.Old)
		}
		if len(n.Equivalents.New) > 0 {
			pn.New = maps.Clone(n.Equivalents.New)
		}
		m.Nodes = append(m.Nodes, pn)
	}
	return m
}

// Import builds a tree from its persisted form.
func Import(m Model) *Tree {
	t := New()
	for _, pn := range m.Nodes {
		n := t.GetOrCreate(Normalize(pn.Path))
		for _, id := range pn.Desired {
			n.Desired[id] = struct{}{}
		}
		maps.Copy(n.Equivalents.Old, pn.Old)
		maps.Copy(n.Equivalents.New, pn.New)
	}
	return t
}
