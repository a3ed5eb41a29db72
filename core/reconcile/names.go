package reconcile

import (
	"path"
	"strconv"
	"strings"

	"cloudsync/core/tree"
)

const conflictSuffix = " (Conflicting copy)"

// storagePath returns the display path storageID uses for p. Segments the
// storage has no name for fall back to the names of fallback, then to the
// normalized segment.
func (e *Engine) storagePath(p tree.Path, storageID, fallback string) []string {
	lineage := e.tree.Lineage(p)
	out := append([]string{}, p...)
	for _, n := range lineage {
		i := len(n.Path()) - 1
		if name, ok := n.Names[storageID]; ok {
			out[i] = name
		} else if name, ok := n.Names[fallback]; ok && fallback != "" {
			out[i] = name
		}
	}
	return out
}

// splitName separates the extension of a file name. Directories and dot
// files have none.
func splitName(name string, isDir bool) (stem, ext string) {
	if isDir {
		return name, ""
	}
	ext = path.Ext(name)
	if ext == name {
		return name, ""
	}
	return strings.TrimSuffix(name, ext), ext
}

// conflictName renames name to mark it as a conflicting copy. The extension
// of files is kept.
func conflictName(name string, isDir bool) string {
	stem, ext := splitName(name, isDir)
	return stem + conflictSuffix + ext
}

// freeConflictName picks a conflict name that does not collide with an
// existing child of parent.
func (e *Engine) freeConflictName(parent tree.Path, name string, isDir bool) string {
	stem, ext := splitName(name, isDir)
	candidate := stem + conflictSuffix + ext
	for i := 2; ; i++ {
		if _, ok := e.tree.Get(parent.Child(tree.NormalizeSegment(candidate))); !ok {
			return candidate
		}
		candidate = stem + conflictSuffix + " " + strconv.Itoa(i) + ext
	}
}
