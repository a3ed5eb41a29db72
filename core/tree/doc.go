// Package tree implements the namespace tree shared by every storage of a
// synchronization link.
//
// The tree is an arena of nodes keyed by normalized path. Each node stores
// its parent as a key and its children as a set of segment names, so walks
// in either direction are plain loops over the arena map. A path is
// normalized per segment (Unicode NFC, lower case); two paths address the
// same node iff their normalized segments are equal.
//
// # Node contents
//
//   - Storages: the properties each backend currently reports for the item.
//   - Names: the display name (original casing) each backend uses.
//   - Equivalents: the old/new (storage, version) pairs believed to be the
//     same content.
//   - Desired: the storages the item should exist on.
//   - State and transient flags owned by the reconciliation state machine.
//
// # Property updates
//
// Updates are expressed with Field values that either keep, set or clear
// a property. Clearing a mandatory property (version, modification date,
// size, directory flag) is rejected with ErrMandatoryField.
//
// # Usage
//
//	t := tree.New()
//	n := t.GetOrCreate(tree.Normalize([]string{"Docs", "a.txt"}))
//	changed, err := n.UpdateStorageProps("local", tree.Update{
//	    VersionID: tree.Set("v1"),
//	    IsDir:     tree.Set(false),
//	})
//
// The tree is not safe for concurrent use; the reconciliation engine is its
// only writer.
package tree
