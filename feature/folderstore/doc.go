// Package folderstore implements a storage backend on a plain directory,
// typically a mounted network share.
//
// The directory is accessed through a go-billy filesystem: osfs in
// production and memfs in tests. File versions are SHA-256 digests of the
// content, so they survive remounts and do not depend on the modification
// time resolution of the share; the digest is only recomputed when size or
// modification time change. Directories report the version "is_dir".
//
// Writes go to a temporary file in the target directory that is renamed
// into place. Changes made by others are discovered by a backend.Poller
// that lists the tree periodically and emits the differences.
package folderstore
