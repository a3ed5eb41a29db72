// Package s3store implements a storage backend on an S3 compatible bucket
// through the MinIO client in core/storage.
//
// Item paths map to object keys below a configurable prefix. Versions are
// object ETags. Directories have no objects of their own: they are derived
// from key prefixes when listing, and MakeDir writes a zero-byte marker
// whose key ends in a slash so empty directories survive.
//
// Renames are a server side copy conditioned on the source ETag followed
// by a delete. Writes carry If-Match / If-None-Match preconditions, which
// MinIO enforces; the version is also checked before the upload.
//
// S3 has no change notifications usable here, so a backend.Poller lists the
// bucket every poll interval and emits the differences. A listing that
// fails to reach the endpoint takes the storage offline.
package s3store
