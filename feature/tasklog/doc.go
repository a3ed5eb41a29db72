// Package tasklog keeps a history of finished sync tasks in the optional
// database.
//
// The Recorder observes the acked tasks of the queue and writes one Entry
// per task (kind, path, display name, final state, tries and transferred
// bytes) through GORM. Writes happen on a background goroutine behind a
// bounded buffer; when the database falls behind entries are dropped
// rather than slowing the workers down.
//
// The feature serves GET /tasks?link=&limit= and is only loaded when a
// database connection is available.
package tasklog
