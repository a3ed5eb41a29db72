// Package storage provides an abstraction layer for object storage services.
//
// It wraps the MinIO Go client behind the Client interface so the S3
// backend can be tested against the mock in core/storage/mocks. Both AWS
// S3 and self-hosted MinIO instances are supported.
//
// # Operations
//
//   - BucketExists / MakeBucket: verify or create the synced bucket
//   - PutObject / GetObject / StatObject: object content and metadata
//   - CopyObject: server side copy, used for renames
//   - ListObjects: recursive listing below a prefix
//   - RemoveObject / RemoveObjects: single and batch deletion
//
// # Usage
//
//	client, err := storage.NewClient(config)
//	exists, err := client.BucketExists(ctx, "cloudsync")
package storage
