package s3store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"cloudsync/core/backend"
	"cloudsync/core/storage"
	"cloudsync/core/tree"

	"github.com/minio/minio-go/v7"
	"go.uber.org/zap"
)

// DirVersion is the version reported for every directory.
const DirVersion = "is_dir"

var _ backend.Storage = (*Store)(nil)

// Store is a storage backed by an S3 bucket. Directories are key prefixes;
// empty ones are kept as zero-byte objects whose key ends in a slash.
type Store struct {
	id     string
	client storage.Client
	bucket string
	prefix string
	poller *backend.Poller
	logger *zap.Logger
}

// New creates a store syncing the keys below cfg.Prefix in cfg.Bucket.
func New(id string, client storage.Client, cfg storage.Config, logger *zap.Logger) *Store {
	prefix := strings.Trim(cfg.Prefix, "/")
	if prefix != "" {
		prefix += "/"
	}
	s := &Store{
		id:     id,
		client: client,
		bucket: cfg.Bucket,
		prefix: prefix,
		logger: logger.Named("s3store").With(zap.String("storage", id), zap.String("bucket", cfg.Bucket)),
	}
	s.poller = backend.NewPoller(id, time.Duration(cfg.PollSeconds)*time.Second, s.list, s.logger)
	return s
}

// EnsureBucket creates the bucket when it does not exist yet.
func (s *Store) EnsureBucket(ctx context.Context, region string) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return translate("bucket", nil, err)
	}
	if exists {
		return nil
	}
	s.logger.Info("Creating bucket")
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: region}); err != nil {
		return translate("bucket", nil, err)
	}
	return nil
}

func (s *Store) ID() string { return s.id }

func (s *Store) key(p []string) string    { return s.prefix + strings.Join(p, "/") }
func (s *Store) dirKey(p []string) string { return s.key(p) + "/" }

func (s *Store) OpenRead(ctx context.Context, p []string, expectedVersionID string) (io.ReadCloser, error) {
	info, err := s.client.StatObject(ctx, s.bucket, s.key(p), minio.StatObjectOptions{})
	if err != nil {
		return nil, translate("read", p, err)
	}
	if expectedVersionID != "" && info.ETag != expectedVersionID {
		return nil, backend.E(backend.CodeVersionMismatch, "read", p, nil)
	}

	opts := minio.GetObjectOptions{}
	if expectedVersionID != "" {
		if err := opts.SetMatchETag(expectedVersionID); err != nil {
			return nil, translate("read", p, err)
		}
	}
	rc, err := s.client.GetObject(ctx, s.bucket, s.key(p), opts)
	if err != nil {
		return nil, translate("read", p, err)
	}
	return rc, nil
}

func (s *Store) Write(ctx context.Context, p []string, r io.Reader, originalVersionID string, size int64) (string, error) {
	if len(p) == 0 {
		return "", backend.E(backend.CodeInvalidOperation, "write", p, errors.New("empty path"))
	}
	current, err := s.current(ctx, p)
	if err != nil {
		return "", translate("write", p, err)
	}
	if current == DirVersion {
		return "", backend.E(backend.CodeInvalidOperation, "write", p, errors.New("is a directory"))
	}
	if current != originalVersionID {
		return "", backend.E(backend.CodeVersionMismatch, "write", p,
			fmt.Errorf("expected %q, found %q", originalVersionID, current))
	}

	// MinIO enforces the preconditions server side; S3 checks them where
	// supported.
	opts := minio.PutObjectOptions{}
	if originalVersionID == "" {
		opts.SetMatchETagExcept("*")
	} else {
		opts.SetMatchETag(originalVersionID)
	}
	info, err := s.client.PutObject(ctx, s.bucket, s.key(p), r, size, opts)
	if err != nil {
		return "", translate("write", p, err)
	}
	return info.ETag, nil
}

func (s *Store) Delete(ctx context.Context, p []string, originalVersionID string) error {
	current, err := s.current(ctx, p)
	if err != nil {
		return translate("delete", p, err)
	}
	if current == "" {
		return backend.E(backend.CodeNotFound, "delete", p, nil)
	}
	if originalVersionID != "" && current != originalVersionID {
		return backend.E(backend.CodeVersionMismatch, "delete", p, nil)
	}

	if current == DirVersion {
		return s.removePrefix(ctx, p)
	}
	if err := s.client.RemoveObject(ctx, s.bucket, s.key(p), minio.RemoveObjectOptions{}); err != nil {
		return translate("delete", p, err)
	}
	return nil
}

func (s *Store) MakeDir(ctx context.Context, p []string) (string, error) {
	current, err := s.current(ctx, p)
	if err != nil {
		return "", translate("mkdir", p, err)
	}
	switch current {
	case DirVersion:
		return DirVersion, nil
	case "":
	default:
		return "", backend.E(backend.CodeInvalidOperation, "mkdir", p, errors.New("a file with that name exists"))
	}

	if _, err := s.client.PutObject(ctx, s.bucket, s.dirKey(p), bytes.NewReader(nil), 0, minio.PutObjectOptions{}); err != nil {
		return "", translate("mkdir", p, err)
	}
	return DirVersion, nil
}

// Move copies source to target server side and removes source. Directories
// are moved object by object.
func (s *Store) Move(ctx context.Context, source, target []string, expectedSourceVersionID, expectedTargetVersionID string) (string, error) {
	if len(target) == 0 {
		return "", backend.E(backend.CodeInvalidOperation, "move", target, errors.New("empty path"))
	}
	current, err := s.current(ctx, source)
	if err != nil {
		return "", translate("move", source, err)
	}
	if current == "" {
		return "", backend.E(backend.CodeNotFound, "move", source, nil)
	}
	if expectedSourceVersionID != "" && current != expectedSourceVersionID {
		return "", backend.E(backend.CodeVersionMismatch, "move", source, nil)
	}

	existing, err := s.current(ctx, target)
	if err != nil {
		return "", translate("move", target, err)
	}
	if existing != expectedTargetVersionID {
		return "", backend.E(backend.CodeVersionMismatch, "move", target, fmt.Errorf("target holds %q", existing))
	}

	if current == DirVersion {
		return DirVersion, s.moveDir(ctx, source, target)
	}

	info, err := s.client.CopyObject(ctx,
		minio.CopyDestOptions{Bucket: s.bucket, Object: s.key(target)},
		minio.CopySrcOptions{Bucket: s.bucket, Object: s.key(source), MatchETag: current},
	)
	if err != nil {
		return "", translate("move", source, err)
	}
	if err := s.client.RemoveObject(ctx, s.bucket, s.key(source), minio.RemoveObjectOptions{}); err != nil {
		s.logger.Warn("Removing moved object failed", zap.Strings("path", source), zap.Error(err))
	}
	return info.ETag, nil
}

func (s *Store) moveDir(ctx context.Context, source, target []string) error {
	from, to := s.dirKey(source), s.dirKey(target)
	objects, err := s.objects(ctx, from)
	if err != nil {
		return translate("move", source, err)
	}
	for _, obj := range objects {
		_, err := s.client.CopyObject(ctx,
			minio.CopyDestOptions{Bucket: s.bucket, Object: to + strings.TrimPrefix(obj.Key, from)},
			minio.CopySrcOptions{Bucket: s.bucket, Object: obj.Key, MatchETag: obj.ETag},
		)
		if err != nil {
			return translate("move", source, err)
		}
	}
	return s.remove(ctx, source, objects)
}

// GetTree lists every object below the prefix. With cached set the last
// listing is returned when there is one.
func (s *Store) GetTree(ctx context.Context, cached bool) (*tree.Snapshot, error) {
	if cached {
		if last := s.poller.Last(); last != nil {
			return last, nil
		}
	}
	snap, err := s.list(ctx)
	if err != nil {
		return nil, err
	}
	s.poller.Seed(snap)
	return snap, nil
}

func (s *Store) StartEvents(ctx context.Context, sink backend.EventSink) error {
	return s.poller.Start(ctx, sink)
}

func (s *Store) StopEvents(join bool) error {
	return s.poller.Stop(join)
}

func (s *Store) list(ctx context.Context) (*tree.Snapshot, error) {
	snap := &tree.Snapshot{}
	dirs := make(map[string]bool)
	addDir := func(segs []string) {
		k := strings.Join(segs, "/")
		if dirs[k] {
			return
		}
		dirs[k] = true
		snap.Add(append([]string{}, segs...), tree.StorageProps{VersionID: DirVersion, IsDir: true})
	}

	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: s.prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, translate("list", nil, obj.Err)
		}
		rel := strings.TrimPrefix(obj.Key, s.prefix)
		if strings.Trim(rel, "/") == "" {
			continue
		}
		isDir := strings.HasSuffix(rel, "/")
		segs := strings.Split(strings.TrimSuffix(rel, "/"), "/")
		for i := 1; i < len(segs); i++ {
			addDir(segs[:i])
		}
		if isDir {
			addDir(segs)
			continue
		}
		snap.Add(segs, tree.StorageProps{VersionID: obj.ETag, ModifiedDate: obj.LastModified, Size: obj.Size})
	}
	return snap, nil
}

// current returns the version at p: the ETag of a file, DirVersion when
// keys exist below p, or "" when nothing is there.
func (s *Store) current(ctx context.Context, p []string) (string, error) {
	info, err := s.client.StatObject(ctx, s.bucket, s.key(p), minio.StatObjectOptions{})
	if err == nil {
		return info.ETag, nil
	}
	if !errors.Is(translate("stat", p, err), backend.ErrNotFound) {
		return "", err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: s.dirKey(p), Recursive: true, MaxKeys: 1}) {
		if obj.Err != nil {
			return "", obj.Err
		}
		return DirVersion, nil
	}
	return "", nil
}

func (s *Store) objects(ctx context.Context, prefix string) ([]minio.ObjectInfo, error) {
	var out []minio.ObjectInfo
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		out = append(out, obj)
	}
	return out, nil
}

func (s *Store) removePrefix(ctx context.Context, p []string) error {
	objects, err := s.objects(ctx, s.dirKey(p))
	if err != nil {
		return translate("delete", p, err)
	}
	return s.remove(ctx, p, objects)
}

func (s *Store) remove(ctx context.Context, p []string, objects []minio.ObjectInfo) error {
	objectsCh := make(chan minio.ObjectInfo, len(objects))
	for _, obj := range objects {
		objectsCh <- obj
	}
	close(objectsCh)

	for rErr := range s.client.RemoveObjects(ctx, s.bucket, objectsCh, minio.RemoveObjectsOptions{}) {
		if rErr.Err != nil {
			return translate("delete", p, fmt.Errorf("remove %s: %w", rErr.ObjectName, rErr.Err))
		}
	}
	return nil
}

// translate classifies MinIO and transport errors.
func translate(op string, p []string, err error) error {
	if err == nil {
		return nil
	}
	if backend.CodeOf(err) != "" {
		return err
	}

	var resp minio.ErrorResponse
	if !errors.As(err, &resp) {
		var netErr net.Error
		if errors.As(err, &netErr) {
			return backend.E(backend.CodeUnavailable, op, p, err)
		}
		return backend.E(backend.CodeCurrentlyNotPossible, op, p, err)
	}

	var code backend.Code
	switch resp.Code {
	case "NoSuchKey":
		code = backend.CodeNotFound
	case "NoSuchBucket":
		code = backend.CodeUnavailable
	case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch", "ExpiredToken":
		code = backend.CodeUnauthorized
	case "PreconditionFailed":
		code = backend.CodeVersionMismatch
	case "SlowDown", "RequestTimeout", "InternalError", "ServiceUnavailable", "XMinioServerNotInitialized":
		code = backend.CodeCurrentlyNotPossible
	default:
		switch resp.StatusCode {
		case http.StatusNotFound:
			code = backend.CodeNotFound
		case http.StatusUnauthorized, http.StatusForbidden:
			code = backend.CodeUnauthorized
		case http.StatusPreconditionFailed:
			code = backend.CodeVersionMismatch
		case http.StatusBadRequest, http.StatusMethodNotAllowed, http.StatusConflict:
			code = backend.CodeInvalidOperation
		default:
			code = backend.CodeCurrentlyNotPossible
		}
	}
	return backend.E(code, op, p, err)
}
