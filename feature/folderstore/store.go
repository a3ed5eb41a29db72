package folderstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"cloudsync/core/backend"
	"cloudsync/core/tree"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DirVersion is the version reported for every directory.
const DirVersion = "is_dir"

// tempPrefix marks in-flight writes; listings skip them.
const tempPrefix = ".cloudsync-"

var _ backend.Storage = (*Store)(nil)

// digest caches the content version of a file for a given size and
// modification time.
type digest struct {
	size     int64
	modTime  time.Time
	version  string
	reported time.Time
}

// Store is a storage backed by a billy filesystem.
type Store struct {
	id     string
	fs     billy.Filesystem
	poller *backend.Poller
	logger *zap.Logger

	// mu guards the structure of fs. Writers take it exclusively.
	mu sync.RWMutex

	cacheMu sync.Mutex
	cache   map[string]digest
}

// New creates a store on fsys. Changes are discovered by listing fsys every
// pollInterval.
func New(id string, fsys billy.Filesystem, pollInterval time.Duration, logger *zap.Logger) *Store {
	s := &Store{
		id:     id,
		fs:     fsys,
		logger: logger.Named("folderstore").With(zap.String("storage", id)),
		cache:  make(map[string]digest),
	}
	s.poller = backend.NewPoller(id, pollInterval, s.list, s.logger)
	return s
}

// NewOS creates a store rooted at dir on the host filesystem, typically a
// mounted network share.
func NewOS(id, dir string, pollInterval time.Duration, logger *zap.Logger) *Store {
	return New(id, osfs.New(dir), pollInterval, logger)
}

func (s *Store) ID() string { return s.id }

func (s *Store) name(p []string) string {
	if len(p) == 0 {
		return "/"
	}
	return s.fs.Join(p...)
}

func (s *Store) OpenRead(ctx context.Context, p []string, expectedVersionID string) (io.ReadCloser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info, err := s.fs.Stat(s.name(p))
	if err != nil {
		return nil, backend.FromOS("read", p, err)
	}
	if info.IsDir() {
		return nil, backend.E(backend.CodeInvalidOperation, "read", p, errors.New("is a directory"))
	}
	if expectedVersionID != "" {
		v, _, err := s.version(p, info)
		if err != nil {
			return nil, backend.FromOS("read", p, err)
		}
		if v != expectedVersionID {
			return nil, backend.E(backend.CodeVersionMismatch, "read", p, nil)
		}
	}

	f, err := s.fs.Open(s.name(p))
	if err != nil {
		return nil, backend.FromOS("read", p, err)
	}
	return f, nil
}

// Write stores r in a temporary file next to the target and renames it into
// place, so readers never see partial content. The copy runs without holding
// mu; the version is checked again before the rename.
func (s *Store) Write(ctx context.Context, p []string, r io.Reader, originalVersionID string, size int64) (string, error) {
	if len(p) == 0 {
		return "", backend.E(backend.CodeInvalidOperation, "write", p, errors.New("empty path"))
	}

	tmp, f, err := s.createTemp(p, originalVersionID)
	if err != nil {
		return "", err
	}

	h := sha256.New()
	_, err = io.Copy(io.MultiWriter(f, h), r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		_ = s.fs.Remove(tmp)
		return "", backend.FromOS("write", p, err)
	}
	if err := s.checkWritable(p, originalVersionID); err != nil {
		_ = s.fs.Remove(tmp)
		return "", err
	}
	if err := s.fs.Rename(tmp, s.name(p)); err != nil {
		_ = s.fs.Remove(tmp)
		return "", backend.FromOS("write", p, err)
	}

	version := hex.EncodeToString(h.Sum(nil))
	if info, err := s.fs.Stat(s.name(p)); err == nil {
		s.remember(p, info, version)
	}
	return version, nil
}

// createTemp checks the target version and creates the temporary file
// beside it.
func (s *Store) createTemp(p []string, originalVersionID string) (string, billy.File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkWritable(p, originalVersionID); err != nil {
		return "", nil, err
	}
	parent := p[:len(p)-1]
	if err := s.fs.MkdirAll(s.name(parent), 0o755); err != nil {
		return "", nil, backend.FromOS("write", p, err)
	}
	tmp := s.fs.Join(append(append([]string{}, parent...), tempPrefix+uuid.NewString())...)
	f, err := s.fs.Create(tmp)
	if err != nil {
		return "", nil, backend.FromOS("write", p, err)
	}
	return tmp, f, nil
}

// checkWritable requires mu to be held.
func (s *Store) checkWritable(p []string, originalVersionID string) error {
	current, err := s.currentVersion(p)
	if err != nil {
		return backend.FromOS("write", p, err)
	}
	if current == DirVersion {
		return backend.E(backend.CodeInvalidOperation, "write", p, errors.New("is a directory"))
	}
	if current != originalVersionID {
		return backend.E(backend.CodeVersionMismatch, "write", p,
			fmt.Errorf("expected %q, found %q", originalVersionID, current))
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, p []string, originalVersionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.currentVersion(p)
	if err != nil {
		return backend.FromOS("delete", p, err)
	}
	if current == "" {
		return backend.E(backend.CodeNotFound, "delete", p, nil)
	}
	if originalVersionID != "" && current != originalVersionID {
		return backend.E(backend.CodeVersionMismatch, "delete", p, nil)
	}

	if current == DirVersion {
		err = util.RemoveAll(s.fs, s.name(p))
	} else {
		err = s.fs.Remove(s.name(p))
	}
	if err != nil {
		return backend.FromOS("delete", p, err)
	}
	s.forget(p)
	return nil
}

func (s *Store) MakeDir(ctx context.Context, p []string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if info, err := s.fs.Stat(s.name(p)); err == nil && !info.IsDir() {
		return "", backend.E(backend.CodeInvalidOperation, "mkdir", p, errors.New("a file with that name exists"))
	}
	if err := s.fs.MkdirAll(s.name(p), 0o755); err != nil {
		return "", backend.FromOS("mkdir", p, err)
	}
	return DirVersion, nil
}

func (s *Store) Move(ctx context.Context, source, target []string, expectedSourceVersionID, expectedTargetVersionID string) (string, error) {
	if len(target) == 0 {
		return "", backend.E(backend.CodeInvalidOperation, "move", target, errors.New("empty path"))
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.currentVersion(source)
	if err != nil {
		return "", backend.FromOS("move", source, err)
	}
	if current == "" {
		return "", backend.E(backend.CodeNotFound, "move", source, nil)
	}
	if expectedSourceVersionID != "" && current != expectedSourceVersionID {
		return "", backend.E(backend.CodeVersionMismatch, "move", source, nil)
	}

	existing, err := s.currentVersion(target)
	if err != nil {
		return "", backend.FromOS("move", target, err)
	}
	if existing != expectedTargetVersionID {
		return "", backend.E(backend.CodeVersionMismatch, "move", target,
			fmt.Errorf("target holds %q", existing))
	}

	if err := s.fs.MkdirAll(s.name(target[:len(target)-1]), 0o755); err != nil {
		return "", backend.FromOS("move", target, err)
	}
	if err := s.fs.Rename(s.name(source), s.name(target)); err != nil {
		return "", backend.FromOS("move", source, err)
	}
	s.forget(source)
	return current, nil
}

// GetTree lists every file and directory. With cached set the last listing
// is returned when there is one.
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

// Stat returns the properties of the item at p.
func (s *Store) Stat(ctx context.Context, p []string) (tree.StorageProps, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info, err := s.fs.Stat(s.name(p))
	if err != nil {
		return tree.StorageProps{}, backend.FromOS("stat", p, err)
	}
	if info.IsDir() {
		return tree.StorageProps{VersionID: DirVersion, IsDir: true}, nil
	}
	version, modified, err := s.version(p, info)
	if err != nil {
		return tree.StorageProps{}, backend.FromOS("stat", p, err)
	}
	return tree.StorageProps{VersionID: version, ModifiedDate: modified, Size: info.Size()}, nil
}

// Rescan lists the tree once and emits the differences to the previous
// listing to sink.
func (s *Store) Rescan(ctx context.Context, sink backend.EventSink) error {
	return s.poller.Poll(ctx, sink)
}

// IsTemp reports whether name is an in-flight write of this package.
func IsTemp(name string) bool {
	return strings.HasPrefix(name, tempPrefix)
}

func (s *Store) list(ctx context.Context) (*tree.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := &tree.Snapshot{}
	if err := s.walk(ctx, nil, snap); err != nil {
		return nil, err
	}
	return snap, nil
}

func (s *Store) walk(ctx context.Context, dir []string, snap *tree.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	entries, err := s.fs.ReadDir(s.name(dir))
	if err != nil {
		if len(dir) == 0 && errors.Is(err, os.ErrNotExist) {
			return backend.E(backend.CodeUnavailable, "list", nil, err)
		}
		return backend.FromOS("list", dir, err)
	}

	for _, info := range entries {
		if IsTemp(info.Name()) {
			continue
		}
		p := append(append([]string{}, dir...), info.Name())
		if info.IsDir() {
			snap.Add(p, tree.StorageProps{VersionID: DirVersion, IsDir: true})
			if err := s.walk(ctx, p, snap); err != nil {
				return err
			}
			continue
		}
		version, modified, err := s.version(p, info)
		if err != nil {
			s.logger.Warn("Skipping unreadable file", zap.Strings("path", p), zap.Error(err))
			continue
		}
		snap.Add(p, tree.StorageProps{VersionID: version, ModifiedDate: modified, Size: info.Size()})
	}
	return nil
}

// currentVersion returns the version at p, or "" when nothing is there.
func (s *Store) currentVersion(p []string) (string, error) {
	info, err := s.fs.Stat(s.name(p))
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		return DirVersion, nil
	}
	v, _, err := s.version(p, info)
	return v, err
}

// version returns the content digest of a file and the modification time
// reported with it. The digest is recomputed only when size or modification
// time changed; an unchanged digest keeps its reported time.
func (s *Store) version(p []string, info os.FileInfo) (string, time.Time, error) {
	if info.IsDir() {
		return DirVersion, time.Time{}, nil
	}
	key := strings.Join(p, "/")

	s.cacheMu.Lock()
	d, ok := s.cache[key]
	s.cacheMu.Unlock()
	if ok && d.size == info.Size() && d.modTime.Equal(info.ModTime()) {
		return d.version, d.reported, nil
	}

	version, err := s.hash(p)
	if err != nil {
		return "", time.Time{}, err
	}

	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	reported := info.ModTime()
	if ok && d.version == version {
		reported = d.reported
	}
	s.cache[key] = digest{size: info.Size(), modTime: info.ModTime(), version: version, reported: reported}
	return version, reported, nil
}

func (s *Store) hash(p []string) (string, error) {
	f, err := s.fs.Open(s.name(p))
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func (s *Store) remember(p []string, info os.FileInfo, version string) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.cache[strings.Join(p, "/")] = digest{size: info.Size(), modTime: info.ModTime(), version: version, reported: info.ModTime()}
}

func (s *Store) forget(p []string) {
	prefix := strings.Join(p, "/")
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	for key := range s.cache {
		if key == prefix || strings.HasPrefix(key, prefix+"/") {
			delete(s.cache, key)
		}
	}
}
