package localfs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"cloudsync/core/backend"
	"cloudsync/core/tree"
	"cloudsync/feature/folderstore"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

var _ backend.Storage = (*Store)(nil)

// Store is the local side of every link. Reads and writes go through a
// folderstore on the host filesystem; changes are reported by fsnotify.
type Store struct {
	*folderstore.Store

	root   string
	logger *zap.Logger

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	done    chan struct{}
	wg      sync.WaitGroup
}

// New creates the local store rooted at dir, creating dir when missing.
func New(dir string, logger *zap.Logger) (*Store, error) {
	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve sync directory: %w", err)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create sync directory: %w", err)
	}
	return &Store{
		Store:  folderstore.NewOS(backend.LocalStorageID, root, 0, logger),
		root:   root,
		logger: logger.Named("localfs"),
	}, nil
}

// Root returns the absolute directory the store syncs.
func (s *Store) Root() string { return s.root }

// GetTree always lists the directory; watcher events do not maintain a
// cached listing.
func (s *Store) GetTree(ctx context.Context, _ bool) (*tree.Snapshot, error) {
	return s.Store.GetTree(ctx, false)
}

// StartEvents watches the root and every directory below it.
func (s *Store) StartEvents(ctx context.Context, sink backend.EventSink) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.watcher != nil {
		return errors.New("watcher already running")
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if err := s.watchTree(w, s.root); err != nil {
		w.Close()
		return err
	}

	s.watcher = w
	s.done = make(chan struct{})
	s.wg.Add(1)
	go s.processEvents(ctx, w, sink, s.done)
	return nil
}

// StopEvents closes the watcher. With join it blocks until the event loop
// has exited.
func (s *Store) StopEvents(join bool) error {
	s.mu.Lock()
	w, done := s.watcher, s.done
	s.watcher, s.done = nil, nil
	s.mu.Unlock()

	if w == nil {
		return nil
	}
	close(done)
	err := w.Close()
	if join {
		s.wg.Wait()
	}
	if err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	return nil
}

func (s *Store) processEvents(ctx context.Context, w *fsnotify.Watcher, sink backend.EventSink, done chan struct{}) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			s.handle(ctx, w, sink, ev)
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				s.logger.Warn("Watcher overflowed, rescanning")
				if err := s.Rescan(ctx, sink); err != nil {
					s.logger.Error("Rescan failed", zap.Error(err))
				}
				continue
			}
			s.logger.Warn("Watcher error", zap.Error(err))
		}
	}
}

func (s *Store) handle(ctx context.Context, w *fsnotify.Watcher, sink backend.EventSink, ev fsnotify.Event) {
	p, ok := s.relative(ev.Name)
	if !ok || folderstore.IsTemp(p[len(p)-1]) {
		return
	}

	var err error
	switch {
	case ev.Has(fsnotify.Create):
		var props tree.StorageProps
		props, err = s.Stat(ctx, p)
		if err != nil {
			break
		}
		err = sink.StorageCreate(backend.LocalStorageID, p, tree.UpdateFrom(props))
		if props.IsDir {
			// Items created before the watch was added would be missed.
			if werr := s.watchTree(w, ev.Name); werr != nil {
				s.logger.Warn("Watching new directory failed", zap.String("dir", ev.Name), zap.Error(werr))
			}
			s.emitChildren(ctx, sink, ev.Name)
		}
	case ev.Has(fsnotify.Write):
		var props tree.StorageProps
		props, err = s.Stat(ctx, p)
		if err == nil {
			err = sink.StorageModify(backend.LocalStorageID, p, tree.UpdateFrom(props))
		}
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		// The new name of a rename arrives as a separate create.
		sink.StorageDelete(backend.LocalStorageID, p)
	}

	switch {
	case err == nil, errors.Is(err, backend.ErrNotFound):
	default:
		s.logger.Warn("Dropping local event", zap.String("event", ev.Op.String()), zap.Strings("path", p), zap.Error(err))
	}
}

// emitChildren reports the content of a directory that appeared in one
// step, for example by a move into the sync root.
func (s *Store) emitChildren(ctx context.Context, sink backend.EventSink, dir string) {
	_ = filepath.WalkDir(dir, func(name string, d fs.DirEntry, err error) error {
		if err != nil || name == dir {
			return nil
		}
		if folderstore.IsTemp(d.Name()) {
			return nil
		}
		p, ok := s.relative(name)
		if !ok {
			return nil
		}
		props, err := s.Stat(ctx, p)
		if err != nil {
			return nil
		}
		if err := sink.StorageCreate(backend.LocalStorageID, p, tree.UpdateFrom(props)); err != nil {
			s.logger.Warn("Dropping local event", zap.Strings("path", p), zap.Error(err))
		}
		return nil
	})
}

func (s *Store) watchTree(w *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(name string, d fs.DirEntry, err error) error {
		if err != nil {
			return backend.FromOS("watch", nil, err)
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.Add(name); err != nil {
			return backend.FromOS("watch", nil, fmt.Errorf("watch %s: %w", name, err))
		}
		return nil
	})
}

// relative converts an absolute name below the root to path segments.
func (s *Store) relative(name string) ([]string, bool) {
	rel, err := filepath.Rel(s.root, name)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return nil, false
	}
	return strings.Split(filepath.ToSlash(rel), "/"), true
}
