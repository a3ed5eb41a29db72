package link

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"cloudsync/core/backend"
	cslog "cloudsync/core/logger"
	"cloudsync/core/notify"
	"cloudsync/core/queue"
	"cloudsync/core/reconcile"
	"cloudsync/core/state"
	"cloudsync/core/synctask"
	"cloudsync/core/tree"

	"go.uber.org/zap"
)

const idSeparator = "::"

// DefaultSaveInterval is how often the state of a running link is saved.
const DefaultSaveInterval = 60 * time.Second

// ID returns the ID of the link between the local storage and remoteID.
func ID(remoteID string) string {
	return backend.LocalStorageID + idSeparator + remoteID
}

// Link pairs the local storage with one remote storage and owns the engine
// reconciling them.
type Link struct {
	id     string
	local  backend.Storage
	remote backend.Storage
	engine *reconcile.Engine
	queue  *queue.Queue
	store  *state.Store
	every  time.Duration
	logger *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a stopped link. The persisted state of the link is loaded
// from store when there is one; store may be nil.
func New(local, remote backend.Storage, q *queue.Queue, store *state.Store, notifier notify.Notifier, saveInterval time.Duration, logger *zap.Logger) (*Link, error) {
	if local.ID() != backend.LocalStorageID {
		return nil, fmt.Errorf("local storage must use the ID %q, got %q", backend.LocalStorageID, local.ID())
	}
	if remote.ID() == backend.LocalStorageID {
		return nil, fmt.Errorf("remote storage cannot use the reserved ID %q", backend.LocalStorageID)
	}
	if saveInterval <= 0 {
		saveInterval = DefaultSaveInterval
	}

	id := ID(remote.ID())
	var model *tree.Model
	if store != nil {
		m, err := store.Load(id)
		switch {
		case err == nil:
			model = m
		case errors.Is(err, state.ErrNotFound):
		default:
			return nil, fmt.Errorf("load state of %s: %w", id, err)
		}
	}

	l := &Link{
		id:     id,
		local:  local,
		remote: remote,
		queue:  q,
		store:  store,
		every:  saveInterval,
		logger: cslog.ForLink(logger, "link", id),
	}
	l.engine = reconcile.NewEngine(reconcile.Config{LinkID: id, RemoteID: remote.ID(), Model: model}, l.submit, notifier, logger)
	if model != nil {
		l.logger.Info("Loaded persisted state", zap.Int("nodes", len(model.Nodes)))
	}
	return l, nil
}

func (l *Link) ID() string { return l.id }

// Local returns the local storage of the link.
func (l *Link) Local() backend.Storage { return l.local }

// Remote returns the remote storage of the link.
func (l *Link) Remote() backend.Storage { return l.remote }

// Engine returns the engine reconciling the link.
func (l *Link) Engine() *reconcile.Engine { return l.engine }

// submit routes engine tasks to the shared queue; acks flow back to the
// engine.
func (l *Link) submit(t synctask.Task) {
	t.Info().SetAckFunc(l.engine.AckTask)
	l.queue.Put(t)
}

// Start runs the engine, issues the initial state sync and starts saving
// the state periodically.
func (l *Link) Start(ctx context.Context) error {
	l.engine.Start(ctx)
	if err := l.engine.Init(ctx); err != nil {
		return fmt.Errorf("init %s: %w", l.id, err)
	}

	if l.store == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cancel != nil {
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	l.cancel, l.done = cancel, make(chan struct{})
	go l.saveLoop(ctx, l.done)
	return nil
}

func (l *Link) saveLoop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(l.every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := l.Save(ctx); err != nil && ctx.Err() == nil {
				l.logger.Error("Saving state failed", zap.Error(err))
			}
		}
	}
}

// Save persists the durable part of the namespace tree.
func (l *Link) Save(ctx context.Context) error {
	if l.store == nil {
		return nil
	}
	m, err := l.engine.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("snapshot %s: %w", l.id, err)
	}
	if err := l.store.Save(l.id, m); err != nil {
		return err
	}
	l.logger.Debug("State saved", zap.Int("nodes", len(m.Nodes)))
	return nil
}

// Pause stops the link from issuing work; events keep updating the tree.
func (l *Link) Pause(ctx context.Context) error { return l.engine.Pause(ctx) }

// Resume re-evaluates every node of a paused link.
func (l *Link) Resume(ctx context.Context) error { return l.engine.Resume(ctx) }

// Stop ends the event sources, saves the state and stops the engine.
func (l *Link) Stop(ctx context.Context) error {
	l.mu.Lock()
	cancel, done := l.cancel, l.done
	l.cancel, l.done = nil, nil
	l.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}

	var errs []error
	for _, s := range []backend.Storage{l.local, l.remote} {
		if err := s.StopEvents(true); err != nil {
			errs = append(errs, fmt.Errorf("stop events of %s: %w", s.ID(), err))
		}
	}
	if err := l.Save(ctx); err != nil && !errors.Is(err, reconcile.ErrStopped) {
		errs = append(errs, err)
	}
	l.engine.Stop()
	l.logger.Info("Link stopped")
	return errors.Join(errs...)
}
