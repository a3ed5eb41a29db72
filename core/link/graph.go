package link

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"cloudsync/core/backend"
	"cloudsync/core/notify"
	"cloudsync/core/queue"
	"cloudsync/core/state"
	"cloudsync/core/worker"

	"go.uber.org/zap"
)

var (
	// ErrLinkExists is returned when a remote is linked twice.
	ErrLinkExists = errors.New("link already exists")
	// ErrUnknownLink is returned for link IDs the graph does not hold.
	ErrUnknownLink = errors.New("unknown link")
	// ErrUnknownStorage is returned for storages that are not part of a link.
	ErrUnknownStorage = errors.New("unknown storage")
)

// Config holds the settings of a graph.
type Config struct {
	Worker       worker.Config
	SaveInterval time.Duration
}

var _ worker.Resolver = (*Graph)(nil)

// Graph holds every link of the process. The links share one task queue
// and one worker pool.
type Graph struct {
	cfg      Config
	queue    *queue.Queue
	pool     *worker.Pool
	store    *state.Store
	notifier notify.Notifier
	logger   *zap.Logger

	mu      sync.RWMutex
	links   map[string]*Link
	ctx     context.Context
	started bool
}

// NewGraph creates an empty graph consuming q. store may be nil, in which
// case nothing is persisted.
func NewGraph(cfg Config, q *queue.Queue, store *state.Store, notifier notify.Notifier, logger *zap.Logger) *Graph {
	g := &Graph{
		cfg:      cfg,
		queue:    q,
		store:    store,
		notifier: notifier,
		logger:   logger,
		links:    make(map[string]*Link),
	}
	g.pool = worker.NewPool(cfg.Worker, q, g, notifier, logger)
	return g
}

// Add links remote with local. Every link needs its own local storage
// instance since event sources deliver to a single sink. A link added to a
// running graph is started right away.
func (g *Graph) Add(local, remote backend.Storage) (*Link, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	id := ID(remote.ID())
	if _, ok := g.links[id]; ok {
		return nil, fmt.Errorf("%w: %s", ErrLinkExists, id)
	}
	l, err := New(local, remote, g.queue, g.store, g.notifier, g.cfg.SaveInterval, g.logger)
	if err != nil {
		return nil, err
	}
	if g.started {
		if err := l.Start(g.ctx); err != nil {
			return nil, err
		}
	}
	g.links[id] = l
	g.logger.Info("Link added", zap.String("link", id))
	return l, nil
}

// Link returns the link with the given ID.
func (g *Graph) Link(id string) (*Link, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	l, ok := g.links[id]
	return l, ok
}

// Links returns every link ordered by ID.
func (g *Graph) Links() []*Link {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*Link, 0, len(g.links))
	for _, id := range slices.Sorted(maps.Keys(g.links)) {
		out = append(out, g.links[id])
	}
	return out
}

// Storage implements worker.Resolver.
func (g *Graph) Storage(linkID, storageID string) (backend.Storage, error) {
	l, ok := g.Link(linkID)
	if !ok {
		return nil, backend.E(backend.CodeInvalidOperation, "resolve", nil, fmt.Errorf("%w: %s", ErrUnknownLink, linkID))
	}
	switch storageID {
	case l.local.ID():
		return l.local, nil
	case l.remote.ID():
		return l.remote, nil
	}
	return nil, backend.E(backend.CodeInvalidOperation, "resolve", nil,
		fmt.Errorf("%w: %s in %s", ErrUnknownStorage, storageID, linkID))
}

// EventSink implements worker.Resolver.
func (g *Graph) EventSink(linkID string) (backend.EventSink, error) {
	l, ok := g.Link(linkID)
	if !ok {
		return nil, backend.E(backend.CodeInvalidOperation, "resolve", nil, fmt.Errorf("%w: %s", ErrUnknownLink, linkID))
	}
	return l.engine, nil
}

// Start launches the workers and every link.
func (g *Graph) Start(ctx context.Context) error {
	g.mu.Lock()
	if g.started {
		g.mu.Unlock()
		return nil
	}
	g.started, g.ctx = true, ctx
	links := slices.Collect(maps.Values(g.links))
	g.mu.Unlock()

	g.pool.Start(ctx)
	for _, l := range links {
		if err := l.Start(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Stop halts the workers, then stops and saves every link and finally
// closes the queue.
func (g *Graph) Stop(ctx context.Context) error {
	g.mu.Lock()
	g.started = false
	links := slices.Collect(maps.Values(g.links))
	g.mu.Unlock()

	var errs []error
	if err := g.pool.Stop(); err != nil && !errors.Is(err, context.Canceled) {
		errs = append(errs, err)
	}
	for _, l := range links {
		if err := l.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	g.queue.Close()
	return errors.Join(errs...)
}
