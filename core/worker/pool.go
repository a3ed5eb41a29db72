package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"cloudsync/core/backend"
	"cloudsync/core/notify"
	"cloudsync/core/queue"
	"cloudsync/core/synctask"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Source is the queue side the workers consume.
type Source interface {
	Get(ctx context.Context) (synctask.Task, error)
	Ack(t synctask.Task)
	Requeue(t synctask.Task)
}

// Resolver finds the storages and event sink of a link.
type Resolver interface {
	Storage(linkID, storageID string) (backend.Storage, error)
	EventSink(linkID string) (backend.EventSink, error)
}

// Config holds the pool settings.
type Config struct {
	// Workers is the number of concurrent workers.
	Workers int
	// MaxRetries bounds attempts for CurrentlyNotPossible failures.
	MaxRetries int
	// WaitDelay is how long a worker waits before re-queueing a deferred task.
	WaitDelay time.Duration
	Backoff   Backoff
	Policy    Policy
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 5
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 10
	}
	if c.WaitDelay <= 0 {
		c.WaitDelay = 100 * time.Millisecond
	}
	if c.Backoff.Base == 0 {
		c.Backoff = DefaultBackoff()
	}
	return c
}

// Pool runs the workers.
type Pool struct {
	cfg      Config
	source   Source
	resolver Resolver
	notifier notify.Notifier
	logger   *zap.Logger

	mu     sync.Mutex
	group  *errgroup.Group
	cancel context.CancelFunc
}

// NewPool creates a pool; call Start to launch the workers.
func NewPool(cfg Config, source Source, resolver Resolver, notifier notify.Notifier, logger *zap.Logger) *Pool {
	return &Pool{
		cfg:      cfg.withDefaults(),
		source:   source,
		resolver: resolver,
		notifier: notifier,
		logger:   logger.Named("worker"),
	}
}

// Start launches the workers. They run until Stop is called, ctx ends or
// the queue is closed.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.group != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < p.cfg.Workers; i++ {
		id := i
		g.Go(func() error { return p.run(ctx, id) })
	}
	p.group, p.cancel = g, cancel
	p.logger.Info("Worker pool started", zap.Int("workers", p.cfg.Workers))
}

// Stop cancels the workers and waits for them to exit. Tasks being executed
// observe the cancellation at their next chunk boundary.
func (p *Pool) Stop() error {
	p.mu.Lock()
	g, cancel := p.group, p.cancel
	p.group, p.cancel = nil, nil
	p.mu.Unlock()

	if g == nil {
		return nil
	}
	cancel()
	return g.Wait()
}

func (p *Pool) run(ctx context.Context, id int) error {
	logger := p.logger.With(zap.Int("worker", id))
	for {
		t, err := p.source.Get(ctx)
		if err != nil {
			if errors.Is(err, queue.ErrClosed) || ctx.Err() != nil {
				logger.Debug("Worker stopped")
				return nil
			}
			return fmt.Errorf("worker %d: %w", id, err)
		}

		// A cancelled task is acked right away instead of waiting out its
		// retry delay.
		if b := t.Info(); !b.Cancelled() && time.Now().Before(b.ExecuteAfter) {
			select {
			case <-time.After(p.cfg.WaitDelay):
			case <-ctx.Done():
			}
			p.source.Requeue(t)
			continue
		}

		p.dispatch(ctx, t, logger)
	}
}

// dispatch executes t and acks it, or re-queues it for a retry.
func (p *Pool) dispatch(ctx context.Context, t synctask.Task, logger *zap.Logger) {
	b := t.Info()
	logger = logger.With(zap.String("task", t.DisplayName()), zap.String("id", b.ID))

	if b.Cancelled() {
		b.SetState(synctask.Cancelled)
		p.source.Ack(t)
		return
	}

	b.Tries++
	started := time.Now()
	err := p.execute(ctx, t)

	state, retry := p.classify(t, err, logger)
	if retry {
		delay := p.cfg.Backoff.Delay(b.Tries)
		b.ExecuteAfter = time.Now().Add(delay)
		logger.Info("Task currently not possible, retrying",
			zap.Int("tries", b.Tries),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		p.source.Requeue(t)
		return
	}

	b.SetState(state)
	logger.Debug("Task executed", zap.Stringer("state", state), zap.Duration("took", time.Since(started)))
	p.source.Ack(t)
}

// classify maps an execution error to a terminal state. retry is set when
// the task must run again instead.
func (p *Pool) classify(t synctask.Task, err error, logger *zap.Logger) (state synctask.State, retry bool) {
	if err == nil {
		return synctask.Successful, false
	}

	switch backend.CodeOf(err) {
	case backend.CodeCurrentlyNotPossible:
		if t.Info().Tries >= p.cfg.MaxRetries {
			logger.Warn("Task failed after retries", zap.Int("tries", t.Info().Tries), zap.Error(err))
			return synctask.CurrentlyNotPossible, false
		}
		return synctask.Unexecuted, true
	case backend.CodePolicy:
		logger.Info("Task blocked by policy", zap.Error(err))
		if p.notifier != nil {
			p.notifier.Notify(notify.Notification{
				Kind:        notify.KindPolicy,
				Title:       "Upload blocked",
				Description: err.Error(),
				LinkID:      t.Info().LinkID,
				Path:        t.Info().Path.String(),
			})
		}
		return synctask.Blocked, false
	case backend.CodeUnauthorized:
		logger.Warn("Authentication failed", zap.Error(err))
		return synctask.InvalidAuthentication, false
	case backend.CodeVersionMismatch:
		logger.Info("Version mismatch", zap.Error(err))
		return synctask.VersionIdMismatch, false
	case backend.CodeCancelled:
		logger.Debug("Task cancelled", zap.Error(err))
		return synctask.Cancelled, false
	case backend.CodeUnavailable:
		logger.Info("Storage unavailable", zap.Error(err))
		return synctask.NotAvailable, false
	case backend.CodeEncryptionRequired:
		return synctask.EncryptionActivationRequired, false
	case backend.CodeNotFound, backend.CodeInvalidOperation:
		logger.Info("Invalid operation", zap.Error(err))
		return synctask.InvalidOperation, false
	default:
		logger.Error("Unexpected error executing task", zap.Error(err))
		return synctask.InvalidOperation, false
	}
}
