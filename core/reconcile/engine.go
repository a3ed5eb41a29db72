package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	cslog "cloudsync/core/logger"
	"cloudsync/core/notify"
	"cloudsync/core/synctask"
	"cloudsync/core/tree"

	"go.uber.org/zap"
)

var (
	// ErrStopped is returned by calls into an engine whose loop has ended.
	ErrStopped = errors.New("sync engine stopped")

	// ErrWrongState is returned by lifecycle calls that do not apply to the
	// current engine state.
	ErrWrongState = errors.New("sync engine in wrong state")

	// ErrNodeNotFound is returned by queries for unknown paths.
	ErrNodeNotFound = errors.New("node not found")
)

// State is the lifecycle state of an engine.
type State int32

const (
	// Stopped engines update the tree but do not drive the state machine.
	Stopped State = iota
	// StateSync is the initial fetch of both storage trees.
	StateSync
	// Running engines react to every event.
	Running
	// Offline engines wait for the remote storage to come back.
	Offline
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case StateSync:
		return "state_sync"
	case Running:
		return "running"
	case Offline:
		return "offline"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// TaskSink receives the tasks an engine issues.
type TaskSink func(synctask.Task)

// PropsChange is published when the properties a storage reports for a
// node changed. Before is nil for a new entry.
type PropsChange struct {
	StorageID string
	Path      tree.Path
	Before    *tree.StorageProps
	After     *tree.StorageProps
}

// Config holds the settings of one engine.
type Config struct {
	// LinkID identifies the link in task keys and logs.
	LinkID string
	// RemoteID is the storage paired with the local filesystem.
	RemoteID string
	// Model seeds the tree with persisted desired storages and equivalents.
	Model *tree.Model
	// SlowHandler is the handler duration that gets logged. Default 80ms.
	SlowHandler time.Duration
	// PriorityLane is the capacity of the priority lane. Default 16.
	PriorityLane int
}

// Engine is the single writer of a link's namespace tree.
type Engine struct {
	linkID   string
	remoteID string
	tree     *tree.Tree
	sink     TaskSink
	notifier notify.Notifier
	logger   *zap.Logger
	slow     time.Duration

	state atomic.Int32

	localFetched  bool
	remoteFetched bool

	mu             sync.Mutex
	propsObservers []func(PropsChange)

	inbox    *mailbox
	priority chan message
	stop     chan struct{}
	done     chan struct{}
	started  atomic.Bool
	stopOnce sync.Once
}

// NewEngine creates a stopped engine. Call Start to run its loop.
func NewEngine(cfg Config, sink TaskSink, notifier notify.Notifier, logger *zap.Logger) *Engine {
	if cfg.SlowHandler <= 0 {
		cfg.SlowHandler = 80 * time.Millisecond
	}
	if cfg.PriorityLane <= 0 {
		cfg.PriorityLane = 16
	}

	t := tree.New()
	if cfg.Model != nil {
		t = tree.Import(*cfg.Model)
	}

	return &Engine{
		linkID:   cfg.LinkID,
		remoteID: cfg.RemoteID,
		tree:     t,
		sink:     sink,
		notifier: notifier,
		logger:   cslog.ForLink(logger, "engine", cfg.LinkID),
		slow:     cfg.SlowHandler,
		inbox:    newMailbox(),
		priority: make(chan message, cfg.PriorityLane),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// LinkID returns the link the engine serves.
func (e *Engine) LinkID() string { return e.linkID }

// RemoteID returns the remote storage of the link.
func (e *Engine) RemoteID() string { return e.remoteID }

// State returns the lifecycle state.
func (e *Engine) State() State { return State(e.state.Load()) }

func (e *Engine) setState(s State) {
	if old := State(e.state.Swap(int32(s))); old != s {
		e.logger.Info("Engine state changed", zap.Stringer("from", old), zap.Stringer("to", s))
	}
}

// OnPropsChanged registers an observer for property changes. Observers run
// on the engine goroutine in registration order and must not block or call
// back into the engine synchronously.
func (e *Engine) OnPropsChanged(fn func(PropsChange)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.propsObservers = append(e.propsObservers, fn)
}

// Start runs the engine loop until Stop is called or ctx ends.
func (e *Engine) Start(ctx context.Context) {
	if !e.started.CompareAndSwap(false, true) {
		return
	}
	go e.loop(ctx)
}

// Stop ends the loop and waits for the running handler to return. Pending
// messages are dropped.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		close(e.stop)
		e.inbox.close()
	})
	if e.started.Load() {
		<-e.done
	}
}

// Flush waits until every message posted before the call was handled.
func (e *Engine) Flush(ctx context.Context) error {
	return e.call(ctx, "flush", func() error { return nil })
}

func (e *Engine) loop(ctx context.Context) {
	defer close(e.done)
	e.logger.Debug("Engine loop started")

	for {
		select {
		case <-e.stop:
			return
		case <-ctx.Done():
			return
		case msg := <-e.priority:
			e.handle(msg)
			continue
		default:
		}

		if msg, ok := e.inbox.pop(); ok {
			e.handle(msg)
			continue
		}

		select {
		case msg := <-e.priority:
			e.handle(msg)
		case <-e.inbox.wake:
		case <-e.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// handle runs one message. A panicking handler is logged and does not stop
// the loop.
func (e *Engine) handle(msg message) {
	started := time.Now()
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Engine handler panicked",
				zap.String("message", msg.name),
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
		}
		if took := time.Since(started); took > e.slow {
			e.logger.Info("Slow engine handler",
				zap.String("message", msg.name),
				zap.Duration("took", took),
				zap.Int("backlog", e.inbox.size()),
			)
		}
	}()
	msg.fn()
}

// post queues fn without waiting for it.
func (e *Engine) post(name string, fn func()) {
	if !e.inbox.push(message{name: name, fn: fn}) {
		e.logger.Debug("Dropping message for stopped engine", zap.String("message", name))
	}
}

// call queues fn and waits for its result.
func (e *Engine) call(ctx context.Context, name string, fn func() error) error {
	res := make(chan error, 1)
	if !e.inbox.push(message{name: name, fn: reply(name, fn, res)}) {
		return ErrStopped
	}
	return e.wait(ctx, res)
}

// callPriority runs fn through the priority lane, ahead of queued messages.
func (e *Engine) callPriority(ctx context.Context, name string, fn func() error) error {
	res := make(chan error, 1)
	select {
	case e.priority <- message{name: name, fn: reply(name, fn, res)}:
	case <-e.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	return e.wait(ctx, res)
}

// reply wraps fn so that its result, or a panic, is delivered to res.
func reply(name string, fn func() error, res chan<- error) func() {
	return func() {
		err := fmt.Errorf("%s: handler panicked", name)
		defer func() { res <- err }()
		err = fn()
	}
}

func (e *Engine) wait(ctx context.Context, res <-chan error) error {
	select {
	case err := <-res:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-e.done:
		select {
		case err := <-res:
			return err
		default:
			return ErrStopped
		}
	}
}

// issue hands a task to the sink.
func (e *Engine) issue(t synctask.Task) {
	e.logger.Debug("Issuing task", zap.String("task", t.DisplayName()), zap.String("id", t.Info().ID))
	e.sink(t)
}

func (e *Engine) notify(n notify.Notification) {
	if e.notifier == nil {
		return
	}
	n.LinkID = e.linkID
	e.notifier.Notify(n)
}

func (e *Engine) publish(change PropsChange) {
	e.mu.Lock()
	observers := e.propsObservers
	e.mu.Unlock()
	for _, fn := range observers {
		fn(change)
	}
}

// fireLogged fires t on n and logs a failure instead of returning it, so
// one node can not stop the processing of others.
func (e *Engine) fireLogged(n *tree.Node, t trigger) {
	if err := e.fire(n, t); err != nil {
		e.logger.Error("State machine error", zap.Stringer("path", n.Path()), zap.Error(err))
	}
}
