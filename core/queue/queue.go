package queue

import (
	"context"
	"errors"
	"sync"

	"cloudsync/core/synctask"
	"cloudsync/core/tree"

	"go.uber.org/zap"
)

// ErrClosed is returned by Get once the queue was closed.
var ErrClosed = errors.New("task queue closed")

// Observer receives queue signals.
type Observer func(synctask.Task)

// Stats is a point-in-time view of the queue.
type Stats struct {
	Pending int `json:"pending"`
	Running int `json:"running"`
	Cancels int `json:"cancels"`
}

// Queue is safe for concurrent use by the engine and any number of workers.
type Queue struct {
	mu      sync.Mutex
	pending []synctask.Task
	index   map[synctask.Key][]synctask.Task
	running map[synctask.Task]struct{}
	cancels map[synctask.Key]*cancelWait
	closed  bool

	wake chan struct{}
	done chan struct{}

	submitted []Observer
	acked     []Observer

	logger *zap.Logger
}

// New creates an empty queue.
func New(logger *zap.Logger) *Queue {
	return &Queue{
		index:   make(map[synctask.Key][]synctask.Task),
		running: make(map[synctask.Task]struct{}),
		cancels: make(map[synctask.Key]*cancelWait),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		logger:  logger.Named("queue"),
	}
}

// cancelWait is the single outstanding Cancel for a key. Duplicates do not
// enter the registry on their own; they are acked together with it.
type cancelWait struct {
	cancel *synctask.CancelTask
	joined []*synctask.CancelTask
}

func (w *cancelWait) all() []*synctask.CancelTask {
	return append([]*synctask.CancelTask{w.cancel}, w.joined...)
}

// OnSubmitted registers an observer for enqueued tasks.
func (q *Queue) OnSubmitted(fn Observer) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.submitted = append(q.submitted, fn)
}

// OnAcked registers an observer for acked tasks.
func (q *Queue) OnAcked(fn Observer) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.acked = append(q.acked, fn)
}

// Put admits a task. CancelTasks trigger the cancellation protocol.
func (q *Queue) Put(t synctask.Task) {
	if c, ok := t.(*synctask.CancelTask); ok {
		q.putCancel(c)
		return
	}

	q.mu.Lock()
	q.enqueue(t)
	observers := q.submitted
	q.mu.Unlock()

	q.signal()
	q.logger.Debug("Task submitted", zap.String("task", t.DisplayName()), zap.String("id", t.Info().ID))
	for _, fn := range observers {
		fn(t)
	}
}

func (q *Queue) putCancel(c *synctask.CancelTask) {
	key := c.Key()

	q.mu.Lock()
	matched := 0
	for t := range q.running {
		if t.Info().Key() == key {
			t.Info().Cancel()
			matched++
		}
	}
	for _, t := range q.index[key] {
		t.Info().Cancel()
		matched++
	}
	w, outstanding := q.cancels[key]
	switch {
	case outstanding:
		w.joined = append(w.joined, c)
	case matched > 0:
		q.cancels[key] = &cancelWait{cancel: c}
	}
	q.mu.Unlock()

	q.logger.Debug("Cancel submitted",
		zap.String("path", c.Path.String()),
		zap.Int("matched", matched),
		zap.Bool("duplicate", outstanding),
	)
	if !outstanding && matched == 0 {
		q.finishCancels([]*synctask.CancelTask{c})
	}
}

// Get blocks until a task is pending, ctx ends or the queue is closed. The
// returned task is moved into the running set.
func (q *Queue) Get(ctx context.Context) (synctask.Task, error) {
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return nil, ErrClosed
		}
		if len(q.pending) > 0 {
			t := q.pending[0]
			q.pending[0] = nil
			q.pending = q.pending[1:]
			q.unindex(t)
			q.running[t] = struct{}{}
			more := len(q.pending) > 0
			q.mu.Unlock()

			if more {
				q.signal()
			}
			return t, nil
		}
		q.mu.Unlock()

		select {
		case <-q.wake:
		case <-q.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Requeue moves a running task back to the end of the pending queue. Used
// for tasks whose ExecuteAfter lies in the future.
func (q *Queue) Requeue(t synctask.Task) {
	q.mu.Lock()
	delete(q.running, t)
	q.enqueue(t)
	q.mu.Unlock()
	q.signal()
}

// Ack finishes a task: a Blocked state becomes InvalidOperation, the ack
// callback and the acked observers run, and a Cancel waiting for the key is
// acked once no task with that key is left.
func (q *Queue) Ack(t synctask.Task) {
	b := t.Info()
	if b.State() == synctask.Blocked {
		b.SetState(synctask.InvalidOperation)
	}

	q.mu.Lock()
	observers := q.acked
	q.mu.Unlock()

	// The task counts as running until its callback returned, so a Cancel
	// is never acked ahead of it.
	synctask.Ack(t)
	for _, fn := range observers {
		fn(t)
	}

	key := b.Key()
	q.mu.Lock()
	delete(q.running, t)
	var ready []*synctask.CancelTask
	if w, ok := q.cancels[key]; ok && !q.hasKey(key) {
		ready = w.all()
		delete(q.cancels, key)
	}
	q.mu.Unlock()

	q.logger.Debug("Task acked",
		zap.String("task", t.DisplayName()),
		zap.String("id", b.ID),
		zap.Stringer("state", b.State()),
	)
	if len(ready) > 0 {
		q.finishCancels(ready)
	}
}

func (q *Queue) finishCancels(cancels []*synctask.CancelTask) {
	q.mu.Lock()
	observers := q.acked
	q.mu.Unlock()

	for _, c := range cancels {
		c.SetState(synctask.Successful)
		synctask.Ack(c)
		for _, fn := range observers {
			fn(c)
		}
	}
}

// PathHasTasks reports whether a task for key is pending or running. For
// directories every task below the path counts as well.
func (q *Queue) PathHasTasks(key synctask.Key, isDir bool) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !isDir {
		return q.hasKey(key)
	}
	prefix := tree.ParseKey(key.Path)
	covers := func(t synctask.Task) bool {
		b := t.Info()
		return b.LinkID == key.LinkID && b.Path.HasPrefix(prefix)
	}
	for _, t := range q.pending {
		if covers(t) {
			return true
		}
	}
	for t := range q.running {
		if covers(t) {
			return true
		}
	}
	return false
}

// Stats returns queue counters.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Stats{Pending: len(q.pending), Running: len(q.running), Cancels: len(q.cancels)}
}

// Close wakes every blocked Get, which then returns ErrClosed.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.done)
}

func (q *Queue) enqueue(t synctask.Task) {
	q.pending = append(q.pending, t)
	key := t.Info().Key()
	q.index[key] = append(q.index[key], t)
}

func (q *Queue) unindex(t synctask.Task) {
	key := t.Info().Key()
	tasks := q.index[key]
	for i, candidate := range tasks {
		if candidate == t {
			tasks = append(tasks[:i], tasks[i+1:]...)
			break
		}
	}
	if len(tasks) == 0 {
		delete(q.index, key)
	} else {
		q.index[key] = tasks
	}
}

// hasKey must be called with mu held.
func (q *Queue) hasKey(key synctask.Key) bool {
	if len(q.index[key]) > 0 {
		return true
	}
	for t := range q.running {
		if t.Info().Key() == key {
			return true
		}
	}
	return false
}

func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}
