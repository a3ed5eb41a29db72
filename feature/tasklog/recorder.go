package tasklog

import (
	"context"
	"time"

	"cloudsync/core/queue"
	"cloudsync/core/synctask"

	"go.uber.org/zap"
)

const bufferSize = 256

// Recorder writes acked tasks to the repository in the background, so
// workers never wait for the database.
type Recorder struct {
	repo    *Repository
	logger  *zap.Logger
	entries chan Entry
	now     func() time.Time
}

// NewRecorder creates a recorder; call Attach and Run to use it.
func NewRecorder(repo *Repository, logger *zap.Logger) *Recorder {
	return &Recorder{
		repo:    repo,
		logger:  logger.Named("tasklog"),
		entries: make(chan Entry, bufferSize),
		now:     time.Now,
	}
}

// Attach subscribes the recorder to acked tasks of q.
func (r *Recorder) Attach(q *queue.Queue) {
	q.OnAcked(r.Observe)
}

// Observe converts t to an entry. Entries are dropped while the buffer is
// full.
func (r *Recorder) Observe(t synctask.Task) {
	b := t.Info()
	e := Entry{
		TaskID:    b.ID,
		LinkID:    b.LinkID,
		Kind:      t.Kind().String(),
		Path:      b.Path.String(),
		Name:      t.DisplayName(),
		State:     b.State().String(),
		Tries:     b.Tries,
		CreatedAt: r.now(),
	}
	if c, ok := t.(synctask.CopyTask); ok {
		e.Bytes = c.Copy().BytesTransferred
	}

	select {
	case r.entries <- e:
	default:
		r.logger.Warn("Task log buffer full, dropping entry", zap.String("task", e.Name))
	}
}

// Run writes buffered entries until ctx ends, then flushes what is left.
func (r *Recorder) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			r.drain()
			return
		case e := <-r.entries:
			r.write(context.Background(), e)
		}
	}
}

func (r *Recorder) drain() {
	for {
		select {
		case e := <-r.entries:
			r.write(context.Background(), e)
		default:
			return
		}
	}
}

func (r *Recorder) write(ctx context.Context, e Entry) {
	if err := r.repo.Record(ctx, &e); err != nil {
		r.logger.Error("Failed to record task", zap.String("task", e.Name), zap.Error(err))
	}
}
