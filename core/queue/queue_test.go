package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"cloudsync/core/synctask"
	"cloudsync/core/tree"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const link = "local::csp"

type ackLog struct {
	mu    sync.Mutex
	tasks []synctask.Task
}

func (l *ackLog) record(t synctask.Task) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tasks = append(l.tasks, t)
}

func (l *ackLog) kinds() []synctask.Kind {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []synctask.Kind
	for _, t := range l.tasks {
		out = append(out, t.Kind())
	}
	return out
}

func newDelete(log *ackLog, path ...string) *synctask.DeleteTask {
	t := synctask.NewDelete(link, tree.Path(path), "csp", path, "1")
	t.SetAckFunc(log.record)
	return t
}

func newCancel(log *ackLog, path ...string) *synctask.CancelTask {
	t := synctask.NewCancel(link, tree.Path(path))
	t.SetAckFunc(log.record)
	return t
}

func TestQueue_FIFO(t *testing.T) {
	q := New(zap.NewNop())
	log := &ackLog{}
	first := newDelete(log, "a")
	second := newDelete(log, "b")
	q.Put(first)
	q.Put(second)

	ctx := context.Background()
	got, err := q.Get(ctx)
	require.NoError(t, err)
	assert.Same(t, first, got)
	got, err = q.Get(ctx)
	require.NoError(t, err)
	assert.Same(t, second, got)

	assert.Equal(t, Stats{Pending: 0, Running: 2}, q.Stats())
}

func TestQueue_GetBlocksUntilPut(t *testing.T) {
	q := New(zap.NewNop())
	task := newDelete(&ackLog{}, "a")

	result := make(chan synctask.Task, 1)
	go func() {
		got, err := q.Get(context.Background())
		if err == nil {
			result <- got
		}
	}()

	time.Sleep(20 * time.Millisecond)
	q.Put(task)

	select {
	case got := <-result:
		assert.Same(t, task, got)
	case <-time.After(time.Second):
		t.Fatal("Get did not return after Put")
	}
}

func TestQueue_GetHonoursContextAndClose(t *testing.T) {
	q := New(zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := q.Get(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	q.Close()
	q.Close()
	_, err = q.Get(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestQueue_CancelWithoutMatchesAcksImmediately(t *testing.T) {
	q := New(zap.NewNop())
	log := &ackLog{}
	q.Put(newDelete(log, "other"))

	cancel := newCancel(log, "a")
	q.Put(cancel)

	assert.Equal(t, synctask.Successful, cancel.State())
	assert.Equal(t, []synctask.Kind{synctask.KindCancel}, log.kinds())
	assert.Equal(t, 0, q.Stats().Cancels)
}

func TestQueue_CancelCompleteness(t *testing.T) {
	q := New(zap.NewNop())
	log := &ackLog{}
	running := newDelete(log, "a")
	pending := newDelete(log, "a")
	q.Put(running)

	got, err := q.Get(context.Background())
	require.NoError(t, err)
	require.Same(t, running, got)
	q.Put(pending)

	cancel := newCancel(log, "a")
	q.Put(cancel)

	assert.True(t, running.Cancelled())
	assert.True(t, pending.Cancelled())
	assert.Equal(t, 1, q.Stats().Cancels)
	assert.Empty(t, log.kinds(), "cancel must wait for running and pending tasks")

	running.SetState(synctask.Cancelled)
	q.Ack(running)
	assert.Equal(t, synctask.Unexecuted, cancel.State(), "pending task still holds the key")

	got, err = q.Get(context.Background())
	require.NoError(t, err)
	require.Same(t, pending, got)
	got.Info().SetState(synctask.Cancelled)
	q.Ack(got)

	assert.Equal(t, synctask.Successful, cancel.State())
	assert.Equal(t, []synctask.Kind{synctask.KindDelete, synctask.KindDelete, synctask.KindCancel}, log.kinds())
	assert.Equal(t, Stats{}, q.Stats())
}

func TestQueue_DuplicateCancelAckedTogether(t *testing.T) {
	q := New(zap.NewNop())
	log := &ackLog{}
	task := newDelete(log, "a")
	q.Put(task)

	first := newCancel(log, "a")
	second := newCancel(log, "a")
	third := newCancel(log, "a")
	q.Put(first)
	q.Put(second)
	q.Put(third)
	assert.Empty(t, log.kinds())
	assert.Equal(t, Stats{Pending: 1, Cancels: 1}, q.Stats())
	require.Contains(t, q.cancels, synctask.KeyFor(link, tree.Path{"a"}))
	assert.Same(t, first, q.cancels[synctask.KeyFor(link, tree.Path{"a"})].cancel)

	got, err := q.Get(context.Background())
	require.NoError(t, err)
	q.Ack(got)

	for _, c := range []*synctask.CancelTask{first, second, third} {
		assert.Equal(t, synctask.Successful, c.State())
		assert.True(t, c.Acked())
	}
	assert.Equal(t, []synctask.Kind{
		synctask.KindDelete, synctask.KindCancel, synctask.KindCancel, synctask.KindCancel,
	}, log.kinds(), "each cancel is acked exactly once")
	assert.Equal(t, Stats{}, q.Stats())
}

func TestQueue_AckRewritesBlocked(t *testing.T) {
	q := New(zap.NewNop())
	log := &ackLog{}
	task := newDelete(log, "a")
	q.Put(task)
	got, _ := q.Get(context.Background())

	got.Info().SetState(synctask.Blocked)
	q.Ack(got)

	assert.Equal(t, synctask.InvalidOperation, task.State())
}

func TestQueue_Signals(t *testing.T) {
	q := New(zap.NewNop())
	var order []string
	q.OnSubmitted(func(t synctask.Task) { order = append(order, "submitted:"+t.Kind().String()) })
	q.OnAcked(func(t synctask.Task) { order = append(order, "acked:"+t.Kind().String()) })

	task := synctask.NewDelete(link, tree.Path{"a"}, "csp", []string{"a"}, "")
	task.SetAckFunc(func(synctask.Task) { order = append(order, "callback") })
	q.Put(task)
	got, _ := q.Get(context.Background())
	q.Ack(got)

	assert.Equal(t, []string{"submitted:delete", "callback", "acked:delete"}, order)
}

func TestQueue_Requeue(t *testing.T) {
	q := New(zap.NewNop())
	log := &ackLog{}
	a := newDelete(log, "a")
	b := newDelete(log, "b")
	q.Put(a)
	q.Put(b)

	got, _ := q.Get(context.Background())
	require.Same(t, a, got)
	q.Requeue(got)
	assert.Equal(t, Stats{Pending: 2, Running: 0}, q.Stats())

	got, _ = q.Get(context.Background())
	assert.Same(t, b, got)
}

func TestQueue_PathHasTasks(t *testing.T) {
	q := New(zap.NewNop())
	log := &ackLog{}
	q.Put(newDelete(log, "dir", "inner.txt"))

	tests := []struct {
		name  string
		path  string
		isDir bool
		want  bool
	}{
		{"Exact file", "dir/inner.txt", false, true},
		{"Directory prefix", "dir", true, true},
		{"Directory as file", "dir", false, false},
		{"Sibling prefix", "di", true, false},
		{"Unrelated", "other", true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := synctask.Key{LinkID: link, Path: tt.path}
			assert.Equal(t, tt.want, q.PathHasTasks(key, tt.isDir))
		})
	}
}
