package reconcile

import (
	"context"
	"sync"
	"testing"
	"time"

	"cloudsync/core/backend"
	"cloudsync/core/notify"
	"cloudsync/core/synctask"
	"cloudsync/core/tree"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	testLink   = "local::csp"
	testRemote = "csp"
	local      = backend.LocalStorageID
)

var modified = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type recorder struct {
	mu    sync.Mutex
	tasks []synctask.Task
	notes []notify.Notification
}

func (r *recorder) sink(t synctask.Task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks = append(r.tasks, t)
}

func (r *recorder) Notify(n notify.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, n)
}

// take returns and forgets the recorded tasks.
func (r *recorder) take() []synctask.Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.tasks
	r.tasks = nil
	return out
}

func (r *recorder) notifications() []notify.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notify.Notification{}, r.notes...)
}

func props(version string, dir bool) tree.StorageProps {
	return tree.StorageProps{VersionID: version, IsDir: dir, Size: 1, ModifiedDate: modified}
}

func update(version string, dir bool) tree.Update {
	return tree.UpdateFrom(props(version, dir))
}

type item struct {
	path    []string
	version string
	dir     bool
}

func file(version string, path ...string) item { return item{path: path, version: version} }
func dir(path ...string) item                   { return item{path: path, version: "is_dir", dir: true} }

func snapshot(items ...item) *tree.Snapshot {
	s := &tree.Snapshot{}
	for _, it := range items {
		s.Add(it.path, props(it.version, it.dir))
	}
	return s
}

// newTestEngine returns an engine that is not started; handlers can be
// called directly from the test goroutine.
func newTestEngine(model *tree.Model) (*Engine, *recorder) {
	rec := &recorder{}
	e := NewEngine(Config{LinkID: testLink, RemoteID: testRemote, Model: model}, rec.sink, rec, zap.NewNop())
	return e, rec
}

// startEngine starts an engine, runs the state sync with the given
// listings and returns the tasks the state sync issued.
func startEngine(t *testing.T, model *tree.Model, localSnap, remoteSnap *tree.Snapshot) (*Engine, *recorder, []synctask.Task) {
	t.Helper()
	e, rec := newTestEngine(model)
	ctx, cancel := context.WithCancel(context.Background())
	e.Start(ctx)
	t.Cleanup(func() {
		cancel()
		e.Stop()
	})

	require.NoError(t, e.Init(ctx))
	require.Equal(t, StateSync, e.State())

	fetch := only[*synctask.FetchTreeTask](t, rec.take())
	require.Equal(t, testRemote, fetch.StorageID)
	fetch.Tree = remoteSnap
	ackWith(t, e, fetch, synctask.Successful)

	fetch = only[*synctask.FetchTreeTask](t, rec.take())
	require.Equal(t, local, fetch.StorageID)
	fetch.Tree = localSnap
	ackWith(t, e, fetch, synctask.Successful)

	require.Equal(t, Running, e.State())
	return e, rec, rec.take()
}

// ackWith finishes t with state and waits until the engine handled it.
func ackWith(t *testing.T, e *Engine, task synctask.Task, state synctask.State) {
	t.Helper()
	task.Info().SetState(state)
	e.AckTask(task)
	flush(t, e)
}

func flush(t *testing.T, e *Engine) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, e.Flush(ctx))
}

// only asserts that tasks holds exactly one task of type T.
func only[T synctask.Task](t *testing.T, tasks []synctask.Task) T {
	t.Helper()
	require.Len(t, tasks, 1, "tasks: %v", names(tasks))
	task, ok := tasks[0].(T)
	require.True(t, ok, "unexpected task %s", tasks[0].DisplayName())
	return task
}

func names(tasks []synctask.Task) []string {
	out := make([]string, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, t.DisplayName())
	}
	return out
}

// node returns the node at the display path, failing the test if missing.
func node(t *testing.T, e *Engine, path ...string) *tree.Node {
	t.Helper()
	n, ok := e.tree.Get(tree.Normalize(path))
	require.True(t, ok, "node %v missing", path)
	return n
}

// seed adds a storage entry directly to the tree of an engine that is not
// started.
func seed(t *testing.T, e *Engine, storageID string, it item) *tree.Node {
	t.Helper()
	p := tree.Normalize(it.path)
	n := e.tree.GetOrCreate(p)
	e.tree.SetDisplayNames(storageID, p, it.path)
	_, err := n.UpdateStorageProps(storageID, update(it.version, it.dir))
	require.NoError(t, err)
	return n
}

// synced builds a model in which every path is known to be equal on local
// and the remote.
func synced(items ...item) *tree.Model {
	m := &tree.Model{}
	for _, it := range items {
		m.Nodes = append(m.Nodes, tree.PersistedNode{
			Path:    it.path,
			Desired: []string{testRemote, local},
			New:     map[string]string{local: it.version, testRemote: it.version},
		})
	}
	return m
}
