package worker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"cloudsync/core/backend"
	"cloudsync/core/synctask"
	"cloudsync/core/tree"
)

// memStorage is a minimal in-memory backend for worker tests.
type memStorage struct {
	id string

	mu       sync.Mutex
	files    map[string][]byte
	versions map[string]string
	dirs     map[string]bool
	writeErr error
	next     int
	started  int
	stopped  int
}

func newMemStorage(id string) *memStorage {
	return &memStorage{id: id, files: map[string][]byte{}, versions: map[string]string{}, dirs: map[string]bool{}}
}

func key(p []string) string { return strings.Join(p, "/") }

func (m *memStorage) put(p []string, content string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	v := fmt.Sprintf("%s-%d", m.id, m.next)
	m.files[key(p)] = []byte(content)
	m.versions[key(p)] = v
	return v
}

func (m *memStorage) ID() string { return m.id }

func (m *memStorage) OpenRead(ctx context.Context, p []string, expected string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.files[key(p)]
	if !ok {
		return nil, backend.E(backend.CodeNotFound, "read", p, nil)
	}
	if expected != "" && m.versions[key(p)] != expected {
		return nil, backend.E(backend.CodeVersionMismatch, "read", p, nil)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memStorage) Write(ctx context.Context, p []string, r io.Reader, original string, size int64) (string, error) {
	if m.writeErr != nil {
		return "", m.writeErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	current := m.versions[key(p)]
	m.mu.Unlock()
	if current != original {
		return "", backend.E(backend.CodeVersionMismatch, "write", p, nil)
	}
	return m.put(p, string(data)), nil
}

func (m *memStorage) Delete(ctx context.Context, p []string, original string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.files[key(p)]; !ok {
		return backend.E(backend.CodeNotFound, "delete", p, nil)
	}
	delete(m.files, key(p))
	delete(m.versions, key(p))
	return nil
}

func (m *memStorage) MakeDir(ctx context.Context, p []string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dirs[key(p)] = true
	return "is_dir", nil
}

func (m *memStorage) Move(ctx context.Context, src, dst []string, expectedSrc, expectedDst string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.files[key(src)]
	if !ok {
		return "", backend.E(backend.CodeNotFound, "move", src, nil)
	}
	if expectedSrc != "" && m.versions[key(src)] != expectedSrc {
		return "", backend.E(backend.CodeVersionMismatch, "move", src, nil)
	}
	m.files[key(dst)] = data
	m.versions[key(dst)] = m.versions[key(src)]
	delete(m.files, key(src))
	delete(m.versions, key(src))
	return m.versions[key(dst)], nil
}

func (m *memStorage) GetTree(ctx context.Context, cached bool) (*tree.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := &tree.Snapshot{}
	for k, v := range m.versions {
		s.Add(strings.Split(k, "/"), tree.StorageProps{VersionID: v, Size: int64(len(m.files[k]))})
	}
	return s, nil
}

func (m *memStorage) StartEvents(ctx context.Context, sink backend.EventSink) error {
	m.started++
	return nil
}

func (m *memStorage) StopEvents(join bool) error {
	m.stopped++
	return nil
}

type fakeResolver struct {
	storages map[string]backend.Storage
}

func (r *fakeResolver) Storage(linkID, storageID string) (backend.Storage, error) {
	s, ok := r.storages[storageID]
	if !ok {
		return nil, backend.E(backend.CodeUnavailable, "resolve", nil, fmt.Errorf("no storage %s", storageID))
	}
	return s, nil
}

func (r *fakeResolver) EventSink(linkID string) (backend.EventSink, error) {
	return nil, nil
}

// recordingSource captures acks and re-queues instead of running a queue.
type recordingSource struct {
	mu       sync.Mutex
	acked    []synctask.Task
	requeued []synctask.Task
}

func (s *recordingSource) Get(ctx context.Context) (synctask.Task, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (s *recordingSource) Ack(t synctask.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.acked = append(s.acked, t)
}

func (s *recordingSource) Requeue(t synctask.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requeued = append(s.requeued, t)
}
