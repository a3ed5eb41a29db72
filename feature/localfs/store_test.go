package localfs

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"cloudsync/core/backend"
	"cloudsync/core/tree"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingSink struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingSink) add(kind string, p []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, kind+" "+strings.Join(p, "/"))
}

func (r *recordingSink) has(event string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Contains(r.events, event)
}

func (r *recordingSink) StorageCreate(_ string, p []string, _ tree.Update) error {
	r.add("create", p)
	return nil
}

func (r *recordingSink) StorageModify(_ string, p []string, _ tree.Update) error {
	r.add("modify", p)
	return nil
}

func (r *recordingSink) StorageDelete(_ string, p []string) { r.add("delete", p) }

func (r *recordingSink) StorageMove(_ string, _, p []string, _ tree.Update) error {
	r.add("move", p)
	return nil
}

func (r *recordingSink) StorageOnline(string)  {}
func (r *recordingSink) StorageOffline(string) {}

func TestNew_CreatesRoot(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "sync")
	s, err := New(dir, zap.NewNop())
	require.NoError(t, err)

	assert.Equal(t, backend.LocalStorageID, s.ID())
	assert.Equal(t, dir, s.Root())
	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestStore_WriteAndGetTree(t *testing.T) {
	s, err := New(t.TempDir(), zap.NewNop())
	require.NoError(t, err)
	ctx := context.Background()

	v, err := s.Write(ctx, []string{"docs", "a.txt"}, strings.NewReader("hello"), "", 5)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(s.Root(), "docs", "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	snap, err := s.GetTree(ctx, true)
	require.NoError(t, err)
	items := snap.Index()
	require.Contains(t, items, "docs/a.txt")
	assert.Equal(t, v, items["docs/a.txt"].Props.VersionID)
}

func TestStore_Events(t *testing.T) {
	s, err := New(t.TempDir(), zap.NewNop())
	require.NoError(t, err)
	ctx := context.Background()
	sink := &recordingSink{}

	require.NoError(t, s.StartEvents(ctx, sink))
	defer s.StopEvents(true)
	assert.Error(t, s.StartEvents(ctx, sink))

	require.NoError(t, os.WriteFile(filepath.Join(s.Root(), "a.txt"), []byte("x"), 0o644))
	assert.Eventually(t, func() bool { return sink.has("create a.txt") }, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, os.Mkdir(filepath.Join(s.Root(), "sub"), 0o755))
	assert.Eventually(t, func() bool { return sink.has("create sub") }, 5*time.Second, 10*time.Millisecond)

	// The new directory is watched as well.
	require.NoError(t, os.WriteFile(filepath.Join(s.Root(), "sub", "b.txt"), []byte("y"), 0o644))
	assert.Eventually(t, func() bool { return sink.has("create sub/b.txt") }, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, os.Remove(filepath.Join(s.Root(), "a.txt")))
	assert.Eventually(t, func() bool { return sink.has("delete a.txt") }, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, s.StopEvents(true))
	require.NoError(t, s.StopEvents(true))
}

func TestStore_Relative(t *testing.T) {
	s := &Store{root: "/data/sync"}

	tests := []struct {
		name string
		in   string
		want []string
		ok   bool
	}{
		{"Nested", "/data/sync/docs/a.txt", []string{"docs", "a.txt"}, true},
		{"Root", "/data/sync", nil, false},
		{"Outside", "/data/other/a.txt", nil, false},
		{"Dot prefixed sibling", "/data/sync/..hidden", []string{"..hidden"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := s.relative(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
