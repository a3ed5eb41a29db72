package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"testing"

	"cloudsync/core/tree"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestError_IsAndCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Code
	}{
		{"Direct", E(CodeNotFound, "read", []string{"a"}, nil), CodeNotFound},
		{"Wrapped", fmt.Errorf("upload: %w", E(CodeUnauthorized, "write", nil, errors.New("token expired"))), CodeUnauthorized},
		{"Context cancellation", fmt.Errorf("copy: %w", context.Canceled), CodeCancelled},
		{"Unclassified", errors.New("boom"), ""},
		{"Nil", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CodeOf(tt.err))
		})
	}

	err := fmt.Errorf("x: %w", E(CodeVersionMismatch, "write", []string{"a", "b.txt"}, errors.New("etag changed")))
	assert.ErrorIs(t, err, ErrVersionMismatch)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Equal(t, "x: write /a/b.txt version_mismatch: etag changed", err.Error())
	assert.True(t, CodeCurrentlyNotPossible.Retryable())
	assert.False(t, CodeNotFound.Retryable())
}

func TestFromOS(t *testing.T) {
	_, statErr := os.Stat(t.TempDir() + "/missing")

	tests := []struct {
		name string
		err  error
		want Code
	}{
		{"Missing file", statErr, CodeNotFound},
		{"Permission", fmt.Errorf("open: %w", os.ErrPermission), CodeInvalidOperation},
		{"Already classified", E(CodePolicy, "write", nil, nil), CodePolicy},
		{"Cancelled", context.Canceled, CodeCancelled},
		{"Short read", io.ErrUnexpectedEOF, CodeCurrentlyNotPossible},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CodeOf(FromOS("read", []string{"a"}, tt.err)))
		})
	}
	assert.NoError(t, FromOS("read", nil, nil))
}

type recordingSink struct {
	events []string
}

func (s *recordingSink) StorageCreate(id string, p []string, _ tree.Update) error {
	s.events = append(s.events, "create "+tree.Normalize(p).Key())
	return nil
}

func (s *recordingSink) StorageModify(id string, p []string, _ tree.Update) error {
	s.events = append(s.events, "modify "+tree.Normalize(p).Key())
	return nil
}

func (s *recordingSink) StorageDelete(id string, p []string) {
	s.events = append(s.events, "delete "+tree.Normalize(p).Key())
}

func (s *recordingSink) StorageMove(id string, src, dst []string, _ tree.Update) error {
	s.events = append(s.events, "move")
	return nil
}

func (s *recordingSink) StorageOnline(id string)  { s.events = append(s.events, "online") }
func (s *recordingSink) StorageOffline(id string) { s.events = append(s.events, "offline") }

func TestPoller_Poll(t *testing.T) {
	var listings []*tree.Snapshot
	var failures []error
	list := func(ctx context.Context) (*tree.Snapshot, error) {
		if len(failures) > 0 {
			err := failures[0]
			failures = failures[1:]
			return nil, err
		}
		s := listings[0]
		listings = listings[1:]
		return s, nil
	}

	base := &tree.Snapshot{}
	base.Add([]string{"a.txt"}, tree.StorageProps{VersionID: "1"})
	next := &tree.Snapshot{}
	next.Add([]string{"a.txt"}, tree.StorageProps{VersionID: "2"})
	next.Add([]string{"b.txt"}, tree.StorageProps{VersionID: "1"})

	p := NewPoller("csp", 0, list, zap.NewNop())
	p.Seed(base)
	sink := &recordingSink{}

	failures = []error{E(CodeUnavailable, "list", nil, errors.New("dial tcp"))}
	require.Error(t, p.Poll(context.Background(), sink))
	assert.Equal(t, []string{"offline"}, sink.events)

	listings = []*tree.Snapshot{next}
	require.NoError(t, p.Poll(context.Background(), sink))
	assert.Equal(t, []string{"offline", "online", "modify a.txt", "create b.txt"}, sink.events)
	assert.Same(t, next, p.Last())
}

func TestPoller_StartStop(t *testing.T) {
	p := NewPoller("csp", 0, func(ctx context.Context) (*tree.Snapshot, error) {
		return &tree.Snapshot{}, nil
	}, zap.NewNop())

	require.NoError(t, p.Start(context.Background(), &recordingSink{}))
	assert.Error(t, p.Start(context.Background(), &recordingSink{}))
	assert.NoError(t, p.Stop(true))
	assert.NoError(t, p.Stop(true))
}
