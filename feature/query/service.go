package query

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloudsync/core/link"
	"cloudsync/core/queue"
	"cloudsync/core/reconcile"
	"cloudsync/core/tree"

	"go.uber.org/zap"
)

// ErrLinkNotFound is returned for unknown link IDs.
var ErrLinkNotFound = errors.New("link not found")

// Links is the part of the link graph the query API reads.
type Links interface {
	Links() []*link.Link
	Link(id string) (*link.Link, bool)
}

// LinkSummary describes one link.
type LinkSummary struct {
	ID       string `json:"id"`
	LocalID  string `json:"local_id"`
	RemoteID string `json:"remote_id"`
	State    string `json:"state"`
}

// Service answers read-only questions about the links.
type Service struct {
	links  Links
	queue  *queue.Queue
	logger *zap.Logger
}

// NewService creates a new query service.
func NewService(links Links, q *queue.Queue, logger *zap.Logger) *Service {
	return &Service{links: links, queue: q, logger: logger}
}

// ListLinks returns every link with its engine state.
func (s *Service) ListLinks() []LinkSummary {
	links := s.links.Links()
	out := make([]LinkSummary, 0, len(links))
	for _, l := range links {
		out = append(out, LinkSummary{
			ID:       l.ID(),
			LocalID:  l.Local().ID(),
			RemoteID: l.Remote().ID(),
			State:    l.Engine().State().String(),
		})
	}
	return out
}

// QueueStats returns the task queue depth.
func (s *Service) QueueStats() queue.Stats {
	return s.queue.Stats()
}

// Node returns the node at path of a link.
func (s *Service) Node(ctx context.Context, linkID, path string) (tree.View, error) {
	e, err := s.engine(linkID)
	if err != nil {
		return tree.View{}, err
	}
	return e.Query(ctx, SplitPath(path))
}

// Nodes returns every node of a link.
func (s *Service) Nodes(ctx context.Context, linkID string) ([]tree.View, error) {
	e, err := s.engine(linkID)
	if err != nil {
		return nil, err
	}
	return e.Nodes(ctx)
}

// StoragePath returns the display path of an item on each remote storage.
func (s *Service) StoragePath(ctx context.Context, linkID, path string) (map[string][]string, error) {
	e, err := s.engine(linkID)
	if err != nil {
		return nil, err
	}
	return e.QueryStoragePath(ctx, SplitPath(path))
}

// Share returns the share state of an item.
func (s *Service) Share(ctx context.Context, linkID, path string) (reconcile.ShareState, error) {
	e, err := s.engine(linkID)
	if err != nil {
		return reconcile.ShareState{}, err
	}
	return e.QueryShareState(ctx, SplitPath(path))
}

func (s *Service) engine(linkID string) (*reconcile.Engine, error) {
	l, ok := s.links.Link(linkID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLinkNotFound, linkID)
	}
	return l.Engine(), nil
}

// SplitPath turns "docs/a.txt" or "/docs/a.txt" into path segments.
func SplitPath(p string) []string {
	var out []string
	for _, seg := range strings.Split(p, "/") {
		if seg != "" {
			out = append(out, seg)
		}
	}
	return out
}
