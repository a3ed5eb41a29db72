package backend

import (
	"context"
	"errors"
	"sync"
	"time"

	"cloudsync/core/tree"

	"go.uber.org/zap"
)

// ListFunc lists the full tree of a storage.
type ListFunc func(ctx context.Context) (*tree.Snapshot, error)

// Poller turns periodic listings into change events for backends that
// cannot push notifications.
type Poller struct {
	storageID string
	interval  time.Duration
	list      ListFunc
	logger    *zap.Logger

	mu      sync.Mutex
	last    *tree.Snapshot
	offline bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewPoller creates a poller for storageID.
func NewPoller(storageID string, interval time.Duration, list ListFunc, logger *zap.Logger) *Poller {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Poller{
		storageID: storageID,
		interval:  interval,
		list:      list,
		logger:    logger.With(zap.String("storage", storageID)),
	}
}

// Last returns the most recent listing, or nil before the first one.
func (p *Poller) Last() *tree.Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}

// Seed sets the baseline the next poll is compared against.
func (p *Poller) Seed(s *tree.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.last = s
}

// Start polls in the background until Stop is called or ctx ends.
func (p *Poller) Start(ctx context.Context, sink EventSink) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return errors.New("poller already running")
	}

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})

	go func(done chan struct{}) {
		defer close(done)
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := p.Poll(ctx, sink); err != nil && ctx.Err() == nil {
					p.logger.Warn("Polling storage failed", zap.Error(err))
				}
			}
		}
	}(p.done)
	return nil
}

// Stop ends background polling. With join it waits for the loop to exit.
func (p *Poller) Stop(join bool) error {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	if join {
		<-done
	}
	return nil
}

// Poll lists the storage once and emits the differences to the previous
// listing. Listing failures switch the storage offline until a listing
// succeeds again.
func (p *Poller) Poll(ctx context.Context, sink EventSink) error {
	next, err := p.list(ctx)
	if err != nil {
		if CodeOf(err) == CodeUnavailable {
			p.mu.Lock()
			wasOnline := !p.offline
			p.offline = true
			p.mu.Unlock()
			if wasOnline {
				sink.StorageOffline(p.storageID)
			}
		}
		return err
	}

	p.mu.Lock()
	prev := p.last
	p.last = next
	wasOffline := p.offline
	p.offline = false
	p.mu.Unlock()

	if wasOffline {
		sink.StorageOnline(p.storageID)
	}

	for _, c := range tree.Diff(prev, next) {
		switch c.Kind {
		case tree.ChangeCreate:
			err = sink.StorageCreate(p.storageID, c.Path, tree.UpdateFrom(c.Props))
		case tree.ChangeModify:
			err = sink.StorageModify(p.storageID, c.Path, tree.UpdateFrom(c.Props))
		case tree.ChangeDelete:
			sink.StorageDelete(p.storageID, c.Path)
		}
		if err != nil {
			p.logger.Error("Event rejected", zap.Strings("path", c.Path), zap.Error(err))
			err = nil
		}
	}
	return nil
}
