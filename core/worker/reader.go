package worker

import (
	"context"
	"errors"
	"io"

	"cloudsync/core/backend"
	"cloudsync/core/synctask"
)

var errCancelRequested = errors.New("cancel requested")

// cancelReader checks for cancellation before every chunk and counts the
// bytes it passed on.
type cancelReader struct {
	ctx   context.Context
	r     io.Reader
	task  *synctask.Base
	count *int64
}

func (c *cancelReader) Read(p []byte) (int, error) {
	if c.task.Cancelled() {
		return 0, backend.E(backend.CodeCancelled, "read", nil, errCancelRequested)
	}
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	n, err := c.r.Read(p)
	if c.count != nil {
		*c.count += int64(n)
	}
	return n, err
}
