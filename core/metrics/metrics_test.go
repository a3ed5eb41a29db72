package metrics

import (
	"context"
	"testing"

	"cloudsync/core/queue"
	"cloudsync/core/synctask"
	"cloudsync/core/tree"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMetrics_QueueSignals(t *testing.T) {
	reg := prometheus.NewRegistry()
	q := queue.New(zap.NewNop())
	m := New(reg)
	m.Attach(reg, q)

	task := synctask.NewUpload("l", tree.Path{"a.txt"}, synctask.Transfer{TargetStorageID: "csp"})
	q.Put(task)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.submitted.WithLabelValues("upload")))

	got, err := q.Get(context.Background())
	require.NoError(t, err)
	task.BytesTransferred = 42
	got.Info().SetState(synctask.Successful)
	q.Ack(got)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.acked.WithLabelValues("upload", "successful")))
	assert.Equal(t, 42.0, testutil.ToFloat64(m.bytes))

	count, err := testutil.GatherAndCount(reg, "cloudsync_queue_pending_tasks", "cloudsync_queue_running_tasks")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}
