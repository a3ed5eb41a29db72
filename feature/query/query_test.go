package query

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"cloudsync/core/backend"
	"cloudsync/core/link"
	"cloudsync/core/metrics"
	"cloudsync/core/queue"
	"cloudsync/core/reconcile"
	"cloudsync/core/tree"
	"cloudsync/core/worker"
	"cloudsync/feature/folderstore"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupTestApp(t *testing.T) (*fiber.App, *link.Link) {
	t.Helper()
	localFS := memfs.New()
	require.NoError(t, util.WriteFile(localFS, "docs/a.txt", []byte("hello"), 0o644))
	local := folderstore.New(backend.LocalStorageID, localFS, time.Hour, zap.NewNop())
	nas := folderstore.New("nas", memfs.New(), time.Hour, zap.NewNop())

	reg := prometheus.NewRegistry()
	q := queue.New(zap.NewNop())
	metrics.New(reg).Attach(reg, q)

	g := link.NewGraph(link.Config{Worker: worker.Config{Workers: 1}}, q, nil, nil, zap.NewNop())
	l, err := g.Add(local, nas)
	require.NoError(t, err)
	require.NoError(t, g.Start(context.Background()))
	t.Cleanup(func() { g.Stop(context.Background()) })

	require.Eventually(t, func() bool {
		return l.Engine().State() == reconcile.Running
	}, 5*time.Second, 10*time.Millisecond)

	app := fiber.New()
	require.NoError(t, NewFeature(g, q, reg, zap.NewNop()).Load(app))
	return app, l
}

func get(t *testing.T, app *fiber.App, target string) (int, []byte) {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest("GET", target, nil))
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, body
}

func TestHandlers(t *testing.T) {
	app, _ := setupTestApp(t)

	t.Run("ListLinks", func(t *testing.T) {
		status, body := get(t, app, "/links")
		require.Equal(t, 200, status)
		var res struct {
			Links []LinkSummary `json:"links"`
		}
		require.NoError(t, json.Unmarshal(body, &res))
		require.Len(t, res.Links, 1)
		assert.Equal(t, LinkSummary{ID: "local::nas", LocalID: "local", RemoteID: "nas", State: "running"}, res.Links[0])
	})

	t.Run("Query", func(t *testing.T) {
		status, body := get(t, app, "/links/local::nas/query?path=Docs/A.txt")
		require.Equal(t, 200, status)
		var view tree.View
		require.NoError(t, json.Unmarshal(body, &view))
		assert.Equal(t, tree.Path{"docs", "a.txt"}, view.Path)
		assert.Contains(t, view.Storages, backend.LocalStorageID)
	})

	t.Run("UnknownPath", func(t *testing.T) {
		status, _ := get(t, app, "/links/local::nas/query?path=nope.txt")
		assert.Equal(t, 404, status)
	})

	t.Run("UnknownLink", func(t *testing.T) {
		status, _ := get(t, app, "/links/local::s3/nodes")
		assert.Equal(t, 404, status)
	})

	t.Run("Nodes", func(t *testing.T) {
		status, body := get(t, app, "/links/local::nas/nodes")
		require.Equal(t, 200, status)
		var res struct {
			Nodes []tree.View `json:"nodes"`
		}
		require.NoError(t, json.Unmarshal(body, &res))
		assert.NotEmpty(t, res.Nodes)
	})

	t.Run("Share", func(t *testing.T) {
		status, body := get(t, app, "/links/local::nas/share?path=docs/a.txt")
		require.Equal(t, 200, status)
		var st reconcile.ShareState
		require.NoError(t, json.Unmarshal(body, &st))
		assert.Equal(t, "nas", st.StorageID)
		assert.False(t, st.PublicShared)
	})

	t.Run("StoragePath", func(t *testing.T) {
		status, _ := get(t, app, "/links/local::nas/storage-path?path=docs/a.txt")
		assert.Equal(t, 200, status)
	})

	t.Run("Queue", func(t *testing.T) {
		status, body := get(t, app, "/queue")
		require.Equal(t, 200, status)
		assert.Contains(t, string(body), `"pending"`)
	})

	t.Run("Metrics", func(t *testing.T) {
		status, body := get(t, app, "/metrics")
		require.Equal(t, 200, status)
		assert.Contains(t, string(body), "cloudsync_queue_pending_tasks")
	})
}

func TestSplitPath(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"docs/a.txt", []string{"docs", "a.txt"}},
		{"/docs//a.txt/", []string{"docs", "a.txt"}},
		{"", nil},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, SplitPath(tt.in))
		})
	}
}
