package loader

import (
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubFeature struct {
	name    string
	enabled bool
	err     error
}

func (f stubFeature) Name() string    { return f.name }
func (f stubFeature) IsEnabled() bool { return f.enabled }

func (f stubFeature) Load(app fiber.Router) error {
	if f.err != nil {
		return f.err
	}
	app.Get("/"+f.name, func(c *fiber.Ctx) error { return c.SendString(f.name) })
	return nil
}

func TestManager_LoadAll(t *testing.T) {
	t.Run("SkipsDisabled", func(t *testing.T) {
		app := fiber.New()
		mgr := NewManager()
		mgr.Register(stubFeature{name: "query", enabled: true})
		mgr.Register(stubFeature{name: "tasks", enabled: false})

		loaded, err := mgr.LoadAll(app)
		require.NoError(t, err)
		assert.Equal(t, []string{"query"}, loaded)

		resp, err := app.Test(httptest.NewRequest("GET", "/query", nil))
		require.NoError(t, err)
		assert.Equal(t, 200, resp.StatusCode)

		resp, err = app.Test(httptest.NewRequest("GET", "/tasks", nil))
		require.NoError(t, err)
		assert.Equal(t, 404, resp.StatusCode)
	})

	t.Run("StopsOnError", func(t *testing.T) {
		mgr := NewManager()
		mgr.Register(stubFeature{name: "broken", enabled: true, err: errors.New("boom")})
		mgr.Register(stubFeature{name: "query", enabled: true})

		loaded, err := mgr.LoadAll(fiber.New())
		assert.ErrorContains(t, err, "failed to load feature broken")
		assert.Empty(t, loaded)
	})
}
