package query

import (
	"cloudsync/core/queue"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Feature implements the loader.Feature interface.
type Feature struct {
	handler  *Handler
	gatherer prometheus.Gatherer
}

// NewFeature creates the query feature. Metrics from gatherer are served on
// /metrics when it is not nil.
func NewFeature(links Links, q *queue.Queue, gatherer prometheus.Gatherer, logger *zap.Logger) *Feature {
	return &Feature{
		handler:  NewHandler(NewService(links, q, logger)),
		gatherer: gatherer,
	}
}

// Name returns the name of the feature.
func (f *Feature) Name() string {
	return "query"
}

// IsEnabled checks if the feature is enabled.
func (f *Feature) IsEnabled() bool {
	return true
}

// Load registers the feature's routes.
func (f *Feature) Load(app fiber.Router) error {
	f.handler.RegisterRoutes(app)
	if f.gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(f.gatherer, promhttp.HandlerOpts{})))
	}
	return nil
}
