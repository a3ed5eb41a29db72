package cmd

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloudsync/core/config"
	"cloudsync/core/database"
	"cloudsync/core/link"
	"cloudsync/core/loader"
	"cloudsync/core/logger"
	"cloudsync/core/metrics"
	"cloudsync/core/middleware/auth"
	"cloudsync/core/middleware/rayid"
	"cloudsync/core/notify"
	"cloudsync/core/queue"
	"cloudsync/core/state"
	"cloudsync/feature/localfs"
	"cloudsync/feature/query"
	"cloudsync/feature/tasklog"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// shutdownTimeout bounds how long the links get to save their state.
const shutdownTimeout = 30 * time.Second

// startCmd represents the start command
var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the sync engine and the query server",
	Long:  `Links the local directory with the configured remote, keeps both in sync and serves the query API until interrupted.`,
	Run: func(cmd *cobra.Command, args []string) {
		// 1. Load Configuration
		cfg, err := config.LoadConfig(configDir)
		if err != nil {
			log.Fatalf("Failed to load configuration: %v", err)
		}

		// 2. Initialize Logger
		logg, err := logger.New(&cfg.Log)
		if err != nil {
			log.Fatalf("Failed to initialize logger: %v", err)
		}
		defer logg.Sync()
		zap.ReplaceGlobals(logg)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		// 3. Open the sync state and the task queue
		states, err := state.Open(cfg.Sync.StatePath)
		if err != nil {
			logg.Fatal("Failed to open sync state", zap.Error(err))
		}
		defer states.Close()

		q := queue.New(logg.Named("queue"))

		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		metrics.New(reg).Attach(reg, q)

		// 4. Connect to the task log database (Optional)
		var repo *tasklog.Repository
		recorderDone := make(chan struct{})
		recorderCtx, stopRecorder := context.WithCancel(context.Background())
		defer stopRecorder()
		if !cfg.Database.Enabled {
			close(recorderDone)
		} else if db, err := database.Connect(cfg.Database); err != nil {
			logg.Warn("Optional database connection failed", zap.Error(err))
			close(recorderDone)
		} else {
			repo = tasklog.NewRepository(db)
			if err := repo.Migrate(); err != nil {
				logg.Fatal("Failed to migrate task log", zap.Error(err))
			}
			recorder := tasklog.NewRecorder(repo, logg.Named("tasklog"))
			recorder.Attach(q)
			go func() {
				defer close(recorderDone)
				recorder.Run(recorderCtx)
			}()
			logg.Info("Task log enabled", zap.String("driver", cfg.Database.Driver))
		}

		// 5. Build the link between the local directory and the remote
		if !cfg.Sync.IsValidRemote() {
			logg.Fatal("Unsupported remote", zap.String("remote", cfg.Sync.Remote))
		}
		remote, err := openRemote(ctx, cfg, logg)
		if err != nil {
			logg.Fatal("Failed to open remote storage", zap.Error(err))
		}
		local, err := localfs.New(cfg.Sync.LocalDir, logg.Named("local"))
		if err != nil {
			logg.Fatal("Failed to open local directory", zap.Error(err))
		}

		graph := link.NewGraph(cfg.Sync.Graph(), q, states, notify.NewLogNotifier(logg.Named("notify")), logg.Named("sync"))
		l, err := graph.Add(local, remote)
		if err != nil {
			logg.Fatal("Failed to create link", zap.Error(err))
		}
		// The graph outlives the signal context so shutdown can drain in order.
		if err := graph.Start(context.Background()); err != nil {
			logg.Fatal("Failed to start sync", zap.Error(err))
		}
		logg.Info("Sync started",
			zap.String("link", l.ID()),
			zap.String("local", local.Root()),
			zap.String("remote", remote.ID()),
		)

		// 6. Initialize the query server
		var app *fiber.App
		if cfg.Server.Enabled {
			app = newServer(cfg, logg, graph, q, reg, repo)
			go func() {
				logg.Info("Starting server", zap.String("port", cfg.Server.Port))
				if err := app.Listen(cfg.Server.Addr()); err != nil {
					logg.Error("Server failed", zap.Error(err))
					stop()
				}
			}()
		}

		// 7. Graceful Shutdown
		<-ctx.Done()
		logg.Info("Shutting down...")
		if app != nil {
			_ = app.Shutdown()
		}

		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := graph.Stop(stopCtx); err != nil {
			logg.Error("Sync did not stop cleanly", zap.Error(err))
		}
		stopRecorder()
		<-recorderDone
	},
}

// newServer builds the fiber app with the middleware chain and every
// enabled feature.
func newServer(cfg *config.Config, logg *zap.Logger, graph *link.Graph, q *queue.Queue, reg *prometheus.Registry, repo *tasklog.Repository) *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true, // We will log our own startup message
	})

	// 1. RayID (Must be first to trace everything)
	app.Use(rayid.New())

	// 2. Logging Middleware (Custom to use Zap + RayID)
	app.Use(func(c *fiber.Ctx) error {
		l := logger.WithRayID(logg, c)
		l.Debug("Request started",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.String("ip", c.IP()),
		)
		err := c.Next()
		if err != nil {
			l.Error("Request error", zap.Error(err))
		}
		return err
	})

	// 3. Auth (Protect API)
	app.Use(auth.New(auth.Config{ApiKey: cfg.Server.ApiKey, Public: []string{"/health"}}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// 4. Load Features
	mgr := loader.NewManager()
	mgr.Register(query.NewFeature(graph, q, reg, logg.Named("query")))
	mgr.Register(tasklog.NewFeature(repo, logg.Named("tasklog")))

	loaded, err := mgr.LoadAll(app)
	if err != nil {
		logg.Fatal("Failed to load features", zap.Error(err))
	}
	logg.Info("Features loaded", zap.Strings("features", loaded))

	return app
}

func init() {
	RootCmd.AddCommand(startCmd)
}
