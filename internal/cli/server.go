package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"quizbee-service/internal/config"
	"quizbee-service/internal/logger"
	transport "quizbee-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log, err := logger.New(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := newRuntime(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer rt.Close()

	// Fail fast on broken content instead of on the first request.
	if err := rt.catalog.Reload(ctx); err != nil {
		return err
	}

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	opts := transport.RouterOptions{Log: log, Feed: rt.feed, AllowOrigins: cfg.Server.CORSOrigins}
	if rt.redis != nil {
		opts.Limiter = transport.NewRateLimiter(rt.redis, log)
		opts.RateLimit = transport.RateLimitConfig{
			MaxRequests: cfg.RateLimit.MaxRequests,
			Window:      config.TTLDuration(cfg.RateLimit.Window, time.Minute),
			KeyPrefix:   "rl:api",
		}
	}
	router := transport.NewRouter(transport.NewQuizHandler(rt.service, rt.counters, log), opts)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	scheduler, err := newScheduler(ctx, rt)
	if err != nil {
		return err
	}
	scheduler.Start()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting quiz service", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server")
		<-scheduler.Stop().Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// newScheduler registers the periodic cleanup and, when configured, catalog reload.
func newScheduler(ctx context.Context, rt *runtime) (*cron.Cron, error) {
	c := cron.New()
	grace := config.TTLDuration(rt.cfg.Cleanup.Grace, 0)
	if _, err := c.AddFunc(rt.cfg.Cleanup.Schedule, func() {
		if _, err := rt.service.CleanupExpired(ctx, grace); err != nil {
			rt.log.Error("scheduled cleanup failed", zap.Error(err))
		}
	}); err != nil {
		return nil, err
	}

	if interval := rt.cfg.Catalog.ReloadInterval; interval != "" {
		if _, err := c.AddFunc("@every "+interval, func() {
			// failures are logged by the catalog and the old snapshot stays live
			_ = rt.reloadCatalog(ctx)
		}); err != nil {
			return nil, err
		}
	}
	return c, nil
}
