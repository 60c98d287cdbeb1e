package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"
	"go.uber.org/zap"

	"quizbee-service/internal/app"
	"quizbee-service/internal/catalog"
	"quizbee-service/internal/config"
	"quizbee-service/internal/events"
	"quizbee-service/internal/infra/memory"
	pgstore "quizbee-service/internal/infra/postgres"
	redisstore "quizbee-service/internal/infra/redis"
	transport "quizbee-service/internal/transport/http"
)

// runtime is the wired object graph shared by the commands.
type runtime struct {
	cfg      config.Config
	log      *zap.Logger
	service  *app.QuizService
	catalog  *catalog.Catalog
	cache    *redisstore.CatalogCache
	bus      *events.Bus
	counters *events.Counters
	feed     *transport.EventFeed
	redis    *redis.Client
	closers  []func()
}

func (rt *runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
}

func newRuntime(ctx context.Context, cfg config.Config, log *zap.Logger) (*runtime, error) {
	rt := &runtime{cfg: cfg, log: log}
	ok := false
	defer func() {
		if !ok {
			rt.Close()
		}
	}()

	if cfg.Redis.Addr != "" {
		rt.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		rt.closers = append(rt.closers, func() { _ = rt.redis.Close() })
	}

	var db *bun.DB
	if cfg.Postgres.URL != "" {
		db = pgstore.Open(cfg.Postgres.URL)
		rt.closers = append(rt.closers, func() { _ = db.Close() })
		if err := pgstore.EnsureSchema(ctx, db); err != nil {
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
	}

	loader, err := rt.catalogLoader(ctx)
	if err != nil {
		return nil, err
	}
	rt.catalog = catalog.New(loader, catalog.WithLogger(log))

	rt.bus = events.NewBus(log)
	events.NewLoggingObserver(log).Register(rt.bus)
	rt.counters = events.NewCounters()
	rt.counters.Register(rt.bus)
	rt.feed = transport.NewEventFeed(log)
	rt.feed.Register(rt.bus)
	if cfg.AMQP.URL != "" {
		fwd, err := events.DialAMQP(cfg.AMQP.URL, cfg.AMQP.Exchange, log)
		if err != nil {
			return nil, err
		}
		fwd.Register(rt.bus)
		rt.closers = append(rt.closers, fwd.Close)
	}

	var (
		sessions app.SessionRepository
		attempts app.AttemptRepository
	)
	switch {
	case db != nil:
		sessions, attempts = pgstore.NewSessionStore(db), pgstore.NewAttemptStore(db)
		log.Info("using postgres session and attempt stores")
	case rt.redis != nil:
		sessions, attempts = redisstore.NewSessionStore(rt.redis), redisstore.NewAttemptStore(rt.redis)
		log.Info("using redis session and attempt stores")
	default:
		ma := memory.NewAttemptStore()
		sessions, attempts = memory.NewSessionStore(ma), ma
		log.Warn("using in-memory stores; sessions and attempts are lost on restart")
	}

	rt.service = app.NewQuizService(rt.catalog, sessions, attempts, rt.bus, quizConfig(cfg), app.WithLogger(log))
	ok = true
	return rt, nil
}

func (rt *runtime) catalogLoader(ctx context.Context) (catalog.Loader, error) {
	switch rt.cfg.Catalog.Source {
	case config.CatalogSourceFS:
		return catalog.NewFSLoader(os.DirFS(rt.cfg.Catalog.Dir)), nil
	case config.CatalogSourcePostgres:
		if rt.cfg.Postgres.URL == "" {
			return nil, fmt.Errorf("catalog source postgres needs postgres.url")
		}
		pool, err := pgxpool.Connect(ctx, rt.cfg.Postgres.URL)
		if err != nil {
			return nil, fmt.Errorf("connect catalog pool: %w", err)
		}
		rt.closers = append(rt.closers, pool.Close)
		var loader catalog.Loader = pgstore.NewCatalogLoader(pool)
		if rt.redis != nil {
			rt.cache = redisstore.NewCatalogCache(rt.redis, loader, config.TTLDuration(rt.cfg.Catalog.CacheTTL, 10*time.Minute))
			loader = rt.cache
		}
		return loader, nil
	}
	return nil, fmt.Errorf("unknown catalog source %q", rt.cfg.Catalog.Source)
}

// reloadCatalog swaps in fresh content, bypassing the shared cache.
func (rt *runtime) reloadCatalog(ctx context.Context) error {
	if rt.cache != nil {
		if err := rt.cache.Invalidate(ctx); err != nil {
			rt.log.Warn("catalog cache invalidate failed", zap.Error(err))
		}
	}
	return rt.catalog.Reload(ctx)
}

func quizConfig(cfg config.Config) app.Config {
	def := app.DefaultConfig()
	return app.Config{
		EliminationTTL:     config.TTLDuration(cfg.Quiz.EliminationTTL, def.EliminationTTL),
		FinalsTTL:          config.TTLDuration(cfg.Quiz.FinalsTTL, def.FinalsTTL),
		EliminationCount:   cfg.Quiz.EliminationCount,
		ReviewCount:        cfg.Quiz.ReviewCount,
		StageCount:         cfg.Quiz.StageCount,
		HighScoreThreshold: cfg.Quiz.HighScoreThreshold,
	}
}
