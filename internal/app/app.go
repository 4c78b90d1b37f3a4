// Package app assembles the queue server from its configuration and runs the HTTP
// listener alongside the reaper and evictor loops.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"task-queue-api/internal/auth"
	"task-queue-api/internal/backup"
	"task-queue-api/internal/cache"
	"task-queue-api/internal/config"
	"task-queue-api/internal/database"
	"task-queue-api/internal/fetcher"
	"task-queue-api/internal/handlers"
	"task-queue-api/internal/metrics"
	"task-queue-api/internal/notify"
	"task-queue-api/internal/queue"
	"task-queue-api/internal/reaper"
	"task-queue-api/internal/realtime"
	"task-queue-api/internal/retry"
	"task-queue-api/internal/routes"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm/logger"
)

const shutdownGrace = 5 * time.Second

// App is a fully wired server.
type App struct {
	cfg     config.Config
	logger  *slog.Logger
	store   backup.Store
	Queue   *backup.Queue[string]
	Cache   *cache.Cache[string, string]
	Hub     *realtime.Hub
	Metrics *metrics.Metrics
	Router  *gin.Engine

	queueReaper *reaper.QueueReaper
	evictor     *reaper.CacheEvictor
}

// OpenStore opens the durable mirror selected by cfg.Driver.
func OpenStore(cfg config.StoreConfig) (backup.Store, error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		db, err := database.Open(cfg.SQLitePath, logger.Warn)
		if err != nil {
			return nil, err
		}
		return backup.NewSQLStore(db), nil
	case config.DriverPebble:
		return backup.OpenPebble(cfg.PebbleDir)
	case config.DriverMemory:
		return backup.NewMemStore(), nil
	default:
		return nil, fmt.Errorf("%w: unknown store driver %q", config.ErrInvalid, cfg.Driver)
	}
}

// New builds every component and replays the durable mirror. The caller owns the
// returned App and must Close it.
func New(ctx context.Context, cfg config.Config, log *slog.Logger) (*App, error) {
	store, err := OpenStore(cfg.Store)
	if err != nil {
		return nil, err
	}
	a, err := newWithStore(ctx, cfg, log, store)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return a, nil
}

func newWithStore(ctx context.Context, cfg config.Config, log *slog.Logger, store backup.Store) (*App, error) {
	if log == nil {
		log = slog.Default()
	}
	m := metrics.New()
	hub := realtime.NewHub(log.With("component", "realtime"))

	q, err := queue.New[string](queue.Options{ExecutionTimeout: cfg.Queue.ExecutionTimeout})
	if err != nil {
		return nil, err
	}
	bq, err := backup.New(ctx, q, store, backup.StringCodec{})
	if err != nil {
		return nil, err
	}
	if n := bq.Recovered(); n > 0 {
		log.Info("recovered tasks from backup", "count", n, "driver", cfg.Store.Driver)
	}

	getter := fetcher.New(&http.Client{Timeout: cfg.Fetch.Timeout}, cfg.Fetch.BaseURL, retry.Config{
		MaxAttempts: cfg.Fetch.Retries + 1,
		BaseDelay:   cfg.Fetch.BaseDelay,
		MaxDelay:    2 * time.Second,
		Jitter:      0.2,
	}, log.With("component", "fetcher"))
	payloads, err := cache.New[string, string](getter, cache.Options[string]{
		IdleExpiry: cfg.Cache.IdleExpiry,
		UsedExpiry: cfg.Cache.UsedExpiry,
		Shards:     cfg.Cache.Shards,
		Hasher:     cache.StringHasher,
		Observer:   m,
	})
	if err != nil {
		return nil, err
	}
	holds := cache.NewHolds[queue.TaskID, string](payloads)

	collector := notify.NewCollector(&http.Client{Timeout: cfg.Collector.Timeout}, cfg.Collector.URL, retry.Config{
		MaxAttempts: cfg.Collector.Retries + 1,
		BaseDelay:   cfg.Collector.BaseDelay,
		MaxDelay:    2 * time.Second,
		Jitter:      0.2,
	})

	httpLog := log.With("component", "http")
	deps := routes.Deps{
		Queue: &handlers.QueueHandler{
			Queue:     bq,
			Cache:     payloads,
			Holds:     holds,
			Notifier:  collector,
			Publisher: hub,
			Metrics:   m,
			Logger:    httpLog,
			ClaimWait: cfg.Queue.ClaimWait,
		},
		Events:       &handlers.EventsHandler{Hub: hub, Logger: httpLog},
		Metrics:      m,
		Logger:       httpLog,
		EnqueueRPS:   cfg.RateLimit.RPS,
		EnqueueBurst: cfg.RateLimit.Burst,
	}
	if cfg.Auth.Enabled() {
		issuer := auth.NewIssuer(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.Audience, cfg.Auth.TokenTTL)
		deps.Auth = &handlers.AuthHandler{Issuer: issuer, KeyHash: cfg.Auth.WorkerKeyHash, Logger: httpLog}
		deps.Validator = issuer
	}

	return &App{
		cfg:     cfg,
		logger:  log,
		store:   store,
		Queue:   bq,
		Cache:   payloads,
		Hub:     hub,
		Metrics: m,
		Router:  routes.SetupRoutes(deps),
		queueReaper: &reaper.QueueReaper{
			Queue: bq, Usage: holds, Publisher: hub, Metrics: m,
			Logger: log.With("component", "reaper"),
		},
		evictor: &reaper.CacheEvictor{
			Cache: payloads, Publisher: hub, Metrics: m,
			Logger: log.With("component", "evictor"),
		},
	}, nil
}

// Run serves HTTP on ln and runs the periodic loops until ctx is cancelled, then
// drains in-flight requests.
func (a *App) Run(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           a.Router,
		ReadHeaderTimeout: 10 * time.Second,
		// cancelling ctx releases handlers blocked in a claim wait
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info("server listening", "addr", ln.Addr().String(), "auth", a.cfg.Auth.Enabled())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		reaper.Every(gctx, a.cfg.Queue.ReapInterval, a.queueReaper.Tick)
		return nil
	})
	g.Go(func() error {
		reaper.Every(gctx, a.cfg.Cache.EvictInterval, a.evictor.Tick)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		a.logger.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// ListenAndRun listens on the configured address and calls Run.
func (a *App) ListenAndRun(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", a.cfg.HTTPAddr, err)
	}
	return a.Run(ctx, ln)
}

// Close releases the durable store.
func (a *App) Close() error {
	return a.store.Close()
}
