// Package app provides application initialization and lifecycle management.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"

	"github.com/bissquit/notify-garden/internal/config"
	"github.com/bissquit/notify-garden/internal/identity/jwt"
	"github.com/bissquit/notify-garden/internal/notifications"
	"github.com/bissquit/notify-garden/internal/notifications/email"
	"github.com/bissquit/notify-garden/internal/notifications/inapp"
	notificationspostgres "github.com/bissquit/notify-garden/internal/notifications/postgres"
	"github.com/bissquit/notify-garden/internal/notifications/webhook"
	"github.com/bissquit/notify-garden/internal/pkg/correlation"
	"github.com/bissquit/notify-garden/internal/pkg/ctxlog"
	"github.com/bissquit/notify-garden/internal/pkg/httputil"
	"github.com/bissquit/notify-garden/internal/pkg/metrics"
	"github.com/bissquit/notify-garden/internal/pkg/postgres"
	"github.com/bissquit/notify-garden/internal/pkg/redis"
	"github.com/bissquit/notify-garden/internal/queue"
	queuepostgres "github.com/bissquit/notify-garden/internal/queue/postgres"
	"github.com/bissquit/notify-garden/internal/ratelimit"
	"github.com/bissquit/notify-garden/internal/version"
)

// App represents the application instance.
type App struct {
	config        *config.Config
	logger        *slog.Logger
	db            *pgxpool.Pool
	redisClient   *goredis.Client
	server        *http.Server
	metricsServer *http.Server
	metricsCancel context.CancelFunc
	worker        *queue.Worker
	limiterStore  *ratelimit.MemoryStore
}

// New creates a new application instance.
func New(cfg *config.Config) (*App, error) {
	logger := initLogger(cfg.Log)

	if cfg.Database.MigrationsPath != "" {
		if err := postgres.Migrate(cfg.Database.URL, cfg.Database.MigrationsPath); err != nil {
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}

	connectCtx, connectCancel := context.WithTimeout(context.Background(), cfg.Database.ConnectTimeout)
	defer connectCancel()

	db, err := postgres.Connect(connectCtx, postgres.Config{
		URL:             cfg.Database.URL,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnectAttempts: cfg.Database.ConnectAttempts,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	// Redis backs the rate limiter only; the service starts without it
	// and degrades to per-instance in-memory limiting.
	var redisClient *goredis.Client
	if cfg.Redis.URL != "" {
		redisCtx, redisCancel := context.WithTimeout(context.Background(), cfg.Redis.ConnectTimeout)
		redisClient, err = redis.Connect(redisCtx, redis.Config{
			URL:            cfg.Redis.URL,
			ConnectTimeout: cfg.Redis.ConnectTimeout,
			RetryAttempts:  cfg.Redis.RetryAttempts,
			RetryInterval:  cfg.Redis.RetryInterval,
		})
		redisCancel()
		if err != nil {
			logger.Warn("redis unavailable, rate limiting degrades to in-memory", "error", err)
			redisClient = nil
		}
	} else {
		logger.Warn("redis not configured, rate limiting is in-memory only")
	}

	metricsCtx, metricsCancel := context.WithCancel(context.Background())

	app := &App{
		config:        cfg,
		logger:        logger,
		db:            db,
		redisClient:   redisClient,
		metricsCancel: metricsCancel,
	}

	go app.collectDBMetrics(metricsCtx)

	router, worker, err := app.setupRouter(metricsCtx)
	if err != nil {
		db.Close()
		metricsCancel()
		return nil, fmt.Errorf("setup router: %w", err)
	}

	app.worker = worker

	app.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	// Metrics server on separate port
	metricsRouter := chi.NewRouter()
	metricsRouter.Handle("/metrics", promhttp.Handler())

	app.metricsServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.MetricsPort),
		Handler:           metricsRouter,
		ReadTimeout:       5 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return app, nil
}

// Run starts the HTTP servers.
func (a *App) Run() error {
	// Start metrics server in background
	go func() {
		a.logger.Info("starting metrics server",
			"host", a.config.Server.Host,
			"port", a.config.Server.MetricsPort,
		)
		if err := a.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Error("metrics server error", "error", err)
		}
	}()

	// Start main server
	a.logger.Info("starting server",
		"host", a.config.Server.Host,
		"port", a.config.Server.Port,
	)

	if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the application.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down servers")

	// Drain the delivery worker before cancelling its context: an
	// in-flight send and its follow-up status writes must complete on a
	// live context, and the DB pool is still open here.
	if a.worker != nil {
		a.worker.Stop()
	}

	a.metricsCancel()

	// Shutdown both servers in parallel
	var wg sync.WaitGroup
	var errs []error
	var mu sync.Mutex

	wg.Add(2)

	go func() {
		defer wg.Done()
		if err := a.server.Shutdown(ctx); err != nil {
			mu.Lock()
			errs = append(errs, fmt.Errorf("shutdown server: %w", err))
			mu.Unlock()
		}
	}()

	go func() {
		defer wg.Done()
		if err := a.metricsServer.Shutdown(ctx); err != nil {
			mu.Lock()
			errs = append(errs, fmt.Errorf("shutdown metrics server: %w", err))
			mu.Unlock()
		}
	}()

	wg.Wait()

	if a.limiterStore != nil {
		_ = a.limiterStore.Close()
	}
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	a.db.Close()

	return errors.Join(errs...)
}

func (a *App) collectDBMetrics(ctx context.Context) {
	// Collect immediately on start
	metrics.RecordDBPoolMetrics(a.db)

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			metrics.RecordDBPoolMetrics(a.db)
		case <-ctx.Done():
			return
		}
	}
}

func (a *App) collectQueueMetrics(ctx context.Context, repo queue.Repository) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			stats, err := repo.GetStats(ctx)
			if err != nil {
				slog.Error("failed to get queue stats", "error", err)
				continue
			}
			queue.RecordQueueStats(stats)
		case <-ctx.Done():
			return
		}
	}
}

// Router returns the HTTP handler for testing.
func (a *App) Router() http.Handler {
	return a.server.Handler
}

// Worker returns the delivery worker instance, for tests.
func (a *App) Worker() *queue.Worker {
	return a.worker
}

func (a *App) setupRouter(ctx context.Context) (*chi.Mux, *queue.Worker, error) {
	r := chi.NewRouter()

	// Metrics middleware must be first to measure full request time
	r.Use(httputil.MetricsMiddleware)
	r.Use(middleware.RequestID)
	r.Use(correlation.Middleware)
	r.Use(httputil.RequestLoggerMiddleware(a.logger))
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", a.healthzHandler)
	r.Get("/readyz", a.readyzHandler)
	r.Get("/version", a.versionHandler)

	r.Get("/api/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-yaml")
		http.ServeFile(w, r, "api/openapi/openapi.yaml")
	})

	limiter, err := a.buildRateLimiter()
	if err != nil {
		return nil, nil, fmt.Errorf("create rate limiter: %w", err)
	}

	emailSender := email.NewSender(email.Config{
		SMTPHost:     a.config.Channels.Email.SMTPHost,
		SMTPPort:     a.config.Channels.Email.SMTPPort,
		SMTPUser:     a.config.Channels.Email.SMTPUser,
		SMTPPassword: a.config.Channels.Email.SMTPPassword,
		FromAddress:  a.config.Channels.Email.FromAddress,
	})
	if !emailSender.Available() {
		slog.Warn("email channel unconfigured: email notifications will fail delivery")
	}

	webhookSender := webhook.NewSender(webhook.Config{
		URL:         a.config.Channels.Webhook.URL,
		BearerToken: a.config.Channels.Webhook.BearerToken,
		Timeout:     a.config.Channels.Webhook.Timeout,
		RateLimit:   a.config.Channels.Webhook.RateLimit,
	})
	if !webhookSender.Available() {
		slog.Warn("webhook channel unconfigured: webhook notifications will fail delivery")
	}

	registry := notifications.NewRegistry(emailSender, webhookSender, inapp.NewSender())

	notificationsRepo := notificationspostgres.NewRepository(a.db)
	queueRepo := queuepostgres.NewRepository(a.db)
	enqueuer := queue.NewEnqueuer(queueRepo, a.config.Queue.MaxAttempts)

	notificationsService := notifications.NewService(notificationsRepo, registry, enqueuer)
	notificationsHandler := notifications.NewHandler(notificationsService)

	worker := queue.NewWorker(queue.Config{
		BatchSize:         a.config.Queue.BatchSize,
		PollInterval:      a.config.Queue.PollInterval,
		MaxAttempts:       a.config.Queue.MaxAttempts,
		InitialBackoff:    a.config.Queue.InitialBackoff,
		MaxBackoff:        a.config.Queue.MaxBackoff,
		BackoffMultiplier: a.config.Queue.BackoffMultiplier,
		NumWorkers:        a.config.Queue.NumWorkers,
		LockTimeout:       a.config.Queue.LockTimeout,
		Retention:         a.config.Queue.Retention,
	}, queueRepo, notificationsService)
	worker.Start(ctx)

	go a.collectQueueMetrics(ctx, queueRepo)

	jwtAuth := jwt.NewAuthenticator(jwt.Config{
		SecretKey: a.config.JWT.SecretKey,
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(ratelimit.Middleware(limiter, ratelimit.ClientIPKey))
		r.Use(httputil.AuthMiddleware(jwtAuth))

		notificationsHandler.RegisterRoutes(r)
	})

	return r, worker, nil
}

func (a *App) buildRateLimiter() (*ratelimit.SlidingWindow, error) {
	memoryStore := ratelimit.NewMemoryStore()
	a.limiterStore = memoryStore

	var store ratelimit.Store = memoryStore
	if a.redisClient != nil {
		store = ratelimit.NewFallbackStore(ratelimit.NewRedisStore(a.redisClient), memoryStore)
	}

	return ratelimit.NewSlidingWindow(store, a.config.RateLimit.MaxRequests, a.config.RateLimit.Window)
}

func (a *App) healthzHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) readyzHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := a.db.Ping(ctx); err != nil {
		ctxlog.FromContext(r.Context()).Error("readiness check failed", "error", err)
		httputil.Text(w, http.StatusServiceUnavailable, "Database unavailable")
		return
	}

	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) versionHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.JSON(w, http.StatusOK, map[string]string{
		"version":    version.Version,
		"commit":     version.GitCommit,
		"build_date": version.BuildDate,
	})
}

func initLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
