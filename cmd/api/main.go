package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/swagger"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"docflow/docs"
	"docflow/internal/auth"
	"docflow/internal/config"
	"docflow/internal/database"
	"docflow/internal/database/migration"
	"docflow/internal/extraction"
	handlers "docflow/internal/http/handler"
	"docflow/internal/http/middleware"
	"docflow/internal/lock"
	"docflow/internal/logger"
	"docflow/internal/metrics"
	"docflow/internal/otel"
	"docflow/internal/pdf"
	"docflow/internal/repository/memory"
	"docflow/internal/repository/postgres"
	"docflow/internal/service"
	"docflow/internal/storage"
)

// @title docflow API
// @version 1.0
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	// Load configuration from environment variables (.env auto-loaded if present)
	cfg := config.Load()

	log, err := logger.New(cfg.Env, cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync() //nolint:errcheck

	if err := run(cfg, log); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg *config.AppConfig, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := otel.Init(ctx, otel.SettingsFromEnv(), log)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			log.Warn("tracing shutdown failed", zap.Error(err))
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	deps, db, err := buildRepositories(ctx, cfg, log)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}

	// Object storage holds uploads and generated PDFs
	objStore, err := buildStorage(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init object storage: %w", err)
	}
	deps.Storage = objStore

	locker, lockPing, closeLocker := buildLocker(cfg, log)
	defer closeLocker()
	deps.Locker = locker

	extractor, err := extraction.NewVertex(ctx, cfg.Vertex, log)
	if err != nil {
		return fmt.Errorf("init extraction engine: %w", err)
	}
	defer extractor.Close()
	deps.Extractor = extractor

	pipelineMetrics, err := metrics.NewPipeline(reg)
	if err != nil {
		return fmt.Errorf("register pipeline metrics: %w", err)
	}
	deps.Metrics = pipelineMetrics
	deps.Engine = pdf.NewProcessor(log)
	deps.Logger = log
	deps.Upload = cfg.Upload
	deps.Bulk = cfg.Bulk

	svcs := service.New(deps)

	jobs := service.NewJobManager(svcs.Bulk, service.JobConfig{
		Workers: cfg.Bulk.Workers,
		Logger:  log,
	})
	jobs.Start(ctx)
	defer jobs.Stop()

	httpMetrics, err := middleware.NewPrometheusMiddleware(reg)
	if err != nil {
		return fmt.Errorf("register http metrics: %w", err)
	}

	app := fiber.New(fiber.Config{
		ErrorHandler: handlers.ErrorHandler(),
		BodyLimit:    int(cfg.Upload.MaxTotal) + 1<<20,
	})

	// RequestID middleware adds/propagates X-Request-ID and stores it in context
	app.Use(middleware.RequestID())
	app.Use(otelfiber.Middleware())
	app.Use(middleware.Logger(log))
	app.Use(httpMetrics.Handler())

	health := []handlers.Pinger{}
	if db != nil {
		health = append(health, db)
	}
	if lockPing != nil {
		health = append(health, lockPing)
	}
	if p, ok := objStore.(handlers.Pinger); ok {
		health = append(health, p)
	}
	handlers.RegisterRoutes(app, handlers.Deps{
		Services: svcs,
		Jobs:     jobs,
		Verifier: auth.NewVerifier(cfg.Auth.JWTSecret),
		Health:   health,
	})

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	// Swagger UI with dynamic host and scheme
	app.Get("/swagger/*", func(c *fiber.Ctx) error {
		scheme := c.Protocol()
		if proto := c.Get("X-Forwarded-Proto"); proto != "" {
			scheme = strings.Split(proto, ",")[0]
		}

		docs.SwaggerInfo.Host = c.Get("Host")
		docs.SwaggerInfo.Schemes = []string{scheme}

		return swagger.HandlerDefault(c)
	})

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		log.Info("http server starting", zap.String("addr", addr))
		errCh <- app.Listen(addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return app.ShutdownWithContext(sctx)
}

// buildRepositories connects to PostgreSQL and applies migrations, or returns the
// in-memory repositories when DB_DRIVER=memory. The returned *sql.DB is nil for memory.
func buildRepositories(ctx context.Context, cfg *config.AppConfig, log *zap.Logger) (service.Deps, *sql.DB, error) {
	if cfg.Database.Driver == "memory" {
		log.Warn("using in-memory repositories, data is lost on restart")
		st := memory.NewStore()
		return service.Deps{
			Documents: st.Documents(),
			Batches:   st.Batches(),
			Artifacts: st.Artifacts(),
			Audit:     st.Audit(),
		}, nil, nil
	}

	db, err := database.NewPostgres(ctx, cfg.Database, log)
	if err != nil {
		return service.Deps{}, nil, fmt.Errorf("connect database: %w", err)
	}
	if err := migration.EnsureMigrated(ctx, db, log); err != nil {
		db.Close()
		return service.Deps{}, nil, fmt.Errorf("migrate database: %w", err)
	}
	return service.Deps{
		Documents: postgres.NewDocumentPostgres(db),
		Batches:   postgres.NewBatchPostgres(db),
		Artifacts: postgres.NewArtifactPostgres(db),
		Audit:     postgres.NewAuditPostgres(db),
	}, db, nil
}

func buildStorage(ctx context.Context, cfg *config.AppConfig) (storage.Storage, error) {
	switch cfg.Storage.Backend {
	case "minio":
		return storage.NewMinIO(ctx, cfg.Storage.MinIO)
	case "gcs":
		return storage.NewGCS(ctx, cfg.Storage.GCS)
	case "memory":
		return storage.NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

// buildLocker selects Redis locks when REDIS_ADDR is set so several replicas
// serialize on the same keys. A single process falls back to in-process locks.
func buildLocker(cfg *config.AppConfig, log *zap.Logger) (lock.Locker, handlers.Pinger, func()) {
	if cfg.Redis.Addr == "" {
		return lock.NewLocal(), nil, func() {}
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	l := lock.NewRedis(client, cfg.Redis.LockTTL, log)
	return l, handlers.PingerFunc(l.Ping), func() { _ = client.Close() }
}
