package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/deskwise/kbsearch/internal/analytics"
	"github.com/deskwise/kbsearch/internal/cache"
	"github.com/deskwise/kbsearch/internal/engine"
	"github.com/deskwise/kbsearch/internal/events"
	"github.com/deskwise/kbsearch/internal/kb"
	"github.com/deskwise/kbsearch/internal/server"
	"github.com/deskwise/kbsearch/internal/store"
	"github.com/deskwise/kbsearch/pkg/config"
	"github.com/deskwise/kbsearch/pkg/health"
	"github.com/deskwise/kbsearch/pkg/kafka"
	"github.com/deskwise/kbsearch/pkg/logger"
	"github.com/deskwise/kbsearch/pkg/metrics"
	"github.com/deskwise/kbsearch/pkg/middleware"
	"github.com/deskwise/kbsearch/pkg/postgres"
	pkgredis "github.com/deskwise/kbsearch/pkg/redis"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting knowledge base search service", "port", cfg.Server.Port)

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}

	pgClient, err := postgres.New(cfg.Postgres)
	if err != nil {
		slog.Error("failed to connect to content store", "error", err)
		os.Exit(1)
	}
	defer pgClient.Close()
	contentStore := store.NewPostgres(pgClient.DB)

	eng := engine.New(engine.Options{
		Index:   cfg.Index,
		Search:  cfg.Search,
		Store:   contentStore,
		Metrics: m,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var queryCache *cache.QueryCache
	var redisClient *pkgredis.Client
	redisClient, err = pkgredis.NewClient(cfg.Redis)
	if err != nil {
		slog.Warn("redis unavailable, search caching disabled", "error", err)
	} else {
		defer redisClient.Close()
		queryCache = cache.New(redisClient, cfg.Redis)
		slog.Info("search cache enabled",
			"addr", cfg.Redis.Addr,
			"ttl", cfg.Redis.CacheTTL,
		)
		// Invalidate only once the new snapshot is published, so a
		// concurrent query cannot repopulate the cache from the old one.
		eng.OnApplied(func(ctx context.Context, ev kb.DocumentEvent) {
			if err := queryCache.Invalidate(ctx); err != nil {
				slog.Warn("query cache invalidation failed",
					"doc_id", ev.Document.ID, "error", err)
			}
		})
	}

	if err := eng.Replay(ctx); err != nil {
		slog.Error("cold start replay failed", "error", err)
		os.Exit(1)
	}
	eng.Start(ctx)

	analyticsProducer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.SearchAnalytics)
	defer analyticsProducer.Close()
	collector := analytics.NewCollector(analyticsProducer, 10000)
	collector.Start(ctx)
	defer collector.Close()

	eventConsumer := events.New(kafka.NewConsumer(
		cfg.Kafka,
		cfg.Kafka.Topics.DocumentEvents,
		events.Handler(eng),
	))
	go func() {
		if err := eventConsumer.Start(ctx); err != nil {
			slog.Error("document consumer error", "error", err)
		}
	}()
	slog.Info("document event consumer started",
		"topic", cfg.Kafka.Topics.DocumentEvents,
		"group", cfg.Kafka.ConsumerGroup,
	)

	checker := health.NewChecker()
	checker.Register("index", func(ctx context.Context) health.ComponentHealth {
		return health.ComponentHealth{
			Status:  health.StatusUp,
			Message: fmt.Sprintf("%d documents indexed, %d events queued", eng.DocCount(), eng.QueueDepth()),
		}
	})
	checker.Register("content_store", func(ctx context.Context) health.ComponentHealth {
		if err := pgClient.Ping(ctx); err != nil {
			return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})
	checker.Register("redis", func(ctx context.Context) health.ComponentHealth {
		if redisClient == nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "not configured"}
		}
		if err := redisClient.Ping(ctx); err != nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})

	h := server.New(eng, queryCache, collector, m)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
	if m != nil {
		chain = middleware.Metrics(m)(chain)
	}
	chain = middleware.RequestID(chain)

	var metricsShutdown func(context.Context) error
	if cfg.Metrics.Enabled {
		metricsShutdown = metrics.StartServer(cfg.Metrics.Port)
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
		if metricsShutdown != nil {
			if err := metricsShutdown(shutdownCtx); err != nil {
				slog.Error("metrics server shutdown error", "error", err)
			}
		}
		if err := eng.Close(shutdownCtx); err != nil {
			slog.Error("engine shutdown error", "error", err)
		}
	}()

	slog.Info("search service listening", "addr", httpServer.Addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("search service stopped")
}
