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

	"github.com/Adithya-Monish-Kumar-K/note-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/note-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/note-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/note-search/internal/indexer/source"
	"github.com/Adithya-Monish-Kumar-K/note-search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/note-search/internal/search"
	"github.com/Adithya-Monish-Kumar-K/note-search/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/note-search/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/note-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/note-search/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/note-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/note-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/note-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/note-search/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/note-search/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/note-search/pkg/ratelimit"
	pkgredis "github.com/Adithya-Monish-Kumar-K/note-search/pkg/redis"
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
	slog.Info("starting search service", "port", cfg.Server.Port, "backend", cfg.Index.Backend)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port, nil)
		defer shutdownMetrics(context.Background())
	}

	seg, err := tokenizer.NewDictSegmenter(cfg.Index.DictPath)
	if err != nil {
		slog.Error("failed to load segmentation dictionary", "error", err)
		os.Exit(1)
	}
	tok := tokenizer.New(seg)

	var redisClient *pkgredis.Client
	var store index.Store
	switch cfg.Index.Backend {
	case "redis":
		redisClient, err = pkgredis.NewClient(cfg.Redis)
		if err != nil {
			slog.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer redisClient.Close()
		store = index.NewRedisStore(redisClient, cfg.Index, index.WithBreakerObserver(m.ObserveBreaker))
	default:
		slog.Warn("using in-memory index, contents are lost on restart")
		store = index.NewMemoryStore()
	}

	svc := search.New(store, tok, m, search.OptionsFromConfig(cfg))

	var queryCache *cache.QueryCache
	if cfg.Search.CacheEnabled && redisClient != nil {
		queryCache = cache.New(redisClient, cfg.Redis.CacheTTL, m)
		svc.WithCache(queryCache)
		slog.Info("search cache enabled", "ttl", cfg.Redis.CacheTTL)
	}

	aggregator := analytics.NewAggregator()
	producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents)
	defer producer.Close()
	collector := analytics.NewCollector(producer, aggregator, 10000)
	collector.Start(ctx)
	defer collector.Close()
	svc.WithCollector(collector)
	slog.Info("analytics collector started", "topic", cfg.Kafka.Topics.AnalyticsEvents)

	var docs indexer.DocumentSource
	var pgPing func(context.Context) error
	pg, err := postgres.New(cfg.Postgres)
	if err != nil {
		slog.Warn("postgres unavailable, rebuild endpoint disabled", "error", err)
	} else {
		defer pg.Close()
		docs = source.NewPostgres(pg.DB, pg.DocumentQuery())
		pgPing = pg.Ping
	}

	checker := health.NewChecker()
	checker.Register("index", health.PingCheck(svc.Ping, health.StatusDown))
	checker.Register("postgres", health.PingCheck(pgPing, health.StatusDegraded))

	mux := http.NewServeMux()
	handler.New(svc, queryCache, aggregator, docs).Register(mux)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Metrics(m)(chain)
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
	if cfg.Server.RateLimit > 0 {
		chain = middleware.RateLimit(ratelimit.New(ctx, cfg.Server.RateLimit, cfg.Server.RateWindow))(chain)
	}
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("search service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	// ListenAndServe returns as soon as Shutdown starts; in-flight requests
	// must finish before the deferred closers run.
	<-shutdownDone

	slog.Info("search service stopped")
}
