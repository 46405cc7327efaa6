package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Adithya-Monish-Kumar-K/note-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/note-search/internal/indexer/consumer"
	"github.com/Adithya-Monish-Kumar-K/note-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/note-search/internal/indexer/source"
	"github.com/Adithya-Monish-Kumar-K/note-search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/note-search/internal/search"
	"github.com/Adithya-Monish-Kumar-K/note-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/note-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/note-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/note-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/note-search/pkg/postgres"
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
	if cfg.Index.Backend != "redis" {
		fmt.Fprintln(os.Stderr, "the indexer writes to a shared index and needs index.backend=redis")
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting indexer service", "rebuild_interval", cfg.Index.RebuildInterval)

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

	redisClient, err := pkgredis.NewClient(cfg.Redis)
	if err != nil {
		slog.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	store := index.NewRedisStore(redisClient, cfg.Index, index.WithBreakerObserver(m.ObserveBreaker))
	svc := search.New(store, tokenizer.New(seg), m, search.OptionsFromConfig(cfg))

	producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents)
	defer producer.Close()
	collector := analytics.NewCollector(producer, nil, 1000)
	collector.Start(ctx)
	defer collector.Close()
	svc.WithCollector(collector)

	pg, err := postgres.New(cfg.Postgres)
	if err != nil {
		slog.Warn("postgres unavailable, periodic rebuild disabled", "error", err)
	} else {
		defer pg.Close()
		docs := source.NewPostgres(pg.DB, pg.DocumentQuery())

		stats, err := svc.Stats(ctx)
		if err != nil {
			slog.Error("failed to read index stats", "error", err)
		} else if stats.Index.DocumentCount == 0 {
			slog.Info("index is empty, starting initial rebuild")
			if err := svc.StartRebuild(ctx, docs); err != nil {
				slog.Error("initial rebuild not started", "error", err)
			}
		}
		svc.StartRebuildLoop(ctx, docs, cfg.Index.RebuildInterval)
	}

	kafkaConsumer := kafka.NewConsumer(
		cfg.Kafka,
		cfg.Kafka.Topics.PostEvents,
		consumer.HandleMessage(svc, consumer.DefaultRetry),
	)
	indexConsumer := consumer.New(kafkaConsumer)

	slog.Info("indexer service ready, consuming from kafka",
		"topic", cfg.Kafka.Topics.PostEvents,
		"group", cfg.Kafka.ConsumerGroup,
	)

	if err := indexConsumer.Start(ctx); err != nil {
		slog.Error("consumer error", "error", err)
	}

	slog.Info("indexer service stopped")
}
