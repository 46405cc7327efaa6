package cli

import (
	"errors"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Adithya-Monish-Kumar-K/note-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/note-search/internal/indexer/source"
	"github.com/Adithya-Monish-Kumar-K/note-search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/note-search/internal/search"
	"github.com/Adithya-Monish-Kumar-K/note-search/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/note-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/note-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/note-search/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/note-search/pkg/redis"
)

// OpenFromConfig connects to the configured index backend and, when it is
// reachable, the notes database. Metrics go to a private registry since
// nothing scrapes a one-shot command.
func OpenFromConfig(cfg *config.Config) (*Backend, error) {
	seg, err := tokenizer.NewDictSegmenter(cfg.Index.DictPath)
	if err != nil {
		return nil, err
	}
	m := metrics.NewWithRegistry(prometheus.NewRegistry())

	var closers []func() error
	var store index.Store
	var redisClient *pkgredis.Client
	switch cfg.Index.Backend {
	case "redis":
		redisClient, err = pkgredis.NewClient(cfg.Redis)
		if err != nil {
			return nil, err
		}
		closers = append(closers, redisClient.Close)
		store = index.NewRedisStore(redisClient, cfg.Index)
	default:
		store = index.NewMemoryStore()
	}

	svc := search.New(store, tokenizer.New(seg), m, search.OptionsFromConfig(cfg))
	if cfg.Search.CacheEnabled && redisClient != nil {
		svc.WithCache(cache.New(redisClient, cfg.Redis.CacheTTL, m))
	}

	b := &Backend{Service: svc}
	if pg, err := postgres.New(cfg.Postgres); err != nil {
		slog.Debug("postgres unavailable, rebuild disabled", "error", err)
	} else {
		closers = append(closers, pg.Close)
		b.Source = source.NewPostgres(pg.DB, pg.DocumentQuery())
	}

	b.Close = func() error {
		var errs []error
		for _, c := range closers {
			errs = append(errs, c())
		}
		return errors.Join(errs...)
	}
	return b, nil
}
