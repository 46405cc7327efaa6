package index

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/note-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/note-search/pkg/errors"
	pkgredis "github.com/Adithya-Monish-Kumar-K/note-search/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/note-search/pkg/resilience"
	"github.com/redis/go-redis/v9"
)

// Key layout under the configured prefix P:
//
//	P:term:<term>  hash   docID -> term frequency
//	P:doc:<id>     set    terms of the document
//	P:df           hash   term -> document frequency
//	P:docs         set    indexed document ids
//	P:doc_count    string number of indexed documents
//	P:generation   string bumped on every mutation, survives Clear
//	P:rebuild_lock string token of the process rebuilding the index

// addPosting writes one posting and bumps the term's document frequency when
// the posting is new, so df always equals the posting count for that term.
var addPosting = redis.NewScript(`
if redis.call('HSET', KEYS[1], ARGV[1], ARGV[3]) == 1 then
	redis.call('HINCRBY', KEYS[2], ARGV[2], 1)
end
return 1
`)

// removePosting deletes one posting and drops the df entry when it reaches 0.
var removePosting = redis.NewScript(`
if redis.call('HDEL', KEYS[1], ARGV[1]) == 1 then
	local df = redis.call('HINCRBY', KEYS[2], ARGV[2], -1)
	if df <= 0 then
		redis.call('HDEL', KEYS[2], ARGV[2])
	end
end
return 1
`)

var addDocument = redis.NewScript(`
if redis.call('SADD', KEYS[1], ARGV[1]) == 1 then
	redis.call('INCR', KEYS[2])
end
return 1
`)

var removeDocument = redis.NewScript(`
if redis.call('SREM', KEYS[1], ARGV[1]) == 1 then
	redis.call('DECR', KEYS[2])
end
return 1
`)

// RedisStore keeps the inverted index in Redis. Every single-term update is
// one atomic script; a whole-document update is not, but it is idempotent
// and a later Replace of the same document repairs any partial write.
type RedisStore struct {
	client  *pkgredis.Client
	rdb     *redis.Client
	prefix  string
	timeout time.Duration
	breaker *resilience.CircuitBreaker
	logger  *slog.Logger
}

// RedisOption customises a RedisStore.
type RedisOption func(*resilience.CircuitBreakerConfig)

// WithBreakerObserver reports every state change of the store's circuit
// breaker to fn.
func WithBreakerObserver(fn func(name string, from, to resilience.State)) RedisOption {
	return func(c *resilience.CircuitBreakerConfig) {
		c.OnStateChange = fn
	}
}

func NewRedisStore(client *pkgredis.Client, cfg config.IndexConfig, opts ...RedisOption) *RedisStore {
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "idx"
	}
	cbCfg := resilience.CircuitBreakerConfig{
		FailureThreshold: cfg.CircuitBreaker.FailureThreshold,
		ResetTimeout:     cfg.CircuitBreaker.ResetTimeout,
	}
	for _, opt := range opts {
		opt(&cbCfg)
	}
	return &RedisStore{
		client:  client,
		rdb:     client.Redis(),
		prefix:  prefix,
		timeout: cfg.OperationTimeout,
		breaker: resilience.NewCircuitBreaker("redis-index", cbCfg),
		logger:  slog.Default().With("component", "redis-index"),
	}
}

// BreakerState reports the circuit breaker guarding Redis calls.
func (s *RedisStore) BreakerState() resilience.State {
	return s.breaker.GetState()
}

func (s *RedisStore) Replace(ctx context.Context, docID int64, freqs map[string]int) error {
	id := strconv.FormatInt(docID, 10)
	var previous []string
	err := s.do(ctx, "read document terms", func(ctx context.Context) error {
		terms, err := s.rdb.SMembers(ctx, s.docKey(id)).Result()
		previous = terms
		return err
	})
	if err != nil {
		return err
	}

	if len(previous) > 0 {
		err = s.do(ctx, "remove postings", func(ctx context.Context) error {
			_, err := s.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
				for _, term := range previous {
					removePosting.Eval(ctx, pipe, []string{s.termKey(term), s.dfKey()}, id, term)
				}
				pipe.Del(ctx, s.docKey(id))
				return nil
			})
			return err
		})
		if err != nil {
			return err
		}
	}

	terms := make([]interface{}, 0, len(freqs))
	for term, tf := range freqs {
		if tf > 0 {
			terms = append(terms, term)
		}
	}

	return s.do(ctx, "write postings", func(ctx context.Context) error {
		_, err := s.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
			if len(terms) == 0 {
				removeDocument.Eval(ctx, pipe, []string{s.docsKey(), s.docCountKey()}, id)
			} else {
				// Reverse mapping first: a crash after this point leaves
				// postings that the next Replace can find and remove.
				pipe.SAdd(ctx, s.docKey(id), terms...)
				for _, t := range terms {
					term := t.(string)
					addPosting.Eval(ctx, pipe, []string{s.termKey(term), s.dfKey()}, id, term, freqs[term])
				}
				addDocument.Eval(ctx, pipe, []string{s.docsKey(), s.docCountKey()}, id)
			}
			pipe.Incr(ctx, s.generationKey())
			return nil
		})
		return err
	})
}

// Clear drops every posting and statistic. The generation counter is kept
// and bumped so cached results from before the clear are never reused.
func (s *RedisStore) Clear(ctx context.Context) error {
	for _, pattern := range []string{s.key("term:*"), s.key("doc:*")} {
		err := s.do(ctx, "clear "+pattern, func(ctx context.Context) error {
			_, err := s.client.FlushByPattern(ctx, pattern)
			return err
		})
		if err != nil {
			return err
		}
	}
	err := s.do(ctx, "clear statistics", func(ctx context.Context) error {
		_, err := s.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, s.dfKey(), s.docsKey(), s.docCountKey())
			pipe.Incr(ctx, s.generationKey())
			return nil
		})
		return err
	})
	if err != nil {
		return err
	}
	s.logger.Info("index cleared", "prefix", s.prefix)
	return nil
}

func (s *RedisStore) Postings(ctx context.Context, term string) (PostingList, error) {
	var raw map[string]string
	err := s.do(ctx, "read postings", func(ctx context.Context) error {
		var err error
		raw, err = s.rdb.HGetAll(ctx, s.termKey(term)).Result()
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}
	result := make(PostingList, 0, len(raw))
	for field, value := range raw {
		docID, err := strconv.ParseInt(field, 10, 64)
		if err != nil {
			s.logger.Warn("skipping malformed posting", "term", term, "doc_id", field)
			continue
		}
		tf, err := strconv.Atoi(value)
		if err != nil || tf <= 0 {
			s.logger.Warn("skipping malformed posting", "term", term, "doc_id", field, "tf", value)
			continue
		}
		result = append(result, Posting{DocID: docID, Frequency: tf})
	}
	result.SortByDocID()
	return result, nil
}

func (s *RedisStore) DocumentCount(ctx context.Context) (int64, error) {
	return s.getInt(ctx, s.docCountKey())
}

func (s *RedisStore) DocumentFrequency(ctx context.Context, term string) (int64, error) {
	var df int64
	err := s.do(ctx, "read document frequency", func(ctx context.Context) error {
		v, err := s.rdb.HGet(ctx, s.dfKey(), term).Int64()
		if pkgredis.IsNilError(err) {
			return nil
		}
		df = v
		return err
	})
	if err != nil {
		return 0, err
	}
	return max(df, 0), nil
}

func (s *RedisStore) Generation(ctx context.Context) (int64, error) {
	return s.getInt(ctx, s.generationKey())
}

func (s *RedisStore) Stats(ctx context.Context) (Stats, error) {
	var (
		docCount, generation *redis.StringCmd
		hlen                 *redis.IntCmd
	)
	err := s.do(ctx, "read stats", func(ctx context.Context) error {
		_, err := s.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
			docCount = pipe.Get(ctx, s.docCountKey())
			hlen = pipe.HLen(ctx, s.dfKey())
			generation = pipe.Get(ctx, s.generationKey())
			return nil
		})
		if pkgredis.IsNilError(err) {
			return nil
		}
		return err
	})
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		DocumentCount: max(intOrZero(docCount), 0),
		TermCount:     hlen.Val(),
		Generation:    intOrZero(generation),
	}, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.do(ctx, "ping", s.client.Ping)
}

func (s *RedisStore) getInt(ctx context.Context, key string) (int64, error) {
	var n int64
	err := s.do(ctx, "read "+key, func(ctx context.Context) error {
		v, err := s.rdb.Get(ctx, key).Int64()
		if pkgredis.IsNilError(err) {
			return nil
		}
		n = v
		return err
	})
	if err != nil {
		return 0, err
	}
	return max(n, 0), nil
}

// do runs fn under the circuit breaker with the per-operation timeout and
// maps any failure to ErrStoreUnavailable.
func (s *RedisStore) do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	err := s.breaker.Execute(func() error {
		opCtx := ctx
		if s.timeout > 0 {
			var cancel context.CancelFunc
			opCtx, cancel = context.WithTimeout(ctx, s.timeout)
			defer cancel()
		}
		return fn(opCtx)
	})
	if err != nil {
		return fmt.Errorf("%w: %s: %w", apperrors.ErrStoreUnavailable, op, err)
	}
	return nil
}

func intOrZero(cmd *redis.StringCmd) int64 {
	v, err := cmd.Int64()
	if err != nil {
		return 0
	}
	return v
}

func (s *RedisStore) key(suffix string) string   { return s.prefix + ":" + suffix }
func (s *RedisStore) termKey(term string) string { return s.key("term:" + term) }
func (s *RedisStore) docKey(id string) string    { return s.key("doc:" + id) }
func (s *RedisStore) dfKey() string              { return s.key("df") }
func (s *RedisStore) docsKey() string            { return s.key("docs") }
func (s *RedisStore) docCountKey() string        { return s.key("doc_count") }
func (s *RedisStore) generationKey() string      { return s.key("generation") }
func (s *RedisStore) rebuildLockKey() string     { return s.key("rebuild_lock") }
