package index

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/note-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/note-search/pkg/errors"
	pkgredis "github.com/Adithya-Monish-Kumar-K/note-search/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/note-search/pkg/resilience"
)

func newTestRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	store := NewRedisStore(pkgredis.Wrap(rdb), config.IndexConfig{
		KeyPrefix:        "test",
		OperationTimeout: time.Second,
		CircuitBreaker: config.CircuitBreakerConfig{
			FailureThreshold: 3,
			ResetTimeout:     time.Minute,
		},
	})
	return store, mr
}

func backends(t *testing.T) map[string]func() Store {
	return map[string]func() Store{
		"memory": func() Store { return NewMemoryStore() },
		"redis": func() Store {
			store, _ := newTestRedisStore(t)
			return store
		},
	}
}

func postingsOf(t *testing.T, s Store, term string) map[int64]int {
	t.Helper()
	pl, err := s.Postings(context.Background(), term)
	require.NoError(t, err)
	out := make(map[int64]int, len(pl))
	for _, p := range pl {
		out[p.DocID] = p.Frequency
	}
	return out
}

// checkInvariants verifies df(term) == |postings(term)| for every term.
func checkInvariants(t *testing.T, s Store, terms []string) {
	t.Helper()
	ctx := context.Background()
	for _, term := range terms {
		pl, err := s.Postings(ctx, term)
		require.NoError(t, err)
		df, err := s.DocumentFrequency(ctx, term)
		require.NoError(t, err)
		assert.Equal(t, int64(len(pl)), df, "df mismatch for %q", term)
	}
}

func TestStoreReplace(t *testing.T) {
	for name, newStore := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := newStore()

			require.NoError(t, s.Replace(ctx, 1, map[string]int{"go": 2, "redis": 1}))
			require.NoError(t, s.Replace(ctx, 2, map[string]int{"go": 1}))

			n, err := s.DocumentCount(ctx)
			require.NoError(t, err)
			assert.Equal(t, int64(2), n)
			assert.Equal(t, map[int64]int{1: 2, 2: 1}, postingsOf(t, s, "go"))
			assert.Equal(t, map[int64]int{1: 1}, postingsOf(t, s, "redis"))

			// Re-indexing replaces, never accumulates.
			require.NoError(t, s.Replace(ctx, 1, map[string]int{"go": 5, "kafka": 1}))
			assert.Equal(t, map[int64]int{1: 5, 2: 1}, postingsOf(t, s, "go"))
			assert.Empty(t, postingsOf(t, s, "redis"))
			df, err := s.DocumentFrequency(ctx, "redis")
			require.NoError(t, err)
			assert.Zero(t, df)
			n, err = s.DocumentCount(ctx)
			require.NoError(t, err)
			assert.Equal(t, int64(2), n)

			checkInvariants(t, s, []string{"go", "redis", "kafka"})
		})
	}
}

func TestStoreIdempotentIndex(t *testing.T) {
	for name, newStore := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := newStore()
			freqs := map[string]int{"note": 3, "blog": 1}
			require.NoError(t, s.Replace(ctx, 7, freqs))
			require.NoError(t, s.Replace(ctx, 7, freqs))

			n, err := s.DocumentCount(ctx)
			require.NoError(t, err)
			assert.Equal(t, int64(1), n)
			assert.Equal(t, map[int64]int{7: 3}, postingsOf(t, s, "note"))
			df, err := s.DocumentFrequency(ctx, "note")
			require.NoError(t, err)
			assert.Equal(t, int64(1), df)
		})
	}
}

func TestStoreRemoveRoundTrip(t *testing.T) {
	for name, newStore := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := newStore()
			require.NoError(t, s.Replace(ctx, 1, map[string]int{"alpha": 1, "beta": 2}))

			before := map[string]int64{}
			for _, term := range []string{"alpha", "beta", "gamma"} {
				df, err := s.DocumentFrequency(ctx, term)
				require.NoError(t, err)
				before[term] = df
			}
			countBefore, err := s.DocumentCount(ctx)
			require.NoError(t, err)

			require.NoError(t, s.Replace(ctx, 2, map[string]int{"beta": 1, "gamma": 4}))
			require.NoError(t, s.Replace(ctx, 2, nil))

			for term, want := range before {
				df, err := s.DocumentFrequency(ctx, term)
				require.NoError(t, err)
				assert.Equal(t, want, df, term)
			}
			countAfter, err := s.DocumentCount(ctx)
			require.NoError(t, err)
			assert.Equal(t, countBefore, countAfter)

			// Removing an unknown document is a no-op.
			require.NoError(t, s.Replace(ctx, 99, nil))
			countAfter, err = s.DocumentCount(ctx)
			require.NoError(t, err)
			assert.Equal(t, countBefore, countAfter)
		})
	}
}

func TestStoreClear(t *testing.T) {
	for name, newStore := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := newStore()
			require.NoError(t, s.Replace(ctx, 1, map[string]int{"a1": 1}))
			require.NoError(t, s.Replace(ctx, 2, map[string]int{"a1": 1, "b2": 1}))
			genBefore, err := s.Generation(ctx)
			require.NoError(t, err)

			require.NoError(t, s.Clear(ctx))

			n, err := s.DocumentCount(ctx)
			require.NoError(t, err)
			assert.Zero(t, n)
			assert.Empty(t, postingsOf(t, s, "a1"))
			assert.Empty(t, postingsOf(t, s, "b2"))
			genAfter, err := s.Generation(ctx)
			require.NoError(t, err)
			assert.Greater(t, genAfter, genBefore)

			// The index is usable again after a clear.
			require.NoError(t, s.Replace(ctx, 1, map[string]int{"a1": 2}))
			assert.Equal(t, map[int64]int{1: 2}, postingsOf(t, s, "a1"))
			stats, err := s.Stats(ctx)
			require.NoError(t, err)
			assert.Equal(t, int64(1), stats.DocumentCount)
			assert.Equal(t, int64(1), stats.TermCount)
		})
	}
}

func TestStoreRandomOperationsKeepInvariants(t *testing.T) {
	vocabulary := []string{"t0", "t1", "t2", "t3", "t4", "t5"}
	for name, newStore := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := newStore()
			rng := rand.New(rand.NewSource(42))
			live := map[int64]bool{}
			for i := 0; i < 200; i++ {
				docID := int64(rng.Intn(12))
				if rng.Intn(4) == 0 {
					require.NoError(t, s.Replace(ctx, docID, nil))
					delete(live, docID)
					continue
				}
				freqs := map[string]int{}
				for _, term := range vocabulary {
					if rng.Intn(3) == 0 {
						freqs[term] = 1 + rng.Intn(4)
					}
				}
				require.NoError(t, s.Replace(ctx, docID, freqs))
				if len(freqs) > 0 {
					live[docID] = true
				} else {
					delete(live, docID)
				}
			}
			checkInvariants(t, s, vocabulary)
			n, err := s.DocumentCount(ctx)
			require.NoError(t, err)
			assert.Equal(t, int64(len(live)), n)
		})
	}
}

func TestStoreGenerationAdvances(t *testing.T) {
	for name, newStore := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := newStore()
			seen := []int64{}
			for i := int64(1); i <= 3; i++ {
				require.NoError(t, s.Replace(ctx, i, map[string]int{fmt.Sprintf("w%d", i): 1}))
				gen, err := s.Generation(ctx)
				require.NoError(t, err)
				seen = append(seen, gen)
			}
			assert.True(t, sort.SliceIsSorted(seen, func(i, j int) bool { return seen[i] < seen[j] }))
			assert.NotEqual(t, seen[0], seen[2])
		})
	}
}

func TestRedisStoreUnavailable(t *testing.T) {
	store, mr := newTestRedisStore(t)
	ctx := context.Background()
	require.NoError(t, store.Replace(ctx, 1, map[string]int{"up": 1}))
	mr.Close()

	_, err := store.Postings(ctx, "up")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrStoreUnavailable)

	err = store.Replace(ctx, 2, map[string]int{"down": 1})
	assert.ErrorIs(t, err, apperrors.ErrStoreUnavailable)
	assert.ErrorIs(t, store.Ping(ctx), apperrors.ErrStoreUnavailable)
}

func TestRedisStoreBreakerOpens(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { rdb.Close() })

	var transitions []resilience.State
	store := NewRedisStore(pkgredis.Wrap(rdb), config.IndexConfig{
		OperationTimeout: time.Second,
		CircuitBreaker: config.CircuitBreakerConfig{
			FailureThreshold: 2,
			ResetTimeout:     time.Minute,
		},
	}, WithBreakerObserver(func(_ string, _, to resilience.State) {
		transitions = append(transitions, to)
	}))
	ctx := context.Background()
	mr.Close()

	for range 2 {
		_, err := store.Postings(ctx, "x")
		require.ErrorIs(t, err, apperrors.ErrStoreUnavailable)
	}
	assert.Equal(t, resilience.StateOpen, store.BreakerState())
	assert.Equal(t, []resilience.State{resilience.StateOpen}, transitions)

	_, err := store.Postings(ctx, "x")
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
}

func TestRedisStoreKeyLayout(t *testing.T) {
	store, mr := newTestRedisStore(t)
	ctx := context.Background()
	require.NoError(t, store.Replace(ctx, 42, map[string]int{"gopher": 3}))

	assert.Equal(t, "3", mr.HGet("test:term:gopher", "42"))
	assert.Equal(t, "1", mr.HGet("test:df", "gopher"))
	members, err := mr.Members("test:doc:42")
	require.NoError(t, err)
	assert.Equal(t, []string{"gopher"}, members)
	count, err := mr.Get("test:doc_count")
	require.NoError(t, err)
	assert.Equal(t, "1", count)
}

func TestRedisRebuildLease(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestRedisStore(t)

	first, err := store.AcquireRebuildLease(ctx, 30*time.Second)
	require.NoError(t, err)
	assert.True(t, mr.Exists("test:rebuild_lock"))

	_, err = store.AcquireRebuildLease(ctx, 30*time.Second)
	require.ErrorIs(t, err, apperrors.ErrRebuildInProgress)

	// Clear must not drop the lease of the rebuild that issued it.
	require.NoError(t, store.Clear(ctx))
	assert.True(t, mr.Exists("test:rebuild_lock"))

	require.NoError(t, first.Release(ctx))
	require.NoError(t, first.Release(ctx))
	assert.False(t, mr.Exists("test:rebuild_lock"))

	second, err := store.AcquireRebuildLease(ctx, 30*time.Second)
	require.NoError(t, err)
	require.NoError(t, second.Release(ctx))
}

func TestRedisRebuildLeaseExpires(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestRedisStore(t)

	stale, err := store.AcquireRebuildLease(ctx, 30*time.Second)
	require.NoError(t, err)
	mr.FastForward(31 * time.Second)

	current, err := store.AcquireRebuildLease(ctx, 30*time.Second)
	require.NoError(t, err)

	// A holder whose lease expired must not release its successor's lease.
	require.NoError(t, stale.Release(ctx))
	assert.True(t, mr.Exists("test:rebuild_lock"))

	require.NoError(t, current.Release(ctx))
	assert.False(t, mr.Exists("test:rebuild_lock"))
}

func TestMemoryRebuildLease(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	a, err := store.AcquireRebuildLease(ctx, time.Second)
	require.NoError(t, err)
	b, err := store.AcquireRebuildLease(ctx, time.Second)
	require.NoError(t, err)
	require.NoError(t, a.Release(ctx))
	require.NoError(t, b.Release(ctx))
}
