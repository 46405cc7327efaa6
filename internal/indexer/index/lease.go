package index

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	apperrors "github.com/Adithya-Monish-Kumar-K/note-search/pkg/errors"
)

const defaultLeaseTTL = 30 * time.Second

// Lease is an exclusive rebuild claim. Release must be called once the
// rebuild has finished.
type Lease interface {
	Release(ctx context.Context) error
}

type noopLease struct{}

func (noopLease) Release(context.Context) error { return nil }

// renewLease extends the lease only while it still holds our token.
var renewLease = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 0
`)

var releaseLease = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

// AcquireRebuildLease sets P:rebuild_lock to a fresh token if it is absent.
// While held, the lease is renewed every ttl/3 so a long rebuild keeps it;
// a crashed holder loses it after ttl.
func (s *RedisStore) AcquireRebuildLease(ctx context.Context, ttl time.Duration) (Lease, error) {
	if ttl <= 0 {
		ttl = defaultLeaseTTL
	}
	token := uuid.NewString()
	var acquired bool
	err := s.do(ctx, "acquire rebuild lease", func(ctx context.Context) error {
		var err error
		acquired, err = s.rdb.SetNX(ctx, s.rebuildLockKey(), token, ttl).Result()
		return err
	})
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, apperrors.ErrRebuildInProgress
	}

	l := &redisLease{
		store: s,
		token: token,
		ttl:   ttl,
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	go l.keepAlive()
	s.logger.Debug("rebuild lease acquired", "ttl", ttl)
	return l, nil
}

type redisLease struct {
	store    *RedisStore
	token    string
	ttl      time.Duration
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func (l *redisLease) keepAlive() {
	defer close(l.done)
	ticker := time.NewTicker(l.ttl / 3)
	defer ticker.Stop()
	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			var held int64
			err := l.store.do(context.Background(), "renew rebuild lease", func(ctx context.Context) error {
				var err error
				held, err = renewLease.Run(ctx, l.store.rdb, []string{l.store.rebuildLockKey()},
					l.token, l.ttl.Milliseconds()).Int64()
				return err
			})
			if err != nil {
				l.store.logger.Warn("failed to renew rebuild lease", "error", err)
				continue
			}
			if held == 0 {
				l.store.logger.Error("rebuild lease lost to another holder")
				return
			}
		}
	}
}

// Release stops renewal and deletes the lock if it still holds our token.
// It is safe to call more than once.
func (l *redisLease) Release(ctx context.Context) error {
	l.stopOnce.Do(func() { close(l.stop) })
	<-l.done
	return l.store.do(ctx, "release rebuild lease", func(ctx context.Context) error {
		return releaseLease.Run(ctx, l.store.rdb, []string{l.store.rebuildLockKey()}, l.token).Err()
	})
}

// AcquireRebuildLease always succeeds. A MemoryStore lives in one process,
// and the engine already allows one rebuild at a time there.
func (m *MemoryStore) AcquireRebuildLease(context.Context, time.Duration) (Lease, error) {
	return noopLease{}, nil
}
