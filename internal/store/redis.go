package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"crypto-paper-trader/internal/portfolio"
)

const (
	// portfolioKeyPrefix namespaces state keys: paper:portfolio:{account}
	portfolioKeyPrefix = "paper:portfolio"

	// portfolioTTL keeps stale accounts from accumulating forever. A live
	// account refreshes the key every cycle.
	portfolioTTL = 30 * 24 * time.Hour
)

// RedisStore keeps portfolio state in Redis so multiple hosts can run
// cycles against the same account. When Redis is unreachable it falls back
// to an in-memory copy so a cycle still completes; the fallback is lost on
// restart, which the executor handles by starting fresh.
type RedisStore struct {
	client    *redis.Client
	account   string
	logger    zerolog.Logger
	fallback  *portfolio.Portfolio
	mu        sync.RWMutex
	available atomic.Bool
}

// NewRedisStore connects the store. A nil client means memory-only mode,
// useful in tests.
func NewRedisStore(client *redis.Client, account string, logger zerolog.Logger) *RedisStore {
	s := &RedisStore{
		client:  client,
		account: account,
		logger:  logger.With().Str("component", "redis_store").Logger(),
	}

	if client != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			s.logger.Warn().Err(err).Msg("redis unavailable at startup, using in-memory fallback")
		} else {
			s.available.Store(true)
		}
	}
	return s
}

func (s *RedisStore) key() string {
	return fmt.Sprintf("%s:%s", portfolioKeyPrefix, s.account)
}

func (s *RedisStore) LoadPortfolio(ctx context.Context) (*portfolio.Portfolio, error) {
	if s.client != nil && s.available.Load() {
		data, err := s.client.Get(ctx, s.key()).Result()
		if err != nil {
			if err == redis.Nil {
				return s.loadFallback()
			}
			s.logger.Warn().Err(err).Msg("redis read failed, using in-memory fallback")
			s.available.Store(false)
			return s.loadFallback()
		}

		var pf portfolio.Portfolio
		if err := json.Unmarshal([]byte(data), &pf); err != nil {
			return nil, fmt.Errorf("parse portfolio state for %s: %w", s.account, err)
		}
		s.setFallback(&pf)
		return &pf, nil
	}
	return s.loadFallback()
}

func (s *RedisStore) SavePortfolio(ctx context.Context, pf *portfolio.Portfolio) error {
	if pf == nil {
		return fmt.Errorf("cannot save nil portfolio")
	}
	s.setFallback(pf)

	if s.client == nil || !s.available.Load() {
		return nil
	}

	data, err := json.Marshal(pf)
	if err != nil {
		return fmt.Errorf("encode portfolio state: %w", err)
	}
	if err := s.client.Set(ctx, s.key(), data, portfolioTTL).Err(); err != nil {
		s.logger.Warn().Err(err).Msg("redis write failed, state kept in-memory only")
		s.available.Store(false)
		return nil
	}
	return nil
}

func (s *RedisStore) loadFallback() (*portfolio.Portfolio, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.fallback == nil {
		return nil, ErrNotFound
	}
	return clonePortfolio(s.fallback)
}

func (s *RedisStore) setFallback(pf *portfolio.Portfolio) {
	cp, err := clonePortfolio(pf)
	if err != nil {
		s.logger.Warn().Err(err).Msg("fallback snapshot failed, keeping previous state")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fallback = cp
}

// clonePortfolio deep-copies through the same JSON encoding the Redis path
// uses, so the fallback never shares position pointers with a caller.
func clonePortfolio(pf *portfolio.Portfolio) (*portfolio.Portfolio, error) {
	data, err := json.Marshal(pf)
	if err != nil {
		return nil, fmt.Errorf("encode portfolio snapshot: %w", err)
	}
	var cp portfolio.Portfolio
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("decode portfolio snapshot: %w", err)
	}
	return &cp, nil
}
