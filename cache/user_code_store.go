package cache

import (
	"context"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/rs/zerolog/log"

	"github.com/ruicore/dingbridge/domain"
	"github.com/ruicore/dingbridge/errors"
)

// MemoryUserCodeStore keeps auth-code → user records in process memory for a
// single retrieval. The mutex makes Take atomic: two readers racing on the
// same code cannot both succeed.
type MemoryUserCodeStore struct {
	mu    sync.Mutex
	cache *ttlcache.Cache[string, *domain.DingUser]
}

// NewMemoryUserCodeStore creates the store. Codes the platform never calls
// back for are evicted after ttl.
func NewMemoryUserCodeStore(ttl time.Duration) *MemoryUserCodeStore {
	c := ttlcache.New(
		ttlcache.WithTTL[string, *domain.DingUser](ttl),
		ttlcache.WithDisableTouchOnHit[string, *domain.DingUser](),
	)
	go c.Start()

	return &MemoryUserCodeStore{cache: c}
}

// Put implements domain.UserCodeStore.
func (s *MemoryUserCodeStore) Put(_ context.Context, authCode string, user *domain.DingUser) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Set(authCode, user, ttlcache.DefaultTTL)
	return nil
}

// Take implements domain.UserCodeStore. The entry is removed on first read.
func (s *MemoryUserCodeStore) Take(ctx context.Context, authCode string) (*domain.DingUser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item := s.cache.Get(authCode)
	if item == nil {
		return nil, errors.NewConsumedCode(authCode)
	}
	s.cache.Delete(authCode)

	log.Ctx(ctx).Warn().Str("auth_code", authCode).Msg("auth code consumed, further lookups will fail")
	return item.Value(), nil
}

// Close stops the eviction goroutine.
func (s *MemoryUserCodeStore) Close() {
	s.cache.Stop()
}
