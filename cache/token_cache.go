// Package cache holds the in-process credential caches: the bearer-token
// cache keyed by scope and the single-use auth-code store.
package cache

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/rs/zerolog/log"

	"github.com/ruicore/dingbridge/domain"
)

// SuiteScope is the singleton scope key of the suite-wide access token.
// Corp tokens use CorpScope.
const SuiteScope = "suite"

// CorpScope returns the token scope key of a corp.
func CorpScope(corpID domain.CorpID) string { return "corp:" + corpID }

// FetchFunc performs the actual token exchange and returns the bearer value
// with its TTL in seconds.
type FetchFunc func(ctx context.Context) (value string, expiresIn int64, err error)

// TokenCache maps scope keys to the most recently obtained access token,
// refreshing lazily on the request path. Concurrent refreshes under the same
// scope may duplicate a fetch; the issuance endpoints are idempotent per
// scope and tokens are fungible, so no single-flight is attempted.
type TokenCache struct {
	cache *ttlcache.Cache[string, domain.AccessToken]
}

// NewTokenCache creates the cache with background expiry cleanup.
func NewTokenCache() *TokenCache {
	c := ttlcache.New(
		ttlcache.WithDisableTouchOnHit[string, domain.AccessToken](),
	)
	go c.Start()

	return &TokenCache{cache: c}
}

// GetOrRefresh returns the cached token value for scope if one exists and is
// not expired; otherwise it invokes fetch and stores the replacement. A
// failed fetch leaves the prior entry untouched, so the next call retries
// unconditionally.
func (tc *TokenCache) GetOrRefresh(ctx context.Context, scope string, fetch FetchFunc) (string, error) {
	if item := tc.cache.Get(scope); item != nil && !item.Value().IsExpired() {
		return item.Value().Value, nil
	}

	value, expiresIn, err := fetch(ctx)
	if err != nil {
		return "", err
	}

	token := domain.NewAccessToken(value, expiresIn)
	if ttl := time.Until(token.ExpiresAt); ttl > 0 {
		tc.cache.Set(scope, token, ttl)
	}

	log.Ctx(ctx).Debug().
		Str("scope", scope).
		Time("expires_at", token.ExpiresAt).
		Msg("access token refreshed")

	return token.Value, nil
}

// Drop evicts the token cached under scope, if any.
func (tc *TokenCache) Drop(scope string) {
	tc.cache.Delete(scope)
}

// Close stops the cleanup goroutine.
func (tc *TokenCache) Close() {
	tc.cache.Stop()
}
