package repository

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/ruicore/dingbridge/domain"
)

const defaultEntryTTL = 10 * time.Minute

// Cached wraps another repository with an in-process read-through cache for
// suite and corp-authorization lookups. Writes go to the inner repository
// first and the cache second, so a failed write never leaves a stale entry
// behind.
type Cached struct {
	inner  domain.Repository
	suites *ttlcache.Cache[string, *domain.Suite]
	auths  *ttlcache.Cache[domain.CorpID, *domain.CorpAuth]
}

// NewCached builds the decorator. ttl <= 0 falls back to a ten minute default.
func NewCached(inner domain.Repository, ttl time.Duration) *Cached {
	if ttl <= 0 {
		ttl = defaultEntryTTL
	}
	c := &Cached{
		inner:  inner,
		suites: ttlcache.New(ttlcache.WithTTL[string, *domain.Suite](ttl)),
		auths:  ttlcache.New(ttlcache.WithTTL[domain.CorpID, *domain.CorpAuth](ttl)),
	}
	go c.suites.Start()
	go c.auths.Start()
	return c
}

// Close stops the cache janitors.
func (c *Cached) Close() {
	c.suites.Stop()
	c.auths.Stop()
}

func (c *Cached) SaveSuiteTicket(ctx context.Context, suite *domain.Suite) error {
	if err := c.inner.SaveSuiteTicket(ctx, suite); err != nil {
		return err
	}
	c.suites.Set(suite.SuiteKey, suite, ttlcache.DefaultTTL)
	return nil
}

func (c *Cached) GetSuite(ctx context.Context, suiteKey string) (*domain.Suite, error) {
	if item := c.suites.Get(suiteKey); item != nil {
		return item.Value(), nil
	}
	suite, err := c.inner.GetSuite(ctx, suiteKey)
	if err != nil {
		return nil, err
	}
	c.suites.Set(suiteKey, suite, ttlcache.DefaultTTL)
	return suite, nil
}

func (c *Cached) SaveOrgSuiteAuth(ctx context.Context, corpID domain.CorpID, raw []byte, permanentCode string) error {
	if err := c.inner.SaveOrgSuiteAuth(ctx, corpID, raw, permanentCode); err != nil {
		return err
	}
	c.auths.Delete(corpID)
	return nil
}

func (c *Cached) RelieveOrgSuiteAuth(ctx context.Context, corpID domain.CorpID) error {
	if err := c.inner.RelieveOrgSuiteAuth(ctx, corpID); err != nil {
		return err
	}
	c.auths.Delete(corpID)
	return nil
}

func (c *Cached) GetOrgSuiteAuth(ctx context.Context, corpID domain.CorpID) (*domain.CorpAuth, error) {
	if item := c.auths.Get(corpID); item != nil {
		return item.Value(), nil
	}
	auth, err := c.inner.GetOrgSuiteAuth(ctx, corpID)
	if err != nil {
		return nil, err
	}
	c.auths.Set(corpID, auth, ttlcache.DefaultTTL)
	return auth, nil
}

func (c *Cached) SaveUser(ctx context.Context, authCode string, user *domain.DingUser) error {
	return c.inner.SaveUser(ctx, authCode, user)
}

func (c *Cached) GetUserByAuthCode(ctx context.Context, authCode string) (*domain.DingUser, error) {
	return c.inner.GetUserByAuthCode(ctx, authCode)
}

func (c *Cached) OfUserIDs(ctx context.Context, userIDs []domain.UserID) ([]*domain.DingUser, error) {
	return c.inner.OfUserIDs(ctx, userIDs)
}
