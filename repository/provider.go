package repository

import (
	"context"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/ruicore/dingbridge/cache"
	cacheredis "github.com/ruicore/dingbridge/cache/redis"
	"github.com/ruicore/dingbridge/config"
	"github.com/ruicore/dingbridge/domain"
	"github.com/ruicore/dingbridge/gormdb"
	"github.com/ruicore/dingbridge/mongodb"
	"github.com/ruicore/dingbridge/remote"
)

const authCodeTTL = 15 * time.Minute

// New builds the repository for the configured deployment mode. The returned
// close function releases whatever backends were opened.
func New(ctx context.Context, cfg *config.Config) (domain.Repository, func(context.Context) error, error) {
	switch cfg.DeployMode {
	case config.ModeCloud:
		return newCloud(ctx, cfg)
	case config.ModeLocal:
		return newLocal(cfg)
	default:
		return newDevDebug(cfg)
	}
}

func newCloud(ctx context.Context, cfg *config.Config) (domain.Repository, func(context.Context) error, error) {
	db, disconnect, err := mongodb.Connect(ctx, cfg.MongoURI, cfg.MongoDBName)
	if err != nil {
		return nil, nil, err
	}

	var codes domain.UserCodeStore
	var closeCodes func()
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		codes = cacheredis.NewUserCodeStore(client, authCodeTTL)
		closeCodes = func() { _ = client.Close() }
	} else {
		log.Warn().Msg("REDIS_ADDR not set, auth codes held in process memory")
		store := cache.NewMemoryUserCodeStore(authCodeTTL)
		codes = store
		closeCodes = store.Close
	}

	repo, err := mongodb.NewRepository(ctx, db, codes)
	if err != nil {
		closeCodes()
		_ = disconnect(ctx)
		return nil, nil, err
	}

	closer := func(ctx context.Context) error {
		closeCodes()
		return disconnect(ctx)
	}
	return repo, closer, nil
}

func newLocal(cfg *config.Config) (domain.Repository, func(context.Context) error, error) {
	db, err := gormdb.Open(cfg.SQLitePath)
	if err != nil {
		return nil, nil, err
	}
	users := gormdb.NewRepository(db, nil)
	cloud := remote.NewClient(cfg.CloudHost, cfg.SecretUser, cfg.SecretPassword, &http.Client{Timeout: 10 * time.Second})
	return NewLocal(users, cloud), func(context.Context) error { return nil }, nil
}

func newDevDebug(cfg *config.Config) (domain.Repository, func(context.Context) error, error) {
	db, err := gormdb.Open(cfg.SQLitePath)
	if err != nil {
		return nil, nil, err
	}
	codes := cache.NewMemoryUserCodeStore(authCodeTTL)
	cached := NewCached(gormdb.NewRepository(db, codes), defaultEntryTTL)

	closer := func(context.Context) error {
		cached.Close()
		codes.Close()
		return nil
	}
	return cached, closer, nil
}
