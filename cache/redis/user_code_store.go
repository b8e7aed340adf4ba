// Package redis provides the redis-backed single-use auth-code store used by
// cloud deployments, where callback and retrieval may land on different
// replicas.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ruicore/dingbridge/domain"
	"github.com/ruicore/dingbridge/errors"
)

// UserCodeStore implements domain.UserCodeStore on a redis client. GETDEL
// gives the single-use guarantee atomically across replicas.
type UserCodeStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewUserCodeStore creates the store. Codes expire after ttl if never read.
func NewUserCodeStore(client *redis.Client, ttl time.Duration) *UserCodeStore {
	return &UserCodeStore{client: client, ttl: ttl}
}

func (s *UserCodeStore) key(authCode string) string {
	return "dingbridge:authcode:" + authCode
}

// Put implements domain.UserCodeStore.
func (s *UserCodeStore) Put(ctx context.Context, authCode string, user *domain.DingUser) error {
	payload, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("marshal user record: %w", err)
	}
	if err := s.client.Set(ctx, s.key(authCode), payload, s.ttl).Err(); err != nil {
		return errors.NewStorageError("store auth code record", err)
	}
	return nil
}

// Take implements domain.UserCodeStore.
func (s *UserCodeStore) Take(ctx context.Context, authCode string) (*domain.DingUser, error) {
	payload, err := s.client.GetDel(ctx, s.key(authCode)).Result()
	if err == redis.Nil {
		return nil, errors.NewConsumedCode(authCode)
	}
	if err != nil {
		return nil, errors.NewStorageError("read auth code record", err)
	}

	var user domain.DingUser
	if err := json.Unmarshal([]byte(payload), &user); err != nil {
		return nil, fmt.Errorf("unmarshal user record: %w", err)
	}
	return &user, nil
}
