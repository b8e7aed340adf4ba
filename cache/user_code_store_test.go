package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruicore/dingbridge/domain"
	"github.com/ruicore/dingbridge/errors"
)

func TestUserCodeSingleUse(t *testing.T) {
	store := NewMemoryUserCodeStore(time.Hour)
	defer store.Close()

	user := &domain.DingUser{Nick: "alex", CorpID: "corp1", UserID: "u1", UnionID: "un1", OpenID: "o1"}
	require.NoError(t, store.Put(context.Background(), "code-1", user))

	got, err := store.Take(context.Background(), "code-1")
	require.NoError(t, err)
	assert.Equal(t, user, got)

	_, err = store.Take(context.Background(), "code-1")
	assert.ErrorIs(t, err, errors.ErrConsumedCode)
}

func TestUserCodeUnknown(t *testing.T) {
	store := NewMemoryUserCodeStore(time.Hour)
	defer store.Close()

	_, err := store.Take(context.Background(), "never-stored")
	assert.ErrorIs(t, err, errors.ErrConsumedCode)
}
