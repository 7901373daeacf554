package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	appErrors "github.com/conces/conces-api/pkg/errors"
)

func newCacheRepo(t *testing.T) (*CacheRepository, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewCacheRepository(client, zap.NewNop()), mr
}

func TestCacheRepositoryRoundTrip(t *testing.T) {
	repo, _ := newCacheRepo(t)
	ctx := context.Background()

	type payload struct {
		Name  string `json:"name"`
		Total int    `json:"total"`
	}

	require.NoError(t, repo.Set(ctx, "alumni:list:abc", payload{Name: "Ada", Total: 3}, time.Minute))

	var got payload
	require.NoError(t, repo.Get(ctx, "alumni:list:abc", &got))
	assert.Equal(t, "Ada", got.Name)
	assert.Equal(t, 3, got.Total)
}

func TestCacheRepositoryMiss(t *testing.T) {
	repo, _ := newCacheRepo(t)

	var dest map[string]string
	err := repo.Get(context.Background(), "missing", &dest)
	assert.ErrorIs(t, err, appErrors.ErrCacheMiss)
}

func TestCacheRepositoryExpiry(t *testing.T) {
	repo, mr := newCacheRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Set(ctx, "alumni:list:abc", "value", time.Second))
	mr.FastForward(2 * time.Second)

	var dest string
	err := repo.Get(ctx, "alumni:list:abc", &dest)
	assert.ErrorIs(t, err, appErrors.ErrCacheMiss)
}

func TestCacheRepositoryDeleteByPattern(t *testing.T) {
	repo, _ := newCacheRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Set(ctx, "alumni:list:1", "a", time.Minute))
	require.NoError(t, repo.Set(ctx, "alumni:list:2", "b", time.Minute))
	require.NoError(t, repo.Set(ctx, "users:list:1", "c", time.Minute))

	require.NoError(t, repo.DeleteByPattern(ctx, "alumni:list:*"))

	var dest string
	assert.ErrorIs(t, repo.Get(ctx, "alumni:list:1", &dest), appErrors.ErrCacheMiss)
	assert.ErrorIs(t, repo.Get(ctx, "alumni:list:2", &dest), appErrors.ErrCacheMiss)
	assert.NoError(t, repo.Get(ctx, "users:list:1", &dest))
}

func TestCacheRepositoryNilClient(t *testing.T) {
	repo := NewCacheRepository(nil, zap.NewNop())
	ctx := context.Background()

	assert.NoError(t, repo.Set(ctx, "k", "v", time.Minute))
	var dest string
	assert.ErrorIs(t, repo.Get(ctx, "k", &dest), appErrors.ErrCacheMiss)
	assert.NoError(t, repo.DeleteByPattern(ctx, "*"))
	assert.NoError(t, repo.Close())
}
