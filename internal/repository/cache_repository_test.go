package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/reposition-api/pkg/errors"
)

func TestCacheRepositoryWithoutClientMisses(t *testing.T) {
	repo := NewCacheRepository(nil, "reposition:")
	var dest map[string]int

	err := repo.Get(context.Background(), "roster:x", &dest)
	assert.True(t, errors.Is(err, appErrors.ErrCacheMiss))
	assert.NoError(t, repo.Set(context.Background(), "roster:x", map[string]int{"a": 1}, time.Minute))
	assert.NoError(t, repo.Delete(context.Background(), "roster:x"))
}

func TestCacheRepositorySurfacesConnectionErrors(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1})
	defer client.Close()
	repo := NewCacheRepository(client, "reposition:")

	var dest map[string]int
	err := repo.Get(context.Background(), "roster:x", &dest)
	require.Error(t, err)
	assert.False(t, errors.Is(err, appErrors.ErrCacheMiss))
	assert.Contains(t, err.Error(), "roster:x")

	err = repo.Set(context.Background(), "roster:x", map[string]int{"a": 1}, time.Minute)
	require.Error(t, err)

	err = repo.Set(context.Background(), "bad", func() {}, time.Minute)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "marshal")
}
