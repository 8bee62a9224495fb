package utils

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cachedStats struct {
	Total int64 `json:"total"`
}

func TestCacheJSONRoundTrip(t *testing.T) {
	db, mock := redismock.NewClientMock()
	cache := NewCache(db, "gym")
	ctx := context.Background()

	raw, _ := json.Marshal(cachedStats{Total: 7})
	mock.ExpectSet("gym:dashboard", raw, time.Minute).SetVal("OK")
	mock.ExpectGet("gym:dashboard").SetVal(string(raw))
	mock.ExpectGet("gym:missing").RedisNil()

	require.NoError(t, cache.SetJSON(ctx, "dashboard", cachedStats{Total: 7}, time.Minute))

	var got cachedStats
	hit, err := cache.GetJSON(ctx, "dashboard", &got)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, int64(7), got.Total)

	hit, err = cache.GetJSON(ctx, "missing", &got)
	require.NoError(t, err)
	assert.False(t, hit)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCacheLease(t *testing.T) {
	db, mock := redismock.NewClientMock()
	cache := NewCache(db, "")
	ctx := context.Background()

	mock.ExpectSetNX("lease:sweep", "worker-1", 5*time.Minute).SetVal(true)
	mock.ExpectSetNX("lease:sweep", "worker-2", 5*time.Minute).SetVal(false)
	mock.ExpectEval(releaseLeaseScript, []string{"lease:sweep"}, "worker-1").SetVal(int64(1))

	ok, err := cache.AcquireLease(ctx, "sweep", "worker-1", 5*time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = cache.AcquireLease(ctx, "sweep", "worker-2", 5*time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, cache.ReleaseLease(ctx, "sweep", "worker-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCacheDeletePrefixesKeys(t *testing.T) {
	db, mock := redismock.NewClientMock()
	cache := NewCache(db, "gym")
	mock.ExpectDel("gym:a", "gym:b").SetVal(2)

	require.NoError(t, cache.Delete(context.Background(), "a", "b"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenKeyIsStable(t *testing.T) {
	assert.Equal(t, TokenKey("abc"), TokenKey("abc"))
	assert.NotEqual(t, TokenKey("abc"), TokenKey("abd"))
	assert.NotContains(t, TokenKey("secret-token"), "secret-token")
}
