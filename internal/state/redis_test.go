package state

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMiniredis(t *testing.T) (*miniredis.Miniredis, *RedisStore) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	store := NewRedisStoreFromClient(client, "test:")

	t.Cleanup(func() {
		_ = store.Close()
	})

	return mr, store
}

func TestRedisStore_UsesSingleHash(t *testing.T) {
	mr, store := setupMiniredis(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, Record{"todaySeconds": "30", "dayKey": "2024-01-02"}))

	assert.True(t, mr.Exists("test:ledger"))
	assert.Equal(t, "30", mr.HGet("test:ledger", "todaySeconds"))
	assert.Equal(t, "2024-01-02", mr.HGet("test:ledger", "dayKey"))
}

func TestRedisStore_GetMissingFieldsAreAbsent(t *testing.T) {
	mr, store := setupMiniredis(t)
	mr.HSet("test:ledger", "streakCount", "3")

	rec, err := store.Get(context.Background(), "streakCount", "streakLastActiveDay")
	require.NoError(t, err)
	assert.Equal(t, Record{"streakCount": "3"}, rec)
}

func TestRedisStore_DefaultPrefix(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStoreFromClient(client, "")
	defer store.Close()

	require.NoError(t, store.Set(context.Background(), Record{"a": "1"}))
	assert.True(t, mr.Exists("activityledger:ledger"))
}

func TestRedisStore_UnavailableServer(t *testing.T) {
	mr, store := setupMiniredis(t)
	mr.Close()

	_, err := store.Get(context.Background(), "todaySeconds")
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.ErrorIs(t, store.Update(context.Background(), func(Record) (Record, error) {
		return Record{"a": "1"}, nil
	}), ErrStoreUnavailable)
	assert.ErrorIs(t, store.Set(context.Background(), Record{"a": "1"}), ErrStoreUnavailable)
}

func TestNewRedisStore_RequiresAddr(t *testing.T) {
	_, err := NewRedisStore(RedisConfig{})
	assert.Error(t, err)
}

func TestNewRedisStore_Ping(t *testing.T) {
	mr := miniredis.RunT(t)
	store, err := NewRedisStore(RedisConfig{Addr: mr.Addr(), Prefix: "p:"})
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Set(context.Background(), Record{"a": "1"}))
	assert.True(t, mr.Exists("p:ledger"))
}
