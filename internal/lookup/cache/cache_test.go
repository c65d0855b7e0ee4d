package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"idlookup/internal/identifier"
	"idlookup/internal/lookup"
	"idlookup/pkg/platform/sentinel"
)

type countingRecorder struct {
	hits, misses int
}

func (r *countingRecorder) RecordCacheHit(string)  { r.hits++ }
func (r *countingRecorder) RecordCacheMiss(string) { r.misses++ }

func successResult() *lookup.Result {
	name := "ANA"
	surname := "DIAZ"
	return &lookup.Result{
		GivenNames:     &name,
		FirstSurname:   &surname,
		Success:        true,
		Message:        lookup.MessageSuccess,
		QueriedAt:      time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		ValidationInfo: identifier.MustDecompose("00123456782").ValidationInfo(),
	}
}

func TestMemoryCache(t *testing.T) {
	ctx := context.Background()

	t.Run("round trip and counts", func(t *testing.T) {
		rec := &countingRecorder{}
		c := NewMemoryCache(10, time.Minute, rec)

		_, err := c.Find(ctx, "00123456782")
		assert.True(t, errors.Is(err, sentinel.ErrNotFound))

		require.NoError(t, c.Save(ctx, "00123456782", successResult()))
		got, err := c.Find(ctx, "00123456782")
		require.NoError(t, err)
		assert.Equal(t, "ANA", *got.GivenNames)
		assert.Equal(t, 1, rec.hits)
		assert.Equal(t, 1, rec.misses)
	})

	t.Run("unsuccessful results are not stored", func(t *testing.T) {
		c := NewMemoryCache(10, time.Minute, nil)
		require.NoError(t, c.Save(ctx, "k", &lookup.Result{Message: lookup.MessageNotFound}))
		require.NoError(t, c.Save(ctx, "k", nil))
		assert.Equal(t, 0, c.Len())
	})

	t.Run("evicts beyond max size", func(t *testing.T) {
		c := NewMemoryCache(2, time.Minute, nil)
		for _, k := range []string{"a", "b", "c"} {
			require.NoError(t, c.Save(ctx, k, successResult()))
		}
		assert.Equal(t, 2, c.Len())
		_, err := c.Find(ctx, "a")
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	t.Run("expires after ttl", func(t *testing.T) {
		c := NewMemoryCache(10, 20*time.Millisecond, nil)
		require.NoError(t, c.Save(ctx, "k", successResult()))
		assert.Eventually(t, func() bool {
			_, err := c.Find(ctx, "k")
			return errors.Is(err, sentinel.ErrNotFound)
		}, time.Second, 10*time.Millisecond)
	})

	t.Run("returned values are copies", func(t *testing.T) {
		c := NewMemoryCache(10, time.Minute, nil)
		require.NoError(t, c.Save(ctx, "k", successResult()))
		got, err := c.Find(ctx, "k")
		require.NoError(t, err)
		got.Message = "mutated"

		again, err := c.Find(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, lookup.MessageSuccess, again.Message)
	})
}

func TestRedisCache(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	t.Run("round trip with ttl", func(t *testing.T) {
		rec := &countingRecorder{}
		c := NewRedisCache(client, time.Hour, "", rec)

		require.NoError(t, c.Save(ctx, "00123456782", successResult()))
		key := c.redisKey("00123456782")
		assert.True(t, mr.Exists(key))
		assert.Equal(t, time.Hour, mr.TTL(key))
		assert.NotContains(t, key, "00123456782")
		assert.Len(t, mr.Keys(), 1)

		got, err := c.Find(ctx, "00123456782")
		require.NoError(t, err)
		assert.Equal(t, "DIAZ", *got.FirstSurname)
		assert.Equal(t, successResult().ValidationInfo, got.ValidationInfo, "same shape as a memory hit")
		assert.Equal(t, 1, rec.hits)
	})

	t.Run("expired entries miss", func(t *testing.T) {
		c := NewRedisCache(client, time.Minute, "t:", nil)
		require.NoError(t, c.Save(ctx, "k", successResult()))
		mr.FastForward(2 * time.Minute)

		_, err := c.Find(ctx, "k")
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	t.Run("unsuccessful results are not stored", func(t *testing.T) {
		c := NewRedisCache(client, time.Minute, "u:", nil)
		require.NoError(t, c.Save(ctx, "k", &lookup.Result{}))
		assert.False(t, mr.Exists(c.redisKey("k")))
	})

	t.Run("corrupt entries are misses", func(t *testing.T) {
		c := NewRedisCache(client, time.Minute, "x:", nil)
		require.NoError(t, mr.Set(c.redisKey("k"), "not-json"))
		_, err := c.Find(ctx, "k")
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	t.Run("backend errors surface", func(t *testing.T) {
		broken := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1, DialTimeout: 50 * time.Millisecond})
		t.Cleanup(func() { _ = broken.Close() })
		c := NewRedisCache(broken, time.Minute, "", nil)
		_, err := c.Find(ctx, "k")
		require.Error(t, err)
		assert.False(t, errors.Is(err, sentinel.ErrNotFound))
	})
}
