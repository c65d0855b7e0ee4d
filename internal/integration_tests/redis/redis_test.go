//go:build integration

package redis_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"idlookup/internal/identifier"
	"idlookup/internal/lookup"
	"idlookup/internal/lookup/cache"
	"idlookup/internal/ratelimit/store/bucket"
	"idlookup/pkg/platform/sentinel"
	"idlookup/pkg/testutil/containers"
)

// RedisSuite runs the Redis-backed cache and limiter against a real server,
// covering the Lua script and TTL behaviour miniredis only approximates.
type RedisSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	ctx   context.Context
}

func TestRedisSuite(t *testing.T) {
	suite.Run(t, new(RedisSuite))
}

func (s *RedisSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
	s.ctx = context.Background()
}

func (s *RedisSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(s.ctx))
}

func (s *RedisSuite) TestHealth() {
	s.NoError(s.redis.Client.Health(s.ctx))
}

func (s *RedisSuite) TestSlidingWindow() {
	store := bucket.NewRedis(s.redis.Client, "it:")
	window := 2 * time.Second

	for i := range 3 {
		res, err := store.Allow(s.ctx, "query:caller-1", 3, window)
		s.Require().NoError(err)
		s.True(res.Allowed, "call %d", i+1)
	}
	res, err := store.Allow(s.ctx, "query:caller-1", 3, window)
	s.Require().NoError(err)
	s.False(res.Allowed)
	s.Positive(res.RetryAfter)

	other, err := store.Allow(s.ctx, "query:caller-2", 3, window)
	s.Require().NoError(err)
	s.True(other.Allowed, "callers do not share a window")

	s.Eventually(func() bool {
		res, err := store.Allow(s.ctx, "query:caller-1", 3, window)
		return err == nil && res.Allowed
	}, 5*time.Second, 200*time.Millisecond)
}

func (s *RedisSuite) TestResetClearsWindow() {
	store := bucket.NewRedis(s.redis.Client, "it:")
	_, err := store.Allow(s.ctx, "query:caller-1", 1, time.Minute)
	s.Require().NoError(err)

	s.Require().NoError(store.Reset(s.ctx, "query:caller-1"))
	res, err := store.Allow(s.ctx, "query:caller-1", 1, time.Minute)
	s.Require().NoError(err)
	s.True(res.Allowed)
}

func (s *RedisSuite) TestResultCache() {
	c := cache.NewRedisCache(s.redis.Client, time.Second, "it:lookup:", nil)
	name := "ANA"
	result := &lookup.Result{
		GivenNames:     &name,
		Success:        true,
		Message:        lookup.MessageSuccess,
		QueriedAt:      time.Now().UTC().Truncate(time.Second),
		ValidationInfo: identifier.MustDecompose("00123456782").ValidationInfo(),
	}

	_, err := c.Find(s.ctx, "00123456782")
	s.True(errors.Is(err, sentinel.ErrNotFound))

	s.Require().NoError(c.Save(s.ctx, "00123456782", result))
	got, err := c.Find(s.ctx, "00123456782")
	s.Require().NoError(err)
	s.Equal("ANA", *got.GivenNames)
	s.True(got.QueriedAt.Equal(result.QueriedAt))

	s.Eventually(func() bool {
		_, err := c.Find(s.ctx, "00123456782")
		return errors.Is(err, sentinel.ErrNotFound)
	}, 5*time.Second, 200*time.Millisecond, "entries expire after the TTL")
}
