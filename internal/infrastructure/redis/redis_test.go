package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/baechuer/teamup/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"
)

type CacheTestSuite struct {
	suite.Suite
	mr    *miniredis.Miniredis
	cache *Cache
}

func (s *CacheTestSuite) SetupTest() {
	mr, err := miniredis.Run()
	s.Require().NoError(err)
	s.mr = mr
	s.cache = NewFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
}

func (s *CacheTestSuite) TearDownTest() {
	_ = s.cache.Client.Close()
	s.mr.Close()
}

func TestCacheTestSuite(t *testing.T) {
	suite.Run(t, new(CacheTestSuite))
}

func (s *CacheTestSuite) TestCapacity_GetSetAndMiss() {
	ctx := context.Background()

	_, err := s.cache.GetCapacity(ctx, "game-1")
	s.True(errors.Is(err, domain.ErrCacheMiss))

	s.Require().NoError(s.cache.SetCapacity(ctx, "game-1", 12))
	got, err := s.cache.GetCapacity(ctx, "game-1")
	s.Require().NoError(err)
	s.Equal(12, got)

	s.Require().NoError(s.cache.SetCapacity(ctx, "game-2", -1))
	got, err = s.cache.GetCapacity(ctx, "game-2")
	s.Require().NoError(err)
	s.Equal(-1, got)

	s.True(s.mr.Exists("game:capacity:game-1"))
	s.Greater(s.mr.TTL("game:capacity:game-1"), time.Hour)
}

func (s *CacheTestSuite) TestCapacity_ExpiresWithTTL() {
	ctx := context.Background()
	s.Require().NoError(s.cache.SetCapacity(ctx, "game-1", 8))

	s.mr.FastForward(capacityTTL + time.Second)

	_, err := s.cache.GetCapacity(ctx, "game-1")
	s.True(errors.Is(err, domain.ErrCacheMiss))
}

func (s *CacheTestSuite) TestAllowRequest_FixedWindow() {
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		ok, err := s.cache.AllowRequest(ctx, "user-1", 3, time.Minute)
		s.Require().NoError(err)
		s.True(ok, "request %d", i+1)
	}
	ok, err := s.cache.AllowRequest(ctx, "user-1", 3, time.Minute)
	s.Require().NoError(err)
	s.False(ok)

	// other callers have their own window
	ok, err = s.cache.AllowRequest(ctx, "user-2", 3, time.Minute)
	s.Require().NoError(err)
	s.True(ok)

	s.mr.FastForward(time.Minute + time.Second)
	ok, err = s.cache.AllowRequest(ctx, "user-1", 3, time.Minute)
	s.Require().NoError(err)
	s.True(ok)
}

func (s *CacheTestSuite) TestAllowRequest_FailsOpen() {
	s.mr.Close()
	ok, err := s.cache.AllowRequest(context.Background(), "user-1", 1, time.Minute)
	s.Error(err)
	s.True(ok)
}
