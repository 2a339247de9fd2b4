//go:build integration

package window

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"repairhub/pkg/testutil/containers"
)

type RedisStoreSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *RedisStore
	ctx   context.Context
	t0    time.Time
}

func TestRedisStoreSuite(t *testing.T) {
	suite.Run(t, new(RedisStoreSuite))
}

func (s *RedisStoreSuite) SetupSuite() {
	s.ctx = context.Background()
	s.redis = containers.NewRedisContainer(s.T())
	s.T().Cleanup(func() {
		_ = s.redis.Client.Close()
		_ = s.redis.Container.Terminate(context.Background())
	})

	store, err := NewRedisStore(s.redis.Client, "test:")
	s.Require().NoError(err)
	s.store = store
}

func (s *RedisStoreSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(s.ctx))
	s.t0 = time.UnixMilli(time.Now().UnixMilli())
}

func (s *RedisStoreSuite) TestFixedWindowSemantics() {
	for i := 1; i <= 3; i++ {
		w, err := s.store.Increment(s.ctx, "k", s.t0, time.Second)
		s.Require().NoError(err)
		s.Equal(i, w.Count)
		s.Equal(s.t0, w.Start)
	}

	w, err := s.store.Increment(s.ctx, "k", s.t0.Add(time.Second), time.Second)
	s.Require().NoError(err)
	s.Equal(1, w.Count)
	s.Equal(s.t0.Add(time.Second), w.Start)
}

func (s *RedisStoreSuite) TestKeysExpireWithWindow() {
	_, err := s.store.Increment(s.ctx, "ttl", s.t0, time.Minute)
	s.Require().NoError(err)

	ttl, err := s.redis.Client.PTTL(s.ctx, "test:ttl").Result()
	s.Require().NoError(err)
	s.Greater(ttl, time.Duration(0))
	s.LessOrEqual(ttl, time.Minute)
}

func (s *RedisStoreSuite) TestReset() {
	_, _ = s.store.Increment(s.ctx, "r", s.t0, time.Minute)
	s.Require().NoError(s.store.Reset(s.ctx, "r"))

	w, err := s.store.Increment(s.ctx, "r", s.t0, time.Minute)
	s.Require().NoError(err)
	s.Equal(1, w.Count)
}
