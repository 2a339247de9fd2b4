//go:build integration

package revocation

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"

	"repairhub/pkg/testutil/containers"
)

type RedisTRLSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	trl   *RedisTRL
	ctx   context.Context
}

func TestRedisTRLSuite(t *testing.T) {
	suite.Run(t, new(RedisTRLSuite))
}

func (s *RedisTRLSuite) SetupSuite() {
	s.ctx = context.Background()
	s.redis = containers.NewRedisContainer(s.T())
	s.T().Cleanup(func() {
		_ = s.redis.Client.Close()
		_ = s.redis.Container.Terminate(context.Background())
	})
	s.trl = NewRedisTRL(s.redis.Client, WithRegisterer(prometheus.NewRegistry()))
}

func (s *RedisTRLSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(s.ctx))
}

func (s *RedisTRLSuite) TestRevokeAndCheck() {
	s.Require().NoError(s.trl.RevokeToken(s.ctx, "jti-1", time.Minute))

	revoked, err := s.trl.IsRevoked(s.ctx, "jti-1")
	s.Require().NoError(err)
	s.True(revoked)

	revoked, err = s.trl.IsRevoked(s.ctx, "jti-2")
	s.Require().NoError(err)
	s.False(revoked)
}

func (s *RedisTRLSuite) TestEntryCarriesTTL() {
	s.Require().NoError(s.trl.RevokeToken(s.ctx, "jti-ttl", 30*time.Second))

	ttl, err := s.redis.Client.TTL(s.ctx, revokedTokenKeyPrefix+"jti-ttl").Result()
	s.Require().NoError(err)
	s.Greater(ttl, time.Duration(0))
	s.LessOrEqual(ttl, 30*time.Second)
}
