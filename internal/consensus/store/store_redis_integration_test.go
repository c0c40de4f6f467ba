//go:build integration

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	id "kairos/pkg/domain"
	"kairos/pkg/testutil/containers"
)

type RedisStoreSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *Redis
	ctx   context.Context
}

func TestRedisStoreSuite(t *testing.T) {
	suite.Run(t, new(RedisStoreSuite))
}

func (s *RedisStoreSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
	s.store = NewRedis(s.redis.Client)
}

func (s *RedisStoreSuite) SetupTest() {
	s.ctx = context.Background()
	s.Require().NoError(s.redis.FlushAll(s.ctx))
}

func (s *RedisStoreSuite) TestApproveIsIdempotentPerEpoch() {
	capsuleID := id.NewCapsuleID()
	bid := id.NewBeneficiaryID()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	added, count, err := s.store.Approve(s.ctx, capsuleID, bid, at)
	s.Require().NoError(err)
	s.True(added)
	s.Equal(1, count)

	added, count, err = s.store.Approve(s.ctx, capsuleID, bid, at.Add(time.Minute))
	s.Require().NoError(err)
	s.False(added)
	s.Equal(1, count)

	rec, err := s.store.Get(s.ctx, capsuleID)
	s.Require().NoError(err)
	s.Equal(int64(0), rec.Epoch)
	s.True(rec.Approvals[bid].Equal(at))
}

func (s *RedisStoreSuite) TestResetStartsNewEpoch() {
	capsuleID := id.NewCapsuleID()
	bid := id.NewBeneficiaryID()
	_, _, err := s.store.Approve(s.ctx, capsuleID, bid, time.Now())
	s.Require().NoError(err)

	epoch, err := s.store.Reset(s.ctx, capsuleID)
	s.Require().NoError(err)
	s.Equal(int64(1), epoch)

	count, err := s.store.Count(s.ctx, capsuleID)
	s.Require().NoError(err)
	s.Zero(count)

	added, _, err := s.store.Approve(s.ctx, capsuleID, bid, time.Now())
	s.Require().NoError(err)
	s.True(added)
}

func (s *RedisStoreSuite) TestDeleteRemovesKeys() {
	capsuleID := id.NewCapsuleID()
	_, _, err := s.store.Approve(s.ctx, capsuleID, id.NewBeneficiaryID(), time.Now())
	s.Require().NoError(err)
	_, err = s.store.Reset(s.ctx, capsuleID)
	s.Require().NoError(err)
	_, _, err = s.store.Approve(s.ctx, capsuleID, id.NewBeneficiaryID(), time.Now())
	s.Require().NoError(err)

	s.Require().NoError(s.store.Delete(s.ctx, capsuleID))

	n, err := s.redis.Client.DBSize(s.ctx).Result()
	s.Require().NoError(err)
	s.Zero(n)
}
