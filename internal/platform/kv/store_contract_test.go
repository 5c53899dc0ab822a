package kv

import (
	"context"
	"time"

	"github.com/stretchr/testify/suite"

	"convertviral/pkg/platform/sentinel"
)

// StoreContractSuite exercises the behaviour every Store implementation must
// share. Implementations embed it and provide newStore.
type StoreContractSuite struct {
	suite.Suite
	ctx      context.Context
	store    Store
	newStore func() Store
}

func (s *StoreContractSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = s.newStore()
}

func (s *StoreContractSuite) TestGetMissingKey() {
	_, err := s.store.Get(s.ctx, "contract:missing")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *StoreContractSuite) TestSetGetDel() {
	s.Require().NoError(s.store.Set(s.ctx, "contract:k", `{"v":1}`, time.Minute))

	got, err := s.store.Get(s.ctx, "contract:k")
	s.Require().NoError(err)
	s.Equal(`{"v":1}`, got)

	s.Require().NoError(s.store.Del(s.ctx, "contract:k"))
	_, err = s.store.Get(s.ctx, "contract:k")
	s.ErrorIs(err, sentinel.ErrNotFound)

	s.Run("deleting an absent key is a no-op", func() {
		s.NoError(s.store.Del(s.ctx, "contract:k"))
	})
}

func (s *StoreContractSuite) TestListOrdering() {
	key := "contract:list"
	s.Require().NoError(s.store.LPush(s.ctx, key, "a"))
	s.Require().NoError(s.store.LPush(s.ctx, key, "b"))
	s.Require().NoError(s.store.LPush(s.ctx, key, "c", "d"))

	all, err := s.store.LRange(s.ctx, key, 0, -1)
	s.Require().NoError(err)
	s.Equal([]string{"d", "c", "b", "a"}, all)

	head, err := s.store.LRange(s.ctx, key, 0, 1)
	s.Require().NoError(err)
	s.Equal([]string{"d", "c"}, head)

	s.Require().NoError(s.store.LTrim(s.ctx, key, 0, 2))
	trimmed, err := s.store.LRange(s.ctx, key, 0, -1)
	s.Require().NoError(err)
	s.Equal([]string{"d", "c", "b"}, trimmed)
}

func (s *StoreContractSuite) TestRangeOfMissingList() {
	vals, err := s.store.LRange(s.ctx, "contract:nolist", 0, 10)
	s.Require().NoError(err)
	s.Empty(vals)
}

func (s *StoreContractSuite) TestExpireOnList() {
	key := "contract:expiring-list"
	s.Require().NoError(s.store.LPush(s.ctx, key, "x"))
	s.Require().NoError(s.store.Expire(s.ctx, key, time.Hour))

	vals, err := s.store.LRange(s.ctx, key, 0, -1)
	s.Require().NoError(err)
	s.Equal([]string{"x"}, vals)
}
