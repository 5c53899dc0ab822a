//go:build integration

package kv

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"convertviral/pkg/platform/sentinel"
	"convertviral/pkg/testutil/containers"
)

func TestRedisStoreContract(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	rc := containers.GetManager().GetRedis(t)
	suite.Run(t, &StoreContractSuite{newStore: func() Store {
		require.NoError(t, rc.FlushAll(context.Background()))
		return NewRedisStore(rc.Client.Client)
	}})
}

func TestRedisStoreExpiry(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()
	rc := containers.GetManager().GetRedis(t)
	require.NoError(t, rc.FlushAll(ctx))
	store := NewRedisStore(rc.Client.Client)

	require.NoError(t, store.Set(ctx, "ttl:key", "v", time.Second))
	require.Eventually(t, func() bool {
		_, err := store.Get(ctx, "ttl:key")
		return err == sentinel.ErrNotFound
	}, 5*time.Second, 100*time.Millisecond)
}
