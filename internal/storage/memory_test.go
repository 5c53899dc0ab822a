package storage

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

func TestMemoryStoreContract(t *testing.T) {
	suite.Run(t, &ObjectStoreContractSuite{newStore: func() ObjectStore {
		return NewMemoryStore("test-bucket")
	}})
}

func TestMemoryStorePresignMissing(t *testing.T) {
	store := NewMemoryStore("test-bucket")
	_, err := store.PresignGet(context.Background(), "nope", time.Minute)
	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestMemoryStorePresignFormat(t *testing.T) {
	store := NewMemoryStore("test-bucket")
	store.now = func() time.Time { return time.Unix(1000, 0) }
	_, err := store.Put(context.Background(), PutInput{Key: "k/v.txt", Body: strings.NewReader("x"), Size: 1})
	require.NoError(t, err)

	url, err := store.PresignGet(context.Background(), "k/v.txt", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "memory://test-bucket/k/v.txt?expires=1060", url)

	data, ok := store.Read("k/v.txt")
	require.True(t, ok)
	assert.Equal(t, "x", string(data))
	assert.Equal(t, 1, store.Len())
}
