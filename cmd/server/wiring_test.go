package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"convertviral/internal/platform/config"
	"convertviral/internal/platform/logger"
	"convertviral/internal/storage"
)

func TestBuildInfraInMemory(t *testing.T) {
	for _, key := range []string{"REDIS_URL", "DATABASE_URL", "KAFKA_BROKERS", "S3_ENDPOINT", "GO_ENV"} {
		t.Setenv(key, "")
	}
	cfg, err := config.FromEnv()
	require.NoError(t, err)

	deps, err := buildInfra(context.Background(), cfg, logger.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { deps.close(logger.Discard()) })

	assert.NotNil(t, deps.cache)
	assert.NotNil(t, deps.consent)
	assert.NotNil(t, deps.files)
	assert.NotNil(t, deps.audit)
	assert.Empty(t, deps.checks, "no external dependencies to probe")
	require.NoError(t, deps.files.Close(context.Background()))
}

func TestBuildObjectStoreFallsBackToMemory(t *testing.T) {
	deps := &infra{}
	store, err := buildObjectStore(context.Background(), config.FilesConfig{Bucket: "b"}, logger.Discard(), deps)
	require.NoError(t, err)
	assert.IsType(t, &storage.MemoryStore{}, store)
}
