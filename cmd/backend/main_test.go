package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"secure-transfer/internal/auth"
	"secure-transfer/internal/config"
	"secure-transfer/internal/kv"
	"secure-transfer/internal/storage"
)

func TestAuthConfigCarriesStrategySettings(t *testing.T) {
	cfg := config.Config{
		AuthStrategy:   "jwt",
		JWTSecret:      "jwt-secret-0123456789abcdef0123456789",
		JWTAlgorithm:   "HS384",
		JWTIssuer:      "ci",
		JWTReplayGuard: true,
		HMACTolerance:  45 * time.Second,
	}
	got := authConfig(cfg)

	assert.Equal(t, auth.StrategyJWT, got.Strategy)
	assert.Equal(t, cfg.JWTSecret, got.JWTSecret)
	assert.Equal(t, "HS384", got.JWTAlgorithm)
	assert.Equal(t, "ci", got.JWTIssuer)
	assert.True(t, got.JWTReplayGuard)
	assert.Equal(t, 45*time.Second, got.HMACTolerance)
}

func TestOpenKV(t *testing.T) {
	ctx := context.Background()

	mem, err := openKV(ctx, config.Config{KVBackend: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &kv.MemoryStore{}, mem)

	mr := miniredis.RunT(t)
	rs, err := openKV(ctx, config.Config{KVBackend: "redis", RedisURL: "redis://" + mr.Addr()})
	require.NoError(t, err)
	defer rs.Close()
	assert.IsType(t, &kv.RedisStore{}, rs)
	require.NoError(t, rs.Ping(ctx))

	_, err = openKV(ctx, config.Config{KVBackend: "redis", RedisURL: "not a url"})
	assert.Error(t, err)
}

func TestOpenBlobsFilesystem(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "blobs")
	b, err := openBlobs(context.Background(), config.Config{StorageBackend: "fs", StoragePath: dir})
	require.NoError(t, err)
	assert.IsType(t, &storage.FSBlobStore{}, b)
	assert.NoError(t, b.Ping(context.Background()))
}

func TestOpenBlobsMinioNeedsConfig(t *testing.T) {
	_, err := openBlobs(context.Background(), config.Config{StorageBackend: "minio"})
	assert.Error(t, err)
}
