package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	unsetForTest(t, "HTTP_ADDR", "DATABASE_URL", "AUDIO_DIR", "TEMP_DIR", "STRICT_LOGIN", "REDIS_HOST", "STORAGE_BACKEND", "MAX_UPLOAD_BYTES")

	cfg := Load()
	require.NotNil(t, cfg)
	assert.Equal(t, ":8000", cfg.Addr)
	assert.Equal(t, "sqlite://audiovault.db", cfg.DatabaseURL)
	assert.Equal(t, "audio", cfg.AudioDir)
	assert.Equal(t, filepath.Join("audio", "tmp"), cfg.TempDir)
	assert.Equal(t, StorageLocal, cfg.StorageBackend)
	assert.False(t, cfg.StrictLogin)
	assert.False(t, cfg.RedisEnabled())
	assert.Equal(t, int64(100<<20), cfg.MaxUploadBytes)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("PUBLIC_BASE_URL", "https://audio.example.com/")
	t.Setenv("DATABASE_URL", "postgres://u:p@db:5432/audio")
	t.Setenv("AUDIO_DIR", "/data/audio")
	t.Setenv("TEMP_DIR", "/scratch")
	t.Setenv("STRICT_LOGIN", "true")
	t.Setenv("STORAGE_BACKEND", "MINIO")
	t.Setenv("REDIS_HOST", "cache")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("RECORD_CACHE_TTL", "90s")
	t.Setenv("MAX_UPLOAD_BYTES", "1024")

	cfg := Load()
	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, "https://audio.example.com", cfg.PublicBaseURL)
	assert.Equal(t, "postgres://u:p@db:5432/audio", cfg.DatabaseURL)
	assert.Equal(t, "/data/audio", cfg.AudioDir)
	assert.Equal(t, "/scratch", cfg.TempDir)
	assert.True(t, cfg.StrictLogin)
	assert.Equal(t, StorageMinio, cfg.StorageBackend)
	assert.True(t, cfg.RedisEnabled())
	assert.Equal(t, 3, cfg.RedisDB)
	assert.Equal(t, 90*time.Second, cfg.RecordCacheTTL)
	assert.Equal(t, int64(1024), cfg.MaxUploadBytes)
}

func TestLoad_MalformedNumbersFallBack(t *testing.T) {
	t.Setenv("REDIS_DB", "not-a-number")
	t.Setenv("MAX_UPLOAD_BYTES", "lots")
	t.Setenv("RECORD_CACHE_TTL", "soon")
	t.Setenv("STRICT_LOGIN", "maybe")

	cfg := Load()
	assert.Equal(t, 0, cfg.RedisDB)
	assert.Equal(t, int64(100<<20), cfg.MaxUploadBytes)
	assert.Equal(t, 10*time.Minute, cfg.RecordCacheTTL)
	assert.False(t, cfg.StrictLogin)
}

// unsetForTest removes keys for the duration of the test; t.Setenv restores them.
func unsetForTest(t *testing.T, keys ...string) {
	t.Helper()
	for _, key := range keys {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
}
