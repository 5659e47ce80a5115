package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DIFY_BASE_URL", "http://localhost:5001/v1")
	t.Setenv("DIFY_API_KEY", "app-test")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8000, cfg.Port)
	assert.Equal(t, "/workflows/run", cfg.DifyEndpoint)
	assert.Equal(t, 30, cfg.KeepaliveTimeout)
	assert.Equal(t, 60, cfg.ChunkTimeout)
	assert.Empty(t, cfg.DatabaseURL)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DIFY_BASE_URL", "http://dify.internal")
	t.Setenv("DIFY_API_KEY", "app-test")
	t.Setenv("PORT", "9001")
	t.Setenv("SSE_KEEPALIVE_TIMEOUT", "5")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9001, cfg.Port)
	assert.Equal(t, 5, cfg.KeepaliveTimeout)
}
