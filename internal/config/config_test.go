package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	var c Config
	c.LoadDefaults()

	assert.Equal(t, "https://5.249.160.54:8443", c.ServerURL)
	assert.Equal(t, "v1", c.APIVersion)
	assert.Equal(t, 9, c.CompressionLevel)
	assert.Equal(t, 10, c.LocalPercentage)
	assert.Equal(t, 30*time.Second, c.RequestTimeout)
	assert.Equal(t, 3, c.MaxRetries)
	assert.Equal(t, int64(5*1024*1024), c.ChunkSize)
	assert.NotEmpty(t, c.DataDir)
}

func TestLoadConfig_UsesDefaultsBeforeParsing(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })
	os.Args = []string{"testbin"}

	cfg := LoadConfig()

	require.NotNil(t, cfg, "LoadConfig must not return nil")
	assert.Equal(t, "v1", cfg.APIVersion)
	assert.Equal(t, 10, cfg.LocalPercentage)
}
