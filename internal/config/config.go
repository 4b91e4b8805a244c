package config

import (
	"os"
	"path/filepath"
	"time"
)

// Config holds runtime settings for the WinCloud CLI.
//
// Fields:
//   - ServerURL: base URL of the archive server.
//   - APIVersion: REST API version segment (e.g. "v1").
//   - CompressionLevel: stage-A compression level, 0 (fastest) to 9 (max).
//   - LocalPercentage: share of compressed bytes kept locally, 0 to 100.
//   - RequestTimeout: per-request timeout for server calls.
//   - MaxRetries: retry budget for transient server failures.
//   - ChunkSize: upload chunking threshold and chunk size, in bytes.
//   - DataDir: where key material, the install id, and the default config
//     file live.
type Config struct {
	ServerURL        string
	APIVersion       string
	CompressionLevel int
	LocalPercentage  int
	RequestTimeout   time.Duration
	MaxRetries       int
	ChunkSize        int64
	DataDir          string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerURL = "https://5.249.160.54:8443"
	c.APIVersion = "v1"
	c.CompressionLevel = 9
	c.LocalPercentage = 10
	c.RequestTimeout = 30 * time.Second
	c.MaxRetries = 3
	c.ChunkSize = 5 * 1024 * 1024
	c.DataDir = defaultDataDir()
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".wincloud"
	}
	return filepath.Join(home, ".wincloud")
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
