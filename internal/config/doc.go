// Package config loads runtime configuration for the WinCloud CLI.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file (see parseJson) selected via flags: -c or --config.
//  3. Command-line flags (see parseFlags), which override earlier values.
//
// Supported flags
//
//	-a string   base URL of the archive server
//	-r int      local percentage of compressed bytes (0-100)
//	-l int      compression level (0-9)
//	-t int      request timeout (seconds)
//	-d string   data directory
//
// # JSON schema
//
// The JSON loader uses timex.Duration for the timeout, so the value can be
// either a string like "30s" or integer nanoseconds:
//
//	{
//	  "server_url": "https://archive.example:8443",
//	  "api_version": "v1",
//	  "compression_level": 9,
//	  "local_percentage": 10,
//	  "request_timeout": "30s",
//	  "max_retries": 3,
//	  "chunk_size": 5242880,
//	  "data_dir": "/home/user/.wincloud"
//	}
//
// Primary API
//
//   - type Config                     — runtime settings for the CLI
//   - func LoadConfig() *Config       — builds Config by applying defaults, JSON, then flags
//   - func (*Config) LoadDefaults()   — sets sensible defaults
//   - func (*Config) Save(path)      — writes the config back out as JSON
//
// Note: This package does not read environment variables directly; use the
// JSON file or flags to configure values.
package config
