package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/wincloud/wincloud/internal/filex"
	"github.com/wincloud/wincloud/internal/flagx"
	"github.com/wincloud/wincloud/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON (un)marshalling. It relies
// on timex.Duration so JSON can specify the request timeout either as a
// string like "30s" or as integer nanoseconds. After parsing, values are
// copied into the runtime Config.
type JsonConfig struct {
	ServerURL        string         `json:"server_url"`
	APIVersion       string         `json:"api_version"`
	CompressionLevel int            `json:"compression_level"`
	LocalPercentage  int            `json:"local_percentage"`
	RequestTimeout   timex.Duration `json:"request_timeout"`
	MaxRetries       int            `json:"max_retries"`
	ChunkSize        int64          `json:"chunk_size"`
	DataDir          string         `json:"data_dir"`
}

// parseJson overlays Config with values loaded from a JSON file.
//
// Lookup order for the JSON file path:
//  1. Command-line flags (-c or --config) via flagx.JSONConfigFlags().
//  2. If empty, no JSON is loaded and the function returns.
//
// Only keys present in the file (non-zero after unmarshalling) override
// earlier values, so a partial file keeps the remaining defaults. Panics on
// read or unmarshal errors (caller should recover if desired).
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.JSONConfigFlags()
	if jsonConfigFile == "" {
		return
	}
	loadJsonFile(cfg, jsonConfigFile)
}

func loadJsonFile(cfg *Config, path string) {
	var jc JsonConfig

	data, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	if jc.ServerURL != "" {
		cfg.ServerURL = jc.ServerURL
	}
	if jc.APIVersion != "" {
		cfg.APIVersion = jc.APIVersion
	}
	if jc.CompressionLevel != 0 {
		cfg.CompressionLevel = jc.CompressionLevel
	}
	if jc.LocalPercentage != 0 {
		cfg.LocalPercentage = jc.LocalPercentage
	}
	if jc.RequestTimeout.Duration != 0 {
		cfg.RequestTimeout = time.Duration(jc.RequestTimeout.Duration)
	}
	if jc.MaxRetries != 0 {
		cfg.MaxRetries = jc.MaxRetries
	}
	if jc.ChunkSize != 0 {
		cfg.ChunkSize = jc.ChunkSize
	}
	if jc.DataDir != "" {
		cfg.DataDir = jc.DataDir
	}
}

// Save writes cfg as an indented JSON file, creating parent directories as
// needed. Used on first run to seed a user-editable config under the data
// dir.
func (c *Config) Save(path string) error {
	jc := JsonConfig{
		ServerURL:        c.ServerURL,
		APIVersion:       c.APIVersion,
		CompressionLevel: c.CompressionLevel,
		LocalPercentage:  c.LocalPercentage,
		RequestTimeout:   timex.Duration{Duration: c.RequestTimeout},
		MaxRetries:       c.MaxRetries,
		ChunkSize:        c.ChunkSize,
		DataDir:          c.DataDir,
	}
	data, err := json.MarshalIndent(jc, "", "  ")
	if err != nil {
		return err
	}
	return filex.WriteFile(path, data, 0o600)
}
