package config

import (
	"flag"
	"os"
	"time"

	"github.com/wincloud/wincloud/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   base URL of the archive server (default from Config)
//	-r int      local percentage of compressed bytes, 0-100
//	-l int      compression level, 0-9
//	-t int      request timeout in seconds
//	-d string   data directory for keys and install state
//
// Note: The function filters os.Args to only include the flags it knows
// about, using flagx.FilterArgs, to avoid interference with other
// components.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-r", "-l", "-t", "-d"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.ServerURL, "a", cfg.ServerURL, "base URL of the archive server")
	fs.IntVar(&cfg.LocalPercentage, "r", cfg.LocalPercentage, "percentage of compressed bytes kept locally (0-100)")
	fs.IntVar(&cfg.CompressionLevel, "l", cfg.CompressionLevel, "compression level (0-9)")
	requestTimeout := fs.Int("t", int(cfg.RequestTimeout.Seconds()), "request timeout (in seconds)")
	fs.StringVar(&cfg.DataDir, "d", cfg.DataDir, "data directory")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.RequestTimeout = time.Duration(*requestTimeout) * time.Second
}
