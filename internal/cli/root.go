package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/wincloud/wincloud/internal/logging"
)

func (a *App) newRootCmd(ctx context.Context) *cobra.Command {
	var (
		configFile string
		timeoutSec int
	)

	root := &cobra.Command{
		Use:          "wincloud",
		Short:        "Hybrid archiver keeping a local fraction and an encrypted cloud copy",
		Long: "wincloud compresses files, keeps a small fraction of the compressed " +
			"bytes in a local archive file, and stores the encrypted remainder on " +
			"the archive server. Both parts are needed to extract.",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			a.log = logging.NewDefault(a.verbose)
			a.cfg.RequestTimeout = time.Duration(timeoutSec) * time.Second
			return a.setup(cmd.Context())
		},
	}

	pf := root.PersistentFlags()
	pf.BoolVarP(&a.verbose, "verbose", "v", false, "verbose logging")
	pf.BoolVar(&a.usePassphrase, "passphrase", false, "derive the encryption key from a passphrase prompt")
	pf.StringVarP(&configFile, "config", "c", "", "path to a JSON config file")
	pf.StringVarP(&a.cfg.ServerURL, "server", "a", a.cfg.ServerURL, "base URL of the archive server")
	pf.IntVarP(&a.cfg.LocalPercentage, "ratio", "r", a.cfg.LocalPercentage, "percentage of compressed bytes kept locally (0-100)")
	pf.IntVarP(&a.cfg.CompressionLevel, "level", "l", a.cfg.CompressionLevel, "compression level (0-9)")
	pf.IntVarP(&timeoutSec, "timeout", "t", int(a.cfg.RequestTimeout.Seconds()), "request timeout in seconds")
	pf.StringVarP(&a.cfg.DataDir, "data-dir", "d", a.cfg.DataDir, "directory for keys and install state")

	root.AddCommand(
		a.newCreateCmd(),
		a.newExtractCmd(),
		a.newDeleteCmd(),
		a.newStatusCmd(),
		a.newVersionCmd(),
	)
	root.SetContext(ctx)
	return root
}
