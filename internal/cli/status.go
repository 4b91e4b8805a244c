package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func (a *App) newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show server reachability and the active configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.newTransfer()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if client.Health(cmd.Context()) {
				fmt.Fprintln(out, color.GreenString("✓")+" server reachable at "+a.cfg.ServerURL)
			} else {
				fmt.Fprintln(out, color.RedString("✗")+" server unreachable at "+a.cfg.ServerURL)
			}

			fmt.Fprintf(out, "  data dir:          %s\n", a.cfg.DataDir)
			fmt.Fprintf(out, "  local ratio:       %d%%\n", a.cfg.LocalPercentage)
			fmt.Fprintf(out, "  compression level: %d\n", a.cfg.CompressionLevel)
			fmt.Fprintf(out, "  chunk size:        %s\n", formatSize(a.cfg.ChunkSize))
			return nil
		},
	}
}
