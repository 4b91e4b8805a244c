package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func (a *App) newCreateCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "create <file> [file...]",
		Short: "Compress files into a split local/cloud archive",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.newTransfer()
			if err != nil {
				return err
			}
			eng, err := a.newEngine(client)
			if err != nil {
				return err
			}

			s, cleanup := a.startSpinner("Creating archive...")
			defer cleanup()

			op := eng.CreateArchive(cmd.Context(), args, output)
			for ev := range op.Events() {
				s.Suffix = fmt.Sprintf(" %s (%d%%)", ev.Status, ev.Percent)
			}
			res := op.Wait()

			if res.Err != nil {
				s.FinalMSG = color.RedString("✗") + " " + res.Message + "\n"
				return res.Err
			}

			final := color.GreenString("✓") + " " + res.Message + "\n"
			for _, path := range res.Skipped {
				final += color.YellowString("!") + " skipped " + path + "\n"
			}
			if res.Manifest.CloudArchiveID == nil {
				final += color.YellowString("!") + " no cloud copy was stored; keep the server reachable next time\n"
			}
			final += fmt.Sprintf("  %s → %s (ratio %.2f), archive %s\n",
				formatSize(res.OriginalSize), formatSize(res.ArchiveSize), res.Ratio(), res.ArchivePath)
			s.FinalMSG = final
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "archive.wc", "output archive path")
	return cmd
}
