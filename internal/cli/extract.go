package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func (a *App) newExtractCmd() *cobra.Command {
	var outputDir string

	cmd := &cobra.Command{
		Use:   "extract <archive>",
		Short: "Restore files from an archive, fetching the cloud fraction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.newTransfer()
			if err != nil {
				return err
			}
			eng, err := a.newEngine(client)
			if err != nil {
				return err
			}

			s, cleanup := a.startSpinner("Extracting archive...")
			defer cleanup()

			op := eng.ExtractArchive(cmd.Context(), args[0], outputDir)
			for ev := range op.Events() {
				s.Suffix = fmt.Sprintf(" %s (%d%%)", ev.Status, ev.Percent)
			}
			res := op.Wait()

			if res.Err != nil {
				s.FinalMSG = color.RedString("✗") + " " + res.Message + "\n"
				return res.Err
			}

			s.FinalMSG = color.GreenString("✓") + " " + res.Message +
				fmt.Sprintf(" into %s (%s)\n", res.OutputDir, formatSize(res.OriginalSize))
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputDir, "output", "o", ".", "directory to restore files into")
	return cmd
}
