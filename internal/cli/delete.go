package cli

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func (a *App) newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <archive-id>",
		Short: "Remove an archive's cloud data from the server",
		Long: "delete removes the server-side blob for the given cloud archive id " +
			"(the cloud_archive_id recorded in the local artifact's manifest). " +
			"The local artifact file is left untouched, but without the cloud " +
			"fraction it can no longer be extracted.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.newTransfer()
			if err != nil {
				return err
			}

			s, cleanup := a.startSpinner("Deleting cloud archive...")
			defer cleanup()

			if err := client.Delete(cmd.Context(), args[0]); err != nil {
				s.FinalMSG = color.RedString("✗") + " delete failed\n"
				return err
			}
			s.FinalMSG = color.GreenString("✓") + " cloud archive " + args[0] + " deleted\n"
			return nil
		},
	}
}
