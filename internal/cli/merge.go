package cli

import (
	"fmt"

	"github.com/fmueller/longscribe/internal/coordinator"
	"github.com/spf13/cobra"
)

func newMergeCmd(app *appState) *cobra.Command {
	return &cobra.Command{
		Use:   "merge",
		Short: "Rebuild transcript outputs from cached clip results",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ws, err := app.openWorkspace()
			if err != nil {
				return err
			}
			st, err := ws.loadState()
			if err != nil {
				return err
			}

			_, paths, err := app.writeOutputs(ws, st)
			if err != nil {
				return err
			}
			if !st.Complete {
				app.warnPending(st, coordinator.Report{})
			}

			app.writeMetrics()
			for _, path := range paths {
				fmt.Fprintln(cmd.OutOrStdout(), path)
			}
			return nil
		},
	}
}
