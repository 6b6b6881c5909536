package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newTranscribeCmd(app *appState) *cobra.Command {
	return &cobra.Command{
		Use:   "transcribe",
		Short: "Transcribe pending clips of an existing pipeline state",
		Long: "Transcribe pending clips of an existing pipeline state.\n\n" +
			"The raw transcript is rebuilt from every processed clip on each invocation, " +
			"so partial results are available before the run is complete.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ws, err := app.openWorkspace()
			if err != nil {
				return err
			}
			st, err := ws.loadState()
			if err != nil {
				return err
			}

			defer app.writeMetrics()
			report, st, err := app.transcribePending(cmd.Context(), ws, st)
			if err != nil {
				return err
			}

			_, paths, err := app.writeOutputs(ws, st)
			if err != nil {
				return err
			}
			if !st.Complete {
				app.warnPending(st, report)
			}

			for _, path := range paths {
				fmt.Fprintln(cmd.OutOrStdout(), path)
			}
			return nil
		},
	}
}
