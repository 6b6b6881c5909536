package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRunCmd(app *appState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <input.wav>",
		Short: "Segment, transcribe and merge a recording, resuming any earlier run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			input, err := resolveInput(args[0])
			if err != nil {
				return err
			}
			ws, err := app.openWorkspace()
			if err != nil {
				return err
			}

			st, err := app.loadOrSegment(ctx, ws, input)
			if err != nil {
				return err
			}

			defer app.writeMetrics()
			report, st, err := app.transcribePending(ctx, ws, st)
			if err != nil {
				return err
			}
			if !st.Complete {
				app.warnPending(st, report)
				return nil
			}

			final, paths, err := app.writeOutputs(ws, st)
			if err != nil {
				return err
			}
			if app.cfg.Normalize.Rules != "" {
				normalized, err := app.normalize(final, ws.outputDir(), app.cfg.Normalize.Rules)
				if err != nil {
					return err
				}
				paths = append(paths, normalized...)
			}

			for _, path := range paths {
				fmt.Fprintln(cmd.OutOrStdout(), path)
			}
			return nil
		},
	}

	bindRulesFlag(cmd, app)
	return cmd
}
