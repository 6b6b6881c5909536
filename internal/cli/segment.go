package cli

import (
	"fmt"
	"path/filepath"

	"github.com/fmueller/longscribe/internal/segment"
	"github.com/spf13/cobra"
)

func newSegmentCmd(app *appState) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "segment <input.wav>",
		Short: "Cut a recording into clips and start a new pipeline state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input, err := resolveInput(args[0])
			if err != nil {
				return err
			}
			ws, err := app.openWorkspace()
			if err != nil {
				return err
			}

			exists := ws.store.Exists()
			if exists && !force {
				return fmt.Errorf("pipeline state already exists at %s; use --force to segment again", ws.store.Path)
			}

			st, err := app.segmentInput(cmd.Context(), ws, input, exists)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%d clips written to %s\n", st.TotalClips, filepath.Join(ws.dir, segment.ClipsDir))
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Replace an existing pipeline state")
	return cmd
}
