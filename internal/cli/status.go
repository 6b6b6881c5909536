package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/fmueller/longscribe/internal/state"
	"github.com/spf13/cobra"
)

// maxListedPending caps the pending clip indices printed by status.
const maxListedPending = 20

func newStatusCmd(app *appState) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show clip progress of the pipeline state",
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

			printStatus(cmd, st)
			return nil
		},
	}
}

func printStatus(cmd *cobra.Command, st *state.PipelineState) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "input:     %s\n", st.InputAudio)
	fmt.Fprintf(out, "duration:  %.1fs\n", float64(st.TotalDurationMS)/1000)
	fmt.Fprintf(out, "clips:     %d/%d transcribed\n", len(st.Processed), st.TotalClips)
	fmt.Fprintf(out, "complete:  %t\n", st.Complete)

	pending := st.Pending()
	if len(pending) == 0 {
		return
	}

	indices := make([]string, 0, min(len(pending), maxListedPending))
	for _, clip := range pending[:min(len(pending), maxListedPending)] {
		indices = append(indices, strconv.Itoa(clip.Index))
	}
	line := strings.Join(indices, ", ")
	if len(pending) > maxListedPending {
		line += fmt.Sprintf(", ... (%d more)", len(pending)-maxListedPending)
	}
	fmt.Fprintf(out, "pending:   %s\n", line)
}
