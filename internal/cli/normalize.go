package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/fmueller/longscribe/internal/atomicfile"
	"github.com/fmueller/longscribe/internal/normalize"
	"github.com/fmueller/longscribe/internal/transcript"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const (
	refinedTranscriptFile = "refined_transcript.json"
	diffFile              = "raw_vs_refined.diff.txt"
)

func newNormalizeCmd(app *appState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "normalize [raw_transcript.json]",
		Short: "Apply a text normalization rule table to a raw transcript",
		Long: "Apply a text normalization rule table to a raw transcript.\n\n" +
			"Writes " + refinedTranscriptFile + " and " + diffFile + " next to the raw transcript. " +
			"Without an argument the raw transcript of the work directory is used.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rulesPath := app.cfg.Normalize.Rules
			if rulesPath == "" {
				return fmt.Errorf("no normalization rules configured; pass --rules or set normalize.rules in the config file")
			}

			var rawPath string
			if len(args) == 1 {
				rawPath = filepath.Clean(args[0])
			} else {
				ws, err := app.openWorkspace()
				if err != nil {
					return err
				}
				rawPath = ws.outputPath(rawTranscriptFile)
			}

			data, err := os.ReadFile(rawPath)
			if err != nil {
				return fmt.Errorf("read raw transcript: %w", err)
			}
			var raw transcript.Final
			if err := json.Unmarshal(data, &raw); err != nil {
				return fmt.Errorf("parse raw transcript %s: %w", rawPath, err)
			}

			paths, err := app.normalize(raw, filepath.Dir(rawPath), rulesPath)
			if err != nil {
				return err
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

// normalize writes the refined transcript and the raw-to-refined diff into dir.
func (a *appState) normalize(raw transcript.Final, dir, rulesPath string) ([]string, error) {
	rules, err := normalize.LoadRules(rulesPath)
	if err != nil {
		return nil, err
	}

	res, err := normalize.Apply(raw, rules)
	if err != nil {
		return nil, err
	}

	diff, err := normalize.Diff(raw, res.Refined)
	if err != nil {
		return nil, err
	}

	refined, err := transcript.Render(res.Refined, transcript.FormatJSON)
	if err != nil {
		return nil, err
	}

	refinedPath := filepath.Join(dir, refinedTranscriptFile)
	diffPath := filepath.Join(dir, diffFile)
	if err := atomicfile.WriteFile(refinedPath, refined, 0o644); err != nil {
		return nil, fmt.Errorf("write refined transcript: %w", err)
	}
	if err := atomicfile.WriteFile(diffPath, []byte(diff), 0o644); err != nil {
		return nil, fmt.Errorf("write diff: %w", err)
	}

	a.log().Info("normalization finished",
		zap.Int("rules", len(rules)),
		zap.Int("changed_segments", res.ChangedLines),
		zap.String("refined", refinedPath),
	)
	for _, from := range sortedKeys(res.Hits) {
		a.log().Debug("rule applied", zap.String("from", from), zap.Int("hits", res.Hits[from]))
	}

	return []string{refinedPath, diffPath}, nil
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
