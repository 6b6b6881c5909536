package cli

import (
	"fmt"

	"github.com/fmueller/longscribe/internal/config"
	"github.com/fmueller/longscribe/internal/download"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newSetupCmd(app *appState) *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Download and verify the whisper.cpp model used for transcription",
		Long: `Download the configured whisper.cpp model into the model directory.

An existing file is verified against its pinned checksum and replaced when it
does not match. Other engines fetch their own models and need no setup.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			if engine := app.cfg.Transcription.Engine; engine != config.EngineWhisperCPP {
				fmt.Fprintf(out, "Engine %s manages its own models; nothing to set up\n", engine)
				return nil
			}

			model, err := app.localModel()
			if err != nil {
				return err
			}
			if model.Custom {
				return fmt.Errorf("setup expects a named model; got custom path %s", model.Path)
			}

			checksum, err := expectedChecksum(cmd.Context(), model)
			if err != nil {
				return err
			}

			if !model.Missing && checksum != "" {
				if err := download.VerifyFileChecksum(model.Path, checksum); err != nil {
					app.log().Warn("installed model is corrupt; downloading fresh copy", zap.String("model", model.Name), zap.Error(err))
					model.Missing = true
				}
			}
			if !model.Missing {
				app.log().Info("model already present", zap.String("model", model.Name), zap.String("path", model.Path))
				fmt.Fprintf(out, "Model %s already present at %s\n", model.Name, model.Path)
				return nil
			}

			app.log().Info("downloading model", zap.String("model", model.Name), zap.Int("size_mb", model.SizeMB), zap.String("path", model.Path))
			fmt.Fprintf(out, "Downloading model %s (about %d MB)\n", model.Name, model.SizeMB)
			if err := app.fetchModel(cmd.Context(), model, checksum); err != nil {
				return err
			}

			fmt.Fprintf(out, "Model %s installed at %s\n", model.Name, model.Path)
			return nil
		},
	}
}
