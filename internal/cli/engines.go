package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/fmueller/longscribe/internal/config"
	"github.com/fmueller/longscribe/internal/download"
	"github.com/fmueller/longscribe/internal/whisper"
	"go.uber.org/zap"
)

// newEngine builds the configured engine and the request template shared by
// every clip. Only whisper.cpp needs a local model file.
func (a *appState) newEngine(ctx context.Context) (whisper.Engine, whisper.Request, error) {
	t := a.cfg.Transcription
	req := whisper.Request{Model: t.Model, Language: t.Language, BeamSize: t.BeamSize}

	switch t.Engine {
	case config.EngineFasterWhisper:
		req.Model = whisper.ModelName(t.Model)
		return whisper.NewFasterWhisperEngine(t.Device, t.ComputeType, a.log()), req, nil

	case config.EngineHTTP:
		if t.Model == whisper.DefaultModel {
			req.Model = whisper.DefaultHTTPModel
		}
		return whisper.NewHTTPEngine(t.BaseURL, a.log()), req, nil

	default:
		engine, err := whisper.NewBundledEngine(a.log())
		if err != nil {
			return nil, whisper.Request{}, err
		}
		model, err := a.ensureModelAvailable(ctx)
		if err != nil {
			return nil, whisper.Request{}, err
		}
		req.Model = model.Path
		return engine, req, nil
	}
}

func closeEngine(engine whisper.Engine, logger *zap.Logger) {
	closer, ok := engine.(io.Closer)
	if !ok {
		return
	}
	if err := closer.Close(); err != nil {
		logger.Warn("failed to stop engine", zap.String("engine", engine.Name()), zap.Error(err))
	}
}

// localModel resolves the configured whisper.cpp model inside the model
// storage directory.
func (a *appState) localModel() (whisper.ResolvedModel, error) {
	modelDir, err := a.modelStorageDir()
	if err != nil {
		return whisper.ResolvedModel{}, err
	}
	return whisper.ResolveModel(a.cfg.Transcription.Model, modelDir)
}

// ensureModelAvailable is the run-time path: a present model is trusted as
// is, a missing one is fetched only when auto-download is on.
func (a *appState) ensureModelAvailable(ctx context.Context) (whisper.ResolvedModel, error) {
	model, err := a.localModel()
	if err != nil || !model.Missing {
		return model, err
	}

	if !a.cfg.Transcription.AutoDownload {
		return whisper.ResolvedModel{}, fmt.Errorf("model %q is missing at %s; run `longscribe setup --model %s` or use --auto-download=true", model.Name, model.Path, model.Name)
	}

	a.log().Info("model not found, downloading", zap.String("model", model.Name), zap.String("destination", model.Path))
	if err := a.fetchModel(ctx, model, model.SHA256); err != nil {
		return whisper.ResolvedModel{}, err
	}
	model.Missing = false
	return model, nil
}

// expectedChecksum prefers the pinned digest and falls back to the published
// checksum list when the catalog entry has one.
func expectedChecksum(ctx context.Context, model whisper.ResolvedModel) (string, error) {
	if model.SHA256 != "" || model.SHA256URL == "" {
		return model.SHA256, nil
	}
	sum, err := download.ResolveExpectedChecksum(ctx, model.SHA256URL, model.FileName, nil)
	if err != nil {
		return "", fmt.Errorf("resolve checksum for model %s: %w", model.Name, err)
	}
	return sum, nil
}

func (a *appState) fetchModel(ctx context.Context, model whisper.ResolvedModel, checksum string) error {
	err := download.DownloadFile(ctx, download.Options{
		URL:            model.URL,
		Destination:    model.Path,
		ExpectedSHA256: checksum,
		ChecksumURL:    model.SHA256URL,
		NoProgress:     a.noProgress,
		Logger:         a.log(),
	})
	if err != nil {
		return fmt.Errorf("download model %q: %w", model.Name, err)
	}
	return nil
}
