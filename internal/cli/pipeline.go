package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fmueller/longscribe/internal/atomicfile"
	"github.com/fmueller/longscribe/internal/audio"
	"github.com/fmueller/longscribe/internal/cache"
	"github.com/fmueller/longscribe/internal/coordinator"
	"github.com/fmueller/longscribe/internal/platform"
	"github.com/fmueller/longscribe/internal/segment"
	"github.com/fmueller/longscribe/internal/state"
	"github.com/fmueller/longscribe/internal/transcript"
	"go.uber.org/zap"
)

const (
	outputsDir        = "outputs"
	rawTranscriptFile = "raw_transcript.json"
)

type clipSource interface {
	segment.Source
	segment.Exporter
}

func openWAVSource(path string) (clipSource, error) {
	src, err := audio.OpenWAV(path)
	if err != nil {
		return nil, err
	}
	return src, nil
}

type workspace struct {
	dir   string
	store state.Store
	cache cache.Store
}

func (a *appState) openWorkspace() (workspace, error) {
	dir, err := platform.ResolveWorkDir(a.workDir)
	if err != nil {
		return workspace{}, err
	}
	return workspace{dir: dir, store: state.NewStore(dir), cache: cache.New(dir)}, nil
}

func (w workspace) outputDir() string {
	return filepath.Join(w.dir, outputsDir)
}

func (w workspace) outputPath(name string) string {
	return filepath.Join(w.outputDir(), name)
}

// reset discards the state, clips and cache. The state file goes first so an
// interrupted reset never leaves done clips without their cache entries.
func (w workspace) reset(logger *zap.Logger) error {
	logger.Warn("discarding existing pipeline state, clips and cache", zap.String("work_dir", w.dir))
	if err := os.Remove(w.store.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove state: %w", err)
	}
	for _, dir := range []string{segment.ClipsDir, cache.Dir} {
		if err := os.RemoveAll(filepath.Join(w.dir, dir)); err != nil {
			return fmt.Errorf("remove %s: %w", dir, err)
		}
	}
	return nil
}

// loadState reads the workspace state and points at the segment command when
// there is none yet.
func (w workspace) loadState() (*state.PipelineState, error) {
	st, err := w.store.Load()
	if errors.Is(err, state.ErrNotFound) {
		return nil, fmt.Errorf("%w in %s; run `longscribe segment <input.wav>` first", err, w.dir)
	}
	return st, err
}

func resolveInput(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve input path: %w", err)
	}

	info, err := os.Stat(abs)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrInputNotFound, abs)
		}
		return "", fmt.Errorf("stat input: %w", err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%w: %s is a directory", ErrInputNotFound, abs)
	}
	return abs, nil
}

// segmentInput cuts the input into clips, exports their audio and writes the
// initial state. With replace set, the previous state, clips and cache are
// discarded, but only once the new input has segmented cleanly.
func (a *appState) segmentInput(ctx context.Context, ws workspace, input string, replace bool) (*state.PipelineState, error) {
	src, err := a.openSourceFn(input)
	if err != nil {
		return nil, err
	}

	params := a.cfg.Segmentation
	a.log().Info("segmenting...",
		zap.String("input", input),
		zap.String("duration", fmt.Sprintf("%.1fs", float64(src.DurationMS())/1000)),
		zap.Int64("max_clip_ms", params.MaxClipMS),
		zap.Int64("min_clip_ms", params.MinClipMS),
	)

	spinner := startSpinner(a.progressEnabled(), "Segmenting")
	clips, err := segment.Segmenter{Params: params, Logger: a.log()}.Segment(ctx, src, audio.EnergyDetector{})
	if err == nil && replace {
		err = ws.reset(a.log())
	}
	if err == nil {
		clips, err = segment.Export(ctx, src, clips, ws.dir, a.log())
	}
	spinner.stop()
	if err != nil {
		return nil, fmt.Errorf("segment %s: %w", input, err)
	}

	st := state.New(input, src.DurationMS(), params, clips)
	st.LastRunID = a.runID
	if err := ws.store.Persist(st); err != nil {
		return nil, err
	}

	a.log().Info("segmentation finished", zap.Int("clips", len(clips)), zap.String("state", ws.store.Path))
	return st, nil
}

// loadOrSegment resumes from an existing state and segments only when the
// work directory has none. A saved clip list always wins over new parameters.
func (a *appState) loadOrSegment(ctx context.Context, ws workspace, input string) (*state.PipelineState, error) {
	st, err := ws.store.Load()
	switch {
	case errors.Is(err, state.ErrNotFound):
		return a.segmentInput(ctx, ws, input, false)
	case err != nil:
		return nil, err
	}

	if st.InputAudio != input {
		a.log().Warn("state was created for another input; resuming its clips",
			zap.String("state_input", st.InputAudio),
			zap.String("input", input),
		)
	}
	if st.Params != a.cfg.Segmentation {
		a.log().Warn("segmentation parameters differ from the saved state; keeping the saved clips")
	}

	a.log().Info("resuming",
		zap.Int("clips", st.TotalClips),
		zap.Int("processed", len(st.Processed)),
	)
	return st, nil
}

// transcribePending runs the coordinator over every pending clip. The engine
// is only built when there is work left.
func (a *appState) transcribePending(ctx context.Context, ws workspace, st *state.PipelineState) (coordinator.Report, *state.PipelineState, error) {
	if st.Complete {
		a.log().Info("all clips already transcribed", zap.Int("clips", st.TotalClips))
		return coordinator.Report{Complete: true}, st, nil
	}

	engine, req, err := a.engineFn(ctx)
	if err != nil {
		return coordinator.Report{}, st, err
	}
	defer closeEngine(engine, a.log())

	progress := startClipProgress(a.progressEnabled(), "Transcribing", len(st.Pending()))
	coord := coordinator.New(
		coordinator.Deps{
			Engine:  engine,
			Cache:   ws.cache,
			Store:   ws.store,
			Logger:  a.log(),
			Metrics: a.metrics,
		},
		coordinator.Options{
			WorkDir:              ws.dir,
			Request:              req,
			SilenceGate:          a.cfg.Transcription.SilenceGate,
			SilenceThresholdDBFS: a.cfg.Transcription.SilenceGateDB,
			RunID:                a.runID,
			OnClip:               func(coordinator.Result) { progress.advance() },
		},
	)

	report, st, err := coord.Run(ctx, st)
	progress.stop()
	return report, st, err
}

// writeOutputs merges every processed clip from the cache and writes the
// configured transcript formats. It returns the merged transcript and the
// paths written.
func (a *appState) writeOutputs(ws workspace, st *state.PipelineState) (transcript.Final, []string, error) {
	clips, err := coordinator.Collect(st, ws.cache)
	if err != nil {
		return transcript.Final{}, nil, err
	}

	final := transcript.Merge(clips)
	for _, seg := range final.Segments {
		a.metrics.RecordConfidence(seg.Confidence)
	}

	paths := make([]string, 0, len(a.cfg.Output.Formats))
	for _, format := range a.cfg.Output.Formats {
		data, err := transcript.Render(final, format)
		if err != nil {
			return transcript.Final{}, nil, err
		}

		path := ws.outputPath(outputFileName(format))
		if err := atomicfile.WriteFile(path, data, 0o644); err != nil {
			return transcript.Final{}, nil, fmt.Errorf("write %s transcript: %w", format, err)
		}
		paths = append(paths, path)
	}

	a.log().Info("transcript written",
		zap.Int("segments", len(final.Segments)),
		zap.Float64("avg_confidence", final.AvgConfidence),
		zap.Strings("files", paths),
	)
	return final, paths, nil
}

func outputFileName(format string) string {
	if format == transcript.FormatJSON {
		return rawTranscriptFile
	}
	return "transcript" + transcript.Extension(format)
}

func (a *appState) writeMetrics() {
	path := a.cfg.Output.MetricsFile
	if path == "" {
		return
	}
	if err := a.metrics.WriteTextfile(path); err != nil {
		a.log().Warn("failed to write metrics textfile", zap.String("path", path), zap.Error(err))
		return
	}
	a.log().Debug("metrics written", zap.String("path", path))
}

func (a *appState) warnPending(st *state.PipelineState, report coordinator.Report) {
	a.log().Warn("some clips are still pending; run again to retry them",
		zap.Int("pending", len(st.Pending())),
		zap.Int("failed_this_run", len(report.Failed)),
	)
}
