// Package coordinator drives the per-clip transcription loop over a pipeline
// state, checkpointing after every clip so an interrupted run can resume.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fmueller/longscribe/internal/audio"
	"github.com/fmueller/longscribe/internal/cache"
	"github.com/fmueller/longscribe/internal/metrics"
	"github.com/fmueller/longscribe/internal/segment"
	"github.com/fmueller/longscribe/internal/state"
	"github.com/fmueller/longscribe/internal/transcript"
	"github.com/fmueller/longscribe/internal/whisper"
	"go.uber.org/zap"
)

var ErrInterrupted = errors.New("transcription interrupted")

type Cache interface {
	Lookup(clip segment.Clip) (cache.Entry, bool, error)
	Put(entry cache.Entry) error
}

type StateStore interface {
	Persist(st *state.PipelineState) error
}

type Deps struct {
	Engine  whisper.Engine
	Cache   Cache
	Store   StateStore
	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

type Options struct {
	// WorkDir is the directory clip files are relative to.
	WorkDir string

	// Request carries the model, language and beam size for every clip.
	Request whisper.Request

	// SilenceGate skips the engine for clips whose whole WAV stays under
	// SilenceThresholdDBFS and records them with no segments.
	SilenceGate          bool
	SilenceThresholdDBFS float64

	RunID  string
	OnClip func(Result)
}

type Source int

const (
	SourceEngine Source = iota
	SourceCache
	SourceSilence
)

func (s Source) String() string {
	switch s {
	case SourceCache:
		return "cache"
	case SourceSilence:
		return "silence"
	default:
		return "engine"
	}
}

// Result is the outcome of one clip. Err is set when the clip failed and
// stays pending.
type Result struct {
	Clip     segment.Clip
	Segments []transcript.RawSegment
	Source   Source
	Elapsed  time.Duration
	Err      error
}

type Report struct {
	Transcribed int
	Cached      int
	Silent      int
	Failed      []Result
	Pending     int
	Complete    bool
}

type Coordinator struct {
	deps Deps
	opts Options
}

func New(deps Deps, opts Options) *Coordinator {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Coordinator{deps: deps, opts: opts}
}

// Run transcribes every pending clip in index order. Each success is cached,
// recorded and persisted before the next clip starts. Per-clip failures are
// reported and leave the clip pending. Cancellation returns ErrInterrupted
// with the state as of the last completed clip; a persist failure is returned
// as is.
func (c *Coordinator) Run(ctx context.Context, st *state.PipelineState) (Report, *state.PipelineState, error) {
	logger := c.deps.Logger
	total := len(st.Clips)

	logger.Info("transcription started",
		zap.Int("clips", total),
		zap.Int("already_processed", len(st.Processed)),
		zap.String("engine", c.deps.Engine.Name()),
	)

	var report Report
	for _, clip := range st.Clips {
		if st.IsDone(clip.Index) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return c.finish(report, st), st, fmt.Errorf("%w: %v", ErrInterrupted, err)
		}

		logger.Info("clip started",
			zap.Int("clip", clip.Index+1),
			zap.Int("total", total),
			zap.String("file", clip.File),
			zap.String("start", fmt.Sprintf("%.1fs", float64(clip.StartMS)/1000)),
			zap.String("duration", fmt.Sprintf("%.1fs", float64(clip.DurationMS)/1000)),
		)

		res := c.process(ctx, clip)
		if res.Err != nil && ctx.Err() != nil {
			logger.Warn("clip interrupted", zap.Int("clip", clip.Index+1), zap.Error(res.Err))
			return c.finish(report, st), st, fmt.Errorf("%w: %v", ErrInterrupted, ctx.Err())
		}

		if res.Err == nil && res.Source != SourceCache {
			if err := c.deps.Cache.Put(cache.Entry{
				Index:      clip.Index,
				StartMS:    clip.StartMS,
				DurationMS: clip.DurationMS,
				Engine:     c.engineLabel(res.Source),
				Segments:   res.Segments,
			}); err != nil {
				res.Err = err
			}
		}

		if res.Err != nil {
			logger.Warn("clip failed; it stays pending for the next run",
				zap.Int("clip", clip.Index+1),
				zap.Error(res.Err),
			)
			c.deps.Metrics.RecordClip(metrics.OutcomeFailed)
			report.Failed = append(report.Failed, res)
			c.notify(res)
			continue
		}

		next, err := state.RecordClipDone(st, clip.Index)
		if err != nil {
			return c.finish(report, st), st, err
		}
		next.LastRunID = c.opts.RunID
		if err := c.deps.Store.Persist(next); err != nil {
			return c.finish(report, st), st, fmt.Errorf("checkpoint after clip %d: %w", clip.Index, err)
		}
		st = next

		switch res.Source {
		case SourceCache:
			report.Cached++
			c.deps.Metrics.RecordClip(metrics.OutcomeCached)
		case SourceSilence:
			report.Silent++
			c.deps.Metrics.RecordClip(metrics.OutcomeSilent)
		default:
			report.Transcribed++
			c.deps.Metrics.RecordClip(metrics.OutcomeTranscribed)
		}

		logger.Info("clip done",
			zap.Int("clip", clip.Index+1),
			zap.String("source", res.Source.String()),
			zap.Int("segments", len(res.Segments)),
			zap.Duration("elapsed", res.Elapsed),
			zap.String("progress", fmt.Sprintf("%d/%d", len(st.Processed), total)),
		)
		c.deps.Metrics.SetProgress(len(st.Processed), total-len(st.Processed))
		c.notify(res)
	}

	report = c.finish(report, st)
	logger.Info("transcription loop finished",
		zap.Int("transcribed", report.Transcribed),
		zap.Int("cached", report.Cached),
		zap.Int("silent", report.Silent),
		zap.Int("failed", len(report.Failed)),
		zap.Int("pending", report.Pending),
	)
	return report, st, nil
}

func (c *Coordinator) finish(report Report, st *state.PipelineState) Report {
	report.Pending = len(st.Clips) - len(st.Processed)
	report.Complete = st.Complete
	c.deps.Metrics.SetProgress(len(st.Processed), report.Pending)
	return report
}

func (c *Coordinator) notify(res Result) {
	if c.opts.OnClip != nil {
		c.opts.OnClip(res)
	}
}

func (c *Coordinator) engineLabel(src Source) string {
	if src == SourceSilence {
		return "silence-gate"
	}
	return c.deps.Engine.Name()
}

func (c *Coordinator) process(ctx context.Context, clip segment.Clip) Result {
	logger := c.deps.Logger
	res := Result{Clip: clip}

	entry, ok, err := c.deps.Cache.Lookup(clip)
	if err != nil {
		logger.Warn("ignoring unreadable cache entry", zap.Int("clip", clip.Index+1), zap.Error(err))
	}
	if ok {
		res.Source = SourceCache
		res.Segments = entry.Segments
		return res
	}

	path := filepath.Join(c.opts.WorkDir, clip.File)

	if c.opts.SilenceGate {
		silent, m, err := audio.IsSilentWAV(path, c.opts.SilenceThresholdDBFS)
		if err != nil {
			logger.Warn("silence gate skipped", zap.Int("clip", clip.Index+1), zap.Error(err))
		} else if silent {
			logger.Debug("clip below silence gate",
				zap.Int("clip", clip.Index+1),
				zap.Float64("rms_dbfs", m.RMSdBFS),
				zap.Float64("peak_dbfs", m.PeakdBFS),
			)
			res.Source = SourceSilence
			res.Segments = []transcript.RawSegment{}
			return res
		}
	}

	req := c.opts.Request
	req.AudioPath = path

	started := time.Now()
	segments, err := c.transcribe(ctx, req)
	res.Elapsed = time.Since(started)
	c.deps.Metrics.RecordInference(res.Elapsed)
	if err != nil {
		res.Err = err
		return res
	}
	if segments == nil {
		segments = []transcript.RawSegment{}
	}
	res.Source = SourceEngine
	res.Segments = segments
	return res
}

func (c *Coordinator) transcribe(ctx context.Context, req whisper.Request) (segments []transcript.RawSegment, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("engine panic: %v", r)
		}
	}()
	return c.deps.Engine.Transcribe(ctx, req)
}
