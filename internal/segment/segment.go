package segment

import (
	"context"
	"errors"
	"fmt"

	"github.com/fmueller/longscribe/internal/audio"
	"go.uber.org/zap"
)

var ErrInvalidParams = errors.New("invalid segmentation parameters")

// Clip is one bounded slice of the input. File is relative to the work directory.
type Clip struct {
	Index      int    `json:"index"`
	File       string `json:"file"`
	StartMS    int64  `json:"start_ms"`
	DurationMS int64  `json:"duration_ms"`
}

func (c Clip) EndMS() int64 {
	return c.StartMS + c.DurationMS
}

type Params struct {
	MaxClipMS       int64   `json:"max_clip_ms" yaml:"max_clip_ms"`
	MinClipMS       int64   `json:"min_clip_ms" yaml:"min_clip_ms"`
	MinSilenceMS    int64   `json:"min_silence_ms" yaml:"min_silence_ms"`
	SilenceThreshDB float64 `json:"silence_thresh_db" yaml:"silence_thresh_db"`
	KeepSilenceMS   int64   `json:"keep_silence_ms" yaml:"keep_silence_ms"`
}

func DefaultParams() Params {
	return Params{
		MaxClipMS:       30_000,
		MinClipMS:       12_000,
		MinSilenceMS:    600,
		SilenceThreshDB: -40,
		KeepSilenceMS:   300,
	}
}

func (p Params) Validate() error {
	switch {
	case p.MaxClipMS <= 0:
		return fmt.Errorf("%w: max clip must be positive, got %d ms", ErrInvalidParams, p.MaxClipMS)
	case p.MinClipMS < 0 || p.MinSilenceMS < 0 || p.KeepSilenceMS < 0:
		return fmt.Errorf("%w: durations must not be negative", ErrInvalidParams)
	case p.MinClipMS > p.MaxClipMS:
		return fmt.Errorf("%w: min clip %d ms exceeds max clip %d ms", ErrInvalidParams, p.MinClipMS, p.MaxClipMS)
	}
	return nil
}

type Source interface {
	DurationMS() int64
	ReadWindow(startMS, lengthMS int64) (audio.Window, error)
}

type SilenceDetector interface {
	DetectSilences(w audio.Window, minSilenceMS int64, threshDB float64) []audio.Interval
}

type Segmenter struct {
	Params Params
	Logger *zap.Logger
}

// Segment walks the source with a max-clip window, cutting each clip at the
// start of the window's last silence when that silence begins at least
// MinClipMS in. A cut clip keeps KeepSilenceMS of trailing pad but the cursor
// only advances to the unpadded cut, so neighbouring clips overlap by at most
// the pad. Windows without a usable silence are emitted whole.
func (s Segmenter) Segment(ctx context.Context, src Source, det SilenceDetector) ([]Clip, error) {
	p := s.Params
	if err := p.Validate(); err != nil {
		return nil, err
	}

	logger := s.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	total := src.DurationMS()
	clips := make([]Clip, 0, total/max(p.MinClipMS, 1)+1)

	for cursor := int64(0); cursor < total; {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		length := min(p.MaxClipMS, total-cursor)
		window, err := src.ReadWindow(cursor, length)
		if err != nil {
			return nil, fmt.Errorf("read window at %d ms: %w", cursor, err)
		}

		duration, advance := length, length
		cut, ok := cutPoint(det.DetectSilences(window, p.MinSilenceMS, p.SilenceThreshDB), p.MinClipMS)
		if ok {
			duration = min(cut+p.KeepSilenceMS, total-cursor)
			advance = cut
		}

		clip := Clip{Index: len(clips), StartMS: cursor, DurationMS: duration}
		clips = append(clips, clip)
		logger.Debug("clip cut",
			zap.Int("clip", clip.Index),
			zap.Int64("start_ms", clip.StartMS),
			zap.Int64("duration_ms", clip.DurationMS),
			zap.Bool("silence_cut", ok),
		)

		cursor += advance
	}

	return clips, nil
}

func cutPoint(silences []audio.Interval, minClipMS int64) (int64, bool) {
	if len(silences) == 0 {
		return 0, false
	}
	start := silences[len(silences)-1].StartMS
	if start < minClipMS || start <= 0 {
		return 0, false
	}
	return start, true
}
