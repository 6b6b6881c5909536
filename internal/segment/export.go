package segment

import (
	"context"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"
)

const ClipsDir = "clips"

type Exporter interface {
	ExportClip(startMS, durationMS int64, dest string) error
}

func ClipFileName(index int) string {
	return fmt.Sprintf("clip_%03d.wav", index)
}

// Export writes every clip's audio under workDir/clips and returns the clips
// with File set to the work-dir-relative path.
func Export(ctx context.Context, exp Exporter, clips []Clip, workDir string, logger *zap.Logger) ([]Clip, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	out := make([]Clip, len(clips))
	for i, clip := range clips {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		clip.File = filepath.Join(ClipsDir, ClipFileName(clip.Index))
		if err := exp.ExportClip(clip.StartMS, clip.DurationMS, filepath.Join(workDir, clip.File)); err != nil {
			return nil, fmt.Errorf("export clip %d: %w", clip.Index, err)
		}
		out[i] = clip

		logger.Info("clip exported",
			zap.Int("clip", clip.Index+1),
			zap.Int("total", len(clips)),
			zap.String("start", fmt.Sprintf("%.1fs", float64(clip.StartMS)/1000)),
			zap.String("duration", fmt.Sprintf("%.1fs", float64(clip.DurationMS)/1000)),
		)
	}

	return out, nil
}

// Coverage returns the first uncovered millisecond in [0, totalMS), or -1
// when the clips cover the whole range.
func Coverage(clips []Clip, totalMS int64) int64 {
	var covered int64
	for _, c := range clips {
		if c.StartMS > covered {
			return covered
		}
		covered = max(covered, c.EndMS())
	}
	if covered < totalMS {
		return covered
	}
	return -1
}
