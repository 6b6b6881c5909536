package coordinator

import (
	"errors"
	"fmt"

	"github.com/fmueller/longscribe/internal/state"
	"github.com/fmueller/longscribe/internal/transcript"
)

var ErrMissingCache = errors.New("processed clip has no cache entry")

// Collect loads the cached segments of every processed clip, in clip order,
// ready for transcript.Merge.
func Collect(st *state.PipelineState, c Cache) ([]transcript.ClipSegments, error) {
	out := make([]transcript.ClipSegments, 0, len(st.Processed))
	for _, clip := range st.Clips {
		if !st.IsDone(clip.Index) {
			continue
		}

		entry, ok, err := c.Lookup(clip)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: clip %d", ErrMissingCache, clip.Index)
		}

		out = append(out, transcript.ClipSegments{
			Index:    clip.Index,
			StartMS:  clip.StartMS,
			Segments: entry.Segments,
		})
	}
	return out, nil
}
