package transcript

import (
	"cmp"
	"math"
	"slices"
	"strings"
)

type keyedSegment struct {
	clip    int
	ordinal int
	seg     Segment
}

// Merge places every clip's segments on the global timeline, scores them and
// orders them by start. Ties keep clip order, then engine order. Text from
// the padded overlap between neighbouring clips is kept as-is.
func Merge(clips []ClipSegments) Final {
	keyed := make([]keyedSegment, 0)
	for _, clip := range clips {
		offset := float64(clip.StartMS) / 1000.0
		for i, raw := range clip.Segments {
			keyed = append(keyed, keyedSegment{
				clip:    clip.Index,
				ordinal: i,
				seg: Segment{
					Start:      round(raw.Start+offset, 3),
					End:        round(raw.End+offset, 3),
					Text:       strings.TrimSpace(raw.Text),
					Confidence: round(Score(raw.AvgLogProb, raw.NoSpeechProb), 4),
				},
			})
		}
	}

	slices.SortStableFunc(keyed, func(a, b keyedSegment) int {
		if c := cmp.Compare(a.seg.Start, b.seg.Start); c != 0 {
			return c
		}
		if c := cmp.Compare(a.clip, b.clip); c != 0 {
			return c
		}
		return cmp.Compare(a.ordinal, b.ordinal)
	})

	final := Final{Segments: make([]Segment, 0, len(keyed))}
	var sum float64
	for _, k := range keyed {
		final.Segments = append(final.Segments, k.seg)
		sum += k.seg.Confidence
	}
	if len(final.Segments) > 0 {
		final.AvgConfidence = round(sum/float64(len(final.Segments)), 4)
	}
	final.Text = JoinText(final.Segments)

	return final
}

// JoinText joins non-empty segment texts with single spaces.
func JoinText(segments []Segment) string {
	parts := make([]string, 0, len(segments))
	for _, s := range segments {
		if text := strings.TrimSpace(s.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}

func round(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}
