// Package transcript holds the timed text model shared by the engines, the
// clip cache and the final merge.
package transcript

// RawSegment is one engine segment in clip-local time, stored exactly as the
// engine produced it so confidence can be recomputed without re-inference.
type RawSegment struct {
	Start        float64 `json:"start"`
	End          float64 `json:"end"`
	Text         string  `json:"text"`
	AvgLogProb   float64 `json:"avg_logprob"`
	NoSpeechProb float64 `json:"no_speech_prob"`
}

// Segment is a scored segment on the global timeline.
type Segment struct {
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

type Final struct {
	AvgConfidence float64   `json:"avg_confidence"`
	Text          string    `json:"text,omitempty"`
	Segments      []Segment `json:"segments"`
}

// ClipSegments groups the raw output of one clip with its offset.
type ClipSegments struct {
	Index    int
	StartMS  int64
	Segments []RawSegment
}
