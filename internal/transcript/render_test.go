package transcript

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func sampleFinal() Final {
	return Final{
		AvgConfidence: 0.5,
		Text:          "hello world",
		Segments: []Segment{
			{Start: 0, End: 1.5, Text: "hello", Confidence: 0.6},
			{Start: 3661.25, End: 3662, Text: "world", Confidence: 0.4},
		},
	}
}

func TestRenderSRT(t *testing.T) {
	t.Parallel()

	out, err := Render(sampleFinal(), FormatSRT)
	require.NoError(t, err)
	require.Equal(t, "1\n00:00:00,000 --> 00:00:01,500\nhello\n\n2\n01:01:01,250 --> 01:01:02,000\nworld\n\n", string(out))
}

func TestRenderVTT(t *testing.T) {
	t.Parallel()

	out, err := Render(sampleFinal(), FormatVTT)
	require.NoError(t, err)
	require.Contains(t, string(out), "WEBVTT\n\n00:00:00.000 --> 00:00:01.500\nhello\n")
}

func TestRenderSubtitlesSkipBlankSegments(t *testing.T) {
	t.Parallel()

	final := sampleFinal()
	final.Segments = append([]Segment{{Start: 0, End: 0.5, Text: "", Confidence: 0.1}}, final.Segments...)

	srt, err := Render(final, FormatSRT)
	require.NoError(t, err)
	require.Equal(t, "1\n00:00:00,000 --> 00:00:01,500\nhello\n\n2\n01:01:01,250 --> 01:01:02,000\nworld\n\n", string(srt))

	vtt, err := Render(final, FormatVTT)
	require.NoError(t, err)
	require.NotContains(t, string(vtt), "00:00:00.500")

	raw, err := Render(final, FormatJSON)
	require.NoError(t, err)
	var decoded Final
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Len(t, decoded.Segments, 3)
}

func TestRenderJSONShape(t *testing.T) {
	t.Parallel()

	out, err := Render(sampleFinal(), FormatJSON)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(out, &decoded))
	require.Contains(t, decoded, "avg_confidence")
	require.Contains(t, decoded, "segments")
	require.Equal(t, "hello world", decoded["text"])
}

func TestRenderText(t *testing.T) {
	t.Parallel()

	out, err := Render(sampleFinal(), FormatText)
	require.NoError(t, err)
	require.Equal(t, "hello world\n", string(out))
}

func TestRenderUnknownFormat(t *testing.T) {
	t.Parallel()

	_, err := Render(sampleFinal(), "docx")
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown output format")
}

func TestExtension(t *testing.T) {
	t.Parallel()

	require.Equal(t, ".txt", Extension(FormatText))
	require.Equal(t, ".srt", Extension(FormatSRT))
	require.Equal(t, ".json", Extension(FormatJSON))
}
