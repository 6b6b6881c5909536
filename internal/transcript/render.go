package transcript

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
)

const (
	FormatJSON = "json"
	FormatText = "text"
	FormatSRT  = "srt"
	FormatVTT  = "vtt"
)

func Formats() []string {
	return []string{FormatJSON, FormatText, FormatSRT, FormatVTT}
}

// Extension returns the output file extension for a format.
func Extension(format string) string {
	switch format {
	case FormatText:
		return ".txt"
	default:
		return "." + format
	}
}

func Render(final Final, format string) ([]byte, error) {
	switch format {
	case FormatJSON:
		data, err := json.MarshalIndent(final, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encode transcript: %w", err)
		}
		return append(data, '\n'), nil
	case FormatText:
		return []byte(final.Text + "\n"), nil
	case FormatSRT:
		return []byte(renderSRT(final)), nil
	case FormatVTT:
		return []byte(renderVTT(final)), nil
	default:
		return nil, fmt.Errorf("unknown output format %q (known formats: %s)", format, strings.Join(Formats(), ", "))
	}
}

// spoken drops segments without text; subtitle cues need something to show.
func spoken(segments []Segment) []Segment {
	out := make([]Segment, 0, len(segments))
	for _, s := range segments {
		if strings.TrimSpace(s.Text) != "" {
			out = append(out, s)
		}
	}
	return out
}

func renderSRT(final Final) string {
	var b strings.Builder
	for i, s := range spoken(final.Segments) {
		fmt.Fprintf(&b, "%d\n", i+1)
		fmt.Fprintf(&b, "%s --> %s\n", formatTimestamp(s.Start, ","), formatTimestamp(s.End, ","))
		fmt.Fprintf(&b, "%s\n\n", s.Text)
	}
	return b.String()
}

func renderVTT(final Final) string {
	var b strings.Builder
	b.WriteString("WEBVTT\n\n")
	for _, s := range spoken(final.Segments) {
		fmt.Fprintf(&b, "%s --> %s\n", formatTimestamp(s.Start, "."), formatTimestamp(s.End, "."))
		fmt.Fprintf(&b, "%s\n\n", s.Text)
	}
	return b.String()
}

// formatTimestamp formats seconds as HH:MM:SS<sep>mmm.
func formatTimestamp(seconds float64, sep string) string {
	if seconds < 0 || math.IsNaN(seconds) {
		seconds = 0
	}
	d := time.Duration(math.Round(seconds*1000)) * time.Millisecond
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second
	d -= s * time.Second
	ms := d / time.Millisecond
	return fmt.Sprintf("%02d:%02d:%02d%s%03d", h, m, s, sep, ms)
}
