package normalize

import (
	"fmt"

	"github.com/fmueller/longscribe/internal/transcript"
	"github.com/pmezard/go-difflib/difflib"
)

// Diff renders a unified diff of segment texts, one line per segment, from
// "raw" to "refined". Identical transcripts give an empty string.
func Diff(raw, refined transcript.Final) (string, error) {
	diff := difflib.UnifiedDiff{
		A:        lines(raw),
		B:        lines(refined),
		FromFile: "raw",
		ToFile:   "refined",
		Context:  3,
	}

	out, err := difflib.GetUnifiedDiffString(diff)
	if err != nil {
		return "", fmt.Errorf("render diff: %w", err)
	}
	return out, nil
}

func lines(f transcript.Final) []string {
	out := make([]string, len(f.Segments))
	for i, s := range f.Segments {
		out[i] = s.Text + "\n"
	}
	return out
}
