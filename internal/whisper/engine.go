package whisper

import (
	"context"
	"strings"

	"github.com/fmueller/longscribe/internal/transcript"
)

const DefaultBeamSize = 5

type Request struct {
	AudioPath string
	// Model is a model file path for whisper.cpp and a model name for the
	// faster-whisper helper and HTTP engines.
	Model    string
	Language string
	BeamSize int
}

// Engine turns one audio clip into clip-local timed segments.
type Engine interface {
	Name() string
	Transcribe(ctx context.Context, req Request) ([]transcript.RawSegment, error)
}

func languageArg(lang string) string {
	lang = strings.TrimSpace(lang)
	if lang == "auto" {
		return ""
	}
	return lang
}

func beamSize(n int) int {
	if n <= 0 {
		return DefaultBeamSize
	}
	return n
}
