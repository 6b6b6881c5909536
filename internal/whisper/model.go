package whisper

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const DefaultModel = "large-v3"

const ggmlBaseURL = "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/"

// Model is a whisper.cpp ggml model. The faster-whisper helper loads the same
// names from its own model hub, so only the whisper.cpp engine needs files.
type Model struct {
	Name      string
	FileName  string
	URL       string
	SHA256    string
	SHA256URL string
	SizeMB    int
}

// ResolvedModel is a model reference bound to a file on disk. Custom paths
// carry no registry metadata, so Name and URL stay empty for them.
type ResolvedModel struct {
	Model
	Path    string
	Missing bool
	Custom  bool
}

func ggml(name, sha256 string, sizeMB int) Model {
	file := "ggml-" + name + ".bin"
	return Model{Name: name, FileName: file, URL: ggmlBaseURL + file, SHA256: sha256, SizeMB: sizeMB}
}

// catalog is ordered by size so listings read smallest first.
var catalog = []Model{
	ggml("tiny", "be07e048e1e599ad46341c8d2a135645097a538221678b7acdd1b1919c6e1b21", 75),
	ggml("base", "60ed5bc3dd14eea856493d334349b405782ddcaf0028d4b5df4088345fba2efe", 142),
	ggml("small", "1be3a9b2063867b937e64e2ec7483364a79917e157fa98c5d94b5c1fffea987b", 466),
	ggml("medium", "6c14d5adee5f86394037b4e4e8b59f1673b6cee10e3cf0b11bbdbee79c156208", 1533),
	ggml("large-v3", "64d182b440b98d5203c4f9bd541544d84c605196c4f7b845dfa11fb23594d1e2", 3095),
}

func ModelNames() []string {
	names := make([]string, len(catalog))
	for i, m := range catalog {
		names[i] = m.Name
	}
	return names
}

func LookupModel(name string) (Model, bool) {
	for _, m := range catalog {
		if m.Name == name {
			return m, true
		}
	}
	return Model{}, false
}

// ResolveModel maps a model name or a ggml file path to a location on disk.
// Named models live in modelDir and may still need downloading; a custom
// path must already exist.
func ResolveModel(modelRef, modelDir string) (ResolvedModel, error) {
	modelRef = strings.TrimSpace(modelRef)
	if modelRef == "" {
		modelRef = DefaultModel
	}

	if model, ok := LookupModel(modelRef); ok {
		return resolveNamed(model, modelDir)
	}
	if !looksLikePath(modelRef) {
		return ResolvedModel{}, fmt.Errorf("unknown model %q (known models: %s)", modelRef, strings.Join(ModelNames(), ", "))
	}
	return resolveCustom(modelRef)
}

func resolveNamed(model Model, modelDir string) (ResolvedModel, error) {
	if strings.TrimSpace(modelDir) == "" {
		return ResolvedModel{}, errors.New("model directory must not be empty for named model")
	}

	resolved := ResolvedModel{Model: model, Path: filepath.Join(modelDir, model.FileName)}
	switch _, err := os.Stat(resolved.Path); {
	case err == nil:
	case errors.Is(err, os.ErrNotExist):
		resolved.Missing = true
	default:
		return ResolvedModel{}, fmt.Errorf("stat model %s: %w", model.Name, err)
	}
	return resolved, nil
}

func resolveCustom(ref string) (ResolvedModel, error) {
	path := filepath.Clean(ref)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ResolvedModel{}, fmt.Errorf("custom model path does not exist: %s", path)
		}
		return ResolvedModel{}, fmt.Errorf("stat custom model path: %w", err)
	}
	return ResolvedModel{Path: path, Custom: true}, nil
}

func looksLikePath(ref string) bool {
	return strings.ContainsRune(ref, os.PathSeparator) || strings.EqualFold(filepath.Ext(ref), ".bin")
}

// ModelName returns the name passed to engines that resolve models themselves.
// A custom ggml path has no such name, so the default is used instead.
func ModelName(modelRef string) string {
	modelRef = strings.TrimSpace(modelRef)
	if modelRef == "" || looksLikePath(modelRef) {
		return DefaultModel
	}
	return modelRef
}
