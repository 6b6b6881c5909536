package whisper

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveModel(t *testing.T) {
	t.Parallel()

	modelDir := t.TempDir()
	installed := filepath.Join(modelDir, "ggml-tiny.bin")
	require.NoError(t, os.WriteFile(installed, []byte("ok"), 0o644))

	custom := filepath.Join(t.TempDir(), "finetuned.bin")
	require.NoError(t, os.WriteFile(custom, []byte("x"), 0o644))

	tests := []struct {
		name        string
		ref         string
		wantName    string
		wantPath    string
		wantMissing bool
		wantCustom  bool
	}{
		{name: "empty falls back to default", ref: "", wantName: DefaultModel, wantPath: filepath.Join(modelDir, "ggml-large-v3.bin"), wantMissing: true},
		{name: "installed named model", ref: "tiny", wantName: "tiny", wantPath: installed},
		{name: "named model with padding", ref: "  medium ", wantName: "medium", wantPath: filepath.Join(modelDir, "ggml-medium.bin"), wantMissing: true},
		{name: "custom path", ref: custom, wantPath: custom, wantCustom: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			resolved, err := ResolveModel(tt.ref, modelDir)
			require.NoError(t, err)
			require.Equal(t, tt.wantName, resolved.Name)
			require.Equal(t, tt.wantPath, resolved.Path)
			require.Equal(t, tt.wantMissing, resolved.Missing)
			require.Equal(t, tt.wantCustom, resolved.Custom)
		})
	}
}

func TestResolveModelErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		ref      string
		modelDir string
		wantErr  string
	}{
		{name: "unknown name", ref: "super-huge", modelDir: t.TempDir(), wantErr: "unknown model"},
		{name: "missing custom file", ref: filepath.Join(t.TempDir(), "gone.bin"), modelDir: t.TempDir(), wantErr: "does not exist"},
		{name: "named model without directory", ref: "base", modelDir: " ", wantErr: "model directory"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := ResolveModel(tt.ref, tt.modelDir)
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestCatalogEntriesArePinnedAndOrdered(t *testing.T) {
	t.Parallel()

	names := ModelNames()
	require.Equal(t, "tiny", names[0])
	require.Contains(t, names, DefaultModel)

	prevSize := 0
	for _, name := range names {
		model, ok := LookupModel(name)
		require.True(t, ok)
		require.Lenf(t, model.SHA256, 64, "model %s should have pinned sha256", name)
		require.Truef(t, filepath.Base(model.URL) == model.FileName, "model %s url should end in its file name", name)
		require.Greater(t, model.SizeMB, prevSize)
		prevSize = model.SizeMB
	}
}

func TestModelName(t *testing.T) {
	t.Parallel()

	require.Equal(t, "medium", ModelName("medium"))
	require.Equal(t, "distil-large-v3", ModelName(" distil-large-v3 "))
	require.Equal(t, DefaultModel, ModelName(""))
	require.Equal(t, DefaultModel, ModelName("/models/ggml-custom.bin"))
	require.Equal(t, DefaultModel, ModelName("ggml-custom.BIN"))
}
