package cli

import (
	"strings"
	"testing"

	"github.com/fmueller/longscribe/internal/version"
	"github.com/stretchr/testify/require"
)

func TestCLIErrorCases(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		args        []string
		errContains string
	}{
		{
			name:        "unknown command",
			args:        []string{"badcmd"},
			errContains: "unknown command",
		},
		{
			name:        "unknown root flag",
			args:        []string{"--badflag"},
			errContains: "unknown flag",
		},
		{
			name:        "unknown subcommand flag",
			args:        []string{"run", "--bogus", "f.wav"},
			errContains: "unknown flag",
		},
		{
			name:        "run missing arg",
			args:        []string{"run"},
			errContains: "accepts 1 arg(s)",
		},
		{
			name:        "run too many args",
			args:        []string{"run", "a.wav", "b.wav"},
			errContains: "accepts 1 arg(s)",
		},
		{
			name:        "run nonexistent file",
			args:        []string{"run", "/no/such/file.wav"},
			errContains: "input audio not found",
		},
		{
			name:        "segment nonexistent file",
			args:        []string{"segment", "/no/such/file.wav"},
			errContains: "input audio not found",
		},
		{
			name:        "transcribe takes no args",
			args:        []string{"transcribe", "a.wav"},
			errContains: "unknown command",
		},
		{
			name:        "force is local to segment",
			args:        []string{"run", "--force", "a.wav"},
			errContains: "unknown flag",
		},
		{
			name:        "missing config file",
			args:        []string{"status", "--config", "/no/such/longscribe.yaml"},
			errContains: "read config file",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, _, err := runCommand(t, append(tt.args, "--work-dir", t.TempDir()))
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.errContains)
		})
	}
}

func TestSetupRejectsNonexistentCustomModelPath(t *testing.T) {
	t.Parallel()

	_, _, err := runCommand(t, []string{"setup", "--model", "/no/such/path/model.bin", "--model-dir", t.TempDir()})
	require.Error(t, err)
	require.Contains(t, err.Error(), "custom model path does not exist")
}

func TestSetupSkipsEnginesWithoutLocalModels(t *testing.T) {
	t.Parallel()

	stdout, _, err := runCommand(t, []string{"setup", "--engine", "http", "--model-dir", t.TempDir()})
	require.NoError(t, err)
	require.Contains(t, stdout, "manages its own models")
}

func TestVersionFlagOutput(t *testing.T) {
	t.Parallel()

	stdout, _, err := runCommand(t, []string{"--version"})
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(stdout, "longscribe v"), "expected version prefix, got: %s", stdout)
}

func TestVersionCommandOutput(t *testing.T) {
	t.Parallel()

	stdout, _, err := runCommand(t, []string{"version"})
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(stdout, "longscribe v"), "expected version prefix, got: %s", stdout)
}

func TestVersionCommandShort(t *testing.T) {
	t.Parallel()

	stdout, _, err := runCommand(t, []string{"version", "--short"})
	require.NoError(t, err)
	require.Equal(t, version.Resolve()+"\n", stdout)
}
