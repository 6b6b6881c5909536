package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewWithoutFile(t *testing.T) {
	t.Parallel()

	logger, closeFn, err := New(Options{Verbose: true})
	require.NoError(t, err)
	require.NotNil(t, logger)
	require.NoError(t, closeFn())
}

func TestNewTeesIntoLogFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "logs", "longscribe.log")
	logger, closeFn, err := New(Options{JSON: true, File: path})
	require.NoError(t, err)

	logger.Info("clip done", zap.Int("clip", 3))
	logger.Debug("hidden at info level")
	require.NoError(t, closeFn())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)
	require.Contains(t, lines[0], `"msg":"clip done"`)
	require.Contains(t, lines[0], `"clip":3`)
}
