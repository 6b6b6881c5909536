package platform

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

const AppName = "longscribe"

// Env is the slice of the host environment that decides where longscribe
// keeps shared data such as downloaded models.
type Env struct {
	GOOS         string
	Home         string
	XDGDataHome  string
	LocalAppData string
}

func CurrentEnv() Env {
	home, _ := os.UserHomeDir()
	return Env{
		GOOS:         runtime.GOOS,
		Home:         home,
		XDGDataHome:  os.Getenv("XDG_DATA_HOME"),
		LocalAppData: os.Getenv("LOCALAPPDATA"),
	}
}

// DataDir is the per-user application directory. Models are shared between
// workspaces, so they live here rather than in a work directory.
func (e Env) DataDir() (string, error) {
	switch e.GOOS {
	case "windows":
		if e.LocalAppData != "" {
			return filepath.Join(e.LocalAppData, AppName), nil
		}
		if e.Home == "" {
			return "", errors.New("neither LOCALAPPDATA nor home directory is set")
		}
		return filepath.Join(e.Home, "AppData", "Local", AppName), nil
	case "darwin":
		if e.Home == "" {
			return "", errors.New("home directory is empty")
		}
		return filepath.Join(e.Home, "Library", "Application Support", AppName), nil
	case "linux", "freebsd", "openbsd", "netbsd":
		if e.XDGDataHome != "" {
			return filepath.Join(e.XDGDataHome, AppName), nil
		}
		if e.Home == "" {
			return "", errors.New("home directory is empty")
		}
		return filepath.Join(e.Home, ".local", "share", AppName), nil
	default:
		return "", fmt.Errorf("unsupported OS: %s", e.GOOS)
	}
}

func (e Env) ModelDir() (string, error) {
	dir, err := e.DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "models"), nil
}

// ResolveModelDir returns override when set and the per-user model directory
// otherwise.
func ResolveModelDir(override string) (string, error) {
	if override != "" {
		return filepath.Clean(override), nil
	}
	dir, err := CurrentEnv().ModelDir()
	if err != nil {
		return "", fmt.Errorf("resolve model dir: %w", err)
	}
	return dir, nil
}

// ResolveWorkDir returns the absolute work directory, creating it if needed.
func ResolveWorkDir(dir string) (string, error) {
	if dir == "" {
		dir = "."
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolve work dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return "", fmt.Errorf("create work dir: %w", err)
	}
	return abs, nil
}
