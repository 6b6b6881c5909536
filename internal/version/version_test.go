package version

import (
	"fmt"
	"runtime/debug"
	"slices"
	"testing"

	"github.com/stretchr/testify/require"
)

func fakeGit(exactErr error, describe string, descErr error) func(...string) (string, error) {
	return func(args ...string) (string, error) {
		switch {
		case len(args) == 0:
			return "", fmt.Errorf("no args")
		case args[0] == "rev-parse":
			return ".git", nil
		case slices.Contains(args, "--exact-match"):
			return "v0.3.0", exactErr
		case args[0] == "describe":
			return describe, descErr
		default:
			return "", fmt.Errorf("unexpected git subcommand %q", args[0])
		}
	}
}

func notARepo(...string) (string, error) {
	return "", fmt.Errorf("not a git repository")
}

func TestResolveVersion(t *testing.T) {
	t.Parallel()

	noTag := fmt.Errorf("no tag")
	tests := []struct {
		name string
		git  func(...string) (string, error)
		want string
	}{
		{name: "tagged release", git: fakeGit(nil, "", nil), want: "0.3.0"},
		{name: "commits after tag", git: fakeGit(noTag, "v0.3.0-3-gabcdef", nil), want: "0.3.0-3-gabcdef"},
		{name: "dirty tree", git: fakeGit(noTag, "v0.3.0-3-gabcdef-dirty", nil), want: "0.3.0-3-gabcdef-dirty"},
		{name: "no tags", git: fakeGit(noTag, "abcdef", nil), want: "0.3.0-abcdef"},
		{name: "describe fails", git: fakeGit(noTag, "", fmt.Errorf("boom")), want: "0.3.0"},
		{name: "not a repo", git: notARepo, want: "0.3.0"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, resolveVersion("0.3.0", tt.git))
		})
	}
}

func TestBaseVersion(t *testing.T) {
	t.Parallel()

	module := func(v string) func() (*debug.BuildInfo, bool) {
		return func() (*debug.BuildInfo, bool) {
			return &debug.BuildInfo{Main: debug.Module{Version: v}}, true
		}
	}
	missing := func() (*debug.BuildInfo, bool) { return nil, false }

	require.Equal(t, "1.2.0", baseVersion("1.2.0", module("v9.9.9")))
	require.Equal(t, "0.4.1", baseVersion("", module("v0.4.1")))
	require.Equal(t, "0.0.0", baseVersion("", module("(devel)")))
	require.Equal(t, "0.0.0", baseVersion("", missing))
}
