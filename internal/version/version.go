package version

import (
	"fmt"
	"os/exec"
	"runtime/debug"
	"strings"
)

// Set through -ldflags by release builds.
var (
	Version = ""
	Commit  = "unknown"
	Date    = "unknown"
)

// Resolve returns the full version string. Release builds report the
// ldflags version; `go install` builds fall back to the module version; a
// binary run from a git checkout off a release tag gets a describe suffix.
func Resolve() string {
	return resolveVersion(baseVersion(Version, debug.ReadBuildInfo), runGit)
}

// String is the one-line banner printed by the version command.
func String() string {
	v := Resolve()
	if Commit == "unknown" && Date == "unknown" {
		return fmt.Sprintf("longscribe v%s", v)
	}
	return fmt.Sprintf("longscribe v%s (commit %s, built %s)", v, Commit, Date)
}

func baseVersion(ldflags string, buildInfo func() (*debug.BuildInfo, bool)) string {
	if ldflags != "" {
		return ldflags
	}
	if info, ok := buildInfo(); ok {
		v := strings.TrimPrefix(info.Main.Version, "v")
		if v != "" && v != "(devel)" {
			return v
		}
	}
	return "0.0.0"
}

func resolveVersion(base string, git func(...string) (string, error)) string {
	suffix := gitSuffix(base, git)
	if suffix == "" {
		return base
	}
	return base + "-" + suffix
}

func gitSuffix(base string, git func(...string) (string, error)) string {
	if _, err := git("rev-parse", "--git-dir"); err != nil {
		return ""
	}
	if _, err := git("describe", "--tags", "--exact-match"); err == nil {
		return ""
	}

	desc, err := git("describe", "--tags", "--dirty", "--always")
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(desc, "v"+base+"-")
}

func runGit(args ...string) (string, error) {
	out, err := exec.Command("git", args...).Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
