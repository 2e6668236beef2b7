package version

import (
	"os/exec"
	"strings"
)

// Overridden at release time via -ldflags.
var (
	Version = "0.1.0"
	Commit  = "unknown"
	Date    = "unknown"
)

type gitFn func(...string) (string, error)

// Resolve returns the full version string. When run from a git checkout whose
// HEAD is not on a release tag, a describe-derived suffix is appended so dev
// builds are distinguishable from releases.
func Resolve() string {
	return resolveVersion(Version, runGit)
}

func resolveVersion(base string, git gitFn) string {
	if base == "" {
		base = "0.0.0"
	}

	if suffix := describeSuffix(base, git); suffix != "" {
		return base + "-" + suffix
	}
	return base
}

func describeSuffix(base string, git gitFn) string {
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
