// Package version reports which build of pm is running. Release builds set
// Commit and BuildTime through -ldflags "-X"; plain "go build" and
// "go install" fall back to the VCS stamps Go embeds in the binary.
package version

import (
	"fmt"
	"runtime/debug"
	"strings"
)

var (
	Commit    = "unknown"
	BuildTime = "unknown"
)

// String returns e.g. "pm dev (commit: 1a2b3c4+dirty, built: 2024-03-05T10:00:00Z)".
func String() string {
	commit, built, dirty := Commit, BuildTime, false
	if info, ok := debug.ReadBuildInfo(); ok {
		commit, built, dirty = fromSettings(info.Settings, commit, built)
	}
	return format(commit, built, dirty)
}

// fromSettings fills values still at "unknown" from the vcs.* build settings.
func fromSettings(settings []debug.BuildSetting, commit, built string) (string, string, bool) {
	dirty := false
	for _, s := range settings {
		switch s.Key {
		case "vcs.revision":
			if commit == "unknown" {
				commit = s.Value
			}
		case "vcs.time":
			if built == "unknown" {
				built = s.Value
			}
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	return commit, built, dirty
}

func format(commit, built string, dirty bool) string {
	commit = shortCommit(strings.TrimSpace(commit))
	if dirty {
		commit += "+dirty"
	}
	return fmt.Sprintf("pm dev (commit: %s, built: %s)", commit, built)
}

func shortCommit(c string) string {
	if len(c) > 7 && c != "unknown" {
		return c[:7]
	}
	return c
}
