package main

import (
	"os/exec"
	"runtime/debug"
	"strings"
	"time"
)

// Set with -ldflags "-X main.commit=... -X main.buildDate=..." in release
// builds; otherwise filled from VCS build info or the local checkout.
var (
	commit    = "dev"
	buildDate = ""
)

func init() {
	commit, buildDate = resolveBuild(commit, buildDate)
}

func resolveBuild(rev, date string) (string, string) {
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, s := range info.Settings {
			switch {
			case s.Key == "vcs.revision" && rev == "dev" && s.Value != "":
				rev = shortRev(s.Value)
			case s.Key == "vcs.time" && date == "" && s.Value != "":
				if t, err := time.Parse(time.RFC3339, s.Value); err == nil {
					date = t.UTC().Format(time.DateOnly)
				}
			}
		}
	}
	if rev == "dev" {
		if out, err := exec.Command("git", "rev-parse", "--short", "HEAD").Output(); err == nil {
			rev = shortRev(strings.TrimSpace(string(out)))
		}
	}
	if date == "" {
		date = time.Now().UTC().Format(time.DateOnly)
	}
	return rev, date
}

func shortRev(rev string) string {
	if len(rev) > 7 {
		return rev[:7]
	}
	return rev
}
