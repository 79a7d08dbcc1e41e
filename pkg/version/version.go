// Package version holds build-time version info injected via ldflags.
//
// Set at compile time:
//
//	go build -ldflags "-X github.com/NicolasHaas/textconf/pkg/version.tag=v1.0.0
//	  -X github.com/NicolasHaas/textconf/pkg/version.commit=abc1234
//	  -X github.com/NicolasHaas/textconf/pkg/version.date=2026-01-01"
package version

import (
	"fmt"
	"io"
	"os"
)

// Populated by -ldflags "-X ...". Defaults are used for local dev builds.
var (
	tag    = ""        // git tag (e.g. "v0.2.0"), empty if not on a tag
	commit = "unknown" // short git commit SHA
	date   = "unknown" // build date (ISO 8601)
)

// String returns a short version: the tag, else the commit, else "dev".
func String() string {
	if tag != "" {
		return tag
	}
	if commit != "unknown" {
		return commit
	}
	return "dev"
}

// Full returns "tag (commit) built date" or a sensible fallback.
func Full() string {
	if tag != "" {
		return tag + " (" + commit + ") built " + date
	}
	if commit != "unknown" {
		return commit + " built " + date
	}
	return "dev"
}

// Print writes "<binary> <full version>" to stdout, for --version.
func Print(binary string) {
	Fprint(os.Stdout, binary)
}

// Fprint is Print with an explicit writer.
func Fprint(w io.Writer, binary string) {
	_, _ = fmt.Fprintf(w, "%s %s\n", binary, Full())
}
