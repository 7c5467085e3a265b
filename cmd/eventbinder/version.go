package main

import (
	"fmt"
	"io"
	"runtime/debug"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ehabterra/eventbinder/internal/engine"
)

// Version info - can be injected at build time via -ldflags or detected at runtime
var (
	Version   = "0.0.1" // Default version, overridden by -ldflags or runtime detection
	Commit    = "unknown"
	BuildDate = "unknown"
	GoVersion = "unknown"
)

// detectVersionInfo attempts to detect version information at runtime
func detectVersionInfo() {
	// If version info was already injected via -ldflags, don't override it
	if Version != "0.0.1" {
		return
	}

	info, ok := debug.ReadBuildInfo()
	if !ok {
		Version = "unknown (go install)"
		return
	}

	if info.GoVersion != "" {
		GoVersion = info.GoVersion
	}
	if info.Main.Version != "" && info.Main.Version != "(devel)" {
		Version = info.Main.Version
	}

	hasVCSInfo := false
	isModified := false
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			hasVCSInfo = true
			Commit = setting.Value
			if len(Commit) > 7 {
				Commit = Commit[:7] // Short commit hash
			}
		case "vcs.time":
			hasVCSInfo = true
			BuildDate = setting.Value
		case "vcs.modified":
			isModified = setting.Value == "true"
		}
	}

	if isModified && !strings.Contains(Version, "+dirty") {
		Version += "+dirty"
	}
	if hasVCSInfo && Version == "0.0.1" {
		Version = "dev"
	}

	if Version == "0.0.1" {
		if info.Main.Path == "github.com/ehabterra/eventbinder" {
			Version = "latest (go install)"
		} else {
			Version = "unknown (go install)"
		}
	}
}

func printVersion(w io.Writer) {
	detectVersionInfo()

	fmt.Fprintf(w, "eventbinder version: %s\n", Version)
	fmt.Fprintf(w, "Commit: %s\n", Commit)
	fmt.Fprintf(w, "Build date: %s\n", BuildDate)
	fmt.Fprintf(w, "Go version: %s\n", GoVersion)
	fmt.Fprintln(w, engine.CopyrightNotice)
	fmt.Fprintln(w, engine.LicenseNotice)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			printVersion(cmd.OutOrStdout())
		},
	}
}
