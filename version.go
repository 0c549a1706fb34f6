package main

import (
	"fmt"
	"runtime/debug"
	"strings"

	"github.com/alecthomas/kong"
)

// _version is the version of the program, filled in at release time
// with -ldflags "-X main._version=...". Unreleased builds report
// "dev" plus whatever build metadata the toolchain embedded.
var _version = "dev"

var _debugReadBuildInfo = debug.ReadBuildInfo

// _generateBuildReport summarizes the VCS state the binary was built
// from: "revision[-dirty] [timestamp]", or "" if nothing is known.
var _generateBuildReport = func() string {
	info, ok := _debugReadBuildInfo()
	if !ok {
		return ""
	}

	var revision, timestamp string
	var dirty bool
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			revision = s.Value
		case "vcs.time":
			timestamp = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}

	var parts []string
	if revision != "" {
		if dirty {
			revision += "-dirty"
		}
		parts = append(parts, revision)
	}
	if timestamp != "" {
		parts = append(parts, timestamp)
	}
	return strings.Join(parts, " ")
}

// versionFlag prints version information and exits when --version is
// given anywhere on the command line.
type versionFlag bool

// BeforeReset implements kong's hook for flags that preempt command
// dispatch.
func (v versionFlag) BeforeReset(app *kong.Kong) error {
	printVersion(app, false)
	app.Exit(0)
	return nil
}

type versionCmd struct {
	Short bool `help:"Print only the version number"`
}

func (cmd *versionCmd) Run(app *kong.Kong) error {
	printVersion(app, cmd.Short)
	return nil
}

func printVersion(app *kong.Kong, short bool) {
	if short {
		fmt.Fprintln(app.Stdout, _version)
		return
	}

	fmt.Fprintf(app.Stdout, "opvc %s", _version)
	if report := _generateBuildReport(); report != "" {
		fmt.Fprintf(app.Stdout, " (%s)", report)
	}
	fmt.Fprintln(app.Stdout)
}
