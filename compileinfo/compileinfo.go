// Package compileinfo reports which build of mirnaprep produced a set of
// outputs, from the module and VCS data embedded by the Go toolchain.
package compileinfo

import (
	"fmt"
	"io"
	"runtime/debug"
	"strings"
)

type BuildInfo struct {
	Path       string
	Version    string
	GoVersion  string
	Commit     string
	CommitTime string
	Modified   bool

	// Deps lists the versions of the numerical and plotting libraries,
	// which can change the outputs.
	Deps []Dep
}

type Dep struct {
	Path    string
	Version string
}

var trackedDeps = []string{
	"gonum.org/v1/gonum",
	"github.com/montanaflynn/stats",
	"github.com/wcharczuk/go-chart/v2",
}

// Short identifies the build in a single token-like string, suitable for
// recording next to outputs.
func (b BuildInfo) Short() string {
	if b.Path == "" {
		return "unknown build"
	}

	commit := b.Commit
	if len(commit) > 12 {
		commit = commit[:12]
	}
	if commit == "" {
		commit = "nocommit"
	}
	if b.Modified {
		commit += "+dirty"
	}

	return fmt.Sprintf("%s@%s (%s, %s)", b.Path, b.Version, commit, b.GoVersion)
}

func (b BuildInfo) String() string {
	if b.Path == "" {
		return "No build information was embedded in this binary."
	}

	mod := ""
	if b.Modified {
		mod = " Files in the repo were modified after that commit."
	}

	deps := make([]string, 0, len(b.Deps))
	for _, d := range b.Deps {
		deps = append(deps, d.Path+" "+d.Version)
	}

	out := fmt.Sprintf("This %s %s binary was built with %s at commit %v at time %v.%s", b.Path, b.Version, b.GoVersion, b.Commit, b.CommitTime, mod)
	if len(deps) > 0 {
		out += " Numerical libraries: " + strings.Join(deps, ", ") + "."
	}

	return out
}

func Get() BuildInfo {
	z, ok := debug.ReadBuildInfo()
	if !ok {
		return BuildInfo{}
	}

	return fromBuildInfo(z)
}

func fromBuildInfo(z *debug.BuildInfo) BuildInfo {
	out := BuildInfo{
		Path:      z.Main.Path,
		Version:   z.Main.Version,
		GoVersion: z.GoVersion,
	}
	if out.Path == "" {
		out.Path = z.Path
	}

	for _, s := range z.Settings {
		switch s.Key {
		case "vcs.revision":
			out.Commit = s.Value
		case "vcs.time":
			out.CommitTime = s.Value
		case "vcs.modified":
			out.Modified = s.Value == "true"
		}
	}

	for _, tracked := range trackedDeps {
		for _, dep := range z.Deps {
			if dep.Path != tracked {
				continue
			}
			version := dep.Version
			if dep.Replace != nil {
				version = dep.Replace.Path + " " + dep.Replace.Version
			}
			out.Deps = append(out.Deps, Dep{Path: dep.Path, Version: version})
		}
	}

	return out
}

// Fprint writes the build description to w.
func Fprint(w io.Writer) {
	fmt.Fprintf(w, "%s\n", Get())
}
