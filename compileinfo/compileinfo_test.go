package compileinfo

import (
	"runtime/debug"
	"strings"
	"testing"
)

func TestFromBuildInfo(t *testing.T) {
	z := &debug.BuildInfo{
		GoVersion: "go1.18",
		Path:      "github.com/carbocation/mirnaprep/cmd/mirnaprep",
		Main:      debug.Module{Path: "github.com/carbocation/mirnaprep", Version: "(devel)"},
		Deps: []*debug.Module{
			{Path: "github.com/jmoiron/sqlx", Version: "v1.3.4"},
			{Path: "gonum.org/v1/gonum", Version: "v0.9.3"},
		},
		Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "0123456789abcdef0123"},
			{Key: "vcs.time", Value: "2022-04-01T00:00:00Z"},
			{Key: "vcs.modified", Value: "true"},
		},
	}

	b := fromBuildInfo(z)

	if b.Short() != "github.com/carbocation/mirnaprep@(devel) (0123456789ab+dirty, go1.18)" {
		t.Errorf("unexpected short form %q", b.Short())
	}
	if len(b.Deps) != 1 || b.Deps[0].Version != "v0.9.3" {
		t.Errorf("expected only gonum to be tracked, got %+v", b.Deps)
	}
	if !strings.Contains(b.String(), "modified after that commit") {
		t.Errorf("modification not reported: %s", b)
	}
}

func TestEmptyBuildInfo(t *testing.T) {
	b := BuildInfo{}
	if b.Short() != "unknown build" {
		t.Errorf("got %q", b.Short())
	}
	if !strings.HasPrefix(b.String(), "No build information") {
		t.Errorf("got %q", b.String())
	}
}
