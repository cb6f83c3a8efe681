package version

import (
	"runtime/debug"
	"strings"
	"testing"
	"time"
)

func TestReadPrefersBuildVersion(t *testing.T) {
	old := buildVersion
	buildVersion = "v1.2.3+dirty"
	t.Cleanup(func() { buildVersion = old })

	if got := Current(); got != "v1.2.3" {
		t.Fatalf("expected build version, got %q", got)
	}
}

func TestReadPseudoVersionFromVCS(t *testing.T) {
	ts := time.Date(2025, time.January, 2, 3, 4, 5, 0, time.UTC)
	old := readBuildInfo
	readBuildInfo = func() (*debug.BuildInfo, bool) {
		return &debug.BuildInfo{
			Main: debug.Module{Path: "pkt.systems/tabstrip", Version: "(devel)"},
			Settings: []debug.BuildSetting{
				{Key: "vcs.revision", Value: "1234567890abcdef"},
				{Key: "vcs.time", Value: ts.Format(time.RFC3339)},
				{Key: "vcs.modified", Value: "true"},
			},
		}, true
	}
	t.Cleanup(func() { readBuildInfo = old })

	info := Read()
	if info.Version != "v0.0.0-20250102030405-1234567890ab" {
		t.Fatalf("unexpected version %q", info.Version)
	}
	if !info.Dirty {
		t.Fatalf("expected dirty flag")
	}
	if s := info.String(); !strings.Contains(s, "(1234567890ab, dirty)") {
		t.Fatalf("unexpected string %q", s)
	}
}

func TestReadWithoutBuildInfo(t *testing.T) {
	old := readBuildInfo
	readBuildInfo = func() (*debug.BuildInfo, bool) { return nil, false }
	t.Cleanup(func() { readBuildInfo = old })

	info := Read()
	if info.Module != defaultModule || info.Version != "v0.0.0-unknown" {
		t.Fatalf("unexpected fallback info %+v", info)
	}
}

func TestPseudoVersionNeedsRevisionAndTime(t *testing.T) {
	if pseudoVersion("", "2025-01-02T03:04:05Z") != "" {
		t.Fatalf("expected empty version without revision")
	}
	if pseudoVersion("abc", "not a time") != "" {
		t.Fatalf("expected empty version for bad time")
	}
}
