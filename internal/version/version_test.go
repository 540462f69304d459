package version

import (
	"strings"
	"testing"
)

func TestGetVersionInfoUsesLinkerValues(t *testing.T) {
	previousVersion, previousBuilt, previousCommit := Version, Built, GitCommit
	t.Cleanup(func() {
		Version, Built, GitCommit = previousVersion, previousBuilt, previousCommit
	})
	Version = "v1.4.2"
	Built = "2026-01-11T12:34:56Z"
	GitCommit = "0123456789abcdef0123"

	info := GetVersionInfo()
	if info.Major != 1 || info.Minor != 4 || info.Patch != 2 {
		t.Fatalf("expected 1.4.2, got %d.%d.%d", info.Major, info.Minor, info.Patch)
	}
	if info.Built != Built || info.GitCommit != GitCommit {
		t.Fatalf("expected linker values to win, got %+v", info)
	}
	if info.GoVersion == "" {
		t.Fatal("expected go version")
	}

	line := info.String()
	for _, want := range []string{"foldercache v1.4.2", "commit 0123456789ab ", "built 2026-01-11T12:34:56Z"} {
		if !strings.Contains(line, want) {
			t.Fatalf("expected %q in %q", want, line)
		}
	}
}

func TestParseSemver(t *testing.T) {
	cases := []struct {
		input               string
		major, minor, patch int
	}{
		{input: "1.2.3", major: 1, minor: 2, patch: 3},
		{input: "v0.9", major: 0, minor: 9},
		{input: "2.0.1-rc.1+meta", major: 2, patch: 1},
		{input: "dev"},
		{input: ""},
	}
	for _, tc := range cases {
		major, minor, patch := parseSemver(tc.input)
		if major != tc.major || minor != tc.minor || patch != tc.patch {
			t.Fatalf("parseSemver(%q) = %d.%d.%d", tc.input, major, minor, patch)
		}
	}
}
