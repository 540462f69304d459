package logging

import "testing"

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"debug":   LevelDebug,
		" INFO ":  LevelInfo,
		"warn":    LevelWarning,
		"Warning": LevelWarning,
		"error":   LevelError,
	}
	for raw, want := range cases {
		got, ok := ParseLevel(raw)
		if !ok || got != want {
			t.Fatalf("ParseLevel(%q) = %q %v, want %q", raw, got, ok, want)
		}
	}
	for _, raw := range []string{"", "verbose", "fatal"} {
		if _, ok := ParseLevel(raw); ok {
			t.Fatalf("expected %q to be rejected", raw)
		}
	}
}

func TestLevelAtLeast(t *testing.T) {
	if !LevelDebug.AtLeast("") {
		t.Fatal("expected empty minimum to pass everything")
	}
	if LevelInfo.AtLeast(LevelWarning) {
		t.Fatal("expected info to fail a warning filter")
	}
	if !LevelError.AtLeast(LevelWarning) {
		t.Fatal("expected error to pass a warning filter")
	}
}

func TestLogEntryString(t *testing.T) {
	entry := LogEntry{
		Level:   LevelWarning,
		Message: "capacity query failed",
		Context: map[string]string{"path": "/mnt/nfs", "error": "not supported"},
	}
	want := `level=warning msg="capacity query failed" error="not supported" path="/mnt/nfs"`
	if got := entry.String(); got != want {
		t.Fatalf("unexpected line\n got %s\nwant %s", got, want)
	}
}

func FuzzParseLevel(f *testing.F) {
	for _, seed := range []string{"info", "warn", "", "???", "INFO"} {
		f.Add(seed)
	}
	f.Fuzz(func(t *testing.T, raw string) {
		level, ok := ParseLevel(raw)
		if ok && normalizeLevel(level) != level {
			t.Fatalf("parsed level %q does not round-trip", level)
		}
	})
}
