package logging

import (
	"sort"
	"strconv"
	"strings"
	"time"
)

type Level string

const (
	LevelDebug   Level = "debug"
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// ParseLevel accepts the level names case-insensitively, plus "warn".
func ParseLevel(value string) (Level, bool) {
	switch level := Level(strings.ToLower(strings.TrimSpace(value))); level {
	case LevelDebug, LevelInfo, LevelWarning, LevelError:
		return level, true
	case "warn":
		return LevelWarning, true
	default:
		return "", false
	}
}

// AtLeast reports whether level passes a minLevel filter. An empty
// minLevel passes everything.
func (level Level) AtLeast(minLevel Level) bool {
	if minLevel == "" {
		return true
	}
	return level.rank() >= minLevel.rank()
}

// rank orders levels; unknown values sort as info.
func (level Level) rank() int {
	switch level {
	case LevelDebug:
		return 0
	case LevelWarning:
		return 2
	case LevelError:
		return 3
	default:
		return 1
	}
}

type LogEntry struct {
	Timestamp time.Time         `json:"timestamp"`
	Level     Level             `json:"level"`
	Message   string            `json:"message"`
	Context   map[string]string `json:"context,omitempty"`
}

// String renders the entry as a logfmt line with context keys sorted.
func (entry LogEntry) String() string {
	var builder strings.Builder
	builder.WriteString("level=")
	builder.WriteString(string(entry.Level))
	builder.WriteString(" msg=")
	builder.WriteString(strconv.Quote(entry.Message))

	keys := make([]string, 0, len(entry.Context))
	for key := range entry.Context {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		builder.WriteByte(' ')
		builder.WriteString(key)
		builder.WriteByte('=')
		builder.WriteString(strconv.Quote(entry.Context[key]))
	}
	return builder.String()
}
