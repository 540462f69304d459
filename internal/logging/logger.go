// Package logging is a small leveled logger with a replay buffer and live
// subscribers. Entries are written as logfmt lines.
package logging

import (
	"io"
	"os"
	"sync"
	"time"
)

const DefaultBufferSize = 1000

// sink is shared by a logger and everything derived from it with With.
type sink struct {
	buffer *LogBuffer
	hub    *LogHub

	mu  sync.Mutex
	out io.Writer
}

func (s *sink) write(entry LogEntry) {
	s.buffer.Add(entry)
	s.hub.Broadcast(entry)

	line := "time=" + entry.Timestamp.Format(time.RFC3339Nano) + " " + entry.String() + "\n"
	s.mu.Lock()
	_, _ = io.WriteString(s.out, line)
	s.mu.Unlock()
}

type Logger struct {
	sink   *sink
	level  Level
	fields map[string]string
}

// NewLogger writes to stdout.
func NewLogger(buffer *LogBuffer, minLevel Level) *Logger {
	return NewLoggerWithOutput(buffer, minLevel, os.Stdout)
}

func NewLoggerWithOutput(buffer *LogBuffer, minLevel Level, output io.Writer) *Logger {
	if buffer == nil {
		buffer = NewLogBuffer(DefaultBufferSize)
	}
	if output == nil {
		output = io.Discard
	}
	return &Logger{
		sink:  &sink{buffer: buffer, hub: NewLogHub(), out: output},
		level: normalizeLevel(minLevel),
	}
}

func (l *Logger) Buffer() *LogBuffer {
	if l == nil {
		return nil
	}
	return l.sink.buffer
}

// Subscribe streams entries logged from now on. Entries a slow subscriber
// cannot take are dropped.
func (l *Logger) Subscribe() (<-chan LogEntry, func()) {
	if l == nil {
		return nil, func() {}
	}
	return l.sink.hub.Subscribe(0)
}

func (l *Logger) StreamStats() HubStats {
	if l == nil {
		return HubStats{}
	}
	return l.sink.hub.Stats()
}

// Close ends every live subscription. Logging keeps working.
func (l *Logger) Close() {
	if l == nil {
		return
	}
	l.sink.hub.Close()
}

// With returns a logger that adds fields to every entry.
func (l *Logger) With(fields map[string]string) *Logger {
	if l == nil {
		return nil
	}
	return &Logger{sink: l.sink, level: l.level, fields: cloneFields(l.fields, fields)}
}

func (l *Logger) WithComponent(component string) *Logger {
	return l.With(map[string]string{"component": component})
}

func (l *Logger) Debug(message string, fields map[string]string) {
	l.log(LevelDebug, message, fields)
}

func (l *Logger) Info(message string, fields map[string]string) {
	l.log(LevelInfo, message, fields)
}

func (l *Logger) Warn(message string, fields map[string]string) {
	l.log(LevelWarning, message, fields)
}

func (l *Logger) Error(message string, fields map[string]string) {
	l.log(LevelError, message, fields)
}

func (l *Logger) Enabled(level Level) bool {
	return l != nil && level.AtLeast(l.level)
}

func (l *Logger) log(level Level, message string, fields map[string]string) {
	if !l.Enabled(level) {
		return
	}
	l.sink.write(LogEntry{
		Timestamp: time.Now().UTC(),
		Level:     level,
		Message:   message,
		Context:   cloneFields(l.fields, fields),
	})
}

func normalizeLevel(level Level) Level {
	if parsed, ok := ParseLevel(string(level)); ok {
		return parsed
	}
	return LevelInfo
}

// cloneFields merges extra over base. It returns nil when both are empty.
func cloneFields(base, extra map[string]string) map[string]string {
	if len(base) == 0 && len(extra) == 0 {
		return nil
	}
	merged := make(map[string]string, len(base)+len(extra))
	for key, value := range base {
		merged[key] = value
	}
	for key, value := range extra {
		merged[key] = value
	}
	return merged
}
