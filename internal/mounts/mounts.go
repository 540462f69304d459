// Package mounts watches the system mount table and reports mounts that
// appear or disappear.
package mounts

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

// DefaultTable is the per-process mount table on Linux.
const DefaultTable = "/proc/self/mountinfo"

type Mount struct {
	Root   string `json:"root"`
	Source string `json:"source"`
	FSType string `json:"fs_type"`
}

type Kind int

const (
	Added Kind = iota + 1
	Removed
)

func (kind Kind) String() string {
	switch kind {
	case Added:
		return "added"
	case Removed:
		return "removed"
	default:
		return "unknown"
	}
}

type Event struct {
	Kind  Kind
	Mount Mount
}

// ParseMountInfo reads a mount table in either the mountinfo format or the
// older /proc/mounts format.
func ParseMountInfo(reader io.Reader) ([]Mount, error) {
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var result []Mount
	lineNumber := 0
	for scanner.Scan() {
		lineNumber++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		mount, err := parseLine(fields)
		if err != nil {
			return nil, fmt.Errorf("mount table line %d: %w", lineNumber, err)
		}
		result = append(result, mount)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func parseLine(fields []string) (Mount, error) {
	separator := -1
	for index, field := range fields {
		if field == "-" {
			separator = index
			break
		}
	}
	if separator < 0 {
		if len(fields) < 3 {
			return Mount{}, fmt.Errorf("expected at least 3 fields, got %d", len(fields))
		}
		return Mount{
			Root:   unescape(fields[1]),
			Source: unescape(fields[0]),
			FSType: fields[2],
		}, nil
	}
	if separator < 5 || len(fields) < separator+3 {
		return Mount{}, fmt.Errorf("malformed mountinfo entry")
	}
	return Mount{
		Root:   unescape(fields[4]),
		Source: unescape(fields[separator+2]),
		FSType: fields[separator+1],
	}, nil
}

// unescape decodes the octal escapes the kernel uses for whitespace and
// backslashes in paths.
func unescape(value string) string {
	if !strings.Contains(value, `\`) {
		return value
	}
	var builder strings.Builder
	builder.Grow(len(value))
	for index := 0; index < len(value); index++ {
		if value[index] == '\\' && index+4 <= len(value) {
			if decoded, err := strconv.ParseUint(value[index+1:index+4], 8, 8); err == nil {
				builder.WriteByte(byte(decoded))
				index += 3
				continue
			}
		}
		builder.WriteByte(value[index])
	}
	return builder.String()
}

// Diff reports removals then additions between two mount table snapshots,
// each ordered by root.
func Diff(previous, current []Mount) []Event {
	before := make(map[Mount]struct{}, len(previous))
	for _, mount := range previous {
		before[mount] = struct{}{}
	}
	after := make(map[Mount]struct{}, len(current))
	for _, mount := range current {
		after[mount] = struct{}{}
	}

	var removed, added []Mount
	for mount := range before {
		if _, ok := after[mount]; !ok {
			removed = append(removed, mount)
		}
	}
	for mount := range after {
		if _, ok := before[mount]; !ok {
			added = append(added, mount)
		}
	}
	sortMounts(removed)
	sortMounts(added)

	events := make([]Event, 0, len(removed)+len(added))
	for _, mount := range removed {
		events = append(events, Event{Kind: Removed, Mount: mount})
	}
	for _, mount := range added {
		events = append(events, Event{Kind: Added, Mount: mount})
	}
	return events
}

func sortMounts(values []Mount) {
	sort.Slice(values, func(i, j int) bool {
		if values[i].Root != values[j].Root {
			return values[i].Root < values[j].Root
		}
		return values[i].Source < values[j].Source
	})
}
