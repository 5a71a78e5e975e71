package logging

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"sort"
	"strings"
	"time"
)

// Entry is one parsed line of memsearchd's JSON log. Lines that are not
// valid JSON (panics, stray prints) are carried through with parsed=false
// so nothing a debug session needs ever disappears from the view.
type Entry struct {
	Time   time.Time
	Level  slog.Level
	Msg    string
	Attrs  map[string]any
	Raw    string
	parsed bool
}

// ParseEntry parses one log line.
func ParseEntry(line string) Entry {
	e := Entry{Raw: line}

	var fields map[string]any
	if err := json.Unmarshal([]byte(line), &fields); err != nil {
		return e
	}
	e.parsed = true

	if t, ok := fields["time"].(string); ok {
		if parsed, err := time.Parse(time.RFC3339Nano, t); err == nil {
			e.Time = parsed
		}
	}
	if l, ok := fields["level"].(string); ok {
		e.Level = ParseLevel(l)
	}
	if m, ok := fields["msg"].(string); ok {
		e.Msg = m
	}
	e.Attrs = make(map[string]any)
	for k, v := range fields {
		switch k {
		case "time", "level", "msg":
		default:
			e.Attrs[k] = v
		}
	}
	return e
}

// Format renders an entry for the terminal: time, level, message, then
// attributes in deterministic (sorted) order. Unparseable lines come back
// verbatim.
func (e Entry) Format() string {
	if !e.parsed {
		return e.Raw
	}
	var b strings.Builder
	b.WriteString(e.Time.Format("15:04:05.000"))
	b.WriteByte(' ')
	fmt.Fprintf(&b, "%-5s", e.Level.String())
	b.WriteByte(' ')
	b.WriteString(e.Msg)

	keys := make([]string, 0, len(e.Attrs))
	for k := range e.Attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, e.Attrs[k])
	}
	return b.String()
}

// View filters which entries Tail and Follow surface.
type View struct {
	// MinLevel hides entries below this level. Unparseable lines always
	// pass: they are usually the most interesting ones.
	MinLevel slog.Level
	// Match, when set, keeps only entries whose raw line matches.
	Match *regexp.Regexp
}

func (v View) admits(e Entry) bool {
	if e.parsed && e.Level < v.MinLevel {
		return false
	}
	if v.Match != nil && !v.Match.MatchString(e.Raw) {
		return false
	}
	return true
}

// Tail returns the last n admitted entries of the log at path, keeping a
// bounded window while scanning so a large log never has to fit in memory.
func Tail(path string, n int, v View) ([]Entry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	defer func() { _ = file.Close() }()

	window := make([]Entry, 0, n)
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 1<<20), 1<<20)
	for scanner.Scan() {
		e := ParseEntry(scanner.Text())
		if !v.admits(e) {
			continue
		}
		if len(window) == n {
			copy(window, window[1:])
			window = window[:n-1]
		}
		window = append(window, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read log file: %w", err)
	}
	return window, nil
}

// Follow streams admitted entries appended to the log at path, invoking
// emit for each, until ctx is cancelled. It starts at the current end of
// file, like tail -f.
func Follow(ctx context.Context, path string, v View, emit func(Entry)) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer func() { _ = file.Close() }()

	if _, err := file.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("seek log file: %w", err)
	}

	reader := bufio.NewReader(file)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			for {
				line, err := reader.ReadString('\n')
				if err != nil {
					break
				}
				line = strings.TrimSuffix(line, "\n")
				if line == "" {
					continue
				}
				if e := ParseEntry(line); v.admits(e) {
					emit(e)
				}
			}
		}
	}
}
