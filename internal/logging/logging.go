// Package logging provides the leveled, structured logger used by atlasai.
//
// The orchestrator, provider adapters, and tool gateway all log through a
// *Logger handed to them explicitly. Components that are not given one use
// Nop(), so library callers get silence by default while the CLI turns on
// debug output with --verbose or ATLASAI_LOG_LEVEL.
//
// # Usage
//
//	logger := logging.New(logging.Options{
//	    Level:  logging.LevelDebug,
//	    Format: logging.FormatJSON,
//	    Output: os.Stderr,
//	})
//
//	log := logger.WithFields(logging.Fields{"session": sess.ID})
//	log.Debug("state transition", logging.Fields{"from": "planning", "to": "tool_wait"})
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"strings"
	"sync"
	"time"
)

// Level is a log severity. LevelNone silences a logger.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelNone
)

var levelNames = [...]string{"DEBUG", "INFO", "WARN", "ERROR", "NONE"}

func (l Level) String() string {
	if l < LevelDebug || l > LevelNone {
		return "UNKNOWN"
	}
	return levelNames[l]
}

// ParseLevel reads a level name, case-insensitively. "warning" and "off" are
// accepted as aliases.
func ParseLevel(s string) (Level, bool) {
	name := strings.ToUpper(strings.TrimSpace(s))
	switch name {
	case "WARNING":
		return LevelWarn, true
	case "OFF":
		return LevelNone, true
	}
	for i, n := range levelNames {
		if n == name {
			return Level(i), true
		}
	}
	return LevelInfo, false
}

// Format selects how entries are written.
type Format int

const (
	FormatText Format = iota
	FormatJSON
)

// ParseFormat maps "json" to FormatJSON and anything else to FormatText.
func ParseFormat(s string) Format {
	if strings.EqualFold(strings.TrimSpace(s), "json") {
		return FormatJSON
	}
	return FormatText
}

// Fields are structured key/value pairs attached to an entry.
type Fields map[string]any

// Options configures a root logger.
type Options struct {
	Level  Level
	Format Format
	Output io.Writer
}

// sink is shared by a root logger and every child made from it.
type sink struct {
	mu     sync.Mutex
	level  Level
	format Format
	out    io.Writer
}

// Logger writes leveled entries. Children made with WithFields share the
// parent's output and level.
type Logger struct {
	sink   *sink
	fields Fields
}

// New creates a root logger. A nil Output means os.Stderr.
func New(opts Options) *Logger {
	if opts.Output == nil {
		opts.Output = os.Stderr
	}
	return &Logger{sink: &sink{level: opts.Level, format: opts.Format, out: opts.Output}}
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return New(Options{Level: LevelNone, Output: io.Discard})
}

// Enabled reports whether entries at level would be written.
func (l *Logger) Enabled(level Level) bool {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	return l.sink.level != LevelNone && level >= l.sink.level
}

// WithFields returns a child logger that adds fields to every entry.
// Fields passed at the call site win over preset ones.
func (l *Logger) WithFields(fields Fields) *Logger {
	merged := make(Fields, len(l.fields)+len(fields))
	maps.Copy(merged, l.fields)
	maps.Copy(merged, fields)
	return &Logger{sink: l.sink, fields: merged}
}

func (l *Logger) Debug(msg string, fields ...Fields) { l.log(LevelDebug, msg, nil, fields) }
func (l *Logger) Info(msg string, fields ...Fields)  { l.log(LevelInfo, msg, nil, fields) }
func (l *Logger) Warn(msg string, fields ...Fields)  { l.log(LevelWarn, msg, nil, fields) }

// Error logs msg with err attached under the "error" key.
func (l *Logger) Error(msg string, err error, fields ...Fields) {
	l.log(LevelError, msg, err, fields)
}

func (l *Logger) log(level Level, msg string, err error, extra []Fields) {
	s := l.sink
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.level == LevelNone || level < s.level {
		return
	}

	fields := make(Fields, len(l.fields))
	maps.Copy(fields, l.fields)
	for _, f := range extra {
		maps.Copy(fields, f)
	}
	if err != nil {
		fields["error"] = err.Error()
	}

	now := time.Now()
	if s.format == FormatJSON {
		fmt.Fprintln(s.out, encodeJSON(now, level, msg, fields))
		return
	}
	fmt.Fprintln(s.out, encodeText(now, level, msg, fields))
}

// encodeJSON flattens fields into the top-level object. Reserved keys are
// written last so a field cannot shadow them.
func encodeJSON(ts time.Time, level Level, msg string, fields Fields) string {
	entry := make(map[string]any, len(fields)+3)
	maps.Copy(entry, fields)
	entry["time"] = ts.UTC().Format(time.RFC3339Nano)
	entry["level"] = level.String()
	entry["msg"] = msg

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Sprintf(`{"level":"ERROR","msg":"unencodable log entry","error":%q}`, err.Error())
	}
	return string(data)
}

// encodeText writes fields in key order so lines diff cleanly between runs.
func encodeText(ts time.Time, level Level, msg string, fields Fields) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %-5s %s", ts.Format("15:04:05.000"), level, msg)
	for _, k := range slices.Sorted(maps.Keys(fields)) {
		v := fields[k]
		if str, ok := v.(string); ok && strings.ContainsAny(str, " \t\n\"=") {
			fmt.Fprintf(&sb, " %s=%q", k, str)
			continue
		}
		fmt.Fprintf(&sb, " %s=%v", k, v)
	}
	return sb.String()
}
