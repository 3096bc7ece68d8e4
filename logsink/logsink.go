// Package logsink lets applications receive the library's log output through a
// single function of (source, message, severity), and bridges such a function
// into a *zap.Logger that the rest of the module logs through.
package logsink

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Severity int

const (
	Debug Severity = iota
	Info
	Error
	Critical
)

func (s Severity) String() string {
	switch s {
	case Debug:
		return "debug"
	case Info:
		return "info"
	case Error:
		return "error"
	case Critical:
		return "critical"
	default:
		return fmt.Sprintf("severity(%d)", int(s))
	}
}

// Func receives one log entry. source is the name of the component that
// logged, e.g. "client.sequencer".
type Func func(source, message string, severity Severity)

// New returns a logger that forwards every entry at or above debug level to fn.
func New(fn Func) *zap.Logger {
	return NewWithLevel(fn, zapcore.DebugLevel)
}

// NewWithLevel returns a logger that forwards entries enabled by level to fn.
func NewWithLevel(fn Func, level zapcore.LevelEnabler) *zap.Logger {
	return zap.New(&core{fn: fn, level: level})
}

// Default prints errors and critical failures to stderr and drops the rest.
func Default() *zap.Logger {
	return NewWithLevel(Print, zapcore.ErrorLevel)
}

// Print writes an entry to stderr.
func Print(source, message string, severity Severity) {
	if source == "" {
		source = "redisclient"
	}

	fmt.Fprintf(os.Stderr, "[%s] %s: %s\n", severity, source, message)
}

// SeverityOf maps a zap level onto the sink's severities.
func SeverityOf(level zapcore.Level) Severity {
	switch {
	case level < zapcore.InfoLevel:
		return Debug
	case level < zapcore.WarnLevel:
		return Info
	case level <= zapcore.ErrorLevel:
		return Error
	default:
		return Critical
	}
}

type core struct {
	fn     Func
	level  zapcore.LevelEnabler
	fields []zapcore.Field
}

func (c *core) Enabled(level zapcore.Level) bool {
	return c.level.Enabled(level)
}

func (c *core) With(fields []zapcore.Field) zapcore.Core {
	next := make([]zapcore.Field, 0, len(c.fields)+len(fields))
	next = append(next, c.fields...)
	next = append(next, fields...)

	return &core{fn: c.fn, level: c.level, fields: next}
}

func (c *core) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *core) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	enc := zapcore.NewMapObjectEncoder()
	for _, f := range c.fields {
		f.AddTo(enc)
	}
	for _, f := range fields {
		f.AddTo(enc)
	}

	message := ent.Message
	if len(enc.Fields) > 0 {
		message += " " + renderFields(enc.Fields)
	}

	c.fn(ent.LoggerName, message, SeverityOf(ent.Level))
	return nil
}

func (c *core) Sync() error {
	return nil
}

func renderFields(fields map[string]interface{}) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, fields[k])
	}

	return strings.Join(parts, " ")
}
