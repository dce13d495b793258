// Package report adapts the host's message and error callbacks to zap.
//
// LogLevel keeps the verbosity ladder hosts pass per component. Levels up to
// Quiet report problems only; Medium adds lifecycle traces; Timestep adds a
// trace for every exchange.
package report

import (
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel is the host verbosity setting.
type LogLevel int

const (
	Errors   LogLevel = 1
	Warnings LogLevel = 2
	Quiet    LogLevel = 3
	Medium   LogLevel = 4
	Timestep LogLevel = 5
)

var levelNames = map[LogLevel]string{
	Errors:   "errors",
	Warnings: "warnings",
	Quiet:    "quiet",
	Medium:   "medium",
	Timestep: "timestep",
}

func (l LogLevel) String() string {
	if s, ok := levelNames[l]; ok {
		return s
	}
	return "level(" + strconv.Itoa(int(l)) + ")"
}

// ParseLogLevel accepts a level name or its number.
func ParseLogLevel(s string) (LogLevel, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if n, err := strconv.Atoi(s); err == nil {
		l := LogLevel(n)
		if _, ok := levelNames[l]; ok {
			return l, nil
		}
		return 0, fmt.Errorf("log level %d out of range %d..%d", n, Errors, Timestep)
	}
	for l, name := range levelNames {
		if name == s {
			return l, nil
		}
	}
	return 0, fmt.Errorf("unknown log level %q", s)
}

// Traces reports whether lifecycle traces are enabled.
func (l LogLevel) Traces() bool { return l >= Medium }

// StepTraces reports whether per-exchange traces are enabled.
func (l LogLevel) StepTraces() bool { return l >= Timestep }

// ZapLevel returns the lowest zap level that passes at l.
func (l LogLevel) ZapLevel() zapcore.Level {
	switch {
	case l <= Errors:
		return zapcore.ErrorLevel
	case l <= Quiet:
		return zapcore.WarnLevel
	case l == Medium:
		return zapcore.InfoLevel
	default:
		return zapcore.DebugLevel
	}
}

// NewLogger builds a console logger filtered at l.
func NewLogger(l LogLevel, opts ...zap.Option) (*zap.Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(l.ZapLevel())
	cfg.DisableStacktrace = true
	return cfg.Build(opts...)
}

// ZapSink implements spawn.Sink on a zap logger. Fatalf logs at fatal level,
// so the logger's fatal hook decides whether the process exits.
type ZapSink struct {
	log *zap.Logger
}

// NewZapSink wraps log. A nil logger discards messages.
func NewZapSink(log *zap.Logger) *ZapSink {
	if log == nil {
		log = zap.NewNop()
	}
	return &ZapSink{log: log}
}

func (s *ZapSink) Message(msg string) {
	s.log.Info(msg)
}

func (s *ZapSink) Messagef(format string, args ...any) {
	s.log.Info(fmt.Sprintf(format, args...))
}

func (s *ZapSink) Fatalf(format string, args ...any) {
	s.log.Fatal(fmt.Sprintf(format, args...))
}

// Logger returns the underlying logger.
func (s *ZapSink) Logger() *zap.Logger { return s.log }
