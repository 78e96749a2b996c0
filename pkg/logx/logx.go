// Package logx is a thin structured-logging layer over zerolog.
//
// It exists so the rest of the codebase never imports zerolog directly:
// components take a logx.Logger, tests pass logx.Nop(), and the process
// entry point decides where the output goes (console, file, or both).
//
// This is the wrapper's own diagnostic logging. The bot run log
// (internal/runlog) is a separate, plain-text artifact with a fixed format
// and is never routed through here.
package logx

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const timeFormat = "2006-01-02T15:04:05.000Z07:00"

// Field mutates a zerolog event. Fields are applied in order; if the same
// key is set twice, the later one wins.
type Field func(e *zerolog.Event)

func String(k, v string) Field  { return func(e *zerolog.Event) { e.Str(k, v) } }
func Int(k string, v int) Field { return func(e *zerolog.Event) { e.Int(k, v) } }
func Int64(k string, v int64) Field {
	return func(e *zerolog.Event) { e.Int64(k, v) }
}
func Bool(k string, v bool) Field { return func(e *zerolog.Event) { e.Bool(k, v) } }
func Duration(k string, v time.Duration) Field {
	return func(e *zerolog.Event) { e.Dur(k, v) }
}
func Time(k string, v time.Time) Field { return func(e *zerolog.Event) { e.Time(k, v) } }
func Any(k string, v any) Field        { return func(e *zerolog.Event) { e.Interface(k, v) } }
func Err(err error) Field {
	return func(e *zerolog.Event) {
		if err != nil {
			e.Err(err)
		}
	}
}

// Config selects sinks and the minimum level.
type Config struct {
	Level   string `json:"level,omitempty"`
	Console bool   `json:"console"`
	File    string `json:"file,omitempty"`
}

// Logger is a lightweight structured logger. The zero value is a safe no-op.
type Logger struct {
	svc     *Service
	base    zerolog.Logger
	hasBase bool
	fields  []Field
}

// Nop returns a logger that never writes anything.
func Nop() Logger {
	return Logger{base: zerolog.Nop(), hasBase: true}
}

// NewConsole creates a standalone console logger, useful before the full
// logging service is configured.
func NewConsole(level string) Logger {
	zerolog.ErrorFieldName = "err"
	zerolog.TimeFieldFormat = timeFormat
	cw := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: timeFormat}
	zl := zerolog.New(cw).Level(parseLevel(level, zerolog.InfoLevel)).With().Timestamp().Logger()
	return Logger{base: zl, hasBase: true}
}

func (l Logger) IsZero() bool { return l.svc == nil && !l.hasBase && len(l.fields) == 0 }

func (l Logger) root() zerolog.Logger {
	if l.svc != nil {
		return l.svc.current()
	}
	if l.hasBase {
		return l.base
	}
	return zerolog.Nop()
}

// With returns a derived logger carrying additional fixed fields.
func (l Logger) With(fields ...Field) Logger {
	if len(fields) == 0 {
		return l
	}
	cp := l
	cp.fields = append(append([]Field(nil), l.fields...), fields...)
	return cp
}

func (l Logger) Debug(msg string, fields ...Field) { l.log(zerolog.DebugLevel, msg, fields...) }
func (l Logger) Info(msg string, fields ...Field)  { l.log(zerolog.InfoLevel, msg, fields...) }
func (l Logger) Warn(msg string, fields ...Field)  { l.log(zerolog.WarnLevel, msg, fields...) }
func (l Logger) Error(msg string, fields ...Field) { l.log(zerolog.ErrorLevel, msg, fields...) }

func (l Logger) log(level zerolog.Level, msg string, fields ...Field) {
	zl := l.root()
	e := zl.WithLevel(level)
	if e == nil {
		return
	}
	for _, f := range l.fields {
		if f != nil {
			f(e)
		}
	}
	for _, f := range fields {
		if f != nil {
			f(e)
		}
	}
	e.Msg(msg)
}

// Service owns the sinks and allows reconfiguring them at runtime. Loggers
// created from a Service stay live across Apply calls.
type Service struct {
	mu   sync.Mutex
	cfg  Config
	file *os.File
	root zerolog.Logger
}

// New creates the logging service, applies the initial config immediately,
// and returns both the Service and a root Logger.
func New(cfg Config) (*Service, Logger) {
	zerolog.ErrorFieldName = "err"
	zerolog.TimeFieldFormat = timeFormat

	s := &Service{}
	s.root = newConsoleRoot(parseLevel(cfg.Level, zerolog.InfoLevel))
	s.Apply(cfg)
	return s, Logger{svc: s}
}

func (s *Service) current() zerolog.Logger {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.root
}

func (s *Service) Logger() Logger { return Logger{svc: s} }

// Apply swaps sinks and level. Safe to call concurrently with logging.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cfg = cfg

	if s.file != nil {
		_ = s.file.Close()
		s.file = nil
	}

	lvl := parseLevel(cfg.Level, zerolog.InfoLevel)

	writers := make([]io.Writer, 0, 2)
	if cfg.Console {
		writers = append(writers, zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: timeFormat})
	}
	if path := strings.TrimSpace(cfg.File); path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "logx: failed opening log file %q: %v\n", path, err)
		} else {
			s.file = f
			writers = append(writers, zerolog.SyncWriter(f))
		}
	}
	if len(writers) == 0 {
		writers = append(writers, zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: timeFormat})
	}

	mw := zerolog.MultiLevelWriter(writers...)
	s.root = zerolog.New(mw).Level(lvl).With().Timestamp().Logger()
}

func (s *Service) Close() error {
	s.mu.Lock()
	f := s.file
	s.file = nil
	s.mu.Unlock()
	if f != nil {
		_ = f.Close()
	}
	return nil
}

func newConsoleRoot(lvl zerolog.Level) zerolog.Logger {
	cw := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: timeFormat}
	return zerolog.New(cw).Level(lvl).With().Timestamp().Logger()
}

func parseLevel(s string, def zerolog.Level) zerolog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TRACE":
		return zerolog.TraceLevel
	case "DEBUG":
		return zerolog.DebugLevel
	case "INFO":
		return zerolog.InfoLevel
	case "WARN", "WARNING":
		return zerolog.WarnLevel
	case "ERROR":
		return zerolog.ErrorLevel
	default:
		return def
	}
}
