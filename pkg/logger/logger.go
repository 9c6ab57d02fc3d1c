package logger

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Logger is a thin zerolog wrapper. Error lines are also handed to an attached
// Collector, which summarises repeats and ships them to Kafka.
type Logger struct {
	zl   zerolog.Logger
	sink *collectorRef
}

type collectorRef struct {
	mu sync.RWMutex
	c  *Collector
}

type Config struct {
	Level      string // debug, info, warn, error
	Format     string // json or console
	Output     string // stdout, stderr or a file path
	TimeFormat string
}

func New(cfg *Config) (*Logger, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	var out io.Writer
	switch cfg.Output {
	case "", "stdout":
		out = os.Stdout
	case "stderr":
		out = os.Stderr
	default:
		f, err := os.OpenFile(cfg.Output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		out = f
	}

	tf := cfg.TimeFormat
	if tf == "" {
		tf = time.RFC3339Nano
	}
	zerolog.TimeFieldFormat = tf
	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: tf}
	}

	zl := zerolog.New(out).Level(level).With().Timestamp().CallerWithSkipFrameCount(3).Logger()
	return &Logger{zl: zl, sink: &collectorRef{}}, nil
}

// NewWithWriter logs JSON to w at level. Used by tests that inspect output.
func NewWithWriter(w io.Writer, level zerolog.Level) *Logger {
	return &Logger{zl: zerolog.New(w).Level(level).With().Timestamp().Logger(), sink: &collectorRef{}}
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{zl: zerolog.Nop(), sink: &collectorRef{}}
}

// With returns a child logger carrying fields on every line. Children share
// the parent's collector.
func (l *Logger) With(fields ...Field) *Logger {
	ctx := l.zl.With()
	for _, f := range fields {
		ctx = ctx.Interface(f.Key, f.Value)
	}
	return &Logger{zl: ctx.Logger(), sink: l.sink}
}

// AttachCollector routes error lines to c, replacing and closing any previous collector.
func (l *Logger) AttachCollector(c *Collector) {
	l.sink.mu.Lock()
	prev := l.sink.c
	l.sink.c = c
	l.sink.mu.Unlock()
	if prev != nil && prev != c {
		prev.Close()
	}
}

// DetachCollector flushes and closes the attached collector.
func (l *Logger) DetachCollector() {
	l.AttachCollector(nil)
}

func (l *Logger) Debug(msg string, fields ...Field) { emit(l.zl.Debug(), msg, fields) }
func (l *Logger) Info(msg string, fields ...Field)  { emit(l.zl.Info(), msg, fields) }
func (l *Logger) Warn(msg string, fields ...Field)  { emit(l.zl.Warn(), msg, fields) }

func (l *Logger) Error(msg string, fields ...Field) {
	emit(l.zl.Error(), msg, fields)
	l.sink.mu.RLock()
	c := l.sink.c
	l.sink.mu.RUnlock()
	if c != nil {
		c.Add("error", msg, fieldMap(fields), caller(1))
	}
}

func emit(ev *zerolog.Event, msg string, fields []Field) {
	if ev == nil {
		return
	}
	for _, f := range fields {
		f.add(ev)
	}
	ev.Msg(msg)
}

func fieldMap(fields []Field) map[string]interface{} {
	m := make(map[string]interface{}, len(fields))
	for _, f := range fields {
		if err, ok := f.Value.(error); ok {
			m[f.Key] = err.Error()
			continue
		}
		m[f.Key] = f.Value
	}
	return m
}

func caller(skip int) string {
	_, file, line, ok := runtime.Caller(skip + 1)
	if !ok {
		return "unknown"
	}
	if i := strings.LastIndex(file, "MarketCore/"); i >= 0 {
		file = file[i+len("MarketCore/"):]
	}
	return fmt.Sprintf("%s:%d", file, line)
}

// Field is one structured key/value.
type Field struct {
	Key   string
	Value interface{}
	add   func(*zerolog.Event)
}

func String(key, v string) Field {
	return Field{key, v, func(e *zerolog.Event) { e.Str(key, v) }}
}

func Strings(key string, v []string) Field {
	return Field{key, v, func(e *zerolog.Event) { e.Strs(key, v) }}
}

func Int(key string, v int) Field {
	return Field{key, v, func(e *zerolog.Event) { e.Int(key, v) }}
}

func Int64(key string, v int64) Field {
	return Field{key, v, func(e *zerolog.Event) { e.Int64(key, v) }}
}

func Float64(key string, v float64) Field {
	return Field{key, v, func(e *zerolog.Event) { e.Float64(key, v) }}
}

func Bool(key string, v bool) Field {
	return Field{key, v, func(e *zerolog.Event) { e.Bool(key, v) }}
}

func Duration(key string, v time.Duration) Field {
	return Field{key, v, func(e *zerolog.Event) { e.Dur(key, v) }}
}

func Time(key string, v time.Time) Field {
	return Field{key, v, func(e *zerolog.Event) { e.Time(key, v) }}
}

func Error(err error) Field {
	return Field{"error", err, func(e *zerolog.Event) { e.Err(err) }}
}

func Any(key string, v interface{}) Field {
	return Field{key, v, func(e *zerolog.Event) { e.Interface(key, v) }}
}
