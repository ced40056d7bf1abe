package log

import (
	"fmt"
	stdlog "log"
	"strings"
)

// Config declaratively describes a logger, typically sourced from flags or
// environment variables.
type Config struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

// ApplyConfig builds a Logger from a Config.
func ApplyConfig(cfg *Config) (Logger, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	var format Format
	switch strings.ToLower(strings.TrimSpace(cfg.Format)) {
	case "", "text":
		format = FormatText
	case "json":
		format = FormatJSON
	default:
		return nil, fmt.Errorf("invalid log format %q (allowed: text|json)", cfg.Format)
	}
	return NewLogger(WithLevel(level), WithFormat(format)), nil
}

// RedirectStdLog routes standard library log output through the given Logger
// at info level. Some dependencies (grpc included) log via the stdlib.
func RedirectStdLog(l Logger) {
	stdlog.SetFlags(0)
	stdlog.SetOutput(stdlogWriter{l: l})
}

type stdlogWriter struct{ l Logger }

func (w stdlogWriter) Write(p []byte) (int, error) {
	w.l.Info(strings.TrimSpace(string(p)))
	return len(p), nil
}
