// Package logging builds the zerolog loggers used across recall.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// Config holds logger configuration.
type Config struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	// File is an optional path logs are appended to instead of stderr.
	File string `mapstructure:"file" yaml:"file,omitempty"`
}

func DefaultConfig() Config {
	return Config{Level: "info", Format: FormatConsole}
}

// ParseLevel maps a level name to zerolog, defaulting to info.
func ParseLevel(level string) (zerolog.Level, error) {
	if strings.TrimSpace(level) == "" {
		return zerolog.InfoLevel, nil
	}
	l, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return zerolog.InfoLevel, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return l, nil
}

// New builds a logger writing to cfg.File or stderr. The returned closer
// releases the log file, if any.
func New(cfg Config) (zerolog.Logger, io.Closer, error) {
	var (
		out    io.Writer = os.Stderr
		closer io.Closer = nopCloser{}
	)
	if cfg.File != "" {
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return zerolog.Nop(), nil, fmt.Errorf("failed to open log file: %w", err)
		}
		out, closer = f, f
	}
	logger, err := NewWithWriter(cfg, out)
	if err != nil {
		closer.Close()
		return zerolog.Nop(), nil, err
	}
	return logger, closer, nil
}

// NewWithWriter builds a logger on an arbitrary writer.
func NewWithWriter(cfg Config, out io.Writer) (zerolog.Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return zerolog.Nop(), err
	}
	switch strings.ToLower(cfg.Format) {
	case "", FormatConsole:
		_, isFile := out.(*os.File)
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05", NoColor: !isFile || cfg.File != ""}
	case FormatJSON:
	default:
		return zerolog.Nop(), fmt.Errorf("invalid log format %q (must be console or json)", cfg.Format)
	}
	return zerolog.New(out).Level(level).With().Timestamp().Str("app", "recall").Logger(), nil
}

// SetGlobal installs logger as the zerolog/log default so components that
// derive from it inherit its level and output.
func SetGlobal(logger zerolog.Logger) {
	log.Logger = logger
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
