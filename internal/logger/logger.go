package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Default rotation settings for child process output files.
const (
	DefaultMaxSizeMB  = 10 // MB
	DefaultMaxBackups = 3  // number of backup files
	DefaultMaxAgeDays = 7  // days
)

// Log output formats.
const (
	FormatText  = "text"
	FormatJSON  = "json"
	FormatColor = "color"
)

// Config holds the settings for the tool's own log and for the files that
// capture a launched process's stdout and stderr.
type Config struct {
	Level  string     `json:"level" mapstructure:"level"`   // debug, info, warn, error
	Format string     `json:"format" mapstructure:"format"` // text, json, color
	File   FileConfig `json:"file" mapstructure:"file"`
}

// FileConfig describes where child output goes.
// If StdoutPath/StderrPath are empty and Dir is set, files are
// Dir/<name>.stdout.log and Dir/<name>.stderr.log.
// Rotation parameters follow lumberjack semantics.
type FileConfig struct {
	Dir        string `json:"dir" mapstructure:"dir"`
	StdoutPath string `json:"stdout" mapstructure:"stdout"`
	StderrPath string `json:"stderr" mapstructure:"stderr"`
	MaxSizeMB  int    `json:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `json:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `json:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool   `json:"compress" mapstructure:"compress"`
}

// Enabled reports whether any output file is configured.
func (f FileConfig) Enabled() bool {
	return f.Dir != "" || f.StdoutPath != "" || f.StderrPath != ""
}

// NewLogger builds a slog.Logger writing to w. A nil w means stderr.
func NewLogger(cfg Config, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}
	var h slog.Handler
	switch strings.ToLower(cfg.Format) {
	case FormatJSON:
		h = slog.NewJSONHandler(w, opts)
	case FormatColor:
		h = NewColorTextHandler(w, opts)
	default:
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(h)
}

// ParseLevel maps a level name to a slog.Level; unknown names mean info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ProcessWriters returns rotating writers for the stdout and stderr of the
// process called name. Either writer is nil when its stream is not configured.
func (c Config) ProcessWriters(name string) (io.WriteCloser, io.WriteCloser, error) {
	f := c.File
	stdout := f.StdoutPath
	stderr := f.StderrPath
	if f.Dir != "" && (stdout == "" || stderr == "") {
		if !ValidStem(name) {
			return nil, nil, fmt.Errorf("invalid log file name %q", name)
		}
		if err := os.MkdirAll(f.Dir, 0o750); err != nil {
			return nil, nil, fmt.Errorf("create log dir: %w", err)
		}
		if stdout == "" {
			stdout = filepath.Join(f.Dir, fmt.Sprintf("%s.stdout.log", name))
		}
		if stderr == "" {
			stderr = filepath.Join(f.Dir, fmt.Sprintf("%s.stderr.log", name))
		}
	}
	var outW, errW io.WriteCloser
	if stdout != "" {
		outW = f.rotating(stdout)
	}
	if stderr != "" {
		errW = f.rotating(stderr)
	}
	return outW, errW, nil
}

// ValidStem reports whether name can be used as a file name inside a log
// directory: non-empty, no path separators and no "..".
func ValidStem(name string) bool {
	if name == "" || name == "." || strings.Contains(name, "..") {
		return false
	}
	return !strings.ContainsAny(name, `/\`+"\x00")
}

func (f FileConfig) rotating(path string) *lj.Logger {
	return &lj.Logger{
		Filename:   path,
		MaxSize:    valOr(f.MaxSizeMB, DefaultMaxSizeMB),
		MaxBackups: valOr(f.MaxBackups, DefaultMaxBackups),
		MaxAge:     valOr(f.MaxAgeDays, DefaultMaxAgeDays),
		Compress:   f.Compress,
	}
}

func valOr(v int, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
