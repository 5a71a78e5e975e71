package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Config controls the debug log sink.
type Config struct {
	// Level is the minimum level written to the file.
	Level slog.Level
	// Path is the log file location; empty means DefaultLogPath().
	Path string
	// MaxBytes is the file size that triggers rotation (default 10 MiB).
	MaxBytes int64
	// Keep is how many rotated archives are retained (default 5).
	Keep int
	// Echo, when non-nil, receives a copy of every record (stderr for an
	// interactive session). The file always gets everything.
	Echo io.Writer
}

// FileConfig returns the default file-logging configuration.
func FileConfig() Config {
	return Config{
		Level:    slog.LevelInfo,
		Path:     DefaultLogPath(),
		MaxBytes: 10 << 20,
		Keep:     5,
		Echo:     os.Stderr,
	}
}

// DebugConfig is FileConfig at debug level, for the --debug flag.
func DebugConfig() Config {
	cfg := FileConfig()
	cfg.Level = slog.LevelDebug
	return cfg
}

// Setup opens the rotating log file and returns a JSON slog.Logger writing
// to it, plus a cleanup that flushes and closes the file.
func Setup(cfg Config) (*slog.Logger, func(), error) {
	if cfg.Path == "" {
		cfg.Path = DefaultLogPath()
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 10 << 20
	}
	if cfg.Keep <= 0 {
		cfg.Keep = 5
	}

	file, err := OpenRotating(cfg.Path, cfg.MaxBytes, cfg.Keep)
	if err != nil {
		return nil, nil, err
	}

	var sink io.Writer = file
	if cfg.Echo != nil {
		sink = io.MultiWriter(file, cfg.Echo)
	}

	handler := slog.NewJSONHandler(sink, &slog.HandlerOptions{Level: cfg.Level})
	logger := slog.New(handler)

	cleanup := func() {
		_ = file.Sync()
		_ = file.Close()
	}
	return logger, cleanup, nil
}

// For returns a child logger tagged with the component it belongs to
// (store, embedding, service, ...), so `memsearchd logs --filter` can
// isolate one subsystem's records.
func For(logger *slog.Logger, component string) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With(slog.String("component", component))
}

// ParseLevel maps the CLI's level flag to a slog.Level, defaulting to info
// for anything unrecognized.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
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
