package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LevelEnv overrides the log level chosen by flags
const LevelEnv = "REELFORGE_LOG_LEVEL"

// Options configures the global logger
type Options struct {
	Verbose bool
	// Level is a zerolog level name; it wins over Verbose.
	Level string
	// JSON writes one JSON object per line instead of console output.
	JSON bool
}

// Init initializes the global logger
func Init(opts Options) error {
	zerolog.TimeFieldFormat = time.RFC3339

	level, err := resolveLevel(opts)
	if err != nil {
		return err
	}
	zerolog.SetGlobalLevel(level)

	var output io.Writer = os.Stderr
	if !opts.JSON {
		output = zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: "15:04:05",
			NoColor:    !isTerminal(os.Stderr),
		}
	}

	log.Logger = NewLogger(output)
	return nil
}

func resolveLevel(opts Options) (zerolog.Level, error) {
	name := opts.Level
	if env := os.Getenv(LevelEnv); env != "" {
		name = env
	}
	if name == "" {
		if opts.Verbose {
			return zerolog.DebugLevel, nil
		}
		return zerolog.InfoLevel, nil
	}

	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(name)))
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("invalid log level %q: %w", name, err)
	}
	return level, nil
}

// NewLogger creates a new logger with optional writers
func NewLogger(writers ...io.Writer) zerolog.Logger {
	if len(writers) == 0 {
		return log.Logger
	}

	if len(writers) == 1 {
		return zerolog.New(writers[0]).With().Timestamp().Logger()
	}

	multi := zerolog.MultiLevelWriter(writers...)
	return zerolog.New(multi).With().Timestamp().Logger()
}

// WithRun tags a logger with the id of one highlight run
func WithRun(logger zerolog.Logger, runID string) zerolog.Logger {
	return logger.With().Str("run", runID).Logger()
}

func isTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
