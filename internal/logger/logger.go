package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Logger owns the process-wide zerolog logger and its file sink.
type Logger struct {
	logger   zerolog.Logger
	file     io.Closer
	redactor *Redactor
}

// Config holds logger configuration.
type Config struct {
	Level     string // debug, info, warn, error
	File      string // log file path, empty for none
	Console   bool   // write to stderr
	Pretty    bool   // human-readable console output
	Redaction bool   // mask API keys and secrets
	MaxSize   int    // MB before the file rotates
	MaxAge    int    // days to keep rotated files
	Compress  bool   // gzip rotated files
}

// New builds the logger and installs it as log.Logger. Console output goes
// to stderr so command output on stdout stays machine-readable.
func New(cfg Config) (*Logger, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	var writers []io.Writer
	if cfg.Console {
		var console io.Writer = os.Stderr
		if cfg.Pretty {
			console = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
		}
		writers = append(writers, console)
	}

	var file io.Closer
	if cfg.File != "" {
		rw, err := NewRotatingWriter(cfg.File, cfg.MaxSize, cfg.MaxAge, cfg.Compress)
		if err != nil {
			return nil, err
		}
		file = rw
		writers = append(writers, rw)
	}

	var writer io.Writer
	switch len(writers) {
	case 0:
		writer = os.Stderr
	case 1:
		writer = writers[0]
	default:
		writer = zerolog.MultiLevelWriter(writers...)
	}

	var redactor *Redactor
	if cfg.Redaction {
		redactor = NewRedactor()
		writer = redactor.Wrap(writer)
	}

	logger := zerolog.New(writer).Level(level).With().Timestamp().Logger()
	log.Logger = logger

	return &Logger{logger: logger, file: file, redactor: redactor}, nil
}

// Zerolog returns the configured logger for injection into components.
func (l *Logger) Zerolog() zerolog.Logger {
	return l.logger
}

// Close flushes and closes the log file, if any.
func (l *Logger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// DefaultConfig returns console logging at info level with redaction on.
func DefaultConfig() Config {
	return Config{
		Level:     "info",
		Console:   true,
		Pretty:    true,
		Redaction: true,
		MaxSize:   100,
		MaxAge:    7,
		Compress:  true,
	}
}
