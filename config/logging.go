package config

import (
	"io"
	stdlog "log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogWriter is the writer used for application and database logs.
var LogWriter io.Writer = os.Stdout

// LogFilePath returns the default path to the backend log file.
func LogFilePath() string {
	return filepath.Join("logs", "grievance-api.log")
}

// InitLogging prepares the log file and installs the global zerolog logger.
// The returned file, when non-nil, must be closed by the caller on shutdown.
func InitLogging(cfg LoggingConfig) (*os.File, io.Writer) {
	path := cfg.File
	if path == "" {
		path = LogFilePath()
	}

	LogWriter = os.Stdout
	var logFile *os.File
	if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		stdlog.Printf("Warning: Failed to create logs directory: %v", err)
	} else if f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err != nil {
		stdlog.Printf("Warning: Failed to open log file: %v", err)
	} else {
		logFile = f
		LogWriter = io.MultiWriter(os.Stdout, logFile)
	}
	stdlog.SetOutput(LogWriter)

	log.Logger = NewLogger(cfg, LogWriter)
	return logFile, LogWriter
}

// NewLogger builds a zerolog logger with the configured level and format.
func NewLogger(cfg LoggingConfig, w io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.TimeFieldFormat = time.RFC3339

	out := w
	if strings.EqualFold(cfg.Format, "console") {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339, NoColor: true}
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}
