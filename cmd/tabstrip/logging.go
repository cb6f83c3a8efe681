package main

import (
	"io"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"pkt.systems/pslog"
	"pkt.systems/tabstrip/internal/appconfig"
)

// serveLogger builds the logger used while serving. Output goes to stderr
// and, when logging.file is set, to a rotating log file as well.
func serveLogger(cfg appconfig.LoggingConfig, stderr io.Writer) (pslog.Logger, io.Closer) {
	opts := pslog.Options{Mode: pslog.ModeConsole, MinLevel: pslog.InfoLevel}
	switch strings.ToLower(strings.TrimSpace(os.Getenv("LOG_MODE"))) {
	case "json", "structured":
		opts.Mode = pslog.ModeStructured
	}
	if cfg.Debug {
		opts.MinLevel = pslog.DebugLevel
	}
	if strings.TrimSpace(cfg.File) == "" {
		return pslog.NewWithOptions(stderr, opts), nopCloser{}
	}
	file := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   true,
	}
	opts.NoColor = true
	return pslog.NewWithOptions(io.MultiWriter(stderr, file), opts), file
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
