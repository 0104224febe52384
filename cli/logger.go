package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/georgepadayatti/x509constraints/config"
)

var logFormatters = map[string]log.Formatter{
	"text":   log.TextFormatter,
	"json":   log.JSONFormatter,
	"logfmt": log.LogfmtFormatter,
}

// newLogger builds a logger from cfg. The returned close function releases
// the log file, if one was opened.
func newLogger(cfg *config.LoggingConfig) (*log.Logger, func() error, error) {
	if cfg == nil {
		cfg = &config.LoggingConfig{}
	}
	cfg.SetDefaults()

	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	formatter, ok := logFormatters[cfg.Format]
	if !ok {
		return nil, nil, fmt.Errorf("invalid log format %q", cfg.Format)
	}

	closeFn := func() error { return nil }
	var w io.Writer
	switch cfg.Output {
	case "stderr":
		w = stderr
	case "stdout":
		w = stdout
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file: %w", err)
		}
		w, closeFn = f, f.Close
	}

	logger := log.NewWithOptions(w, log.Options{
		Level:           level,
		Formatter:       formatter,
		ReportTimestamp: cfg.Output != "stderr",
	})
	return logger, closeFn, nil
}
