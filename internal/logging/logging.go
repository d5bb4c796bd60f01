// Package logging builds the slog handlers used by the CLI.
package logging

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/charmbracelet/log"
)

// ErrUnknownFormat is returned for log formats other than text and json
var ErrUnknownFormat = errors.New("unknown log format")

const (
	FormatText = "text"
	FormatJSON = "json"
)

// ParseLevel maps a level name to a slog level. Empty means info.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q (supported: debug, info, warn, error)", name)
	}
}

// NewHandler creates a handler for format writing to w (stderr when nil).
// Text output is rendered by charmbracelet/log; debug text output carries timestamps.
func NewHandler(format, level string, w io.Writer) (slog.Handler, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	if w == nil {
		w = os.Stderr
	}

	switch strings.ToLower(format) {
	case FormatText, "":
		return log.NewWithOptions(w, log.Options{
			Level:           log.Level(lvl),
			ReportTimestamp: lvl <= slog.LevelDebug,
		}), nil
	case FormatJSON:
		return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl}), nil
	default:
		return nil, fmt.Errorf("%w: %q (supported: text, json)", ErrUnknownFormat, format)
	}
}

// NewLogger creates a logger via NewHandler
func NewLogger(format, level string, w io.Writer) (*slog.Logger, error) {
	handler, err := NewHandler(format, level, w)
	if err != nil {
		return nil, err
	}
	return slog.New(handler), nil
}
