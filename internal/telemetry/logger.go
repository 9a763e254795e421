package telemetry

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// SetupLogger installs the default slog logger. format is "json" or "text".
func SetupLogger(level, format string) error {
	l, err := NewLogger(os.Stdout, level, format)
	if err != nil {
		return err
	}

	slog.SetDefault(l)
	return nil
}

func NewLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("log level %q: %w", level, err)
	}

	opts := &slog.HandlerOptions{Level: lvl}

	switch strings.ToLower(format) {
	case "json", "":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
}
