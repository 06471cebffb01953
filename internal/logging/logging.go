// Package logging sets up the process-wide *slog.Logger: a chosen level
// and an optional ANSI-colorized rendering of the level name.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// ParseLevel maps the CLI surface's {DEBUG,INFO,WARNING,ERROR} onto
// slog.Level. WARN is accepted as a synonym for WARNING since both
// spellings are common.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug, nil
	case "INFO":
		return slog.LevelInfo, nil
	case "WARNING", "WARN":
		return slog.LevelWarn, nil
	case "ERROR":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", s)
	}
}

// New builds a *slog.Logger writing to w at the given level. When colorize
// is true, the level field is ANSI-coded so DEBUG/INFO/WARNING/ERROR are
// visually distinct in a terminal.
func New(w io.Writer, level slog.Level, colorize bool) *slog.Logger {
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: replaceAttr(colorize),
	})
	return slog.New(handler)
}

func replaceAttr(colorize bool) func(groups []string, a slog.Attr) slog.Attr {
	if !colorize {
		return nil
	}
	return func(groups []string, a slog.Attr) slog.Attr {
		if a.Key != slog.LevelKey {
			return a
		}
		level, ok := a.Value.Any().(slog.Level)
		if !ok {
			return a
		}
		a.Value = slog.StringValue(colorizeLevel(level))
		return a
	}
}

// colorizeLevel assigns an ANSI code per level: 34=blue (DEBUG), 37=white
// (INFO), 31=red (WARNING), 41=red-background (ERROR).
func colorizeLevel(level slog.Level) string {
	switch {
	case level < slog.LevelInfo:
		return ansi(34, "DEBUG")
	case level < slog.LevelWarn:
		return ansi(37, "INFO")
	case level < slog.LevelError:
		return ansi(31, "WARNING")
	default:
		return ansi(41, "ERROR")
	}
}

func ansi(code int, label string) string {
	return fmt.Sprintf("\033[1;%dm%s\033[1;0m", code, label)
}
