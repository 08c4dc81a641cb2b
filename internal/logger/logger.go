// Package logger configures the process-wide slog logger used by the
// daemon. The core angelshark package never depends
// on this package and leaves sink configuration entirely to collaborators.
package logger

import (
	"io"
	"log/slog"
	"os"
)

// Log is the process-wide logger. Init must be called once before use;
// until then it defaults to slog's standard logger so library code that
// logs during early startup doesn't panic on a nil pointer.
var Log = slog.Default()

// Init wires Log to stdout, plus logFile if non-empty, at the given level
// ("debug", "info", "warn", "error"; anything else behaves as "info").
// When component is non-empty, every line gets a "component" attribute so
// that output from many concurrently-running ACM sessions can be told apart.
func Init(level, logFile, component string) error {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	writers := []io.Writer{os.Stdout}
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o666)
		if err != nil {
			return err
		}
		writers = append(writers, f)
	}

	handler := slog.NewTextHandler(io.MultiWriter(writers...), &slog.HandlerOptions{
		Level: logLevel,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				return slog.String("time", a.Value.Time().Format("15:04:05"))
			}
			return a
		},
	})

	Log = slog.New(handler)
	if component != "" {
		Log = Log.With("component", component)
	}
	slog.SetDefault(Log)
	return nil
}
