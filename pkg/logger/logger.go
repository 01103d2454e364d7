package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

const (
	RoleBalancer = "balancer"
	RoleWorker   = "worker"
	RoleSingle   = "single"
)

func New(lvl string, addSource bool, environment string, role string) *slog.Logger {
	return NewWithWriter(os.Stdout, lvl, addSource, environment, role)
}

// NewWithWriter is New with an explicit destination. Worker processes write
// to the stdout they inherit from the balancer.
func NewWithWriter(w io.Writer, lvl string, addSource bool, environment string, role string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:     ParseLevel(lvl),
		AddSource: addSource,
	}

	var handler slog.Handler
	if strings.ToLower(environment) == "prod" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler).With(
		slog.String("environment", environment),
		slog.String("role", role),
		slog.Int("pid", os.Getpid()),
	)
}

func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
