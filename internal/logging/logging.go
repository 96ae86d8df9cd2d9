package logging

import (
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
)

const (
	envLevel = "TRANSFORMSTATE_LOG_LEVEL"
	envJSON  = "TRANSFORMSTATE_LOG_JSON"
)

type Options struct {
	Level string `koanf:"level"`
	JSON  bool   `koanf:"json"`
	// Output defaults to stderr.
	Output io.Writer `koanf:"-"`
}

var def atomic.Pointer[slog.Logger]

func init() {
	Configure(Options{})
}

func Configure(opts Options) {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	cfg := &slog.HandlerOptions{Level: parseLevel(opts.Level)}
	var h slog.Handler
	if opts.JSON {
		h = slog.NewJSONHandler(out, cfg)
	} else {
		h = slog.NewTextHandler(out, cfg)
	}
	def.Store(slog.New(h))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func L() *slog.Logger { return def.Load() }

// For returns the default logger tagged with a component name.
func For(component string) *slog.Logger { return L().With("component", component) }

// InitFromEnv applies TRANSFORMSTATE_LOG_LEVEL and TRANSFORMSTATE_LOG_JSON
// on top of opts. Unset variables keep the values in opts.
func InitFromEnv(opts Options) {
	if lvl, ok := os.LookupEnv(envLevel); ok {
		opts.Level = lvl
	}
	if b, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(envJSON))); err == nil {
		opts.JSON = b
	}
	Configure(opts)
}
