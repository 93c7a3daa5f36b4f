// Package logging wraps zerolog to give every core package a
// component-scoped structured logger: one process-wide logger,
// configurable level and format, and cheap per-component child loggers.
package logging

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

var (
	mu     sync.RWMutex
	global zerolog.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
)

// Config controls the process-wide logger.
type Config struct {
	Level  string // debug, info, warn, error
	Pretty bool   // human-readable console writer instead of JSON
	Output io.Writer
}

// Init installs the process-wide logger. Safe to call once at startup;
// components obtain their logger afterwards via For.
func Init(cfg Config) {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	var w io.Writer = out
	if cfg.Pretty {
		w = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}
	}

	lvl, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		lvl = zerolog.InfoLevel
	}

	mu.Lock()
	global = zerolog.New(w).Level(lvl).With().Timestamp().Logger()
	mu.Unlock()
}

// For returns a logger scoped to the named component (e.g. "daemon",
// "store", "httpapi", "guard").
func For(component string) zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return global.With().Str("component", component).Logger()
}
