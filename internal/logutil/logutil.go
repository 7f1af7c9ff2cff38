package logutil

import (
    "io"
    "os"
    "strings"
    "sync/atomic"
    "time"

    "github.com/rs/zerolog"
)

var jsonMode atomic.Bool

func init() {
    if os.Getenv("CLUSTERDASH_LOG_JSON") == "1" || os.Getenv("CLUSTERDASH_LOG_FORMAT") == "json" {
        jsonMode.Store(true)
    }
    zerolog.TimeFieldFormat = time.RFC3339Nano
}

// SetJSON switches loggers created afterwards between JSON and console output.
func SetJSON(enabled bool) { jsonMode.Store(enabled) }

// JSON reports whether JSON output is enabled.
func JSON() bool { return jsonMode.Load() }

// SetLevel sets the global minimum level ("debug", "info", "warn", "error").
// Unknown values fall back to info.
func SetLevel(level string) {
    switch strings.ToLower(strings.TrimSpace(level)) {
    case "debug":
        zerolog.SetGlobalLevel(zerolog.DebugLevel)
    case "warn", "warning":
        zerolog.SetGlobalLevel(zerolog.WarnLevel)
    case "error":
        zerolog.SetGlobalLevel(zerolog.ErrorLevel)
    default:
        zerolog.SetGlobalLevel(zerolog.InfoLevel)
    }
}

// New returns a logger writing to w, tagged with component.
func New(w io.Writer, component string) zerolog.Logger {
    if w == nil { w = os.Stderr }
    if !jsonMode.Load() {
        w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
    }
    ctx := zerolog.New(w).With().Timestamp()
    if component != "" { ctx = ctx.Str("component", component) }
    return ctx.Logger()
}

// Default returns a stderr logger for component.
func Default(component string) zerolog.Logger { return New(os.Stderr, component) }

// Nop returns a disabled logger.
func Nop() zerolog.Logger { return zerolog.Nop() }

func Debugf(l zerolog.Logger, f string, args ...any) { l.Debug().Msgf(f, args...) }
func Infof(l zerolog.Logger, f string, args ...any)  { l.Info().Msgf(f, args...) }
func Warnf(l zerolog.Logger, f string, args ...any)  { l.Warn().Msgf(f, args...) }
func Errorf(l zerolog.Logger, f string, args ...any) { l.Error().Msgf(f, args...) }
