// Package logging provides structured logging configuration using zerolog.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	// LevelDebug logs debug messages and above.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs info messages and above.
	LevelInfo LogLevel = "info"

	// LevelWarn logs warning messages and above.
	LevelWarn LogLevel = "warn"

	// LevelError logs error messages only.
	LevelError LogLevel = "error"

	// LevelDisabled turns logging off.
	LevelDisabled LogLevel = "disabled"
)

// Component names attached to every log line as the "component" field.
const (
	ComponentClient     = "axiom-client"
	ComponentTransport  = "axiom-transport"
	ComponentSession    = "axiom-session"
	ComponentPagination = "axiom-pagination"
	ComponentLiveFeed   = "axiom-livefeed"
	ComponentRateLimit  = "axiom-ratelimit"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output (default: false for JSON).
	Pretty bool

	// Output is the writer to output logs to (default: os.Stderr).
	Output io.Writer
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: os.Stderr,
	}
}

// Setup configures the global zerolog logger.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}
	var output io.Writer = cfg.Output
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: cfg.Output}
	}

	logger := zerolog.New(output).With().Timestamp().Logger()
	log.Logger = logger

	return logger
}

// ValidateLevel reports an error for level names Setup would not recognise.
func ValidateLevel(level LogLevel) error {
	switch strings.ToLower(string(level)) {
	case "debug", "info", "warn", "warning", "error", "disabled":
		return nil
	default:
		return fmt.Errorf("unknown log level %q", level)
	}
}

// parseLevel converts LogLevel to zerolog.Level.
func parseLevel(level LogLevel) zerolog.Level {
	switch strings.ToLower(string(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Log Level Guidelines:
//
// Debug: Detailed information for debugging
//   - Page merges (page number, fragment tags)
//   - Cache hits and misses
//   - Request flow (endpoint, attempt)
//
// Info: Normal operation events
//   - Session acquired or revoked
//   - Fetch complete (pages, samples, duration)
//   - Live feed opened, polling started or stopped
//
// Warn: Warning conditions that don't prevent operation
//   - Retry attempts and Retry-After pauses
//   - Remote revocation failures (local token already cleared)
//   - Page failures that discard a fetch
//
// Error: Error conditions requiring attention
//   - Page limit reached
//   - Network failures after retries
//
// Context Fields:
//   - endpoint: service path
//   - fetch_id: identifier shared by every page of one fetch
//   - page: page number within a fetch
//   - status_code: HTTP status code
//   - error_class: Error classification (client, auth, rate_limit, unavailable, server, network, decode)
//   - duration: Request or fetch duration
//
// Passwords and tokens are never logged.
