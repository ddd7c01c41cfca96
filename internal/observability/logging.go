package observability

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// LevelNotice sits between info and warn. Gateways log refused handshakes and
// destroyed ports at this level.
const LevelNotice = slog.LevelInfo + 2

// LogConfig holds configuration for the structured logger.
type LogConfig struct {
	Level       string // "debug", "info", "notice", "warn", "error"
	Format      string // "json" or "text"
	ServiceName string
	Environment string
	Output      io.Writer // stdout when nil
}

// Matched case-insensitively against attribute keys. tls_key and
// tls_key_password name files, but paths to key material are redacted too.
var sensitivePatterns = []string{
	"_key",
	"_secret",
	"_token",
	"_password",
	"_credential",
	"authorization",
	"bearer",
	"cookie",
	"api_key",
	"apikey",
	"secret",
	"password",
	"private",
}

// ParseLevel maps a config string onto a slog level; unknown values are info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "notice":
		return LevelNotice
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// InitLogger builds the process logger and installs it with slog.SetDefault.
// Every record carries service and environment, and secrets are redacted at
// any group depth.
func InitLogger(cfg LogConfig) *slog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}

	opts := &slog.HandlerOptions{
		Level:       ParseLevel(cfg.Level),
		ReplaceAttr: replaceAttr,
	}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}

	logger := slog.New(handler).With(
		slog.String("service", cfg.ServiceName),
		slog.String("environment", cfg.Environment),
	)
	slog.SetDefault(logger)
	return logger
}

func replaceAttr(groups []string, a slog.Attr) slog.Attr {
	if len(groups) == 0 && a.Key == slog.LevelKey {
		if lvl, ok := a.Value.Any().(slog.Level); ok && lvl == LevelNotice {
			return slog.String(slog.LevelKey, "NOTICE")
		}
		return a
	}
	if sensitive(a.Key) {
		return slog.String(a.Key, "[REDACTED]")
	}
	return a
}

func sensitive(key string) bool {
	key = strings.ToLower(key)
	for _, pattern := range sensitivePatterns {
		if strings.Contains(key, pattern) {
			return true
		}
	}
	return false
}

// LoggerFromContext returns the default logger, tagged with the active
// trace ID if there is one.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	logger := slog.Default()
	if traceID := TraceIDFromContext(ctx); traceID != "" {
		return logger.With(slog.String("trace_id", traceID))
	}
	return logger
}
