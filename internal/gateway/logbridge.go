package gateway

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/aelexs/websocket-gateway/internal/observability"
)

// Severity is an engine diagnostic level. Values are bit flags so a set of
// enabled levels fits in one mask.
type Severity int

const (
	SeverityErr    Severity = 1 << 0
	SeverityWarn   Severity = 1 << 1
	SeverityNotice Severity = 1 << 2
	SeverityInfo   Severity = 1 << 3
	SeverityDebug  Severity = 1 << 4
	SeverityUser   Severity = 1 << 10
)

const (
	defaultSeverityMask = SeverityUser | SeverityWarn | SeverityErr
	debugSeverityMask   = defaultSeverityMask | SeverityNotice | SeverityInfo | SeverityDebug
)

// LogBridge routes engine diagnostics into the host's slog channels. Error
// records go to the general channel; everything else goes to the websocket
// channel tagged with its numeric level.
type LogBridge struct {
	general  *slog.Logger
	protocol *slog.Logger
	mask     Severity
}

// NewLogBridge derives both channels from logger. debug widens the set of
// severities the engine emits.
func NewLogBridge(logger *slog.Logger, debug bool) *LogBridge {
	if logger == nil {
		logger = slog.Default()
	}
	mask := defaultSeverityMask
	if debug {
		mask = debugSeverityMask
	}
	return &LogBridge{
		general:  logger.With(slog.String("channel", "all")),
		protocol: logger.With(slog.String("channel", "websocket")),
		mask:     mask,
	}
}

// Log forwards one record. It never filters; the host's handler decides
// what is written.
func (b *LogBridge) Log(sev Severity, msg string) {
	if sev == SeverityErr {
		b.general.Error(msg)
		return
	}
	b.protocol.Log(context.Background(), sev.slogLevel(), msg, slog.Int("severity", int(sev)))
}

// Enabled reports whether the engine emits records of sev.
func (b *LogBridge) Enabled(sev Severity) bool {
	return b.mask&sev != 0
}

// logf is the engine-side emitter: gated by the mask, then forwarded.
func (b *LogBridge) logf(sev Severity, format string, args ...any) {
	if !b.Enabled(sev) {
		return
	}
	b.Log(sev, fmt.Sprintf(format, args...))
}

// Writer adapts the bridge to an io.Writer at a fixed severity, for engines
// that only accept a *log.Logger.
func (b *LogBridge) Writer(sev Severity) io.Writer {
	return bridgeWriter{b: b, sev: sev}
}

type bridgeWriter struct {
	b   *LogBridge
	sev Severity
}

func (w bridgeWriter) Write(p []byte) (int, error) {
	w.b.logf(w.sev, "%s", bytes.TrimRight(p, "\n"))
	return len(p), nil
}

func (s Severity) slogLevel() slog.Level {
	switch s {
	case SeverityErr:
		return slog.LevelError
	case SeverityWarn:
		return slog.LevelWarn
	case SeverityNotice:
		return observability.LevelNotice
	case SeverityDebug:
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}
