// Package admission limits how fast a single remote IP may open connections.
// Counters live in Redis so every gateway process shares them.
package admission

import (
	"context"
	"fmt"
	"net"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	"github.com/aelexs/websocket-gateway/internal/observability"
	redisclient "github.com/aelexs/websocket-gateway/internal/redis"
)

// Key patterns: ws_accept:{ip} counts, ws_ban:{ip} refuses.
const (
	countPrefix = "ws_accept:"
	banPrefix   = "ws_ban:"
)

// acceptScript increments the window counter and sets its TTL on the first
// increment only, so the window is fixed rather than sliding.
const acceptScript = `
local count = redis.call('INCR', KEYS[1])
if count == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return count
`

var (
	tracer        = observability.Tracer("gateway/admission")
	rejectedTotal metric.Int64Counter
)

func init() {
	m := observability.Meter("gateway/admission")
	rejectedTotal, _ = m.Int64Counter("gateway_connections_rejected_total",
		metric.WithDescription("Connections refused by admission control"))
}

// Limiter admits at most limit connections per IP per window. An IP that
// exceeds the limit is refused for ban, when ban is positive.
type Limiter struct {
	cmd    redisclient.Cmdable
	limit  int
	window time.Duration
	ban    time.Duration
}

// NewLimiter creates a Limiter that uses cmd for Redis operations.
func NewLimiter(cmd redisclient.Cmdable, limit int, window, ban time.Duration) *Limiter {
	return &Limiter{cmd: cmd, limit: limit, window: window, ban: ban}
}

// Admit reports whether a connection from addr may proceed. On a Redis
// error it returns (true, err): the caller decides whether to fail open.
func (l *Limiter) Admit(ctx context.Context, addr net.Addr) (bool, error) {
	ip := hostOf(addr)

	banned, err := l.banned(ctx, ip)
	if err != nil {
		return true, err
	}
	if banned {
		rejectedTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", "banned")))
		return false, nil
	}

	count, err := l.increment(ctx, ip)
	if err != nil {
		return true, err
	}
	if count <= int64(l.limit) {
		return true, nil
	}

	rejectedTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", "rate")))
	if l.ban > 0 {
		if err := l.setBan(ctx, ip); err != nil {
			return false, err
		}
	}
	return false, nil
}

func (l *Limiter) increment(ctx context.Context, ip string) (int64, error) {
	ctx, span := tracer.Start(ctx, "redis.admission.increment")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "redis"),
		attribute.String("db.operation", "EVAL"),
	)

	count, err := l.cmd.Eval(ctx, acceptScript, []string{countPrefix + ip}, l.window.Milliseconds()).Int64()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, fmt.Errorf("admission count %s: %w", ip, err)
	}
	return count, nil
}

func (l *Limiter) banned(ctx context.Context, ip string) (bool, error) {
	ctx, span := tracer.Start(ctx, "redis.admission.check_ban")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "redis"),
		attribute.String("db.operation", "EXISTS"),
	)

	n, err := l.cmd.Exists(ctx, banPrefix+ip).Result()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, fmt.Errorf("admission ban check %s: %w", ip, err)
	}
	return n > 0, nil
}

func (l *Limiter) setBan(ctx context.Context, ip string) error {
	ctx, span := tracer.Start(ctx, "redis.admission.set_ban")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "redis"),
		attribute.String("db.operation", "SET"),
	)

	if err := l.cmd.Set(ctx, banPrefix+ip, "1", l.ban).Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("admission ban %s: %w", ip, err)
	}
	return nil
}

// hostOf strips the port; unparseable addresses are used whole.
func hostOf(addr net.Addr) string {
	if addr == nil {
		return "unknown"
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}
