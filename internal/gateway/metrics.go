package gateway

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/aelexs/websocket-gateway/internal/observability"
)

var (
	sessionsAdoptedTotal     metric.Int64Counter
	sessionsEstablishedTotal metric.Int64Counter
	sessionsClosedTotal      metric.Int64Counter
	sessionsActive           metric.Int64UpDownCounter
	closeFlushScheduledTotal metric.Int64Counter
	bytesReceivedTotal       metric.Int64Counter
	bytesWrittenTotal        metric.Int64Counter
)

func init() {
	m := observability.Meter("gateway")

	sessionsAdoptedTotal, _ = m.Int64Counter("gateway_sessions_adopted_total",
		metric.WithDescription("Total sockets adopted into a gateway"))
	sessionsEstablishedTotal, _ = m.Int64Counter("gateway_sessions_established_total",
		metric.WithDescription("Total sessions upgraded to a sub-protocol"))
	sessionsClosedTotal, _ = m.Int64Counter("gateway_sessions_closed_total",
		metric.WithDescription("Total sessions torn down"))
	sessionsActive, _ = m.Int64UpDownCounter("gateway_sessions_active",
		metric.WithDescription("Sessions currently held by a gateway"))
	closeFlushScheduledTotal, _ = m.Int64Counter("gateway_close_flush_scheduled_total",
		metric.WithDescription("Closes that scheduled a final writable cycle"))
	bytesReceivedTotal, _ = m.Int64Counter("gateway_bytes_received_total",
		metric.WithDescription("Payload bytes delivered to handlers"))
	bytesWrittenTotal, _ = m.Int64Counter("gateway_bytes_written_total",
		metric.WithDescription("Payload bytes written to peers"))
}

func protocolAttr(name string) metric.AddOption {
	return metric.WithAttributes(attribute.String("protocol", name))
}

// Metric calls never block, so they are safe on the loop.
var bg = context.Background()
