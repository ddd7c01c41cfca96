package observability

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

// Config is the combined tracer and metrics configuration of a service.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	OTLPEndpoint   string // Empty string disables OTLP export
	OTLPInsecure   bool
}

func (c Config) exporting() bool { return c.OTLPEndpoint != "" }

// Providers owns the tracer and meter providers of one process.
// A zero Providers is valid and shuts down as a no-op.
type Providers struct {
	tracing *tracing
	metrics *metering
}

// Init starts the tracer, then metrics, and installs both as the otel
// globals. On failure nothing is left running.
func Init(ctx context.Context, cfg Config) (*Providers, error) {
	res := newResource(cfg.ServiceName, cfg.ServiceVersion, cfg.Environment)

	tp, err := startTracing(ctx, cfg, res)
	if err != nil {
		return nil, fmt.Errorf("initialize tracer: %w", err)
	}
	mp, err := startMetrics(ctx, cfg, res)
	if err != nil {
		_ = tp.shutdown(ctx)
		return nil, fmt.Errorf("initialize metrics: %w", err)
	}
	return &Providers{tracing: tp, metrics: mp}, nil
}

// Shutdown flushes in reverse start order: metrics, then the tracer.
func (p *Providers) Shutdown(ctx context.Context) error {
	return errors.Join(
		p.metrics.shutdown(ctx),
		p.tracing.shutdown(ctx),
	)
}

// newResource describes the service with its own attributes only, avoiding
// schema conflicts with resource.Default().
func newResource(name, version, env string) *resource.Resource {
	return resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(name),
		semconv.ServiceVersion(version),
		semconv.DeploymentEnvironment(env),
	)
}
