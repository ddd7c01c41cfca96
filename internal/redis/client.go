// Package redis confines go-redis to one place. The presence recorder and the
// admission limiter reach Redis only through this package.
package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/aelexs/websocket-gateway/internal/config"
	"github.com/aelexs/websocket-gateway/internal/domain"
	"github.com/aelexs/websocket-gateway/internal/observability"
)

// Cmdable is what adapters accept instead of importing go-redis directly.
type Cmdable = redis.Cmdable

// Client is the process-wide Redis handle.
type Client struct {
	RDB *redis.Client
}

// New builds a client from the service configuration without contacting the
// server. The single Redis timeout bounds reads and writes.
func New(cfg config.RedisConfig) *Client {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	})
	rdb.AddHook(errorCounter{})
	return &Client{RDB: rdb}
}

// Dial is New followed by a bounded Ping, so startup fails on an unreachable
// Redis instead of the first session.
func Dial(ctx context.Context, cfg config.RedisConfig) (*Client, error) {
	c := New(cfg)
	pingCtx, cancel := context.WithTimeout(ctx, domain.RedisTimeout)
	defer cancel()
	if err := c.Ping(pingCtx); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

func (c *Client) Addr() string { return c.RDB.Options().Addr }

func (c *Client) Ping(ctx context.Context) error {
	if err := c.RDB.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping %s: %w", c.Addr(), err)
	}
	return nil
}

func (c *Client) Close() error {
	return c.RDB.Close()
}

var commandErrors metric.Int64Counter

func init() {
	var err error
	commandErrors, err = observability.Meter("gateway/redis").Int64Counter(
		"gateway_redis_errors_total",
		metric.WithDescription("Redis commands that failed, by command name"),
	)
	if err != nil {
		panic(err)
	}
}

// errorCounter counts failed commands. A missing key is not a failure.
type errorCounter struct{}

func (errorCounter) DialHook(next redis.DialHook) redis.DialHook { return next }

func (errorCounter) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		err := next(ctx, cmd)
		countFailure(ctx, cmd.Name(), err)
		return err
	}
}

func (errorCounter) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		err := next(ctx, cmds)
		if err != nil {
			countFailure(ctx, "pipeline", err)
		}
		return err
	}
}

func countFailure(ctx context.Context, name string, err error) {
	if err == nil || errors.Is(err, redis.Nil) {
		return
	}
	commandErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("cmd", name)))
}
