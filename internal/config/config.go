// Package config provides configuration loading using koanf.
// Precedence: environment variables, then compiled defaults.
package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"

	"github.com/aelexs/websocket-gateway/internal/domain"
)

// Config holds all service configuration.
type Config struct {
	// Environment identifier: "local", "dev", "prod"
	Environment string `koanf:"environment"`

	// Logging configuration
	LogLevel  string `koanf:"log_level"`
	LogFormat string `koanf:"log_format"`

	Gateway GatewayConfig `koanf:"gateway"`
	Redis   RedisConfig   `koanf:"redis"`

	// OpenTelemetry configuration
	OTEL OTELConfig `koanf:"otel"`
}

// GatewayConfig holds the websocket gateway configuration. A port of 0 is
// disabled.
type GatewayConfig struct {
	// HTTPPort serves /healthz.
	HTTPPort int `koanf:"http_port"`

	WSPort  int    `koanf:"ws_port"`
	TLSPort int    `koanf:"tls_port"`
	TLSCert string `koanf:"tls_cert"`
	TLSKey  string `koanf:"tls_key"`
	// HTTPDir is the static-file origin mounted on "/" of every websocket port.
	HTTPDir string `koanf:"http_dir"`

	KillTimeout     time.Duration `koanf:"kill_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	AdoptBacklog    int           `koanf:"adopt_backlog"`
	Debug           bool          `koanf:"debug"`
	PresenceEnabled bool          `koanf:"presence_enabled"`

	// AcceptLimit caps new connections per remote IP per AcceptWindow.
	// 0 disables admission control. Counters live in Redis.
	AcceptLimit  int           `koanf:"accept_limit"`
	AcceptWindow time.Duration `koanf:"accept_window"`
	// AcceptBan keeps an IP refused this long after it exceeds the limit.
	AcceptBan time.Duration `koanf:"accept_ban"`
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Addr     string        `koanf:"addr"`
	Password string        `koanf:"password"`
	DB       int           `koanf:"db"`
	Timeout  time.Duration `koanf:"timeout"`
}

// OTELConfig holds OpenTelemetry configuration.
type OTELConfig struct {
	Endpoint    string `koanf:"endpoint"` // Empty disables OTLP export
	ServiceName string `koanf:"service_name"`
	Insecure    bool   `koanf:"insecure"` // Plaintext gRPC to the collector

}

// sections are the env prefixes that map onto nested structs:
// GATEWAY_WS_PORT -> gateway.ws_port.
var sections = []string{"gateway", "redis", "otel"}

// defaults returns a Config with compiled default values.
func defaults() *Config {
	return &Config{
		Environment: "local",
		LogLevel:    "info",
		LogFormat:   "json",

		Gateway: GatewayConfig{
			HTTPPort:     8080,
			WSPort:       4000,
			HTTPDir:      "www",
			KillTimeout:  domain.DefaultKillTimeout,
			WriteTimeout: domain.DefaultWriteTimeout,
			AdoptBacklog: domain.DefaultAdoptBacklog,
			AcceptWindow: domain.DefaultAcceptWindow,
		},
		Redis: RedisConfig{
			Addr:    "localhost:6379",
			DB:      0,
			Timeout: domain.RedisTimeout,
		},
		OTEL: OTELConfig{
			Insecure: true,
		},
	}
}

// Load loads configuration following the precedence:
// 1. Environment variables (highest)
// 2. Compiled defaults (lowest)
//
// Required keys missing → startup failure.
func Load(ctx context.Context) (*Config, error) {
	k := koanf.New(".")

	// Start with compiled defaults
	cfg := defaults()

	err := k.Load(env.Provider("", ".", envKey), nil)
	if err != nil {
		return nil, fmt.Errorf("load env vars: %w", err)
	}

	// Unmarshal into config struct
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := validateRequired(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// envKey maps an environment variable name onto a koanf key. Only the
// section prefix is split off, so multi-word keys keep their underscores.
func envKey(s string) string {
	key := strings.ToLower(s)
	for _, sec := range sections {
		if rest, ok := strings.CutPrefix(key, sec+"_"); ok {
			return sec + "." + rest
		}
	}
	return key
}

// validateRequired checks that required configuration is present.
func validateRequired(cfg *Config) error {
	gw := cfg.Gateway
	if (gw.WSPort > 0 || gw.TLSPort > 0) && gw.HTTPDir == "" {
		return fmt.Errorf("%w: gateway.http_dir", domain.ErrConfigRequired)
	}
	if gw.TLSPort > 0 && (gw.TLSCert == "" || gw.TLSKey == "") {
		return fmt.Errorf("%w: gateway.tls_cert and gateway.tls_key", domain.ErrConfigRequired)
	}
	if gw.KillTimeout <= 0 || gw.WriteTimeout <= 0 || gw.AdoptBacklog <= 0 {
		return fmt.Errorf("%w: gateway timeouts and backlog must be positive", domain.ErrInvalidInput)
	}

	if gw.AcceptLimit < 0 || gw.AcceptBan < 0 {
		return fmt.Errorf("%w: gateway.accept_limit and gateway.accept_ban", domain.ErrInvalidInput)
	}
	if gw.AcceptLimit > 0 && gw.AcceptWindow < time.Second {
		return fmt.Errorf("%w: gateway.accept_window below 1s", domain.ErrInvalidInput)
	}

	// In local environment, the remaining fields have sensible defaults
	if cfg.Environment == "local" {
		return nil
	}

	if cfg.Environment == "prod" && gw.UsesRedis() && cfg.Redis.Addr == "" {
		return fmt.Errorf("%w: redis.addr", domain.ErrConfigRequired)
	}

	return nil
}

// UsesRedis reports whether presence or admission control is enabled.
func (g GatewayConfig) UsesRedis() bool {
	return g.PresenceEnabled || g.AcceptLimit > 0
}

// Ports lists the enabled websocket ports, plaintext first.
func (g GatewayConfig) Ports() []int {
	var ports []int
	if g.WSPort > 0 {
		ports = append(ports, g.WSPort)
	}
	if g.TLSPort > 0 {
		ports = append(ports, g.TLSPort)
	}
	return ports
}

// IsLocal returns true if running in local development environment.
func (c *Config) IsLocal() bool {
	return c.Environment == "local"
}

// IsProd returns true if running in production environment.
func (c *Config) IsProd() bool {
	return c.Environment == "prod"
}
