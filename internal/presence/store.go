// Package presence records live gateway sessions in Redis so other processes
// can see who is connected where.
package presence

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/aelexs/websocket-gateway/internal/domain"
	"github.com/aelexs/websocket-gateway/internal/gateway"
	"github.com/aelexs/websocket-gateway/internal/observability"
	redisclient "github.com/aelexs/websocket-gateway/internal/redis"
)

// sessionPrefix is the Redis key prefix. Key pattern: ws_session:{id}.
const sessionPrefix = "ws_session:"

var tracer = observability.Tracer("gateway/presence")

// Entry is one presence record.
type Entry struct {
	ID          domain.SessionID
	Port        string
	Protocol    string
	Subprotocol string
	RemoteAddr  string
	Encrypted   bool
	ConnectedAt time.Time
}

// Store reads and writes presence hashes. Every hash carries
// domain.ConnectionTTL so a crashed gateway's sessions expire on their own.
type Store struct {
	cmd   redisclient.Cmdable
	clock domain.Clock
}

// NewStore creates a Store that uses cmd for Redis operations.
func NewStore(cmd redisclient.Cmdable, clock domain.Clock) *Store {
	if clock == nil {
		clock = domain.RealClock{}
	}
	return &Store{cmd: cmd, clock: clock}
}

func key(id domain.SessionID) string { return sessionPrefix + id.String() }

// Put writes the session hash and (re)sets its TTL.
func (s *Store) Put(ctx context.Context, info gateway.Info) error {
	ctx, span := tracer.Start(ctx, "redis.presence.put")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "redis"),
		attribute.String("db.operation", "HSET"),
	)

	k := key(info.ID)
	pipe := s.cmd.TxPipeline()
	pipe.HSet(ctx, k,
		"port", info.Port,
		"protocol", info.Protocol,
		"subprotocol", info.Subprotocol,
		"remote_addr", info.RemoteAddr,
		"encrypted", strconv.FormatBool(info.Encrypted),
		"connected_at", domain.NowMillis(s.clock).String(),
	)
	pipe.Expire(ctx, k, domain.ConnectionTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("put presence %s: %w", info.ID, err)
	}
	return nil
}

// Touch extends the TTL of a live session. It reports false when the hash
// has already expired.
func (s *Store) Touch(ctx context.Context, id domain.SessionID) (bool, error) {
	ctx, span := tracer.Start(ctx, "redis.presence.touch")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "redis"),
		attribute.String("db.operation", "EXPIRE"),
	)

	ok, err := s.cmd.Expire(ctx, key(id), domain.ConnectionTTL).Result()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, fmt.Errorf("touch presence %s: %w", id, err)
	}
	return ok, nil
}

// Delete removes the session hash. Deleting a missing hash is not an error.
func (s *Store) Delete(ctx context.Context, id domain.SessionID) error {
	ctx, span := tracer.Start(ctx, "redis.presence.delete")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "redis"),
		attribute.String("db.operation", "DEL"),
	)

	if err := s.cmd.Del(ctx, key(id)).Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("delete presence %s: %w", id, err)
	}
	return nil
}

// Get reads one session hash. A missing session yields domain.ErrSessionClosed.
func (s *Store) Get(ctx context.Context, id domain.SessionID) (Entry, error) {
	ctx, span := tracer.Start(ctx, "redis.presence.get")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "redis"),
		attribute.String("db.operation", "HGETALL"),
	)

	fields, err := s.cmd.HGetAll(ctx, key(id)).Result()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Entry{}, fmt.Errorf("get presence %s: %w", id, err)
	}
	if len(fields) == 0 {
		return Entry{}, fmt.Errorf("get presence %s: %w", id, domain.ErrSessionClosed)
	}

	at, err := domain.ParseUnixMillis(fields["connected_at"])
	if err != nil {
		return Entry{}, fmt.Errorf("get presence %s: connected_at: %w", id, err)
	}
	encrypted, _ := strconv.ParseBool(fields["encrypted"])
	return Entry{
		ID:          id,
		Port:        fields["port"],
		Protocol:    fields["protocol"],
		Subprotocol: fields["subprotocol"],
		RemoteAddr:  fields["remote_addr"],
		Encrypted:   encrypted,
		ConnectedAt: at.Time(),
	}, nil
}
