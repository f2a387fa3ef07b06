package convlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/AyushPatel04/dental-chatbot/internal/chatflow"
)

const redisKeyPrefix = "chat_transcript:"

// RedisSink keeps a capped, expiring list of exchanges per session.
type RedisSink struct {
	redis      *redis.Client
	tracer     trace.Tracer
	ttl        time.Duration
	maxEntries int64
}

func NewRedisSink(client *redis.Client, ttl time.Duration) *RedisSink {
	if client == nil {
		panic("convlog: redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisSink{
		redis:      client,
		tracer:     otel.Tracer("dental.internal.convlog.redis"),
		ttl:        ttl,
		maxEntries: 200,
	}
}

func (s *RedisSink) Name() string { return "redis" }

func (s *RedisSink) Write(ctx context.Context, ex chatflow.Exchange) error {
	if ex.SessionID == "" {
		return errors.New("convlog: session id required")
	}
	data, err := json.Marshal(ex)
	if err != nil {
		return fmt.Errorf("convlog: marshal exchange: %w", err)
	}

	ctx, span := s.tracer.Start(ctx, "convlog.redis.append")
	defer span.End()

	key := redisKey(ex.SessionID)
	pipe := s.redis.TxPipeline()
	pipe.RPush(ctx, key, data)
	pipe.Expire(ctx, key, s.ttl)
	if s.maxEntries > 0 {
		pipe.LTrim(ctx, key, -s.maxEntries, -1)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		span.RecordError(err)
		return fmt.Errorf("convlog: append exchange: %w", err)
	}
	return nil
}

// List returns the logged exchanges of a session, oldest first.
func (s *RedisSink) List(ctx context.Context, sessionID string) ([]chatflow.Exchange, error) {
	ctx, span := s.tracer.Start(ctx, "convlog.redis.list")
	defer span.End()

	raw, err := s.redis.LRange(ctx, redisKey(sessionID), 0, -1).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []chatflow.Exchange{}, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("convlog: list exchanges: %w", err)
	}
	out := make([]chatflow.Exchange, 0, len(raw))
	for _, item := range raw {
		var ex chatflow.Exchange
		if err := json.Unmarshal([]byte(item), &ex); err != nil {
			span.RecordError(err)
			continue
		}
		out = append(out, ex)
	}
	return out, nil
}

func redisKey(sessionID string) string {
	return redisKeyPrefix + sessionID
}
