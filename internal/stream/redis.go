package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis read defaults used by the chat bridge.
const (
	DefaultBlock = 5 * time.Second
	DefaultCount = 10
)

// RedisOptions configures the Redis Streams transport.
type RedisOptions struct {
	Addr     string
	Username string
	Password string

	Requests string
	Results  string
	Block    time.Duration
	Count    int64

	// Cursor, when set, restores and persists the last committed entry id.
	Cursor CursorStore
}

// NewRedisClient builds a client from opts.
func NewRedisClient(opts RedisOptions) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Username: opts.Username,
		Password: opts.Password,
	})
}

// RedisSource reads requests with XREAD, starting after the last committed id.
type RedisSource struct {
	client   *redis.Client
	stream   string
	block    time.Duration
	count    int64
	cursor   CursorStore
	lastRead string
	pending  []*Request
}

// NewRedisSource creates a source on opts.Requests. The start id is "0" unless
// opts.Cursor holds a committed position.
func NewRedisSource(ctx context.Context, client *redis.Client, opts RedisOptions) (*RedisSource, error) {
	s := &RedisSource{
		client:   client,
		stream:   opts.Requests,
		block:    opts.Block,
		count:    opts.Count,
		cursor:   opts.Cursor,
		lastRead: "0",
	}
	if s.stream == "" {
		s.stream = DefaultRequestsStream
	}
	if s.block <= 0 {
		s.block = DefaultBlock
	}
	if s.count <= 0 {
		s.count = DefaultCount
	}
	if s.cursor != nil {
		id, err := s.cursor.Cursor(ctx, s.stream)
		if err != nil {
			return nil, fmt.Errorf("load cursor for %s: %w", s.stream, err)
		}
		if id != "" {
			s.lastRead = id
		}
	}
	slog.Info("Redis source ready", "stream", s.stream, "start_id", s.lastRead)
	return s, nil
}

// Next returns the next entry after the last one read, blocking in XREAD
// windows until one arrives or ctx is done.
func (s *RedisSource) Next(ctx context.Context) (*Request, error) {
	for len(s.pending) == 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := s.read(ctx); err != nil {
			return nil, err
		}
	}
	req := s.pending[0]
	s.pending = s.pending[1:]
	return req, nil
}

func (s *RedisSource) read(ctx context.Context) error {
	streams, err := s.client.XRead(ctx, &redis.XReadArgs{
		Streams: []string{s.stream, s.lastRead},
		Count:   s.count,
		Block:   s.block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("xread %s: %w", s.stream, err)
	}
	for _, st := range streams {
		for _, msg := range st.Messages {
			s.pending = append(s.pending, RequestFromValues(msg.ID, msg.Values))
			s.lastRead = msg.ID
		}
	}
	return nil
}

// Commit persists req.ID as the stream cursor when a CursorStore is configured.
func (s *RedisSource) Commit(ctx context.Context, req *Request) error {
	if s.cursor == nil || req.ID == "" {
		return nil
	}
	if err := s.cursor.SaveCursor(ctx, s.stream, req.ID); err != nil {
		return fmt.Errorf("save cursor %s: %w", req.ID, err)
	}
	return nil
}

// Close is a no-op; the shared client is closed by its owner.
func (s *RedisSource) Close() error { return nil }

// RedisSink appends results with XADD.
type RedisSink struct {
	client *redis.Client
	stream string
}

// NewRedisSink creates a sink on opts.Results.
func NewRedisSink(client *redis.Client, opts RedisOptions) *RedisSink {
	stream := opts.Results
	if stream == "" {
		stream = DefaultResultsStream
	}
	return &RedisSink{client: client, stream: stream}
}

// Publish appends res to the results stream.
func (s *RedisSink) Publish(ctx context.Context, res *Result) error {
	id, err := s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		Values: res.Values(),
	}).Result()
	if err != nil {
		return fmt.Errorf("xadd %s: %w", s.stream, err)
	}
	slog.Debug("Result published", "stream", s.stream, "id", id, "request_id", res.RequestID)
	return nil
}

// Close is a no-op; the shared client is closed by its owner.
func (s *RedisSink) Close() error { return nil }
