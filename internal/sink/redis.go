package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jsamuelsen/go-scope-hub/internal/event"
)

// Default Redis sink settings.
const (
	// DefaultRedisStream is the stream events are appended to.
	DefaultRedisStream = "scopehub:events"

	// DefaultRedisMaxLen caps the stream length (approximate trimming).
	DefaultRedisMaxLen = 10000

	// DefaultRedisTimeout bounds a single XADD.
	DefaultRedisTimeout = 2 * time.Second
)

// RedisConfig configures the Redis stream sink.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Stream   string
	MaxLen   int64
	Timeout  time.Duration
	Logger   *slog.Logger
}

// Redis appends events to a Redis stream as JSON.
type Redis struct {
	client  *redis.Client
	stream  string
	maxLen  int64
	timeout time.Duration
	logger  *slog.Logger
	closed  atomic.Bool
}

// NewRedis creates a Redis stream sink. The connection is established lazily.
func NewRedis(cfg RedisConfig) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	return newRedisWithClient(client, cfg)
}

func newRedisWithClient(client *redis.Client, cfg RedisConfig) *Redis {
	if cfg.Stream == "" {
		cfg.Stream = DefaultRedisStream
	}

	if cfg.MaxLen <= 0 {
		cfg.MaxLen = DefaultRedisMaxLen
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultRedisTimeout
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Redis{
		client:  client,
		stream:  cfg.Stream,
		maxLen:  cfg.MaxLen,
		timeout: cfg.Timeout,
		logger:  logger,
	}
}

// Name returns "redis".
func (r *Redis) Name() string {
	return "redis"
}

// Capture appends ev to the stream.
func (r *Redis) Capture(ctx context.Context, ev *event.Event) error {
	if r.closed.Load() {
		return event.NewUnavailableError(r.Name(), "closed")
	}

	args, err := r.xaddArgs(ev)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	id, err := r.client.XAdd(ctx, args).Result()
	if err != nil {
		return fmt.Errorf("%w: %w", event.NewUnavailableError(r.Name(), "xadd failed"), err)
	}

	r.logger.Debug("event appended to stream",
		slog.String("stream", r.stream),
		slog.String("entry_id", id),
		slog.String("event_id", ev.ID),
	)

	return nil
}

func (r *Redis) xaddArgs(ev *event.Event) (*redis.XAddArgs, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("encoding event %s: %w", ev.ID, err)
	}

	return &redis.XAddArgs{
		Stream: r.stream,
		MaxLen: r.maxLen,
		Approx: true,
		Values: map[string]any{
			"event_id": ev.ID,
			"level":    string(ev.Level),
			"payload":  payload,
		},
	}, nil
}

// Flush is a no-op; XADD is synchronous.
func (r *Redis) Flush(context.Context) error {
	return nil
}

// Close closes the Redis client.
func (r *Redis) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}

	return r.client.Close()
}

// Check pings Redis. It implements ports.HealthChecker.
func (r *Redis) Check(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}

	return nil
}
