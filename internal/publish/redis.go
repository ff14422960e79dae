package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/shanehull/bullionscraper/internal/types"
)

// RedisOption configures RedisSink.
type RedisOption func(*RedisConfig)

type RedisConfig struct {
	Addr        string
	Password    string
	DB          int
	Prefix      string
	HistoryLen  int64
	TTL         time.Duration
	PingTimeout time.Duration
}

func WithRedisAddr(addr string) RedisOption {
	return func(c *RedisConfig) { c.Addr = addr }
}

func WithRedisPassword(password string) RedisOption {
	return func(c *RedisConfig) { c.Password = password }
}

func WithRedisDB(db int) RedisOption {
	return func(c *RedisConfig) { c.DB = db }
}

// WithRedisPrefix sets the key prefix.
func WithRedisPrefix(prefix string) RedisOption {
	return func(c *RedisConfig) { c.Prefix = prefix }
}

// WithRedisHistory caps the history list at n snapshots.
func WithRedisHistory(n int64) RedisOption {
	return func(c *RedisConfig) { c.HistoryLen = n }
}

// WithRedisTTL expires the latest key after ttl. Zero keeps it forever.
func WithRedisTTL(ttl time.Duration) RedisOption {
	return func(c *RedisConfig) { c.TTL = ttl }
}

// RedisSink stores the latest snapshot under <prefix>:latest and prepends it to a capped
// <prefix>:history list.
type RedisSink struct {
	client     *redis.Client
	prefix     string
	historyLen int64
	ttl        time.Duration
}

func NewRedisSink(opts ...RedisOption) (*RedisSink, error) {
	cfg := &RedisConfig{
		Addr:        "localhost:6379",
		Prefix:      "bullion",
		HistoryLen:  500,
		PingTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.PingTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return newRedisSink(client, cfg), nil
}

func newRedisSink(client *redis.Client, cfg *RedisConfig) *RedisSink {
	return &RedisSink{
		client:     client,
		prefix:     cfg.Prefix,
		historyLen: cfg.HistoryLen,
		ttl:        cfg.TTL,
	}
}

func (r *RedisSink) Name() string { return "redis" }
func (r *RedisSink) Close() error { return r.client.Close() }

func (r *RedisSink) Write(ctx context.Context, s types.Snapshot) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	latest, history := r.keys()
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, latest, data, r.ttl)
	pipe.LPush(ctx, history, data)
	pipe.LTrim(ctx, history, 0, r.historyLen-1)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis write: %w", err)
	}
	return nil
}

func (r *RedisSink) keys() (latest, history string) {
	return r.prefix + ":latest", r.prefix + ":history"
}
