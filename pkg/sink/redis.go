package sink

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/herlein/gowmbus/pkg/config"
)

// redisClient is the part of redis.Client the sink uses
type redisClient interface {
	HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	Close() error
}

// Redis stores the latest values of a meter in the hash <prefix>:<meter id>.
// Every write refreshes the hash TTL when one is configured.
type Redis struct {
	client redisClient
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

// NewRedis connects to the server and checks it answers
func NewRedis(cfg config.RedisConfig) (*Redis, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return newRedis(rdb, cfg), nil
}

func newRedis(client redisClient, cfg config.RedisConfig) *Redis {
	return &Redis{
		client: client,
		prefix: cfg.KeyPrefix,
		ttl:    cfg.TTL,
		now:    time.Now,
	}
}

func (s *Redis) Name() string { return NameRedis }

func (s *Redis) key(meterID string) string {
	if s.prefix == "" {
		return meterID
	}
	return s.prefix + ":" + meterID
}

func (s *Redis) store(ctx context.Context, meterID, name, value string) error {
	key := s.key(meterID)
	if err := s.client.HSet(ctx, key, name, value, "timestamp", s.now().UTC().Format(time.RFC3339)).Err(); err != nil {
		return fmt.Errorf("redis hset %s: %w", key, err)
	}
	if s.ttl > 0 {
		if err := s.client.Expire(ctx, key, s.ttl).Err(); err != nil {
			return fmt.Errorf("redis expire %s: %w", key, err)
		}
	}
	return nil
}

func (s *Redis) PublishNumeric(ctx context.Context, meterID, field, unit string, value float64) error {
	return s.store(ctx, meterID, valueName(field, unit), formatFloat(value))
}

func (s *Redis) PublishText(ctx context.Context, meterID, field, value string) error {
	return s.store(ctx, meterID, field, value)
}

// Close closes the connection pool
func (s *Redis) Close() error {
	return s.client.Close()
}
