package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/providentiaww/trilix-oauth/internal/oauth"
)

const codeKeyPrefix = "oauth:code:"

// RedisClient is the subset of *redis.Client used by RedisCodeStore.
type RedisClient interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	GetDel(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Ping(ctx context.Context) *redis.StatusCmd
	Close() error
}

// RedisCodeStore keeps authorization codes in Redis with a TTL matching the
// code's remaining validity. Consuming a code is a single GETDEL.
type RedisCodeStore struct {
	client RedisClient
	now    func() time.Time
	logger zerolog.Logger
}

var _ oauth.CodeStore = (*RedisCodeStore)(nil)

// OpenRedis parses redisURL, connects and pings.
func OpenRedis(ctx context.Context, redisURL string, logger zerolog.Logger) (*RedisCodeStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	logger.Info().Str("addr", opts.Addr).Msg("connected to redis")
	return NewRedisCodeStore(client, logger), nil
}

// NewRedisCodeStore wraps a Redis client.
func NewRedisCodeStore(client RedisClient, logger zerolog.Logger) *RedisCodeStore {
	return &RedisCodeStore{client: client, now: time.Now, logger: logger}
}

func (s *RedisCodeStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisCodeStore) Close() error {
	return s.client.Close()
}

// CreateCode stores the code only if the key is free.
func (s *RedisCodeStore) CreateCode(ctx context.Context, code *oauth.AuthorizationCode) error {
	payload, err := json.Marshal(code)
	if err != nil {
		return fmt.Errorf("encode authorization code: %w", err)
	}
	ok, err := s.client.SetNX(ctx, codeKeyPrefix+code.Code, payload, s.ttl(code)).Result()
	if err != nil {
		return oauth.StorageError(err, "create authorization code")
	}
	if !ok {
		return fmt.Errorf("authorization code: %w", oauth.ErrDuplicate)
	}
	return nil
}

func (s *RedisCodeStore) FindCode(ctx context.Context, code string) (*oauth.AuthorizationCode, error) {
	val, err := s.client.Get(ctx, codeKeyPrefix+code).Result()
	return decodeCode(val, err, "find authorization code")
}

func (s *RedisCodeStore) ConsumeCode(ctx context.Context, code string) (*oauth.AuthorizationCode, error) {
	val, err := s.client.GetDel(ctx, codeKeyPrefix+code).Result()
	return decodeCode(val, err, "consume authorization code")
}

func (s *RedisCodeStore) DeleteCode(ctx context.Context, code string) error {
	if err := s.client.Del(ctx, codeKeyPrefix+code).Err(); err != nil {
		return oauth.StorageError(err, "delete authorization code")
	}
	return nil
}

// ttl keeps the key alive through the last valid second of the code.
func (s *RedisCodeStore) ttl(code *oauth.AuthorizationCode) time.Duration {
	remaining := code.AuthTime + oauth.CodeLifetime + 1 - s.now().Unix()
	if remaining < 1 {
		remaining = 1
	}
	return time.Duration(remaining) * time.Second
}

func decodeCode(val string, err error, op string) (*oauth.AuthorizationCode, error) {
	if errors.Is(err, redis.Nil) {
		return nil, oauth.ErrNotFound
	}
	if err != nil {
		return nil, oauth.StorageError(err, op)
	}
	var code oauth.AuthorizationCode
	if err := json.Unmarshal([]byte(val), &code); err != nil {
		return nil, oauth.StorageError(err, op)
	}
	return &code, nil
}
