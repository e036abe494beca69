// internal/session/redis.go
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"marketapp/internal/models"
)

// RedisStore keeps the credential under one fixed key, for setups where
// the session should survive the local filesystem (shared kiosks,
// containerized runs). The blob layout is identical to FileStore's.
type RedisStore struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewRedisStore connects to redisURL and pings it before returning.
func NewRedisStore(redisURL, key string, ttl time.Duration) (*RedisStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &RedisStore{client: client, key: key, ttl: ttl}, nil
}

func (s *RedisStore) Load(ctx context.Context) (models.Credential, bool, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.Credential{}, false, nil
	}
	if err != nil {
		return models.Credential{}, false, err
	}

	var cred models.Credential
	if err := json.Unmarshal(data, &cred); err != nil || cred.Token == "" {
		_ = s.client.Del(ctx, s.key).Err()
		return models.Credential{}, false, nil
	}
	if _, err := DecodeClaims(cred.Token); err != nil {
		_ = s.client.Del(ctx, s.key).Err()
		return models.Credential{}, false, nil
	}
	return cred, true, nil
}

func (s *RedisStore) Save(ctx context.Context, cred models.Credential) error {
	data, err := json.Marshal(cred)
	if err != nil {
		return err
	}
	ttl := s.ttl
	if exp := Expiry(cred.Token); !exp.IsZero() {
		// Let the key die with the token.
		if until := time.Until(exp); until > 0 && (ttl <= 0 || until < ttl) {
			ttl = until
		}
	}
	return s.client.Set(ctx, s.key, data, ttl).Err()
}

func (s *RedisStore) Clear(ctx context.Context) error {
	err := s.client.Del(ctx, s.key).Err()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	return err
}

func (s *RedisStore) Close() error { return s.client.Close() }
