// Package session provides refresh-token storage backends.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// tokenData is the value stored per refresh token.
type tokenData struct {
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
}

// RedisStore implements refresh token storage using Redis.
type RedisStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStore(redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &RedisStore{client: client, prefix: "refresh:"}, nil
}

func (s *RedisStore) key(tokenHash string) string {
	return s.prefix + tokenHash
}

// SaveRefreshSession stores a refresh token hash with expiration.
func (s *RedisStore) SaveRefreshSession(ctx context.Context, tokenHash, username string, expiresAt time.Time) error {
	data, err := json.Marshal(tokenData{Username: username, CreatedAt: time.Now()})
	if err != nil {
		return fmt.Errorf("marshal token data: %w", err)
	}

	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}

	if err := s.client.Set(ctx, s.key(tokenHash), data, ttl).Err(); err != nil {
		return fmt.Errorf("save refresh token: %w", err)
	}
	return nil
}

// LookupRefreshSession resolves a refresh token hash to a username.
func (s *RedisStore) LookupRefreshSession(ctx context.Context, tokenHash string) (string, error) {
	raw, err := s.client.Get(ctx, s.key(tokenHash)).Result()
	if err == redis.Nil {
		return "", fmt.Errorf("token not found or expired")
	}
	if err != nil {
		return "", fmt.Errorf("lookup refresh token: %w", err)
	}

	var data tokenData
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return "", fmt.Errorf("unmarshal token data: %w", err)
	}
	return data.Username, nil
}

// RevokeRefreshSession deletes a refresh token.
func (s *RedisStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	if err := s.client.Del(ctx, s.key(tokenHash)).Err(); err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
