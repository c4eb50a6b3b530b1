// Package session provides the Redis backend for server-side login sessions.
// When Redis is not configured the Postgres store's sessions table is used
// instead; both satisfy the same interface in the app layer.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"pecel/api/internal/store"
)

// ErrNotFound marks a session that is missing, expired, or revoked.
var ErrNotFound = errors.New("session not found")

// record is the JSON payload stored per session token hash.
type record struct {
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

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

	return &RedisStore{client: client, prefix: "sess:"}, nil
}

func (s *RedisStore) key(tokenHash string) string {
	return s.prefix + tokenHash
}

// SaveSession stores the session under the token hash with a TTL matching the
// token's expiry.
func (s *RedisStore) SaveSession(ctx context.Context, tokenHash string, user store.User, expiresAt time.Time) error {
	payload, err := json.Marshal(record{
		UserID:    user.ID,
		Username:  user.Username,
		Role:      user.Role,
		CreatedAt: time.Now(),
	})
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}

	if err := s.client.Set(ctx, s.key(tokenHash), payload, ttl).Err(); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// LookupSession returns the user bound to a live session, or an error if the
// session is missing, expired, or revoked.
func (s *RedisStore) LookupSession(ctx context.Context, tokenHash string) (store.User, error) {
	payload, err := s.client.Get(ctx, s.key(tokenHash)).Result()
	if err == redis.Nil {
		return store.User{}, ErrNotFound
	}
	if err != nil {
		return store.User{}, fmt.Errorf("lookup session: %w", err)
	}

	var data record
	if err := json.Unmarshal([]byte(payload), &data); err != nil {
		return store.User{}, fmt.Errorf("unmarshal session: %w", err)
	}

	return store.User{ID: data.UserID, Username: data.Username, Role: data.Role}, nil
}

// RevokeSession deletes the session; revoking an unknown token is not an
// error.
func (s *RedisStore) RevokeSession(ctx context.Context, tokenHash string) error {
	if err := s.client.Del(ctx, s.key(tokenHash)).Err(); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
