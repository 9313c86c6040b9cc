package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/intervo-dev/intervo-go-api/internal/models"
)

// SessionCache keeps hot sessions in redis so the snapshot table is only hit
// on a cache miss. Misses are reported as ErrSessionNotFound.
type SessionCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSessionCache constructs a redis backed session cache.
func NewSessionCache(client *redis.Client, ttl time.Duration) *SessionCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &SessionCache{client: client, ttl: ttl}
}

func sessionKey(id string) string {
	return fmt.Sprintf("session:%s", id)
}

// Put stores the session snapshot under its id.
func (c *SessionCache) Put(ctx context.Context, session models.Session) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return err
	}

	return c.client.Set(ctx, sessionKey(session.ID), payload, c.ttl).Err()
}

// Get retrieves a cached session by id.
func (c *SessionCache) Get(ctx context.Context, id string) (models.Session, error) {
	payload, err := c.client.Get(ctx, sessionKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return models.Session{}, ErrSessionNotFound
		}
		return models.Session{}, err
	}

	var session models.Session
	if err := json.Unmarshal(payload, &session); err != nil {
		return models.Session{}, err
	}
	return session, nil
}

// Drop evicts a session, typically once it is archived.
func (c *SessionCache) Drop(ctx context.Context, id string) error {
	return c.client.Del(ctx, sessionKey(id)).Err()
}
