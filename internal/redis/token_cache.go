package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"
)

type Redis struct {
	Client *redis.Client
}

func NewRedis(client *redis.Client) *Redis {
	return &Redis{Client: client}
}

const mailTokenKey = "mail_provider:token"

// CachedToken is the mail provider's bearer token with its expiry, held in
// Redis so every instance shares one token instead of ambient global state.
type CachedToken struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// GetMailToken returns the cached token, or ok=false when absent or expired.
func (r *Redis) GetMailToken(ctx context.Context) (CachedToken, bool, error) {
	raw, err := r.Client.Get(ctx, mailTokenKey).Result()
	if err == redis.Nil {
		return CachedToken{}, false, nil
	}
	if err != nil {
		return CachedToken{}, false, err
	}

	var tok CachedToken
	if err := json.Unmarshal([]byte(raw), &tok); err != nil {
		return CachedToken{}, false, nil
	}
	if time.Now().After(tok.ExpiresAt) {
		return CachedToken{}, false, nil
	}
	return tok, true, nil
}

// SetMailToken stores the token with a TTL matching its expiry.
func (r *Redis) SetMailToken(ctx context.Context, tok CachedToken) error {
	raw, err := json.Marshal(tok)
	if err != nil {
		return err
	}

	ttl := time.Until(tok.ExpiresAt)
	if ttl <= 0 {
		return nil
	}
	return r.Client.Set(ctx, mailTokenKey, raw, ttl).Err()
}

// InvalidateMailToken drops the cached token, forcing a refresh on next use.
func (r *Redis) InvalidateMailToken(ctx context.Context) error {
	return r.Client.Del(ctx, mailTokenKey).Err()
}
