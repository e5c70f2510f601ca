package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const revokedPrefix = "revoked_token:"

// Revocations keeps revoked token IDs in Redis until the token would have
// expired anyway. Gate devices reported lost are cut off this way.
type Revocations struct {
	Client *redis.Client
}

func NewRevocations(client *redis.Client) *Revocations {
	return &Revocations{Client: client}
}

func (r *Revocations) Revoke(ctx context.Context, tokenID string, until time.Time) error {
	ttl := time.Until(until)
	if ttl <= 0 {
		return nil
	}
	if err := r.Client.Set(ctx, revokedPrefix+tokenID, until.UTC().Format(time.RFC3339), ttl).Err(); err != nil {
		return fmt.Errorf("failed to store revocation in Redis: %w", err)
	}
	return nil
}

func (r *Revocations) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	if tokenID == "" {
		return false, nil
	}
	n, err := r.Client.Exists(ctx, revokedPrefix+tokenID).Result()
	if err != nil {
		return false, fmt.Errorf("failed to read revocation from Redis: %w", err)
	}
	return n > 0, nil
}
