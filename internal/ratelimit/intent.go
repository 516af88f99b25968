package ratelimit

import (
	"context"
	"fmt"
	"strings"

	"github.com/cvforge/cvforge/internal/config"
	redis "github.com/redis/go-redis/v9"
)

const keyIntentIdentity = "intent:identity:%s"

// One preference every few seconds with a small burst is plenty for a human
// going through checkout.
const (
	intentRate  = 0.2
	intentBurst = 5
)

// IntentLimiter caps how fast one identity can mint checkout preferences.
type IntentLimiter struct {
	enabled bool
	bucket  *TokenBucket
}

func NewIntentLimiter(cfg config.Config) *IntentLimiter {
	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		return &IntentLimiter{}
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	return &IntentLimiter{
		enabled: true,
		bucket:  NewTokenBucket(client),
	}
}

func (l *IntentLimiter) Enabled() bool {
	return l != nil && l.enabled
}

// Allow reports whether the identity may create another checkout preference
// right now.
func (l *IntentLimiter) Allow(ctx context.Context, identityKey string) (bool, error) {
	if !l.Enabled() {
		return true, nil
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyIntentIdentity, identityKey), intentRate, intentBurst)
}
