package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/catering/internal/config"
)

const keyDeliveryUser = "notification:delivery:user:%s"

// DeliveryLimiter throttles notification reads and mark-read calls per user.
type DeliveryLimiter struct {
	enabled bool
	bucket  *TokenBucket
	rate    float64
	burst   int
}

func NewDeliveryLimiter(cfg config.Config, client *redis.Client) (*DeliveryLimiter, error) {
	limitCfg := cfg.RateLimit
	if !limitCfg.Enabled {
		return nil, nil
	}
	if client == nil {
		return nil, errors.New("rate limit requires REDIS_ADDR")
	}
	if limitCfg.Rate <= 0 || limitCfg.Burst <= 0 {
		return nil, errors.New("notification rate limit must be positive")
	}

	return &DeliveryLimiter{
		enabled: true,
		bucket:  NewTokenBucket(client),
		rate:    limitCfg.Rate,
		burst:   limitCfg.Burst,
	}, nil
}

func (l *DeliveryLimiter) Enabled() bool {
	return l != nil && l.enabled
}

func (l *DeliveryLimiter) AllowUser(ctx context.Context, userID string) (*RateLimitResult, error) {
	if !l.Enabled() {
		return &RateLimitResult{Allowed: true}, nil
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return &RateLimitResult{Allowed: false}, errors.New("rate limiter user is empty")
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyDeliveryUser, userID), l.rate, l.burst)
}
