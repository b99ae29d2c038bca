package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/loadpass/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	keyCheckoutUser = "loadpass:checkout:user:%s"
	keyPaymentLock  = "loadpass:payment:lock:%s:%s"
)

// Limiter throttles checkout link creation per user and serializes payment processing.
// A nil Limiter allows everything.
type Limiter struct {
	enabled bool

	bucket *TokenBucket
	locks  *paymentLock

	checkoutRate  float64
	checkoutBurst int
}

func NewLimiter(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) (*Limiter, error) {
	limitCfg := cfg.RateLimit
	if !limitCfg.Enabled {
		return nil, nil
	}

	addr := strings.TrimSpace(limitCfg.RedisAddr)
	if addr == "" {
		return nil, errors.New("rate limit redis addr is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(limitCfg.RedisPassword),
		DB:       limitCfg.RedisDB,
	})

	limiter, err := newLimiter(client, limitCfg)
	if err != nil {
		_ = client.Close()
		return nil, err
	}

	log = log.Named("ratelimit")
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := client.Ping(ctx).Err(); err != nil {
				return fmt.Errorf("rate limit redis ping: %w", err)
			}
			log.Info("rate limiter enabled", zap.String("redis_addr", addr))
			return nil
		},
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return limiter, nil
}

func newLimiter(client redis.Cmdable, cfg config.RateLimitConfig) (*Limiter, error) {
	if cfg.CheckoutRate <= 0 || cfg.CheckoutBurst <= 0 {
		return nil, errors.New("checkout rate limit must be positive")
	}
	lockTTL := time.Duration(cfg.WebhookLockTTLSeconds) * time.Second
	if lockTTL <= 0 {
		return nil, errors.New("payment lock ttl must be positive")
	}

	return &Limiter{
		enabled:       true,
		bucket:        NewTokenBucket(client),
		locks:         newPaymentLock(client, lockTTL),
		checkoutRate:  cfg.CheckoutRate,
		checkoutBurst: cfg.CheckoutBurst,
	}, nil
}

func (l *Limiter) Enabled() bool {
	return l != nil && l.enabled
}

func (l *Limiter) AllowCheckout(ctx context.Context, userID string) (*RateLimitResult, error) {
	if !l.Enabled() {
		return &RateLimitResult{Allowed: true}, nil
	}
	key := fmt.Sprintf(keyCheckoutUser, strings.TrimSpace(userID))
	return l.bucket.Allow(ctx, key, l.checkoutRate, l.checkoutBurst)
}

// TryLockPayment returns ok=true with an empty token when locking is disabled.
func (l *Limiter) TryLockPayment(ctx context.Context, provider, paymentID string) (string, bool, error) {
	if !l.Enabled() {
		return "", true, nil
	}
	return l.locks.acquire(ctx, provider, paymentID)
}

func (l *Limiter) ReleasePayment(ctx context.Context, provider, paymentID, token string) error {
	if !l.Enabled() {
		return nil
	}
	return l.locks.release(ctx, provider, paymentID, token)
}
