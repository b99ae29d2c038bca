package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

// compare-and-delete so an expired holder cannot release a lock taken over by another delivery.
const paymentUnlockScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

var (
	ErrEmptyPaymentID = errors.New("payment_lock_empty_payment_id")
	ErrLockNotReady   = errors.New("payment_lock_not_configured")
)

// paymentLock is a per-payment SET NX mutex shared by every replica.
type paymentLock struct {
	client redis.Cmdable
	unlock *redis.Script
	ttl    time.Duration
}

func newPaymentLock(client redis.Cmdable, ttl time.Duration) *paymentLock {
	return &paymentLock{
		client: client,
		unlock: redis.NewScript(paymentUnlockScript),
		ttl:    ttl,
	}
}

func paymentLockKey(provider, paymentID string) string {
	return fmt.Sprintf(keyPaymentLock, strings.ToLower(strings.TrimSpace(provider)), strings.TrimSpace(paymentID))
}

func (l *paymentLock) acquire(ctx context.Context, provider, paymentID string) (string, bool, error) {
	if l == nil || l.client == nil {
		return "", false, ErrLockNotReady
	}
	if strings.TrimSpace(paymentID) == "" {
		return "", false, ErrEmptyPaymentID
	}

	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, paymentLockKey(provider, paymentID), token, l.ttl).Result()
	if err != nil {
		return "", false, err
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

func (l *paymentLock) release(ctx context.Context, provider, paymentID, token string) error {
	if l == nil || l.client == nil || token == "" {
		return nil
	}
	return l.unlock.Run(ctx, l.client, []string{paymentLockKey(provider, paymentID)}, token).Err()
}
