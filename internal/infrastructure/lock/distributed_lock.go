package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

var (
	ErrLockFailed  = errors.New("failed to acquire distributed lock")
	ErrLockExpired = errors.New("distributed lock expired")
)

// DistributedLock is a redis SETNX lock with an expiry. The value carries a
// holder token so Unlock never deletes a lock another holder reacquired
// after expiry.
type DistributedLock struct {
	client     *redis.Client
	key        string
	value      string
	expiration time.Duration
}

func NewDistributedLock(client *redis.Client, key, value string, expiration time.Duration) *DistributedLock {
	return &DistributedLock{
		client:     client,
		key:        key,
		value:      value,
		expiration: expiration,
	}
}

// TryLock attempts a single non-blocking acquire.
func (l *DistributedLock) TryLock(ctx context.Context) (bool, error) {
	// SET key value NX EX: the expiry releases the lock if the holder dies.
	success, err := l.client.SetNX(ctx, l.key, l.value, l.expiration).Result()
	if err != nil {
		return false, err
	}
	return success, nil
}

// Lock retries TryLock up to maxRetries times with retryInterval between
// attempts.
func (l *DistributedLock) Lock(ctx context.Context, retryInterval time.Duration, maxRetries int) error {
	for i := 0; i < maxRetries; i++ {
		success, err := l.TryLock(ctx)
		if err != nil {
			return err
		}
		if success {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryInterval):
		}
	}
	return ErrLockFailed
}

// Unlock releases the lock only if this instance still holds it. The
// check-and-delete must be atomic, hence the Lua script.
func (l *DistributedLock) Unlock(ctx context.Context) error {
	script := `
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("DEL", KEYS[1])
		else
			return 0
		end
	`
	_, err := l.client.Eval(ctx, script, []string{l.key}, l.value).Result()
	return err
}

// NewWithdrawalLock serializes withdrawal creation per user. Different
// users proceed in parallel; a duplicate submit from the same user waits
// and then sees the already-deducted balance.
func NewWithdrawalLock(client *redis.Client, userID int64, token string) *DistributedLock {
	key := fmt.Sprintf("withdrawal:lock:user:%d", userID)
	return NewDistributedLock(client, key, token, 30*time.Second)
}

// NewCallbackLock serializes gateway callback processing per transaction
// code, so a replayed IPN cannot race the first delivery.
func NewCallbackLock(client *redis.Client, code, token string) *DistributedLock {
	key := fmt.Sprintf("payment:lock:txn:%s", code)
	return NewDistributedLock(client, key, token, 30*time.Second)
}

// NewPurchaseLock serializes document purchases per user and document.
func NewPurchaseLock(client *redis.Client, userID, documentID int64, token string) *DistributedLock {
	key := fmt.Sprintf("purchase:lock:user:%d:doc:%d", userID, documentID)
	return NewDistributedLock(client, key, token, 30*time.Second)
}
