package ingestion

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Locker serializes event handling per user. Events for different users
// never wait on each other.
type Locker interface {
	Lock(ctx context.Context, userID int64) (unlock func(), err error)
}

// KeyedMutex is an in-process Locker
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[int64]*userLock
}

type userLock struct {
	sem  chan struct{}
	refs int
}

// NewKeyedMutex creates an empty per-user mutex set
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[int64]*userLock)}
}

// Lock blocks until the user's slot is free or ctx is done
func (k *KeyedMutex) Lock(ctx context.Context, userID int64) (func(), error) {
	k.mu.Lock()
	l, ok := k.locks[userID]
	if !ok {
		l = &userLock{sem: make(chan struct{}, 1)}
		k.locks[userID] = l
	}
	l.refs++
	k.mu.Unlock()

	select {
	case l.sem <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-l.sem
				k.release(userID, l)
			})
		}, nil
	case <-ctx.Done():
		k.release(userID, l)
		return nil, ctx.Err()
	}
}

func (k *KeyedMutex) release(userID int64, l *userLock) {
	k.mu.Lock()
	defer k.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(k.locks, userID)
	}
}

// size reports how many users currently hold or wait for a lock
func (k *KeyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}

// DistributedLockClient is the subset of the Redis service used for locking
type DistributedLockClient interface {
	AcquireLock(ctx context.Context, lockKey string, lockValue string, expiration time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, lockKey string, lockValue string) (bool, error)
}

// RedisLocker serializes a user's events across engine instances
type RedisLocker struct {
	client     DistributedLockClient
	ttl        time.Duration
	retryEvery time.Duration
}

// NewRedisLocker creates a Redis-backed Locker. ttl bounds how long a crashed
// holder can block the user.
func NewRedisLocker(client DistributedLockClient, ttl time.Duration) *RedisLocker {
	return &RedisLocker{client: client, ttl: ttl, retryEvery: 50 * time.Millisecond}
}

// Lock spins on SET NX until acquired or ctx is done
func (r *RedisLocker) Lock(ctx context.Context, userID int64) (func(), error) {
	key := "djmovie:ingest:lock:" + sessionKey(userID)
	token := uuid.New().String()

	for {
		ok, err := r.client.AcquireLock(ctx, key, token, r.ttl)
		if err != nil {
			return nil, fmt.Errorf("failed to acquire session lock: %w", err)
		}
		if ok {
			return func() {
				// Release with a fresh context so a cancelled request still unlocks
				releaseCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
				defer cancel()
				if _, err := r.client.ReleaseLock(releaseCtx, key, token); err != nil {
					log.Printf("⚠️ [SESSIONS] Failed to release lock for user %d: %v", userID, err)
				}
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(r.retryEvery):
		}
	}
}
