package ingestion

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestKeyedMutex_SerializesSameUser(t *testing.T) {
	k := NewKeyedMutex()
	ctx := context.Background()

	var inside, maxInside atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := k.Lock(ctx, 1)
			if err != nil {
				t.Errorf("Lock failed: %v", err)
				return
			}
			n := inside.Add(1)
			for {
				m := maxInside.Load()
				if n <= m || maxInside.CompareAndSwap(m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			inside.Add(-1)
			unlock()
		}()
	}
	wg.Wait()

	if maxInside.Load() != 1 {
		t.Errorf("Expected at most one holder, saw %d", maxInside.Load())
	}
	if k.size() != 0 {
		t.Errorf("Expected lock table cleaned up, got %d entries", k.size())
	}
}

func TestKeyedMutex_DifferentUsersDoNotBlock(t *testing.T) {
	k := NewKeyedMutex()
	ctx := context.Background()

	unlockA, _ := k.Lock(ctx, 1)
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlockB, err := k.Lock(ctx, 2)
		if err == nil {
			unlockB()
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("User 2 blocked on user 1's lock")
	}
}

func TestKeyedMutex_ContextCancel(t *testing.T) {
	k := NewKeyedMutex()
	unlock, _ := k.Lock(context.Background(), 1)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := k.Lock(ctx, 1); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded, got %v", err)
	}

	unlock()
	unlock() // second call is a no-op
	if k.size() != 0 {
		t.Errorf("Expected empty lock table, got %d", k.size())
	}
}
