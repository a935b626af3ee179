package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestKeyedLocker_SerializesSameKey(t *testing.T) {
	var k KeyedLocker
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := k.Lock(context.Background(), "chat")
			if err != nil {
				t.Errorf("Lock: %v", err)
				return
			}
			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			inside--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()
	if maxSeen != 1 {
		t.Fatalf("expected at most one holder, saw %d", maxSeen)
	}
	if len(k.locks) != 0 {
		t.Fatalf("lock table should be empty, has %d entries", len(k.locks))
	}
}

func TestKeyedLocker_DistinctKeysDoNotBlock(t *testing.T) {
	var k KeyedLocker
	unlockA, err := k.Lock(context.Background(), "a")
	if err != nil {
		t.Fatalf("Lock a: %v", err)
	}
	defer unlockA()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	unlockB, err := k.Lock(ctx, "b")
	if err != nil {
		t.Fatalf("Lock b blocked by a: %v", err)
	}
	unlockB()
}

func TestKeyedLocker_WaitHonoursContext(t *testing.T) {
	var k KeyedLocker
	unlock, _ := k.Lock(context.Background(), "x")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := k.Lock(ctx, "x"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v; want DeadlineExceeded", err)
	}
	unlock()
	unlock() // second call is a no-op

	again, err := k.Lock(context.Background(), "x")
	if err != nil {
		t.Fatalf("Lock after release: %v", err)
	}
	again()
	if len(k.locks) != 0 {
		t.Fatalf("lock table should be empty, has %d entries", len(k.locks))
	}
}

func TestKeyedLocker_CanceledBeforeLock(t *testing.T) {
	var k KeyedLocker
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := k.Lock(ctx, "x"); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v; want Canceled", err)
	}
}
