package spinlock

import (
	"sync"
	"testing"
)

var _ sync.Locker = (*SpinLock)(nil)

func TestMutualExclusion(t *testing.T) {
	var l SpinLock
	counter := 0
	const workers, iterations = 8, 10000
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < iterations; i++ {
				l.Lock()
				counter++
				l.Unlock()
			}
		}()
	}
	wg.Wait()
	if counter != workers*iterations {
		t.Fatalf("counter = %d, want %d", counter, workers*iterations)
	}
}

func TestTryLock(t *testing.T) {
	var l SpinLock
	if !l.TryLock() {
		t.Fatalf("TryLock failed on a free lock")
	}
	if l.TryLock() {
		t.Fatalf("TryLock succeeded on a held lock")
	}
	l.Unlock()
	if !l.TryLock() {
		t.Fatalf("TryLock failed after Unlock")
	}
	l.Unlock()
}

func TestUnlockOfUnlocked(t *testing.T) {
	defer func() {
		if recover() != "spinlock: unlock of unlocked lock" {
			t.Fatalf("Unlock of an unlocked lock did not panic")
		}
	}()
	var l SpinLock
	l.Unlock()
}
