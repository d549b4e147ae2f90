// Package spinlock provides a mutual exclusion lock for short, latency
// sensitive critical sections.
package spinlock

import (
	"runtime"
	"sync/atomic"
)

// SpinLock is a mutual exclusion lock that busy-waits instead of parking
// the goroutine. The zero value is unlocked. Hold it only for a few
// instructions and never across I/O.
type SpinLock struct {
	state int32
}

// spinsBeforeYield bounds the busy loop before giving up the processor.
const spinsBeforeYield = 64

// Lock acquires the lock, spinning until it is available.
func (l *SpinLock) Lock() {
	spins := 0
	for !atomic.CompareAndSwapInt32(&l.state, 0, 1) {
		spins++
		if spins == spinsBeforeYield {
			spins = 0
			runtime.Gosched()
		}
	}
}

// TryLock acquires the lock if it is free and reports whether it did.
func (l *SpinLock) TryLock() bool {
	return atomic.CompareAndSwapInt32(&l.state, 0, 1)
}

// Unlock releases the lock. Unlocking an unlocked SpinLock panics.
func (l *SpinLock) Unlock() {
	if !atomic.CompareAndSwapInt32(&l.state, 1, 0) {
		panic("spinlock: unlock of unlocked lock")
	}
}
