// Package timeout keeps deadlines of one kind in expiration order. Entries
// are embedded in the objects they time, so membership changes never
// allocate.
package timeout

import (
	"sync"
	"time"
)

// Timeout is an intrusive registry entry owned by an object of type T. The
// zero value is not usable; create entries with New or Init.
type Timeout[T any] struct {
	owner      T
	expiration time.Time
	prev, next *Timeout[T]
	registry   *Registry[T]
}

// New returns an entry owned by owner.
func New[T any](owner T) *Timeout[T] {
	t := &Timeout[T]{}
	t.Init(owner)
	return t
}

// Init sets the owner of an entry embedded by value. It must be called
// before the entry is scheduled.
func (t *Timeout[T]) Init(owner T) {
	t.owner = owner
}

// Owner returns the object the entry belongs to.
func (t *Timeout[T]) Owner() T {
	return t.owner
}

// Registry is a deadline-ordered list of entries guarded by its own lock.
type Registry[T any] struct {
	mu         sync.Mutex
	head, tail *Timeout[T]
	n          int
}

// NewRegistry returns an empty registry.
func NewRegistry[T any]() *Registry[T] {
	return &Registry[T]{}
}

// Schedule sets the deadline of t, removing it first if it is already
// scheduled. Insertion scans from the tail, so non-decreasing deadlines cost
// O(1). An entry must only ever be used with one registry.
func (r *Registry[T]) Schedule(t *Timeout[T], deadline time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t.registry == r {
		r.unlink(t)
	}
	t.expiration = deadline
	t.registry = r

	after := r.tail
	for after != nil && after.expiration.After(deadline) {
		after = after.prev
	}
	if after == nil {
		t.prev = nil
		t.next = r.head
		if r.head != nil {
			r.head.prev = t
		} else {
			r.tail = t
		}
		r.head = t
	} else {
		t.prev = after
		t.next = after.next
		if after.next != nil {
			after.next.prev = t
		} else {
			r.tail = t
		}
		after.next = t
	}
	r.n++
}

// Cancel removes t. Cancelling an entry that is not scheduled here is a
// no-op.
func (r *Registry[T]) Cancel(t *Timeout[T]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t.registry != r {
		return
	}
	r.unlink(t)
}

func (r *Registry[T]) unlink(t *Timeout[T]) {
	if t.prev != nil {
		t.prev.next = t.next
	} else {
		r.head = t.next
	}
	if t.next != nil {
		t.next.prev = t.prev
	} else {
		r.tail = t.prev
	}
	t.prev, t.next, t.registry = nil, nil, nil
	r.n--
}

// Scheduled reports whether t is currently in r.
func (r *Registry[T]) Scheduled(t *Timeout[T]) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return t.registry == r
}

// Deadline returns the deadline of t if it is scheduled in r.
func (r *Registry[T]) Deadline(t *Timeout[T]) (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t.registry != r {
		return time.Time{}, false
	}
	return t.expiration, true
}

// NextExpiration returns the soonest deadline, or false if r is empty.
func (r *Registry[T]) NextExpiration() (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.head == nil {
		return time.Time{}, false
	}
	return r.head.expiration, true
}

// Reap removes every entry whose deadline is not after now and returns their
// owners, oldest deadline first.
func (r *Registry[T]) Reap(now time.Time) []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	var owners []T
	for r.head != nil && !r.head.expiration.After(now) {
		t := r.head
		r.unlink(t)
		owners = append(owners, t.owner)
	}
	return owners
}

// Len returns the number of scheduled entries.
func (r *Registry[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.n
}
