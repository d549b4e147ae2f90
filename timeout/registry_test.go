package timeout

import (
	"sync"
	"testing"
	"time"

	"github.com/davecgh/go-spew/spew"
)

type item struct {
	name string
	t    Timeout[*item]
}

func newItem(name string) *item {
	it := &item{name: name}
	it.t.Init(it)
	return it
}

var epoch = time.Unix(1000, 0)

func at(ms int) time.Time {
	return epoch.Add(time.Duration(ms) * time.Millisecond)
}

func names(items []*item) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.name)
	}
	return out
}

func TestScheduleTwiceKeepsOneEntry(t *testing.T) {
	r := NewRegistry[*item]()
	a := newItem("a")
	r.Schedule(&a.t, at(10))
	r.Schedule(&a.t, at(30))
	if r.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", r.Len())
	}
	deadline, ok := r.Deadline(&a.t)
	if !ok || !deadline.Equal(at(30)) {
		t.Fatalf("Deadline() = %v, %t", deadline, ok)
	}
	if got := r.Reap(at(20)); len(got) != 0 {
		t.Fatalf("Reap returned %v before the second deadline", names(got))
	}
	if got := r.Reap(at(30)); len(got) != 1 || got[0] != a {
		t.Fatalf("Reap returned %v", names(got))
	}
}

func TestReapOrderAndBound(t *testing.T) {
	r := NewRegistry[*item]()
	deadlines := map[string]int{"a": 50, "b": 10, "c": 30, "d": 30, "e": 70, "f": 20}
	items := make(map[string]*item)
	for _, name := range []string{"a", "b", "c", "d", "e", "f"} {
		items[name] = newItem(name)
		r.Schedule(&items[name].t, at(deadlines[name]))
	}
	next, ok := r.NextExpiration()
	if !ok || !next.Equal(at(10)) {
		t.Fatalf("NextExpiration() = %v, %t", next, ok)
	}
	if r.Len() != 6 {
		t.Fatalf("NextExpiration mutated the registry: Len() = %d", r.Len())
	}

	got := names(r.Reap(at(50)))
	want := []string{"b", "f", "c", "d", "a"}
	if spew.Sdump(got) != spew.Sdump(want) {
		t.Fatalf("Reap(50) = %v, want %v", got, want)
	}
	for _, name := range want {
		if r.Scheduled(&items[name].t) {
			t.Fatalf("%s is still scheduled after reaping", name)
		}
	}
	if !r.Scheduled(&items["e"].t) || r.Len() != 1 {
		t.Fatalf("e should be the only remaining entry, Len() = %d", r.Len())
	}
}

func TestCancel(t *testing.T) {
	r := NewRegistry[*item]()
	a, b, c := newItem("a"), newItem("b"), newItem("c")
	r.Schedule(&a.t, at(1))
	r.Schedule(&b.t, at(2))
	r.Schedule(&c.t, at(3))

	r.Cancel(&b.t)
	r.Cancel(&b.t)
	r.Cancel(&newItem("never").t)
	if r.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", r.Len())
	}
	r.Cancel(&a.t)
	next, _ := r.NextExpiration()
	if !next.Equal(at(3)) {
		t.Fatalf("NextExpiration() = %v", next)
	}
	r.Cancel(&c.t)
	if _, ok := r.NextExpiration(); ok || r.Len() != 0 {
		t.Fatalf("registry not empty")
	}
	if got := r.Reap(at(100)); len(got) != 0 {
		t.Fatalf("Reap on empty registry returned %v", names(got))
	}

	// Entries can be reused after cancellation.
	r.Schedule(&b.t, at(5))
	if !r.Scheduled(&b.t) {
		t.Fatalf("b not scheduled")
	}
}

func TestConcurrentCancelAndReap(t *testing.T) {
	r := NewRegistry[*item]()
	const n = 2000
	items := make([]*item, n)
	for i := range items {
		items[i] = newItem("x")
		r.Schedule(&items[i].t, at(i))
	}

	var mu sync.Mutex
	processed := make(map[*item]int)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < n; i += 2 {
			r.Cancel(&items[i].t)
		}
	}()
	go func() {
		defer wg.Done()
		for ms := 0; ms <= n; ms += 50 {
			for _, it := range r.Reap(at(ms)) {
				mu.Lock()
				processed[it]++
				mu.Unlock()
			}
		}
	}()
	wg.Wait()
	for _, it := range r.Reap(at(n)) {
		processed[it]++
	}
	for _, count := range processed {
		if count != 1 {
			t.Fatalf("entry reaped %d times", count)
		}
	}
	if r.Len() != 0 {
		t.Fatalf("Len() = %d after draining", r.Len())
	}
	for i := 1; i < n; i += 2 {
		if processed[items[i]] != 1 {
			t.Fatalf("uncancelled entry %d was never reaped", i)
		}
	}
}

func TestNewOwner(t *testing.T) {
	owner := "owner"
	e := New(&owner)
	if e.Owner() != &owner {
		t.Fatalf("Owner() returned a different pointer")
	}
	r := NewRegistry[*string]()
	r.Schedule(e, at(1))
	if got := r.Reap(at(1)); len(got) != 1 || got[0] != &owner {
		t.Fatalf("Reap returned %v", got)
	}
}
