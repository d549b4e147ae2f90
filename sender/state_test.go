package sender

import (
	"testing"

	"github.com/pkg/errors"
)

func TestStateTransitions(t *testing.T) {
	allowed := map[State][]State{
		NotStarted: {InProgress},
		InProgress: {Sent, Completed, Dropped, Failed},
		Sent:       {Completed, Dropped, Failed},
	}
	states := []State{NotStarted, InProgress, Sent, Completed, Dropped, Failed}
	for _, from := range states {
		for _, to := range states {
			want := false
			for _, s := range allowed[from] {
				if s == to {
					want = true
				}
			}
			if got := from.CanTransition(to); got != want {
				t.Errorf("%s -> %s: got %t, want %t", from, to, got, want)
			}
		}
	}
}

func TestStateTerminal(t *testing.T) {
	for _, s := range []State{Completed, Dropped, Failed} {
		if !s.IsTerminal() {
			t.Errorf("%s is not terminal", s)
		}
	}
	for _, s := range []State{NotStarted, InProgress, Sent} {
		if s.IsTerminal() {
			t.Errorf("%s is terminal", s)
		}
	}
	if State(42).String() != "State(42)" {
		t.Errorf("unexpected name %s", State(42))
	}
}

func TestInvalidTransitionDoesNotMutate(t *testing.T) {
	m := newOutboundMessage(4)
	v := view(m)
	v.lock()
	defer v.unlock()
	if err := v.transition(Sent); errors.Cause(err) != ErrInvalidTransition {
		t.Fatalf("NOT_STARTED -> SENT: %v", err)
	}
	if err := v.finish(Completed, nil); errors.Cause(err) != ErrInvalidTransition {
		t.Fatalf("NOT_STARTED -> COMPLETED: %v", err)
	}
	if m.State() != NotStarted {
		t.Fatalf("state changed to %s", m.State())
	}
	select {
	case <-m.Done():
		t.Fatalf("done closed by a rejected transition")
	default:
	}
}

func TestEngineViewIndexes(t *testing.T) {
	m := newOutboundMessage(4)
	m.buffer.Append(make([]byte, 10))
	v := view(m)
	v.lock()
	defer v.unlock()
	if err := v.start(1); err != nil {
		t.Fatalf("start: %v", err)
	}
	if m.grantIndex != 1 {
		t.Fatalf("unscheduled grant %d, want 1", m.grantIndex)
	}
	first, payloads := v.nextPackets()
	if first != 0 || len(payloads) != 1 || m.sentIndex != 1 {
		t.Fatalf("nextPackets gave %d+%d, sentIndex %d", first, len(payloads), m.sentIndex)
	}
	if v.raiseGrant(1) {
		t.Fatalf("equal grant reported as raised")
	}
	if !v.raiseGrant(100) || m.grantIndex != 3 {
		t.Fatalf("grant not clamped to packet count: %d", m.grantIndex)
	}
	if v.raiseGrant(2) || m.grantIndex != 3 {
		t.Fatalf("grant decreased to %d", m.grantIndex)
	}
	if got := v.sentPackets(0, 5); len(got) != 1 {
		t.Fatalf("sentPackets went past sentIndex: %d", len(got))
	}
	first, payloads = v.nextPackets()
	if first != 1 || len(payloads) != 2 || !v.allSent() {
		t.Fatalf("nextPackets gave %d+%d", first, len(payloads))
	}
	if len(payloads[1]) != 2 {
		t.Fatalf("last packet has %d bytes", len(payloads[1]))
	}
	if first, payloads = v.nextPackets(); len(payloads) != 0 {
		t.Fatalf("nextPackets resent %d packets from %d", len(payloads), first)
	}
}
