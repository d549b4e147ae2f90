package sender

import "fmt"

// State is the position of an OutboundMessage in its lifecycle.
type State int32

// Message states. NotStarted is the initial state; Completed, Dropped and
// Failed are terminal.
const (
	NotStarted State = iota // not yet picked up by the Sender
	InProgress              // packets are being sent
	Sent                    // every packet was handed to the driver
	Completed               // the receiver acknowledged the message
	Dropped                 // the receiver has no record of the message
	Failed                  // the Sender gave up
)

var stateNames = [...]string{"NOT_STARTED", "IN_PROGRESS", "SENT", "COMPLETED", "DROPPED", "FAILED"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int32(s))
	}
	return stateNames[s]
}

// IsTerminal reports whether no transition leaves s.
func (s State) IsTerminal() bool {
	return s == Completed || s == Dropped || s == Failed
}

var transitions = map[State][]State{
	NotStarted: {InProgress},
	InProgress: {Sent, Completed, Dropped, Failed},
	Sent:       {Completed, Dropped, Failed},
}

// CanTransition reports whether the state machine allows moving from s to
// next.
func (s State) CanTransition(next State) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}
