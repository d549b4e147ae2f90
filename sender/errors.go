package sender

import "github.com/pkg/errors"

var (
	// ErrBufferFrozen is returned when a message buffer is modified after the
	// message was handed to the Sender.
	ErrBufferFrozen = errors.New("message buffer is frozen")
	// ErrMessageTooLarge is returned when a message would need more packets
	// than a packet index can address.
	ErrMessageTooLarge = errors.New("message too large")
	// ErrInvalidTransition is returned for a state change the message state
	// machine does not allow.
	ErrInvalidTransition = errors.New("invalid state transition")
	// ErrMessageInFlight is returned when releasing a message that has not
	// reached a terminal state.
	ErrMessageInFlight = errors.New("message still in flight")
	// ErrAlreadySent is returned when the same message is sent twice.
	ErrAlreadySent = errors.New("message already sent")
	// ErrUnknownMessage is returned for signals naming no tracked message.
	ErrUnknownMessage = errors.New("unknown message")

	// ErrRetriesExhausted is the error of a message that stalled more often
	// than the retry budget allows.
	ErrRetriesExhausted = errors.New("retransmission budget exhausted")
	// ErrPeerUnresponsive is the error of a message whose liveness probes
	// all went unanswered.
	ErrPeerUnresponsive = errors.New("peer did not answer liveness probes")
	// ErrDropped is the error of a message the receiver has no record of.
	ErrDropped = errors.New("receiver has no record of the message")
)
