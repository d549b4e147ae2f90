package sender

import (
	"time"

	"github.com/pkg/errors"
)

// Setting tunes the sending engine.
type Setting struct {
	// UnscheduledPackets may be sent before the receiver grants anything.
	UnscheduledPackets int
	// StallTimeout is how long an in-progress message may go without
	// progress before its sent packets are retransmitted.
	StallTimeout time.Duration
	// MaxStallRetries retransmissions are attempted before the message fails.
	MaxStallRetries int
	// PingInterval is the liveness probe period of a live message.
	PingInterval time.Duration
	// MaxPings unanswered probes are sent before the message fails.
	MaxPings int
	// PollInterval is the tick of Run.
	PollInterval time.Duration
	// Workers share the per-tick transmission work in Poll.
	Workers int
}

func DefaultSetting() *Setting {
	return &Setting{
		UnscheduledPackets: 8,
		StallTimeout:       50 * time.Millisecond,
		MaxStallRetries:    5,
		PingInterval:       200 * time.Millisecond,
		MaxPings:           5,
		PollInterval:       time.Millisecond,
		Workers:            1,
	}
}

func (s *Setting) validate() error {
	switch {
	case s.UnscheduledPackets < 0:
		return errors.Errorf("unscheduled packets %d is negative", s.UnscheduledPackets)
	case s.StallTimeout <= 0:
		return errors.Errorf("stall timeout %s must be positive", s.StallTimeout)
	case s.MaxStallRetries < 0:
		return errors.Errorf("stall retries %d is negative", s.MaxStallRetries)
	case s.PingInterval <= 0:
		return errors.Errorf("ping interval %s must be positive", s.PingInterval)
	case s.MaxPings < 0:
		return errors.Errorf("max pings %d is negative", s.MaxPings)
	case s.PollInterval <= 0:
		return errors.Errorf("poll interval %s must be positive", s.PollInterval)
	case s.Workers < 1:
		return errors.Errorf("workers %d must be at least 1", s.Workers)
	}
	return nil
}
