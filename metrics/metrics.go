// Package metrics exposes transport counters through expvar.
package metrics

import "expvar"

var (
	MessagesStarted   = expvar.NewInt("homa_messages_started_total")
	MessagesCompleted = expvar.NewInt("homa_messages_completed_total")
	MessagesDropped   = expvar.NewInt("homa_messages_dropped_total")
	MessagesFailed    = expvar.NewInt("homa_messages_failed_total")
	PacketsSent       = expvar.NewInt("homa_packets_sent_total")
	PacketsResent     = expvar.NewInt("homa_packets_resent_total")
	PingsSent         = expvar.NewInt("homa_pings_sent_total")
	TransmitErrors    = expvar.NewInt("homa_transmit_errors_total")
	activeMessages    = expvar.NewInt("homa_active_messages")
)

// SetActiveMessages records how many messages the sender currently tracks.
func SetActiveMessages(n int) {
	activeMessages.Set(int64(n))
}

// ActiveMessages returns the last recorded number of tracked messages.
func ActiveMessages() int64 {
	return activeMessages.Value()
}

// ResetForTests clears counters; intended for use in tests only.
func ResetForTests() {
	MessagesStarted.Set(0)
	MessagesCompleted.Set(0)
	MessagesDropped.Set(0)
	MessagesFailed.Set(0)
	PacketsSent.Set(0)
	PacketsResent.Set(0)
	PingsSent.Set(0)
	TransmitErrors.Set(0)
	activeMessages.Set(0)
}
