package metrics

import (
	"expvar"
	"testing"
)

func TestCountersPublished(t *testing.T) {
	ResetForTests()
	PacketsSent.Add(3)
	SetActiveMessages(2)
	v := expvar.Get("homa_packets_sent_total")
	if v == nil || v.String() != "3" {
		t.Fatalf("homa_packets_sent_total = %v", v)
	}
	if ActiveMessages() != 2 {
		t.Fatalf("ActiveMessages() = %d", ActiveMessages())
	}
	ResetForTests()
	if PacketsSent.Value() != 0 || ActiveMessages() != 0 {
		t.Fatalf("ResetForTests left values behind")
	}
}
