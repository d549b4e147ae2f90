package main

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/vzex/dog-homa/driver"
	"github.com/vzex/dog-homa/driver/mac"
	"github.com/vzex/dog-homa/driver/udp"
	"github.com/vzex/dog-homa/sender"
	"github.com/vzex/dog-homa/sink"
)

func TestLoadConfigSend(t *testing.T) {
	cfg, err := loadConfig([]string{
		"--mac", "02:00:00:00:00:01",
		"--peer", "02:00:00:00:00:02=127.0.0.1:7001",
		"--ds", "4", "--ps", "2", "--maxretries", "9",
		"send", "--to", "02:00:00:00:00:02", "--timeout", "3s",
	})
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.command != "send" {
		t.Fatalf("command %q", cfg.command)
	}
	if cfg.to.String() != "02:00:00:00:00:02" || cfg.Send.Timeout != 3*time.Second {
		t.Fatalf("send flags %s %s", cfg.to, cfg.Send.Timeout)
	}
	if cfg.link.DataShards != 4 || cfg.link.ParityShards != 2 || len(cfg.link.Peers) != 1 {
		t.Fatalf("unexpected link setting %+v", cfg.link)
	}
	if cfg.sender.MaxStallRetries != 9 || cfg.sender.PingInterval != sender.DefaultSetting().PingInterval {
		t.Fatalf("unexpected sender setting %+v", cfg.sender)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	tests := [][]string{
		{"--mac", "02:00:00:00:00:01", "sink", "--bogus"},
		{"--mac", "not-a-mac", "sink"},
		{"--mac", "00:00:00:00:00:00", "sink"},
		{"--mac", "02:00:00:00:00:01", "--peer", "02:00:00:00:00:02", "sink"},
		{"--mac", "02:00:00:00:00:01", "--ds", "2", "sink"},
		{"--mac", "02:00:00:00:00:01", "send", "--to", "02:00:00:00:00:03"},
		{"--mac", "02:00:00:00:00:01", "--journal", "redis", "sink"},
		{"--mac", "02:00:00:00:00:01", "--mtu", "30", "sink"},
	}
	for _, args := range tests {
		if _, err := loadConfig(args); err == nil {
			t.Errorf("loadConfig(%q) succeeded", args)
		}
	}
}

func TestSendOverLoopback(t *testing.T) {
	senderMAC := mac.New([6]byte{2, 0, 0, 0, 0, 1})
	sinkMAC := mac.New([6]byte{2, 0, 0, 0, 0, 2})

	received := make(chan sink.Message, 1)
	var receiver *sink.Sink
	ready := make(chan struct{})
	sinkSetting := udp.DefaultSetting()
	sinkSetting.Listen = "127.0.0.1:0"
	sinkSetting.LocalMAC = sinkMAC
	sinkSetting.DataShards, sinkSetting.ParityShards = 4, 2
	sinkLink, err := udp.Open(sinkSetting, func(src driver.Address, packet []byte) {
		<-ready
		receiver.HandlePacket(src, packet)
	})
	if err != nil {
		t.Fatalf("open sink link: %v", err)
	}
	defer sinkLink.Close()
	receiver = sink.New(sinkLink, func(m sink.Message) { received <- m })
	close(ready)

	var s *sender.Sender
	senderReady := make(chan struct{})
	senderSetting := udp.DefaultSetting()
	senderSetting.Listen = "127.0.0.1:0"
	senderSetting.LocalMAC = senderMAC
	senderSetting.DataShards, senderSetting.ParityShards = 4, 2
	senderSetting.Peers[sinkMAC] = sinkLink.LocalAddr().String()
	senderLink, err := udp.Open(senderSetting, func(src driver.Address, packet []byte) {
		<-senderReady
		s.HandlePacket(src, packet)
	})
	if err != nil {
		t.Fatalf("open sender link: %v", err)
	}
	defer senderLink.Close()
	if err := sinkLink.AddPeer(senderMAC, senderLink.LocalAddr().String()); err != nil {
		t.Fatalf("AddPeer: %v", err)
	}

	if s, err = sender.New(senderLink, 1, nil); err != nil {
		t.Fatalf("sender.New: %v", err)
	}
	close(senderReady)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	go s.Run(ctx)

	payload := bytes.Repeat([]byte("0123456789abcdef"), 1000)
	msg := s.AllocMessage()
	msg.AcquireBuffer(func(b *sender.Buffer) error { return b.Append(payload) })
	if _, err := s.SendMessage(msg, sinkMAC.Address()); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	state, err := msg.Wait(ctx)
	if state != sender.Completed {
		t.Fatalf("state %s: %v", state, err)
	}
	select {
	case m := <-received:
		if !bytes.Equal(m.Data, payload) || m.Source != senderMAC.Address() {
			t.Fatalf("received %d bytes from %#x", len(m.Data), uint64(m.Source))
		}
	case <-ctx.Done():
		t.Fatalf("sink did not report the message")
	}
}
